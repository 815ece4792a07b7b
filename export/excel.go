package export

import (
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/stockflow_backend/models/reports"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Sheet1"

func writeSummaryBlock(f *excelize.File, startRow int, title, meta string, lines [][2]string) int {
	rowNo := startRow
	f.SetCellValue(sheetName, "A"+fmt.Sprint(rowNo), title)
	rowNo++
	f.SetCellValue(sheetName, "A"+fmt.Sprint(rowNo), meta)
	rowNo++
	for _, line := range lines {
		f.SetCellValue(sheetName, "A"+fmt.Sprint(rowNo), line[0])
		f.SetCellValue(sheetName, "B"+fmt.Sprint(rowNo), line[1])
		rowNo++
	}
	return rowNo
}

// renderExcel writes the workbook: summary block on top, the data table,
// then the same summary block mirrored as a footer.
func renderExcel(table Table, summary *reports.SummaryReport, title, meta string, generatedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if _, err := f.NewSheet(sheetName); err != nil {
		return nil, err
	}

	lines := summaryLines(summary, generatedAt)
	rowNo := writeSummaryBlock(f, 1, title, meta, lines)
	rowNo++ // blank spacer row

	col := 'A'
	for _, h := range table.Headers {
		f.SetCellValue(sheetName, string(col)+fmt.Sprint(rowNo), h)
		col++
	}
	rowNo++

	for _, cells := range table.Rows {
		col := 'A'
		for _, value := range cells {
			f.SetCellValue(sheetName, string(col)+fmt.Sprint(rowNo), value)
			col++
		}
		rowNo++
	}

	rowNo++ // blank spacer row
	writeSummaryBlock(f, rowNo, title, meta, lines)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
