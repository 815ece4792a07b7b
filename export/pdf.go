package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/stockflow_backend/models/reports"
)

// A4 page geometry and table layout for the paginated document.
const (
	pdfPageWidth   = 595
	pdfPageHeight  = 842
	pdfMarginX     = 40
	pdfTableWidth  = 515
	pdfRowHeight   = 16
	pdfBottomLimit = 60
	pdfFirstPageY  = 700
	pdfLaterPageY  = 790
)

type pdfPage struct {
	stream bytes.Buffer
	y      int
}

func newPDFPage(first bool) *pdfPage {
	p := &pdfPage{}
	if first {
		p.y = pdfFirstPageY
	} else {
		p.y = pdfLaterPageY
	}
	return p
}

func (p *pdfPage) text(x, y int, font string, size int, s string) {
	p.stream.WriteString(fmt.Sprintf("BT /%s %d Tf %d %d Td (%s) Tj ET\n", font, size, x, y, pdfEscape(s)))
}

func (p *pdfPage) writeTableHeader(headers []string, colWidth int) {
	x := pdfMarginX
	for _, h := range headers {
		p.text(x, p.y, "F2", 8, h)
		x += colWidth
	}
	p.y -= pdfRowHeight
}

// renderPDF lays the table out across as many pages as the rows need.
// Each page repeats the column headers; the summary block lands on the
// final page, spilling onto a fresh page when the rows leave no room.
func renderPDF(table Table, summary *reports.SummaryReport, title, meta string, generatedAt time.Time) ([]byte, error) {
	colWidth := pdfTableWidth
	if len(table.Headers) > 0 {
		colWidth = pdfTableWidth / len(table.Headers)
	}

	first := newPDFPage(true)
	first.text(pdfMarginX, 790, "F2", 18, title)
	first.text(pdfMarginX, 768, "F1", 10, meta)
	first.text(pdfMarginX, 752, "F1", 9, "Generated "+generatedAt.Format("2006-01-02 15:04"))

	pages := []*pdfPage{first}
	page := first
	page.writeTableHeader(table.Headers, colWidth)

	for _, cells := range table.Rows {
		if page.y < pdfBottomLimit {
			page = newPDFPage(false)
			pages = append(pages, page)
			page.writeTableHeader(table.Headers, colWidth)
		}
		x := pdfMarginX
		for _, cell := range cells {
			page.text(x, page.y, "F1", 8, cell)
			x += colWidth
		}
		page.y -= pdfRowHeight
	}

	lines := summaryLines(summary, generatedAt)
	needed := (len(lines) + 2) * pdfRowHeight
	if page.y-needed < pdfBottomLimit {
		page = newPDFPage(false)
		pages = append(pages, page)
	}
	page.y -= pdfRowHeight
	page.text(pdfMarginX, page.y, "F2", 11, "Summary")
	page.y -= pdfRowHeight
	for _, line := range lines {
		page.text(pdfMarginX, page.y, "F1", 9, line[0])
		page.text(pdfMarginX+140, page.y, "F1", 9, line[1])
		page.y -= pdfRowHeight
	}

	return assemblePDF(pages), nil
}

// assemblePDF serializes the page streams into a PDF 1.4 body with a
// catalog, page tree, two Type1 fonts and the xref table.
func assemblePDF(pages []*pdfPage) []byte {
	var kids []string
	for i := range pages {
		kids = append(kids, fmt.Sprintf("%d 0 R", 5+2*i))
	}

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica-Bold >>",
	}
	for i, page := range pages {
		pageObj := fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] /Contents %d 0 R /Resources << /Font << /F1 3 0 R /F2 4 0 R >> >> >>",
			pdfPageWidth, pdfPageHeight, 6+2*i)
		stream := page.stream.String()
		contentObj := fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", len(stream), stream)
		objects = append(objects, pageObj, contentObj)
	}

	var body bytes.Buffer
	offsets := make([]int, len(objects)+1)
	body.WriteString("%PDF-1.4\n")
	for i, obj := range objects {
		offsets[i+1] = body.Len()
		body.WriteString(fmt.Sprintf("%d 0 obj\n%s\nendobj\n", i+1, obj))
	}

	xrefStart := body.Len()
	body.WriteString(fmt.Sprintf("xref\n0 %d\n", len(objects)+1))
	body.WriteString("0000000000 65535 f \n")
	for i := 1; i <= len(objects); i++ {
		body.WriteString(fmt.Sprintf("%010d 00000 n \n", offsets[i]))
	}
	body.WriteString("trailer\n")
	body.WriteString(fmt.Sprintf("<< /Size %d /Root 1 0 R >>\n", len(objects)+1))
	body.WriteString("startxref\n")
	body.WriteString(fmt.Sprintf("%d\n", xrefStart))
	body.WriteString("%%EOF")
	return body.Bytes()
}

func pdfEscape(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "(", "\\(")
	s = strings.ReplaceAll(s, ")", "\\)")
	return s
}
