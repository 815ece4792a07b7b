package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/stockflow_backend/models"
	"bitbucket.org/mmdatafocus/stockflow_backend/models/reports"
	"bitbucket.org/mmdatafocus/stockflow_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

var fixedGeneratedAt = time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)

func testRows() []models.CanonicalRow {
	d, _ := time.Parse("2006-01-02", "2026-01-10")
	return []models.CanonicalRow{
		{
			TransactionID:    "A",
			Kind:             models.TransactionKindImport,
			Date:             &d,
			CounterpartyName: "Acme",
			StaffName:        "U Ba",
			ProductName:      "Rice",
			Category:         "Food",
			Quantity:         10,
			UnitAmount:       decimal.NewFromInt(25),
			Amount:           decimal.NewFromInt(250),
			BatchNumber:      "B-01",
			Status:           models.TransactionStatusCompleted,
		},
		{
			TransactionID:    "A",
			Kind:             models.TransactionKindImport,
			Date:             &d,
			CounterpartyName: "Acme",
			StaffName:        "U Ba",
			ProductName:      "Oil",
			Category:         "Food",
			Quantity:         8,
			UnitAmount:       decimal.NewFromInt(10),
			Amount:           decimal.NewFromInt(80),
			BatchNumber:      "B-02",
			Status:           models.TransactionStatusCompleted,
		},
	}
}

func testRequest(format Format) Request {
	return Request{
		Kind:            models.TransactionKindImport,
		Format:          format,
		Scope:           ScopeFiltered,
		FromDate:        "2026-01-01",
		ToDate:          "2026-01-31",
		SelectedColumns: []Column{ColumnDate, ColumnCounterparty, ColumnProduct, ColumnQuantity, ColumnAmount},
		IncludeDetails:  true,
	}
}

func testSummary() *reports.SummaryReport {
	return reports.Aggregate(testRows(), nil)
}

func TestRequestValidate(t *testing.T) {
	req := testRequest(FormatCSV)
	if err := req.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	noCols := testRequest(FormatCSV)
	noCols.SelectedColumns = nil
	if err := noCols.Validate(); err == nil {
		t.Fatal("empty column selection must be rejected")
	}

	badCol := testRequest(FormatCSV)
	badCol.SelectedColumns = []Column{"bogus"}
	if err := badCol.Validate(); err == nil {
		t.Fatal("unrecognized column must be rejected")
	}

	badFormat := testRequest("docx")
	if err := badFormat.Validate(); err == nil {
		t.Fatal("unsupported format must be rejected")
	}

	badDate := testRequest(FormatCSV)
	badDate.FromDate = "01/01/2026"
	if err := badDate.Validate(); err == nil {
		t.Fatal("non-ISO date must be rejected")
	}
}

func TestFilenameConvention(t *testing.T) {
	req := testRequest(FormatPDF)
	if got := req.Filename(); got != "import_report_2026-01-01_to_2026-01-31.pdf" {
		t.Fatalf("unexpected filename %q", got)
	}
	req.Kind = models.TransactionKindSale
	req.Format = FormatXLSX
	if got := req.Filename(); got != "sale_report_2026-01-01_to_2026-01-31.xlsx" {
		t.Fatalf("unexpected filename %q", got)
	}
}

func TestRender_EmptyRowsIsMissingData(t *testing.T) {
	_, err := Render(nil, testSummary(), testRequest(FormatCSV), fixedGeneratedAt)
	if err == nil {
		t.Fatal("expected an error for an empty row set")
	}
	if utils.CategoryOf(err) != utils.ErrorCategoryMissingData {
		t.Fatalf("expected MissingData, got %s", utils.CategoryOf(err))
	}
}

// The CSV container carries exactly the logical table: one header row and
// one row per canonical row, cells in column order.
func TestRenderCSV_LogicalContent(t *testing.T) {
	req := testRequest(FormatCSV)
	artifact, err := Render(testRows(), testSummary(), req, fixedGeneratedAt)
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := csv.NewReader(bytes.NewReader(artifact.Bytes)).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(parsed))
	}
	wantHeader := []string{"Date", "Counterparty", "Product", "Qty", "Amount"}
	for i, h := range wantHeader {
		if parsed[0][i] != h {
			t.Fatalf("header[%d]: expected %q, got %q", i, h, parsed[0][i])
		}
	}
	if parsed[1][2] != "Rice" || parsed[1][4] != "250.00" {
		t.Fatalf("unexpected first row: %v", parsed[1])
	}
	if parsed[2][2] != "Oil" || parsed[2][3] != "8" {
		t.Fatalf("unexpected second row: %v", parsed[2])
	}
}

// The workbook carries the same logical table as the CSV, wrapped in the
// summary block on top and mirrored at the bottom.
func TestRenderExcel_ContentParity(t *testing.T) {
	artifact, err := Render(testRows(), testSummary(), testRequest(FormatXLSX), fixedGeneratedAt)
	if err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(artifact.Bytes))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	sheetRows, err := f.GetRows("Sheet1")
	if err != nil {
		t.Fatal(err)
	}

	headerIdx := -1
	for i, row := range sheetRows {
		if len(row) > 0 && row[0] == "Date" {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		t.Fatalf("no header row found in %v", sheetRows)
	}
	if sheetRows[headerIdx+1][2] != "Rice" || sheetRows[headerIdx+2][2] != "Oil" {
		t.Fatalf("data rows out of order: %v", sheetRows[headerIdx+1:headerIdx+3])
	}
	if sheetRows[0][0] != "Import Report" {
		t.Fatalf("expected title first, got %q", sheetRows[0][0])
	}

	// The summary block appears twice: header and footer.
	titleCount := 0
	for _, row := range sheetRows {
		if len(row) > 0 && row[0] == "Import Report" {
			titleCount++
		}
	}
	if titleCount != 2 {
		t.Fatalf("expected mirrored summary block, found title %d times", titleCount)
	}
}

func TestRenderPDF_Structure(t *testing.T) {
	artifact, err := Render(testRows(), testSummary(), testRequest(FormatPDF), fixedGeneratedAt)
	if err != nil {
		t.Fatal(err)
	}
	body := string(artifact.Bytes)
	if !strings.HasPrefix(body, "%PDF-1.4") {
		t.Fatal("missing PDF header")
	}
	if !strings.HasSuffix(body, "%%EOF") {
		t.Fatal("missing PDF trailer")
	}
	if !strings.Contains(body, "/Count 1") {
		t.Fatal("two rows must fit on one page")
	}
	for _, want := range []string{"Import Report", "Rice", "Oil", "Summary", "Total Amount"} {
		if !strings.Contains(body, want) {
			t.Fatalf("PDF missing %q", want)
		}
	}
}

func TestRenderPDF_Paginates(t *testing.T) {
	rows := make([]models.CanonicalRow, 0, 50)
	for i := 0; i < 50; i++ {
		row := testRows()[0]
		rows = append(rows, row)
	}
	artifact, err := Render(rows, reports.Aggregate(rows, nil), testRequest(FormatPDF), fixedGeneratedAt)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(artifact.Bytes), "/Count 2") {
		t.Fatal("fifty rows must spill onto a second page")
	}
}

func TestRenderHTML_Content(t *testing.T) {
	artifact, err := Render(testRows(), testSummary(), testRequest(FormatHTML), fixedGeneratedAt)
	if err != nil {
		t.Fatal(err)
	}
	body := string(artifact.Bytes)
	for _, want := range []string{
		"<title>Import Report</title>",
		"<th>Counterparty</th>",
		"<td>Rice</td>",
		"<td>Oil</td>",
		"<td>250.00</td>",
		"<dt>Total Amount</dt>",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("HTML missing %q", want)
		}
	}
}

// With the generation instant pinned, rendering is fully deterministic.
func TestRender_Deterministic(t *testing.T) {
	for _, format := range []Format{FormatCSV, FormatPDF, FormatHTML} {
		a, err := Render(testRows(), testSummary(), testRequest(format), fixedGeneratedAt)
		if err != nil {
			t.Fatalf("%s: %v", format, err)
		}
		b, err := Render(testRows(), testSummary(), testRequest(format), fixedGeneratedAt)
		if err != nil {
			t.Fatalf("%s: %v", format, err)
		}
		if !bytes.Equal(a.Bytes, b.Bytes) {
			t.Fatalf("%s: two renders of the same input differ", format)
		}
	}
}

// The xlsx container embeds write timestamps, so determinism is checked on
// the extracted cell content rather than the raw bytes.
func TestRenderExcel_Deterministic(t *testing.T) {
	renderRows := func() [][]string {
		artifact, err := Render(testRows(), testSummary(), testRequest(FormatXLSX), fixedGeneratedAt)
		if err != nil {
			t.Fatal(err)
		}
		f, err := excelize.OpenReader(bytes.NewReader(artifact.Bytes))
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()
		cells, err := f.GetRows("Sheet1")
		if err != nil {
			t.Fatal(err)
		}
		return cells
	}
	first := renderRows()
	second := renderRows()
	if len(first) != len(second) {
		t.Fatalf("row counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if strings.Join(first[i], "|") != strings.Join(second[i], "|") {
			t.Fatalf("row %d differs: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestRender_CollapsesWithoutDetails(t *testing.T) {
	req := testRequest(FormatCSV)
	req.IncludeDetails = false
	artifact, err := Render(testRows(), testSummary(), req, fixedGeneratedAt)
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := csv.NewReader(bytes.NewReader(artifact.Bytes)).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed) != 2 {
		t.Fatalf("expected header + 1 collapsed row, got %d", len(parsed))
	}
	// Quantities and amounts fold into the transaction row.
	if parsed[1][3] != "18" || parsed[1][4] != "330.00" {
		t.Fatalf("unexpected collapsed row: %v", parsed[1])
	}
	if parsed[1][2] != "General Import" {
		t.Fatalf("collapsed product label: got %q", parsed[1][2])
	}
}
