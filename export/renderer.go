package export

import (
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/stockflow_backend/models"
	"bitbucket.org/mmdatafocus/stockflow_backend/models/reports"
	"bitbucket.org/mmdatafocus/stockflow_backend/utils"
	"github.com/shopspring/decimal"
)

type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
)

func (f Format) Extension() string {
	return string(f)
}

func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatCSV:
		return "text/csv"
	case FormatPDF:
		return "application/pdf"
	case FormatHTML:
		return "text/html; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

type Scope string

const (
	ScopeAll      Scope = "all"
	ScopeFiltered Scope = "filtered"
)

// Request describes one export: which transaction kind, the output
// container, the date window and the columns the caller wants.
type Request struct {
	Kind            models.TransactionKind `json:"kind" validate:"required,oneof=Import Sale"`
	Format          Format                 `json:"format" validate:"required,oneof=xlsx csv pdf html"`
	Scope           Scope                  `json:"scope" validate:"omitempty,oneof=all filtered"`
	FromDate        string                 `json:"fromDate" validate:"required,datetime=2006-01-02"`
	ToDate          string                 `json:"toDate" validate:"required,datetime=2006-01-02"`
	SelectedColumns []Column               `json:"selectedColumns" validate:"min=1"`
	IncludeDetails  bool                   `json:"includeDetails"`
}

func (r *Request) Validate() error {
	if err := utils.GetValidator().Struct(r); err != nil {
		return err
	}
	for _, col := range r.SelectedColumns {
		if !IsRecognizedColumn(col) {
			return fmt.Errorf("unrecognized column %q", col)
		}
	}
	return nil
}

func (r *Request) FromTime() time.Time {
	t, _ := time.Parse("2006-01-02", r.FromDate)
	return t
}

func (r *Request) ToTime() time.Time {
	t, _ := time.Parse("2006-01-02", r.ToDate)
	return t
}

// Filename follows {kind}_report_{fromDate}_to_{toDate}.{extension}.
func (r *Request) Filename() string {
	return fmt.Sprintf("%s_report_%s_to_%s.%s",
		strings.ToLower(string(r.Kind)), r.FromDate, r.ToDate, r.Format.Extension())
}

// Artifact is a fully rendered export file, ready for any sink.
type Artifact struct {
	Filename    string
	ContentType string
	Bytes       []byte
}

// Table is the logical content shared by every output format: the same
// header labels and the same data rows in the same order.
type Table struct {
	Columns []Column
	Headers []string
	Rows    [][]string
}

// BuildTable projects canonical rows onto the selected columns.
// truncated applies the width-constrained cell policy.
func BuildTable(rows []models.CanonicalRow, cols []Column, truncated bool) Table {
	table := Table{Columns: cols}
	for _, col := range cols {
		table.Headers = append(table.Headers, col.Label())
	}
	for _, row := range rows {
		cells := make([]string, 0, len(cols))
		for _, col := range cols {
			cells = append(cells, cellValue(row, col, truncated))
		}
		table.Rows = append(table.Rows, cells)
	}
	return table
}

// collapseToTransactions folds detail rows into one row per transaction
// for exports requested without line-item detail. Quantities and amounts
// sum; the product cell becomes the transaction-level label.
func collapseToTransactions(rows []models.CanonicalRow) []models.CanonicalRow {
	var order []string
	byID := map[string]*models.CanonicalRow{}
	for _, row := range rows {
		agg := byID[row.TransactionID]
		if agg == nil {
			folded := row
			folded.ProductName = models.GeneralProductName(row.Kind)
			folded.Category = "Unknown"
			folded.BatchNumber = "N/A"
			folded.ExpirationDate = nil
			folded.UnitAmount = decimal.Zero
			folded.Quantity = 0
			folded.Amount = decimal.Zero
			byID[row.TransactionID] = &folded
			agg = &folded
			order = append(order, row.TransactionID)
		}
		agg.Quantity += row.Quantity
		agg.Amount = agg.Amount.Add(row.Amount)
	}
	out := make([]models.CanonicalRow, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out
}

func reportTitle(kind models.TransactionKind) string {
	if kind == models.TransactionKindSale {
		return "Sales Report"
	}
	return "Import Report"
}

// summaryLines renders the summary block shared by the formats that carry
// one. Label/value pairs, in a fixed order.
func summaryLines(summary *reports.SummaryReport, generatedAt time.Time) [][2]string {
	lines := [][2]string{
		{"Generated", generatedAt.Format("2006-01-02 15:04")},
		{"Records", fmt.Sprintf("%d", summary.RecordCount)},
		{"Total Quantity", fmt.Sprintf("%d", summary.TotalQuantity)},
		{"Total Amount", summary.TotalAmount.StringFixed(2)},
		{"Profit", summary.Profit.StringFixed(2)},
		{"Margin %", summary.MarginPercent.StringFixed(1)},
	}
	if summary.GrowthPercent != nil {
		lines = append(lines, [2]string{"Growth %", *summary.GrowthPercent})
	}
	return lines
}

// Render produces the export artifact for one request. Every format
// receives the same logical table; only the container differs. An empty
// row set is a missing-data failure, not an empty file.
func Render(rows []models.CanonicalRow, summary *reports.SummaryReport, req Request, generatedAt time.Time) (*Artifact, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, utils.NewCategorizedError(utils.ErrorCategoryMissingData,
			"no records available for the requested window", nil)
	}
	if !req.IncludeDetails {
		rows = collapseToTransactions(rows)
	}

	title := reportTitle(req.Kind)
	meta := fmt.Sprintf("%s to %s", req.FromDate, req.ToDate)

	var (
		data []byte
		err  error
	)
	switch req.Format {
	case FormatXLSX:
		data, err = renderExcel(BuildTable(rows, req.SelectedColumns, false), summary, title, meta, generatedAt)
	case FormatCSV:
		data, err = renderCSV(BuildTable(rows, req.SelectedColumns, false))
	case FormatPDF:
		data, err = renderPDF(BuildTable(rows, req.SelectedColumns, true), summary, title, meta, generatedAt)
	case FormatHTML:
		data, err = renderHTML(BuildTable(rows, req.SelectedColumns, false), summary, title, meta, generatedAt)
	default:
		return nil, fmt.Errorf("unsupported format %q", req.Format)
	}
	if err != nil {
		return nil, err
	}

	return &Artifact{
		Filename:    req.Filename(),
		ContentType: req.Format.ContentType(),
		Bytes:       data,
	}, nil
}
