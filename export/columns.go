package export

import (
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/stockflow_backend/models"
)

type Column string

const (
	ColumnDate         Column = "date"
	ColumnCounterparty Column = "counterparty"
	ColumnStaff        Column = "staff"
	ColumnProduct      Column = "product"
	ColumnCategory     Column = "category"
	ColumnQuantity     Column = "quantity"
	ColumnUnitAmount   Column = "unitAmount"
	ColumnAmount       Column = "amount"
	ColumnBatch        Column = "batch"
	ColumnExpiration   Column = "expiration"
	ColumnStatus       Column = "status"
)

// AllColumns is the recognized column set, in display order.
var AllColumns = []Column{
	ColumnDate,
	ColumnCounterparty,
	ColumnStaff,
	ColumnProduct,
	ColumnCategory,
	ColumnQuantity,
	ColumnUnitAmount,
	ColumnAmount,
	ColumnBatch,
	ColumnExpiration,
	ColumnStatus,
}

var columnLabels = map[Column]string{
	ColumnDate:         "Date",
	ColumnCounterparty: "Counterparty",
	ColumnStaff:        "Staff",
	ColumnProduct:      "Product",
	ColumnCategory:     "Category",
	ColumnQuantity:     "Qty",
	ColumnUnitAmount:   "Unit Price",
	ColumnAmount:       "Amount",
	ColumnBatch:        "Batch No",
	ColumnExpiration:   "Expiry",
	ColumnStatus:       "Status",
}

func (c Column) Label() string {
	return columnLabels[c]
}

func IsRecognizedColumn(c Column) bool {
	_, ok := columnLabels[c]
	return ok
}

// Width budgets for width-constrained containers (the paginated document).
const (
	maxNameWidth    = 12
	maxProductWidth = 15
	maxBatchWidth   = 8
	maxDateWidth    = 10
)

// Truncate shortens s to max characters, replacing the tail with an
// ellipsis marker. Same input always yields the same output.
func Truncate(s string, max int) string {
	if max <= 3 || len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "N/A"
	}
	return t.Format("2006-01-02")
}

// cellValue renders one cell. truncated applies the width-constrained
// policy: names to 12, products to 15, batch numbers to 8, dates to 10.
func cellValue(row models.CanonicalRow, col Column, truncated bool) string {
	switch col {
	case ColumnDate:
		v := formatDate(row.Date)
		if truncated {
			return Truncate(v, maxDateWidth)
		}
		return v
	case ColumnCounterparty:
		if truncated {
			return Truncate(row.CounterpartyName, maxNameWidth)
		}
		return row.CounterpartyName
	case ColumnStaff:
		if truncated {
			return Truncate(row.StaffName, maxNameWidth)
		}
		return row.StaffName
	case ColumnProduct:
		if truncated {
			return Truncate(row.ProductName, maxProductWidth)
		}
		return row.ProductName
	case ColumnCategory:
		if truncated {
			return Truncate(row.Category, maxNameWidth)
		}
		return row.Category
	case ColumnQuantity:
		return strconv.Itoa(row.Quantity)
	case ColumnUnitAmount:
		return row.UnitAmount.StringFixed(2)
	case ColumnAmount:
		return row.Amount.StringFixed(2)
	case ColumnBatch:
		if truncated {
			return Truncate(row.BatchNumber, maxBatchWidth)
		}
		return row.BatchNumber
	case ColumnExpiration:
		v := formatDate(row.ExpirationDate)
		if truncated {
			return Truncate(v, maxDateWidth)
		}
		return v
	case ColumnStatus:
		return string(row.Status)
	default:
		return ""
	}
}
