package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CanonicalRow is the flattened unit consumed by aggregation and rendering:
// one row per line item, or exactly one synthetic "general" row when the
// record carries no line items (aggregate-only records).
type CanonicalRow struct {
	TransactionID    string
	Kind             TransactionKind
	Date             *time.Time
	CounterpartyName string
	StaffName        string
	ProductName      string
	Category         string
	Quantity         int
	UnitAmount       decimal.Decimal
	Amount           decimal.Decimal
	BatchNumber      string
	ExpirationDate   *time.Time
	Status           TransactionStatus
}

// GeneralProductName is the synthetic row's product label.
func GeneralProductName(kind TransactionKind) string {
	if kind == TransactionKindSale {
		return "General Order"
	}
	return "General Import"
}

// Flatten produces canonical rows for a batch. For N records the row count
// is always sum(max(1, len(lineItems))). Status is evaluated once per
// record at asOf and stamped onto each of its rows.
func Flatten(records []*TransactionRecord, asOf time.Time) []CanonicalRow {
	rows := make([]CanonicalRow, 0, len(records))
	for _, rec := range records {
		status := ClassifyStatus(rec, asOf)
		if len(rec.LineItems) == 0 {
			rows = append(rows, CanonicalRow{
				TransactionID:    rec.ID,
				Kind:             rec.Kind,
				Date:             rec.Date,
				CounterpartyName: rec.CounterpartyName,
				StaffName:        rec.StaffName,
				ProductName:      GeneralProductName(rec.Kind),
				Category:         unknownCategory,
				Quantity:         0,
				UnitAmount:       decimal.Zero,
				Amount:           rec.TotalAmount,
				BatchNumber:      "N/A",
				Status:           status,
			})
			continue
		}
		for _, item := range rec.LineItems {
			rows = append(rows, CanonicalRow{
				TransactionID:    rec.ID,
				Kind:             rec.Kind,
				Date:             rec.Date,
				CounterpartyName: rec.CounterpartyName,
				StaffName:        rec.StaffName,
				ProductName:      item.ProductName,
				Category:         item.Category,
				Quantity:         item.Quantity,
				UnitAmount:       item.UnitAmount,
				Amount:           item.Amount,
				BatchNumber:      item.BatchNumber,
				ExpirationDate:   item.ExpirationDate,
				Status:           status,
			})
		}
	}
	return rows
}
