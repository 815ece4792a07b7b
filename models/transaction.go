package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	TransactionKindImport TransactionKind = "Import"
	TransactionKindSale   TransactionKind = "Sale"
)

// TransactionStatus is derived, never stored. Only three statuses exist;
// the UI-level "partial" filter value has no derivation rule and is
// rejected at the request layer.
type TransactionStatus string

const (
	TransactionStatusDraft     TransactionStatus = "Draft"
	TransactionStatusCompleted TransactionStatus = "Completed"
	TransactionStatusExpired   TransactionStatus = "Expired"
)

// TransactionRecord is one canonicalized import or sale. Date is nil when
// the provider sent an unparseable date; such records are kept and must not
// be discarded by date-range filters.
type TransactionRecord struct {
	ID               string
	Kind             TransactionKind
	Date             *time.Time
	CounterpartyName string
	StaffName        string
	TotalAmount      decimal.Decimal
	LineItems        []LineItem
}

// LineItem is one product line. It never outlives its owning record.
type LineItem struct {
	ProductName    string
	Category       string
	Quantity       int
	UnitAmount     decimal.Decimal
	Amount         decimal.Decimal
	BatchNumber    string
	ExpirationDate *time.Time
}

// ClassifyStatus derives the lifecycle status of a record at the given
// instant. Rule order: no line items -> Draft; any line item expired
// strictly before asOf -> Expired; otherwise Completed.
//
// The result depends on asOf, not on the transaction date: a record holding
// items nearing expiry classifies differently as time passes. Callers that
// need reproducible output must pin asOf.
func ClassifyStatus(rec *TransactionRecord, asOf time.Time) TransactionStatus {
	if len(rec.LineItems) == 0 {
		return TransactionStatusDraft
	}
	for _, item := range rec.LineItems {
		if item.ExpirationDate != nil && item.ExpirationDate.Before(asOf) {
			return TransactionStatusExpired
		}
	}
	return TransactionStatusCompleted
}

// InDateRange reports whether the record falls inside [from, to].
// Records without a parseable date are always in range.
func (rec *TransactionRecord) InDateRange(from, to time.Time) bool {
	if rec.Date == nil {
		return true
	}
	if rec.Date.Before(from) {
		return false
	}
	return !rec.Date.After(to)
}
