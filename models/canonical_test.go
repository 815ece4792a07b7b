package models

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/stockflow_backend/utils"
	"github.com/shopspring/decimal"
)

func TestUnwrapEnvelope_Shapes(t *testing.T) {
	record := map[string]any{"id": "1"}
	cases := []struct {
		name    string
		payload any
		count   int
	}{
		{"bare array", []any{record, record}, 2},
		{"data array", map[string]any{"data": []any{record}}, 1},
		{"double wrapped", map[string]any{"data": map[string]any{"data": []any{record, record, record}}}, 3},
		{"single object", record, 1},
	}
	for _, tc := range cases {
		items, ok := UnwrapEnvelope(tc.payload)
		if !ok {
			t.Fatalf("%s: UnwrapEnvelope not ok", tc.name)
		}
		if len(items) != tc.count {
			t.Fatalf("%s: expected %d items, got %d", tc.name, tc.count, len(items))
		}
	}
}

func TestCanonicalize_UnrecognizedEnvelope(t *testing.T) {
	records, err := Canonicalize("not an envelope")
	if err == nil {
		t.Fatal("expected an error for an unrecognized envelope")
	}
	if utils.CategoryOf(err) != utils.ErrorCategorySchemaMismatch {
		t.Fatalf("expected SchemaMismatch, got %s", utils.CategoryOf(err))
	}
	if records == nil || len(records) != 0 {
		t.Fatalf("expected an empty record slice, got %v", records)
	}
}

func TestCanonicalize_CounterpartyAliasOrder(t *testing.T) {
	cases := []struct {
		name     string
		obj      map[string]any
		expected string
	}{
		{"nested supplier wins", map[string]any{
			"supplier":      map[string]any{"supplier": "Acme Ltd"},
			"supplier_name": "Stale Name",
		}, "Acme Ltd"},
		{"flattened supplier string", map[string]any{"supplier": "Flat Supplier"}, "Flat Supplier"},
		{"supplier_name fallback", map[string]any{"supplier_name": "Fallback Co"}, "Fallback Co"},
		{"cus_name fallback", map[string]any{"cus_name": "Walk-in"}, "Walk-in"},
		{"nothing resolves", map[string]any{}, "N/A"},
	}
	for _, tc := range cases {
		records, err := CanonicalizeAs([]any{tc.obj}, TransactionKindImport)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got := records[0].CounterpartyName; got != tc.expected {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.expected, got)
		}
	}
}

func TestCanonicalize_StaffResolution(t *testing.T) {
	cases := []struct {
		name     string
		obj      map[string]any
		expected string
	}{
		{"nested staff", map[string]any{"staff": map[string]any{"full_name": "Daw Mya"}}, "Daw Mya"},
		{"staff_name", map[string]any{"staff_name": "U Ba"}, "U Ba"},
		{"defective literal", map[string]any{"staff_name": "Import from"}, "Unknown Staff"},
		{"synthesized from id", map[string]any{"staff_id": float64(7)}, "Staff 7"},
		{"nothing resolves", map[string]any{}, "Unknown Staff"},
	}
	for _, tc := range cases {
		records, err := CanonicalizeAs([]any{tc.obj}, TransactionKindImport)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got := records[0].StaffName; got != tc.expected {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.expected, got)
		}
	}
}

func TestCanonicalize_KindDetection(t *testing.T) {
	sale := map[string]any{"id": "1", "ord_date": "2026-01-05", "cus_name": "Customer"}
	imp := map[string]any{"id": "2", "imp_date": "2026-01-05", "supplier_name": "Supplier"}
	records, err := Canonicalize([]any{sale, imp})
	if err != nil {
		t.Fatal(err)
	}
	if records[0].Kind != TransactionKindSale {
		t.Fatalf("expected Sale, got %s", records[0].Kind)
	}
	if records[1].Kind != TransactionKindImport {
		t.Fatalf("expected Import, got %s", records[1].Kind)
	}
}

func TestCanonicalize_MalformedDateKeepsRecord(t *testing.T) {
	records, err := CanonicalizeAs([]any{map[string]any{
		"id":       "x",
		"imp_date": "not-a-date",
	}}, TransactionKindImport)
	if err != nil {
		t.Fatal(err)
	}
	rec := records[0]
	if rec.Date != nil {
		t.Fatalf("expected nil date, got %v", rec.Date)
	}
	from, _ := time.Parse("2006-01-02", "2026-01-01")
	to, _ := time.Parse("2006-01-02", "2026-01-31")
	if !rec.InDateRange(from, to) {
		t.Fatal("dateless record must stay inside every range")
	}
}

// End-to-end shape of a small import batch: row count, totals, quantity
// and per-record status.
func TestFlatten_ImportBatch(t *testing.T) {
	asOf, _ := time.Parse("2006-01-02", "2026-02-01")
	payload := []any{
		map[string]any{
			"id":       "A",
			"imp_date": "2026-01-10",
			"supplier": map[string]any{"supplier": "Acme"},
			"import_details": []any{
				map[string]any{"product_name": "Rice", "qty": float64(10), "amount": float64(250), "expiration_date": "2026-06-01"},
				map[string]any{"product_name": "Oil", "qty": float64(8), "amount": float64(150), "expiration_date": "2026-06-01"},
			},
		},
		map[string]any{
			"id":       "B",
			"imp_date": "2026-01-12",
			"import_details": []any{
				map[string]any{"product_name": "Milk", "qty": float64(5), "amount": float64(100), "expiration_date": "2026-01-15"},
			},
		},
		map[string]any{
			"id":           "C",
			"imp_date":     "2026-01-20",
			"total_amount": float64(100),
		},
	}

	records, err := CanonicalizeAs(payload, TransactionKindImport)
	if err != nil {
		t.Fatal(err)
	}
	rows := Flatten(records, asOf)
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows (2+1+1), got %d", len(rows))
	}

	totalQty := 0
	totalAmount := decimal.Zero
	for _, row := range rows {
		totalQty += row.Quantity
		totalAmount = totalAmount.Add(row.Amount)
	}
	if totalQty != 23 {
		t.Fatalf("expected quantity 23, got %d", totalQty)
	}
	if totalAmount.StringFixed(2) != "600.00" {
		t.Fatalf("expected total 600.00, got %s", totalAmount.StringFixed(2))
	}

	statusByID := map[string]TransactionStatus{}
	for _, row := range rows {
		statusByID[row.TransactionID] = row.Status
	}
	if statusByID["A"] != TransactionStatusCompleted {
		t.Fatalf("A: expected Completed, got %s", statusByID["A"])
	}
	if statusByID["B"] != TransactionStatusExpired {
		t.Fatalf("B: expected Expired, got %s", statusByID["B"])
	}
	if statusByID["C"] != TransactionStatusDraft {
		t.Fatalf("C: expected Draft, got %s", statusByID["C"])
	}

	// The synthetic row carries the record total and no quantity.
	var general *CanonicalRow
	for i := range rows {
		if rows[i].TransactionID == "C" {
			general = &rows[i]
		}
	}
	if general == nil {
		t.Fatal("no row for record C")
	}
	if general.ProductName != "General Import" || general.Quantity != 0 || general.BatchNumber != "N/A" {
		t.Fatalf("unexpected synthetic row: %+v", general)
	}
	if general.Amount.StringFixed(2) != "100.00" {
		t.Fatalf("synthetic row amount: expected 100.00, got %s", general.Amount.StringFixed(2))
	}
}

func TestFlatten_RowCountInvariant(t *testing.T) {
	records := []*TransactionRecord{
		{ID: "1"},
		{ID: "2", LineItems: []LineItem{{}, {}, {}}},
		{ID: "3", LineItems: []LineItem{{}}},
	}
	rows := Flatten(records, time.Now())
	if len(rows) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(rows))
	}
}
