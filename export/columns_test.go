package export

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/stockflow_backend/models"
	"github.com/shopspring/decimal"
)

func TestTruncate(t *testing.T) {
	cases := []struct {
		in       string
		max      int
		expected string
	}{
		{"short", 12, "short"},
		{"exactly12char", 13, "exactly12char"},
		{"International Traders", 12, "Internati..."},
		{"Premium Jasmine Rice 5kg", 15, "Premium Jasm..."},
		{"BATCH-2026-0142", 8, "BATCH..."},
		{"ab", 3, "ab"},
	}
	for _, tc := range cases {
		got := Truncate(tc.in, tc.max)
		if got != tc.expected {
			t.Fatalf("Truncate(%q, %d): expected %q, got %q", tc.in, tc.max, tc.expected, got)
		}
		if len(got) > tc.max {
			t.Fatalf("Truncate(%q, %d): result %q exceeds budget", tc.in, tc.max, got)
		}
		// Deterministic: same input, same output.
		if again := Truncate(tc.in, tc.max); again != got {
			t.Fatalf("Truncate(%q, %d) not deterministic", tc.in, tc.max)
		}
	}
}

func TestCellValue_WidthPolicy(t *testing.T) {
	exp, _ := time.Parse("2006-01-02", "2026-03-01")
	row := models.CanonicalRow{
		CounterpartyName: "International Traders",
		StaffName:        "A Very Long Staff Name",
		ProductName:      "Premium Jasmine Rice 5kg",
		BatchNumber:      "BATCH-2026-0142",
		Quantity:         4,
		Amount:           decimal.NewFromInt(120),
		ExpirationDate:   &exp,
		Status:           models.TransactionStatusCompleted,
	}
	budgets := map[Column]int{
		ColumnCounterparty: 12,
		ColumnStaff:        12,
		ColumnProduct:      15,
		ColumnBatch:        8,
		ColumnExpiration:   10,
	}
	for col, max := range budgets {
		v := cellValue(row, col, true)
		if len(v) > max {
			t.Fatalf("%s: %q exceeds width %d", col, v, max)
		}
	}
	// Untruncated rendering keeps the full value.
	if v := cellValue(row, ColumnProduct, false); v != "Premium Jasmine Rice 5kg" {
		t.Fatalf("untruncated product: got %q", v)
	}
	if v := cellValue(row, ColumnAmount, true); v != "120.00" {
		t.Fatalf("amount: got %q", v)
	}
}

func TestColumnLabels(t *testing.T) {
	for _, col := range AllColumns {
		if !IsRecognizedColumn(col) {
			t.Fatalf("%s is not recognized", col)
		}
		if col.Label() == "" {
			t.Fatalf("%s has no label", col)
		}
	}
	if IsRecognizedColumn(Column("bogus")) {
		t.Fatal("bogus column must not be recognized")
	}
}
