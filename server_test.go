package main

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/stockflow_backend/models"
)

func TestSummaryCacheKey_UsesResolvedWindow(t *testing.T) {
	jan := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	janEnd := time.Date(2026, 1, 31, 23, 59, 59, 0, time.UTC)
	feb := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	febEnd := time.Date(2026, 2, 28, 23, 59, 59, 0, time.UTC)

	a := summaryCacheKey(models.TransactionKindImport, jan, janEnd, false)
	b := summaryCacheKey(models.TransactionKindImport, feb, febEnd, false)
	if a == b {
		t.Fatalf("default windows of different months must not share a key: %q", a)
	}
	if a != "Import:2026-01-01:2026-01-31:false" {
		t.Fatalf("unexpected key %q", a)
	}
	if summaryCacheKey(models.TransactionKindImport, jan, janEnd, true) == a {
		t.Fatal("compare flag must partition the key")
	}
	if summaryCacheKey(models.TransactionKindSale, jan, janEnd, false) == a {
		t.Fatal("kind must partition the key")
	}
}
