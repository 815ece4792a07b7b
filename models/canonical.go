package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/stockflow_backend/utils"
	"github.com/shopspring/decimal"
)

// The provider's response shape is not reliable: the same endpoint has been
// observed returning a bare array, {data: [...]}, {data: {data: [...]}} and
// occasionally a single object. Canonicalization unwraps whichever envelope
// arrived and resolves every field through an ordered alias table, so the
// fallback order stays auditable in one place instead of being repeated as
// conditional chains at every call site.

type rawObject = map[string]any

// stringResolver tries to produce a value for one canonical field.
type stringResolver func(rawObject) (string, bool)

const (
	unknownCounterparty = "N/A"
	unknownStaff        = "Unknown Staff"
	unknownCategory     = "Unknown"

	// The upstream system emits this literal into staff_name on migrated
	// rows. It is a data defect, not a name.
	defectiveStaffLiteral = "Import from"
)

// UnwrapEnvelope extracts the transaction object list from the payload.
// Priority: bare array, {data: array}, {data: {data: array}}, single
// object. Unrecognized shapes yield (nil, false), never an error.
func UnwrapEnvelope(payload any) ([]any, bool) {
	if items, ok := payload.([]any); ok {
		return items, true
	}
	obj, ok := payload.(rawObject)
	if !ok {
		return nil, false
	}
	if items, ok := obj["data"].([]any); ok {
		return items, true
	}
	if inner, ok := obj["data"].(rawObject); ok {
		if items, ok := inner["data"].([]any); ok {
			return items, true
		}
	}
	// A single object instead of an array.
	return []any{payload}, true
}

// Canonicalize reduces a raw provider payload to canonical records, deriving
// each record's kind from its field aliases. A SchemaMismatch error is
// returned alongside an empty slice for unrecognized envelopes; callers log
// a warning and continue.
func Canonicalize(payload any) ([]*TransactionRecord, error) {
	return canonicalize(payload, "")
}

// CanonicalizeAs is Canonicalize with the kind pinned by the caller, for
// feeds where the endpoint already determines import vs sale.
func CanonicalizeAs(payload any, kind TransactionKind) ([]*TransactionRecord, error) {
	return canonicalize(payload, kind)
}

func canonicalize(payload any, kind TransactionKind) ([]*TransactionRecord, error) {
	items, ok := UnwrapEnvelope(payload)
	if !ok {
		return []*TransactionRecord{}, utils.NewCategorizedError(
			utils.ErrorCategorySchemaMismatch, "unrecognized payload envelope", nil)
	}
	records := make([]*TransactionRecord, 0, len(items))
	for _, item := range items {
		obj, ok := item.(rawObject)
		if !ok {
			continue
		}
		records = append(records, canonicalizeRecord(obj, kind))
	}
	return records, nil
}

func canonicalizeRecord(obj rawObject, kind TransactionKind) *TransactionRecord {
	if kind == "" {
		kind = detectKind(obj)
	}
	rec := &TransactionRecord{
		ID:               resolveString(obj, idResolvers, ""),
		Kind:             kind,
		Date:             resolveTime(obj, "imp_date", "ord_date", "created_at"),
		CounterpartyName: resolveString(obj, counterpartyResolvers, unknownCounterparty),
		StaffName:        resolveStaffName(obj),
		TotalAmount:      resolveDecimal(obj, "total_amount", "totalAmount", "total", "amount"),
	}
	for _, raw := range resolveLineItems(obj) {
		itemObj, ok := raw.(rawObject)
		if !ok {
			continue
		}
		rec.LineItems = append(rec.LineItems, canonicalizeLineItem(itemObj))
	}
	return rec
}

func canonicalizeLineItem(obj rawObject) LineItem {
	qty, _ := resolveInt(obj, "qty", "quantity")
	return LineItem{
		ProductName:    resolveString(obj, productResolvers, ""),
		Category:       resolveString(obj, categoryResolvers, unknownCategory),
		Quantity:       qty,
		UnitAmount:     resolveDecimal(obj, "unit_amount", "unitAmount", "unit_price", "rate"),
		Amount:         resolveDecimal(obj, "amount", "price", "total"),
		BatchNumber:    resolveString(obj, batchResolvers, "N/A"),
		ExpirationDate: resolveTime(obj, "expiration_date", "expirationDate", "expiry"),
	}
}

func detectKind(obj rawObject) TransactionKind {
	for _, key := range []string{"ord_date", "order_details", "orderDetails", "customer", "cus_name"} {
		if _, present := obj[key]; present {
			return TransactionKindSale
		}
	}
	return TransactionKindImport
}

/* ordered alias resolver tables */

var idResolvers = []stringResolver{
	field("id"),
}

var counterpartyResolvers = []stringResolver{
	display("supplier", "supplier"),
	display("customer", "name"),
	field("supplier_name"),
	field("cus_name"),
}

var staffResolvers = []stringResolver{
	display("staff", "full_name"),
	field("staff_name"),
	field("full_name"),
	synthesizedStaff,
}

var productResolvers = []stringResolver{
	display("product", "name"),
	field("product_name"),
	field("productName"),
	field("name"),
}

var categoryResolvers = []stringResolver{
	display("category", "name"),
	field("category"),
	field("product_category"),
}

var batchResolvers = []stringResolver{
	field("batch_number"),
	field("batchNumber"),
	field("batch"),
}

// field resolves a flat string-able attribute.
func field(key string) stringResolver {
	return func(obj rawObject) (string, bool) {
		return stringify(obj[key])
	}
}

// display resolves the display field of a nested object, or the attribute
// itself when the provider flattened it to a raw string.
func display(key, sub string) stringResolver {
	return func(obj rawObject) (string, bool) {
		switch v := obj[key].(type) {
		case rawObject:
			return stringify(v[sub])
		case string:
			if strings.TrimSpace(v) == "" {
				return "", false
			}
			return v, true
		default:
			return "", false
		}
	}
}

func synthesizedStaff(obj rawObject) (string, bool) {
	if id, ok := stringify(obj["staff_id"]); ok {
		return "Staff " + id, true
	}
	return "", false
}

func resolveString(obj rawObject, resolvers []stringResolver, fallback string) string {
	for _, resolve := range resolvers {
		if v, ok := resolve(obj); ok {
			return v
		}
	}
	return fallback
}

func resolveStaffName(obj rawObject) string {
	name := resolveString(obj, staffResolvers, unknownStaff)
	if name == defectiveStaffLiteral {
		return unknownStaff
	}
	return name
}

func resolveLineItems(obj rawObject) []any {
	for _, key := range []string{"import_details", "importDetails", "order_details", "orderDetails"} {
		if items, ok := obj[key].([]any); ok {
			return items
		}
	}
	return nil
}

/* value coercion */

func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return "", false
		}
		return t, true
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10), true
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case nil:
		return "", false
	default:
		return fmt.Sprintf("%v", t), true
	}
}

func resolveInt(obj rawObject, keys ...string) (int, bool) {
	for _, key := range keys {
		switch t := obj[key].(type) {
		case float64:
			return int(t), true
		case int:
			return t, true
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func resolveDecimal(obj rawObject, keys ...string) decimal.Decimal {
	for _, key := range keys {
		switch t := obj[key].(type) {
		case float64:
			return decimal.NewFromFloat(t)
		case int:
			return decimal.NewFromInt(int64(t))
		case string:
			if d, err := decimal.NewFromString(strings.TrimSpace(t)); err == nil {
				return d
			}
		}
	}
	return decimal.Zero
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02/01/2006",
}

// resolveTime returns nil for absent, "N/A" or unparseable dates. Malformed
// dates are tolerated; the record simply stays unfiltered.
func resolveTime(obj rawObject, keys ...string) *time.Time {
	for _, key := range keys {
		s, ok := obj[key].(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" || s == "N/A" {
			continue
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return &t
			}
		}
	}
	return nil
}
