package reports

import (
	"sort"

	"bitbucket.org/mmdatafocus/stockflow_backend/models"
	_ "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
)

// EntityTotals accumulates one breakdown bucket (per supplier/customer,
// per staff or per category).
type EntityTotals struct {
	Count    int             `json:"count"`
	Value    decimal.Decimal `json:"value"`
	Quantity int             `json:"quantity"`
}

type RankMetric string

const (
	RankByQuantity RankMetric = "quantity"
	RankByRevenue  RankMetric = "revenue"
)

type PerformanceTier string

const (
	TierHigh   PerformanceTier = "High"
	TierMedium PerformanceTier = "Medium"
	TierLow    PerformanceTier = "Low"
)

type RankedItem struct {
	Name         string          `json:"name"`
	Revenue      decimal.Decimal `json:"revenue"`
	Quantity     int             `json:"quantity"`
	Count        int             `json:"count"`
	Tier         PerformanceTier `json:"tier"`
	SharePercent int             `json:"sharePercent"`
}

// SummaryReport is created fresh per report/export request, never
// persisted, and treated as immutable once produced.
type SummaryReport struct {
	RecordCount    int                      `json:"recordCount"`
	TotalAmount    decimal.Decimal          `json:"totalAmount"`
	TotalQuantity  int                      `json:"totalQuantity"`
	ByCounterparty map[string]*EntityTotals `json:"byCounterparty"`
	ByStaff        map[string]*EntityTotals `json:"byStaff"`
	ByCategory     map[string]*EntityTotals `json:"byCategory"`
	TopRanked      []RankedItem             `json:"topRanked"`
	GrowthPercent  *string                  `json:"growthPercent,omitempty"`
	Profit         decimal.Decimal          `json:"profit"`
	MarginPercent  decimal.Decimal          `json:"marginPercent"`
}

const unknownEntity = "Unknown"

// Aggregate reduces a batch of canonical rows into a summary report.
// RecordCount counts distinct transaction ids, not rows. Revenue comes
// from sale rows, cost from import rows.
func Aggregate(rows []models.CanonicalRow, records []*models.TransactionRecord) *SummaryReport {
	report := &SummaryReport{
		TotalAmount:    decimal.Zero,
		ByCounterparty: map[string]*EntityTotals{},
		ByStaff:        map[string]*EntityTotals{},
		ByCategory:     map[string]*EntityTotals{},
		Profit:         decimal.Zero,
		MarginPercent:  decimal.Zero,
	}

	seen := map[string]bool{}
	revenue := decimal.Zero
	cost := decimal.Zero

	for _, row := range rows {
		if !seen[row.TransactionID] {
			seen[row.TransactionID] = true
			report.RecordCount++
		}
		report.TotalAmount = report.TotalAmount.Add(row.Amount)
		report.TotalQuantity += row.Quantity

		accumulate(report.ByCounterparty, row.CounterpartyName, row)
		accumulate(report.ByStaff, row.StaffName, row)
		accumulate(report.ByCategory, row.Category, row)

		if row.Kind == models.TransactionKindSale {
			revenue = revenue.Add(row.Amount)
		} else {
			cost = cost.Add(row.Amount)
		}
	}

	report.Profit = revenue.Sub(cost)
	if revenue.IsPositive() {
		report.MarginPercent = report.Profit.Div(revenue).Mul(decimal.NewFromInt(100))
	}
	report.TopRanked = TopRanked(rows, RankByQuantity, 10)
	return report
}

// AggregateComparison aggregates the current window and attaches growth
// against the previous window's total. The two windows must be equal-length
// and non-overlapping; window selection is the caller's responsibility.
func AggregateComparison(current, previous []models.CanonicalRow, records []*models.TransactionRecord) *SummaryReport {
	report := Aggregate(current, records)
	prevTotal := decimal.Zero
	for _, row := range previous {
		prevTotal = prevTotal.Add(row.Amount)
	}
	growth := FormatGrowth(GrowthPercent(report.TotalAmount, prevTotal))
	report.GrowthPercent = &growth
	return report
}

func accumulate(byEntity map[string]*EntityTotals, key string, row models.CanonicalRow) {
	if key == "" {
		key = unknownEntity
	}
	totals := byEntity[key]
	if totals == nil {
		totals = &EntityTotals{Value: decimal.Zero}
		byEntity[key] = totals
	}
	totals.Count++
	totals.Value = totals.Value.Add(row.Amount)
	totals.Quantity += row.Quantity
}

// TopRanked ranks products descending by the requested metric. Ties keep
// the original encounter order. Tier bands split [min, max] of the metric
// into three equal widths; when every value is equal the whole set is High.
func TopRanked(rows []models.CanonicalRow, metric RankMetric, limit int) []RankedItem {
	var order []string
	byProduct := map[string]*RankedItem{}
	totalCount := 0
	for _, row := range rows {
		name := row.ProductName
		if name == "" {
			name = unknownEntity
		}
		item := byProduct[name]
		if item == nil {
			item = &RankedItem{Name: name, Revenue: decimal.Zero}
			byProduct[name] = item
			order = append(order, name)
		}
		item.Revenue = item.Revenue.Add(row.Amount)
		item.Quantity += row.Quantity
		item.Count++
		totalCount++
	}

	ranked := make([]RankedItem, 0, len(order))
	for _, name := range order {
		ranked = append(ranked, *byProduct[name])
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return metricValue(ranked[i], metric).GreaterThan(metricValue(ranked[j], metric))
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	assignTiers(ranked, metric)
	for i := range ranked {
		ranked[i].SharePercent = sharePercent(ranked[i].Count, totalCount)
	}
	return ranked
}

func metricValue(item RankedItem, metric RankMetric) decimal.Decimal {
	if metric == RankByRevenue {
		return item.Revenue
	}
	return decimal.NewFromInt(int64(item.Quantity))
}

func assignTiers(ranked []RankedItem, metric RankMetric) {
	if len(ranked) == 0 {
		return
	}
	minV := metricValue(ranked[0], metric)
	maxV := minV
	for _, item := range ranked[1:] {
		v := metricValue(item, metric)
		if v.LessThan(minV) {
			minV = v
		}
		if v.GreaterThan(maxV) {
			maxV = v
		}
	}
	width := maxV.Sub(minV).Div(decimal.NewFromInt(3))
	if width.IsZero() {
		for i := range ranked {
			ranked[i].Tier = TierHigh
		}
		return
	}
	highFloor := minV.Add(width.Mul(decimal.NewFromInt(2)))
	mediumFloor := minV.Add(width)
	for i := range ranked {
		v := metricValue(ranked[i], metric)
		switch {
		case v.GreaterThanOrEqual(highFloor):
			ranked[i].Tier = TierHigh
		case v.GreaterThanOrEqual(mediumFloor):
			ranked[i].Tier = TierMedium
		default:
			ranked[i].Tier = TierLow
		}
	}
}

func sharePercent(count, totalCount int) int {
	if totalCount == 0 {
		return 0
	}
	return int(decimal.NewFromInt(int64(count)).
		Div(decimal.NewFromInt(int64(totalCount))).
		Mul(decimal.NewFromInt(100)).
		Round(0).IntPart())
}

// GrowthPercent compares two period totals. A zero previous period grows
// by 100 when anything was earned and by 0 otherwise.
func GrowthPercent(current, previous decimal.Decimal) decimal.Decimal {
	if previous.IsZero() {
		if current.IsPositive() {
			return decimal.NewFromInt(100)
		}
		return decimal.Zero
	}
	return current.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100))
}

// FormatGrowth renders a growth percentage with one decimal place and an
// explicit sign for non-negative values ("+50.0", "-12.5").
func FormatGrowth(p decimal.Decimal) string {
	s := p.StringFixed(1)
	if p.Sign() >= 0 {
		return "+" + s
	}
	return s
}
