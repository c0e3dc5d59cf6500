package analytics

import (
	"fmt"
	"sort"

	"github.com/lovetravelj/receipt-analyzer/internal/receipt"
)

// DatePoint is one entry of a per-day or per-month series.
type DatePoint struct {
	Key    string `json:"date"`
	Amount int64  `json:"amount"`
}

// CategorySum is one entry of the per-category breakdown.
type CategorySum struct {
	Category receipt.Category `json:"category"`
	Amount   int64            `json:"amount"`
}

// Summary holds the overall statistics for a table. AvgAmount is the only
// floating-point output; sums stay in the integer domain.
type Summary struct {
	TotalAmount int64   `json:"total_amount"`
	Count       int     `json:"count"`
	AvgAmount   float64 `json:"avg_amount"`
	MaxAmount   int64   `json:"max_amount"`
}

// Total returns the sum of amounts over all rows; 0 for an empty table.
func Total(t Table) int64 {
	var sum int64
	for _, row := range t.rows {
		sum += row.Amount
	}
	return sum
}

// Daily groups rows by date and sums amounts, ordered by ascending date.
func Daily(t Table) []DatePoint {
	return sumByKey(t, func(r Row) string { return r.Date.String() })
}

// Monthly derives YYYY-MM from each date, groups and sums, ordered by
// ascending month.
func Monthly(t Table) []DatePoint {
	return sumByKey(t, func(r Row) string {
		return fmt.Sprintf("%04d-%02d", r.Date.Year, int(r.Date.Month))
	})
}

func sumByKey(t Table, key func(Row) string) []DatePoint {
	sums := make(map[string]int64)
	keys := make([]string, 0)
	for _, row := range t.rows {
		k := key(row)
		if _, seen := sums[k]; !seen {
			keys = append(keys, k)
		}
		sums[k] += row.Amount
	}
	sort.Strings(keys)

	series := make([]DatePoint, 0, len(keys))
	for _, k := range keys {
		series = append(series, DatePoint{Key: k, Amount: sums[k]})
	}
	return series
}

// ByCategory groups rows by category and sums amounts, ordered by descending
// sum. Ties keep the order in which the categories first appear in the
// table, so the result is deterministic for a fixed input order.
func ByCategory(t Table) []CategorySum {
	sums := make(map[receipt.Category]int64)
	order := make([]receipt.Category, 0)
	for _, row := range t.rows {
		if _, seen := sums[row.Category]; !seen {
			order = append(order, row.Category)
		}
		sums[row.Category] += row.Amount
	}

	series := make([]CategorySum, 0, len(order))
	for _, c := range order {
		series = append(series, CategorySum{Category: c, Amount: sums[c]})
	}
	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Amount > series[j].Amount
	})
	return series
}

// TopCategory returns the category with the largest summed amount and that
// amount. An empty table yields ("", 0).
func TopCategory(t Table) (receipt.Category, int64) {
	byCat := ByCategory(t)
	if len(byCat) == 0 {
		return "", 0
	}
	return byCat[0].Category, byCat[0].Amount
}

// Summarize computes the overall statistics for a table; all fields are
// zero for an empty table.
func Summarize(t Table) Summary {
	if t.Empty() {
		return Summary{}
	}

	var total, max int64
	for _, row := range t.rows {
		total += row.Amount
		if row.Amount > max {
			max = row.Amount
		}
	}
	return Summary{
		TotalAmount: total,
		Count:       len(t.rows),
		AvgAmount:   float64(total) / float64(len(t.rows)),
		MaxAmount:   max,
	}
}
