// Package analytics implements the aggregation engine: a normalized tabular
// view over receipt records and the grouping/summary operations computed
// from it. Every operation degrades to a well-defined zero value on an empty
// table; nothing here returns an error for normalized input.
package analytics

import (
	"cloud.google.com/go/civil"

	"github.com/lovetravelj/receipt-analyzer/internal/receipt"
)

// Row is one normalized record with the four analytic columns.
type Row struct {
	Date     civil.Date
	Store    string
	Amount   int64
	Category receipt.Category
}

// Table is a normalized, ordered view of a record collection. The zero
// value is a valid empty table; all aggregation operations accept it.
type Table struct {
	rows []Row
}

// Normalize projects a sequence of receipts onto the four analytic columns,
// preserving input order. An empty or nil input yields an empty table that
// every aggregation operation handles without error.
func Normalize(receipts []receipt.Receipt) Table {
	rows := make([]Row, 0, len(receipts))
	for _, r := range receipts {
		rows = append(rows, Row{
			Date:     r.Date,
			Store:    r.Store,
			Amount:   r.Amount,
			Category: r.Category,
		})
	}
	return Table{rows: rows}
}

// Len returns the number of rows.
func (t Table) Len() int {
	return len(t.rows)
}

// Empty reports whether the table has no rows.
func (t Table) Empty() bool {
	return len(t.rows) == 0
}

// Rows returns a copy of the underlying rows in input order.
func (t Table) Rows() []Row {
	out := make([]Row, len(t.rows))
	copy(out, t.rows)
	return out
}
