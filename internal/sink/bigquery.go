// Package sink mirrors accepted receipts into a BigQuery table. The
// in-memory collection stays authoritative; the mirror exists for
// ad-hoc SQL and retention beyond process lifetime.
package sink

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	"github.com/lovetravelj/receipt-analyzer/internal/receipt"
)

// ReceiptRow represents a mirrored receipt record in BigQuery.
type ReceiptRow struct {
	ReceiptID string     `bigquery:"receipt_id"`
	Date      civil.Date `bigquery:"date"`
	Store     string     `bigquery:"store"`
	Amount    int64      `bigquery:"amount"`
	Category  string     `bigquery:"category"`
	Source    string     `bigquery:"source"`
	CreatedTS time.Time  `bigquery:"created_ts"`
}

// Sink writes and reads mirrored receipt rows.
type Sink struct {
	client  *bigquery.Client
	project string
	dataset string
	table   string
}

// New creates a sink for the given project, dataset and table.
// It assumes Application Default Credentials are configured.
func New(ctx context.Context, project, dataset, table string) (*Sink, error) {
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("sink.New: bigquery client: %w", err)
	}
	return &Sink{
		client:  client,
		project: project,
		dataset: dataset,
		table:   table,
	}, nil
}

// Close releases the underlying client.
func (s *Sink) Close() error {
	return s.client.Close()
}

// Insert mirrors a single receipt.
func (s *Sink) Insert(ctx context.Context, r *receipt.Receipt) error {
	row := &ReceiptRow{
		ReceiptID: r.ID,
		Date:      r.Date,
		Store:     r.Store,
		Amount:    r.Amount,
		Category:  string(r.Category),
		Source:    string(r.Source),
		CreatedTS: r.CreatedAt,
	}

	// Use fully qualified table name to avoid project ID issues
	table := s.client.DatasetInProject(s.project, s.dataset).Table(s.table)
	inserter := table.Inserter()
	if err := inserter.Put(ctx, []*ReceiptRow{row}); err != nil {
		return fmt.Errorf("Insert: inserting row: %w", err)
	}

	return nil
}

// QueryByDateRange reads mirrored rows within the inclusive date range,
// oldest first.
func (s *Sink) QueryByDateRange(ctx context.Context, from, to civil.Date) ([]*ReceiptRow, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT
			receipt_id,
			date,
			store,
			amount,
			category,
			source,
			created_ts
		FROM %s.%s
		WHERE date >= @from_date
		  AND date <= @to_date
		ORDER BY date, created_ts
	`, s.dataset, s.table))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "from_date", Value: from.String()},
		{Name: "to_date", Value: to.String()},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryByDateRange: query read: %w", err)
	}

	var rows []*ReceiptRow
	for {
		var r ReceiptRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryByDateRange: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}
