// Package store holds the session-scoped receipt collection. The
// collection is ordered and append-only; records are immutable once
// appended and only removed by a wholesale clear.
package store

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/civil"

	"github.com/lovetravelj/receipt-analyzer/internal/receipt"
)

// Filter selects records by inclusive date range and/or exact category.
type Filter struct {
	From     *civil.Date
	To       *civil.Date
	Category receipt.Category
}

// Memory is an in-memory receipt collection, safe for concurrent use.
// Each session owns its own instance; nothing here is process-global.
// Data is lost on restart - the collection is process-lifetime state.
type Memory struct {
	mu       sync.RWMutex
	receipts []receipt.Receipt
}

// NewMemory creates an empty collection.
func NewMemory() *Memory {
	return &Memory{}
}

// Append adds a record to the collection. The record is copied in; the
// caller's value cannot mutate stored state afterwards.
func (m *Memory) Append(ctx context.Context, r *receipt.Receipt) error {
	if r.ID == "" {
		return fmt.Errorf("receipt ID is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.receipts = append(m.receipts, *r)
	return nil
}

// List returns the records matching the filter, in collection order.
func (m *Memory) List(ctx context.Context, filter Filter) ([]receipt.Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]receipt.Receipt, 0, len(m.receipts))
	for _, r := range m.receipts {
		if filter.From != nil && r.Date.Before(*filter.From) {
			continue
		}
		if filter.To != nil && r.Date.After(*filter.To) {
			continue
		}
		if filter.Category != "" && r.Category != filter.Category {
			continue
		}
		result = append(result, r)
	}
	return result, nil
}

// Len returns the number of records in the collection.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.receipts)
}

// Clear removes every record and returns how many were removed.
func (m *Memory) Clear(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.receipts)
	m.receipts = nil
	return n
}
