// Package receipt defines the receipt record domain model: the fixed-field
// record accepted into the collection, the closed category taxonomy with its
// Korean display labels, and validation at the ingestion boundary.
package receipt

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// Category is one value from the closed spending taxonomy.
type Category string

const (
	CategoryFood          Category = "food"
	CategoryTransport     Category = "transport"
	CategoryShopping      Category = "shopping"
	CategoryEntertainment Category = "entertainment"
	CategoryMedical       Category = "medical"
	CategoryEducation     Category = "education"
	CategoryOther         Category = "other"
)

// Categories lists the closed set in its canonical order.
var Categories = []Category{
	CategoryFood,
	CategoryTransport,
	CategoryShopping,
	CategoryEntertainment,
	CategoryMedical,
	CategoryEducation,
	CategoryOther,
}

// labels maps each category to its Korean display label.
var labels = map[Category]string{
	CategoryFood:          "식비",
	CategoryTransport:     "교통비",
	CategoryShopping:      "쇼핑",
	CategoryEntertainment: "엔터테인먼트",
	CategoryMedical:       "의료",
	CategoryEducation:     "교육",
	CategoryOther:         "기타",
}

// Label returns the Korean display label for the category.
func (c Category) Label() string {
	if l, ok := labels[c]; ok {
		return l
	}
	return labels[CategoryOther]
}

// Valid reports whether c is a member of the closed set.
func (c Category) Valid() bool {
	_, ok := labels[c]
	return ok
}

// ParseCategory resolves a canonical code or a Korean display label into a
// Category. It returns an error for anything outside the closed set; callers
// at the extraction boundary map that error to CategoryOther instead.
func ParseCategory(s string) (Category, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	c := Category(key)
	if c.Valid() {
		return c, nil
	}
	for cat, label := range labels {
		if label == strings.TrimSpace(s) {
			return cat, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Source tags how a record entered the system.
type Source string

const (
	SourceManual Source = "manual"
	SourceOCR    Source = "ocr"
	SourceAPI    Source = "api"
)

// Valid reports whether s is a known provenance tag.
func (s Source) Valid() bool {
	switch s {
	case SourceManual, SourceOCR, SourceAPI:
		return true
	}
	return false
}

// Item is one line item on a receipt. Line items are carried for display
// only; aggregation works on the record total.
type Item struct {
	Name  string `json:"name"`
	Qty   int    `json:"qty"`
	Price int64  `json:"price"`
}

// Receipt is one purchase event. Records are immutable once appended to a
// collection; duplicates are permitted on every field.
type Receipt struct {
	ID        string     `json:"id"`
	Date      civil.Date `json:"date"`
	Store     string     `json:"store"`
	Amount    int64      `json:"amount"`
	Category  Category   `json:"category"`
	Items     []Item     `json:"items,omitempty"`
	RawText   string     `json:"raw_text,omitempty"`
	Source    Source     `json:"source"`
	CreatedAt time.Time  `json:"created_at"`
}

// Month returns the YYYY-MM grouping key for the record's date.
func (r *Receipt) Month() string {
	return fmt.Sprintf("%04d-%02d", r.Date.Year, int(r.Date.Month))
}

// New builds a Receipt with a fresh ID and creation timestamp. It does not
// validate; callers run Validate before appending to a collection.
func New(date civil.Date, store string, amount int64, category Category) *Receipt {
	return &Receipt{
		ID:        uuid.NewString(),
		Date:      date,
		Store:     store,
		Amount:    amount,
		Category:  category,
		Source:    SourceManual,
		CreatedAt: time.Now().UTC(),
	}
}

// Validate checks the record invariants. A record that fails validation is
// rejected at the ingestion boundary rather than allowed to reach the
// aggregation engine.
func (r *Receipt) Validate() error {
	if !r.Date.IsValid() {
		return fmt.Errorf("invalid date %v", r.Date)
	}
	if strings.TrimSpace(r.Store) == "" {
		return fmt.Errorf("store is required")
	}
	if r.Amount < 0 {
		return fmt.Errorf("amount must be non-negative, got %d", r.Amount)
	}
	if !r.Category.Valid() {
		return fmt.Errorf("unknown category %q", r.Category)
	}
	if !r.Source.Valid() {
		return fmt.Errorf("unknown source %q", r.Source)
	}
	for i, item := range r.Items {
		if strings.TrimSpace(item.Name) == "" {
			return fmt.Errorf("item %d: name is required", i)
		}
		if item.Qty < 1 {
			return fmt.Errorf("item %d: quantity must be at least 1, got %d", i, item.Qty)
		}
		if item.Price < 0 {
			return fmt.Errorf("item %d: price must be non-negative, got %d", i, item.Price)
		}
	}
	return nil
}

// Fields is the four-field extraction result produced by either extraction
// path before a record is accepted into the collection. AmountMissing marks
// a draft whose amount could not be determined and needs manual entry.
type Fields struct {
	Date          civil.Date `json:"date"`
	Store         string     `json:"store"`
	Amount        int64      `json:"amount"`
	Category      Category   `json:"category"`
	AmountMissing bool       `json:"amount_missing,omitempty"`
}
