package extract

import (
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/lovetravelj/receipt-analyzer/internal/receipt"
)

const unknownStoreKo = "미상"

// fieldsFromModelOutput maps the decoded model object onto Fields. The
// mapping is lenient: missing or wrongly-typed values stay at their zero
// values and are resolved by applyDefaults, matching the policy that a
// field-validation shortfall is not an error.
func fieldsFromModelOutput(obj map[string]interface{}) receipt.Fields {
	var fields receipt.Fields

	if s, ok := getString(obj, "date"); ok {
		if d, err := civil.ParseDate(s); err == nil {
			fields.Date = d
		}
	}
	if s, ok := getString(obj, "store"); ok {
		fields.Store = s
	}
	if n, ok := getInt64(obj, "amount"); ok && n >= 0 {
		fields.Amount = n
	}
	if s, ok := getString(obj, "category"); ok {
		if c, err := receipt.ParseCategory(s); err == nil {
			fields.Category = c
		}
	}

	return fields
}

func getString(m map[string]interface{}, key string) (string, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	return s, true
}

func getInt64(m map[string]interface{}, key string) (int64, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return int64(val), true
	case string:
		// Some models quote numbers; accept comma-grouped digits too.
		n, err := strconv.ParseInt(strings.ReplaceAll(strings.TrimSpace(val), ",", ""), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// applyDefaults resolves field-validation shortfalls so both extraction
// paths converge on the same post-conditions: missing date becomes today,
// missing store becomes the sentinel, an unknown category becomes other,
// and a zero amount is flagged for manual entry.
func applyDefaults(fields *receipt.Fields, now time.Time) {
	if !fields.Date.IsValid() {
		fields.Date = civil.DateOf(now)
	}
	if strings.TrimSpace(fields.Store) == "" {
		fields.Store = unknownStoreKo
	}
	if fields.Amount < 0 {
		fields.Amount = 0
	}
	if fields.Amount == 0 {
		fields.AmountMissing = true
	}
	if !fields.Category.Valid() {
		fields.Category = receipt.CategoryOther
	}
}
