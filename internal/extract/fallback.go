// Package extract derives the four receipt fields (date, store, amount,
// category) from raw receipt text. The remote Gemini extractor is the
// primary path; the local heuristic fallback guarantees extraction always
// terminates with a usable result when the remote service is unavailable.
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/lovetravelj/receipt-analyzer/internal/receipt"
)

const unknownStore = "Unknown"

var (
	// Year-month-day with -, . or / separators; year is exactly 4 digits.
	datePattern = regexp.MustCompile(`(\d{4})[-./](\d{1,2})[-./](\d{1,2})`)

	// Comma-grouped integers first so "4,500" is taken whole, then plain
	// digit runs.
	numberPattern = regexp.MustCompile(`\d{1,3}(?:,\d{3})+|\d+`)
)

// keywordGroups maps each category to its match terms, consulted in order
// with first match winning. Matches are case-insensitive substring tests
// over the whole text, not token-boundary-aware.
var keywordGroups = []struct {
	Category receipt.Category
	Keywords []string
}{
	{receipt.CategoryFood, []string{"coffee", "cafe", "meal", "food", "restaurant", "dining"}},
	{receipt.CategoryTransport, []string{"bus", "subway", "taxi", "transport", "train"}},
	{receipt.CategoryShopping, []string{"mall", "shop", "store", "clothing", "market"}},
	{receipt.CategoryEntertainment, []string{"movie", "cinema", "game", "entertain"}},
	{receipt.CategoryMedical, []string{"pharmacy", "hospital", "clinic", "medical"}},
	{receipt.CategoryEducation, []string{"school", "academy", "education", "course"}},
}

// Fallback extracts receipt fields from raw text without any network call.
// It is total: every field gets a concrete value even for empty input.
func Fallback(text string, now time.Time) receipt.Fields {
	return receipt.Fields{
		Date:     fallbackDate(text, now),
		Store:    fallbackStore(text),
		Amount:   fallbackAmount(text),
		Category: classify(text),
	}
}

func fallbackDate(text string, now time.Time) civil.Date {
	m := datePattern.FindStringSubmatch(text)
	if m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		d, err := civil.ParseDate(fmt.Sprintf("%04d-%02d-%02d", year, month, day))
		if err == nil {
			return d
		}
		// Pattern matched but is not a real calendar date; treat as no match.
	}
	return civil.DateOf(now)
}

// fallbackAmount returns the maximum numeric token found in the text.
// Receipts typically list line items followed by a larger total, so the
// largest number is the best guess for the total.
func fallbackAmount(text string) int64 {
	var max int64
	for _, token := range numberPattern.FindAllString(text, -1) {
		n, err := strconv.ParseInt(strings.ReplaceAll(token, ",", ""), 10, 64)
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max
}

func fallbackStore(text string) string {
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		if s := strings.TrimSpace(line); s != "" {
			return s
		}
	}
	return unknownStore
}

func classify(text string) receipt.Category {
	lower := strings.ToLower(text)
	for _, group := range keywordGroups {
		for _, kw := range group.Keywords {
			if strings.Contains(lower, kw) {
				return group.Category
			}
		}
	}
	return receipt.CategoryOther
}
