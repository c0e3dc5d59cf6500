// Package export renders the receipt collection as CSV for download
// and archival.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/lovetravelj/receipt-analyzer/internal/receipt"
)

// utf8BOM is prepended so spreadsheet applications detect the encoding
// and render non-ASCII store names correctly.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Options controls CSV rendering.
type Options struct {
	// BOM prepends a UTF-8 byte order mark.
	BOM bool
}

// WriteCSV writes the records as CSV in the order given. The header row
// is always written, even for an empty collection.
func WriteCSV(w io.Writer, receipts []receipt.Receipt, opts Options) error {
	if opts.BOM {
		if _, err := w.Write(utf8BOM); err != nil {
			return fmt.Errorf("WriteCSV: write BOM: %w", err)
		}
	}

	cw := csv.NewWriter(w)
	header := []string{"date", "store", "amount", "category", "id", "source", "created_at"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("WriteCSV: write header: %w", err)
	}

	for _, r := range receipts {
		row := []string{
			r.Date.String(),
			r.Store,
			strconv.FormatInt(r.Amount, 10),
			string(r.Category),
			r.ID,
			string(r.Source),
			r.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("WriteCSV: write row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("WriteCSV: flush: %w", err)
	}
	return nil
}
