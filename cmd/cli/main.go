package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/lovetravelj/receipt-analyzer/internal/archive"
	"github.com/lovetravelj/receipt-analyzer/internal/config"
	"github.com/lovetravelj/receipt-analyzer/internal/export"
	"github.com/lovetravelj/receipt-analyzer/internal/extract"
	"github.com/lovetravelj/receipt-analyzer/internal/logger"
	"github.com/lovetravelj/receipt-analyzer/internal/receipt"
	"github.com/lovetravelj/receipt-analyzer/internal/sink"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "analyze":
		runAnalyze(log)
	case "export":
		runExport(log)
	case "archive":
		runArchive(log)
	case "inspect":
		runInspect(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Receipt Analyzer CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  analyze   Extract fields from receipt text (file or stdin)")
	fmt.Println("  export    Render a receipts JSON file as CSV on stdout")
	fmt.Println("  archive   Upload a CSV snapshot of a receipts JSON file to GCS")
	fmt.Println("  inspect   Read mirrored receipt rows from BigQuery")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// loadReceipts reads a JSON array of receipts from a file.
func loadReceipts(path string) ([]receipt.Receipt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", path, err)
	}

	var receipts []receipt.Receipt
	if err := json.Unmarshal(data, &receipts); err != nil {
		return nil, fmt.Errorf("decode %q: %w", path, err)
	}
	return receipts, nil
}

func runAnalyze(log zerolog.Logger) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to receipt text file (defaults to stdin)")
	fs.Parse(os.Args[2:])

	var text []byte
	var err error
	if *filePath != "" {
		text, err = os.ReadFile(*filePath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read input file")
		}
	} else {
		text, err = io.ReadAll(os.Stdin)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read stdin")
		}
	}

	cfg := config.Load()

	var remote extract.Remote
	if cfg.RemoteExtractionEnabled() {
		remote = extract.NewGeminiExtractor(cfg.GeminiAPIKey, cfg.GeminiModel)
	} else {
		log.Warn().Msg("No Gemini API key configured - using heuristics only")
	}
	svc := extract.NewService(remote, log)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	fields, extractor, err := svc.Extract(ctx, string(text))
	if err != nil {
		log.Fatal().Err(err).Msg("Extraction failed")
	}

	fmt.Println("\n=== Extracted Fields ===")
	fmt.Printf("Date:      %s\n", fields.Date)
	fmt.Printf("Store:     %s\n", fields.Store)
	fmt.Printf("Amount:    %d\n", fields.Amount)
	fmt.Printf("Category:  %s (%s)\n", fields.Category, fields.Category.Label())
	fmt.Printf("Extractor: %s\n", extractor)
	if fields.AmountMissing {
		fmt.Println("\nNo amount found - enter it manually before saving.")
	}
}

func runExport(log zerolog.Logger) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to receipts JSON file")
	bom := fs.Bool("bom", false, "Prepend a UTF-8 BOM for spreadsheet apps")
	fs.Parse(os.Args[2:])

	if *filePath == "" {
		log.Fatal().Msg("Error: --file is required")
	}

	receipts, err := loadReceipts(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load receipts")
	}

	if err := export.WriteCSV(os.Stdout, receipts, export.Options{BOM: *bom}); err != nil {
		log.Fatal().Err(err).Msg("Failed to write CSV")
	}
}

func runArchive(log zerolog.Logger) {
	fs := flag.NewFlagSet("archive", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to receipts JSON file")
	bucket := fs.String("bucket", os.Getenv("ARCHIVE_BUCKET"), "GCS bucket name (or set ARCHIVE_BUCKET env)")
	object := fs.String("object", "", "GCS object name (defaults to a dated snapshot name)")
	fs.Parse(os.Args[2:])

	if *filePath == "" || *bucket == "" {
		log.Fatal().Msg("Usage: cli archive -file PATH -bucket NAME")
	}

	receipts, err := loadReceipts(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load receipts")
	}

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, receipts, export.Options{BOM: true}); err != nil {
		log.Fatal().Err(err).Msg("Failed to render CSV")
	}

	if *object == "" {
		*object = archive.SnapshotObjectName(time.Now())
	}

	ctx := context.Background()
	ctx = logger.WithContext(ctx, log)

	log.Info().
		Str("bucket", *bucket).
		Str("object", *object).
		Int("receipts", len(receipts)).
		Msg("Uploading CSV snapshot to GCS")

	if err := archive.Upload(ctx, *bucket, *object, "text/csv; charset=utf-8", buf.Bytes()); err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	fmt.Printf("Uploaded %d receipts to gs://%s/%s\n", len(receipts), *bucket, *object)
}

func runInspect(log zerolog.Logger) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	fromStr := fs.String("from", "", "Start date YYYY-MM-DD (defaults to 30 days ago)")
	toStr := fs.String("to", "", "End date YYYY-MM-DD (defaults to today)")
	fs.Parse(os.Args[2:])

	cfg := config.Load()
	if cfg.BigQueryProject == "" {
		log.Fatal().Msg("Error: BIGQUERY_PROJECT is not configured")
	}

	from := civil.DateOf(time.Now().AddDate(0, 0, -30))
	to := civil.DateOf(time.Now())
	if *fromStr != "" {
		d, err := civil.ParseDate(*fromStr)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid --from date")
		}
		from = d
	}
	if *toStr != "" {
		d, err := civil.ParseDate(*toStr)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid --to date")
		}
		to = d
	}

	ctx := context.Background()
	ctx = logger.WithContext(ctx, log)

	bqSink, err := sink.New(ctx, cfg.BigQueryProject, cfg.BigQueryDataset, cfg.BigQueryTable)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery sink")
	}
	defer bqSink.Close()

	rows, err := bqSink.QueryByDateRange(ctx, from, to)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to query mirrored receipts")
	}

	fmt.Printf("\n=== Mirrored Receipts %s .. %s (%d) ===\n", from, to, len(rows))
	var total int64
	for i, row := range rows {
		fmt.Printf("\n%d. %s\n", i+1, row.Store)
		fmt.Printf("   Date:     %s\n", row.Date)
		fmt.Printf("   Amount:   %d\n", row.Amount)
		fmt.Printf("   Category: %s\n", row.Category)
		fmt.Printf("   Source:   %s\n", row.Source)
		total += row.Amount
	}
	fmt.Printf("\nTotal: %d\n", total)
}
