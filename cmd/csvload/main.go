// csvload ingests one card statement CSV from the command line: decode,
// analyze, and save every extracted row in month batches, honoring the
// backend's rate limit with the same countdown the gateway uses.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mizutanik/kakeibo/internal/csvingest"
	"github.com/mizutanik/kakeibo/internal/extract"
	"github.com/mizutanik/kakeibo/internal/logger"
	"github.com/mizutanik/kakeibo/internal/session"
)

func main() {
	log := logger.New()

	var (
		file        = flag.String("file", "", "Path of the statement CSV (UTF-8 or Shift_JIS)")
		mappingPath = flag.String("mapping", "", "Optional path of a JSON column mapping; omit to let the backend infer one")
		backendURL  = flag.String("backend", os.Getenv("KAKEIBO_BACKEND_URL"), "Extraction backend base URL (or set KAKEIBO_BACKEND_URL)")
		token       = flag.String("token", os.Getenv("KAKEIBO_ACCESS_TOKEN"), "Provider access token (or set KAKEIBO_ACCESS_TOKEN)")
		sheet       = flag.String("spreadsheet", os.Getenv("KAKEIBO_SPREADSHEET_ID"), "Target spreadsheet id (or set KAKEIBO_SPREADSHEET_ID)")
		dryRun      = flag.Bool("dry-run", false, "Analyze and print rows without saving")
	)
	flag.Parse()

	if *file == "" {
		log.Fatal().Msg("Error: --file is required")
	}
	if *backendURL == "" {
		log.Fatal().Msg("Error: --backend is required")
	}
	if *token == "" {
		log.Fatal().Msg("Error: --token is required")
	}
	if *sheet == "" {
		log.Fatal().Msg("Error: --spreadsheet is required")
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		log.Fatal().Err(err).Str("file", *file).Msg("Failed to read statement")
	}

	var mapping *extract.CSVMapping
	if *mappingPath != "" {
		raw, err := os.ReadFile(*mappingPath)
		if err != nil {
			log.Fatal().Err(err).Str("file", *mappingPath).Msg("Failed to read mapping")
		}
		mapping = &extract.CSVMapping{}
		if err := json.Unmarshal(raw, mapping); err != nil {
			log.Fatal().Err(err).Msg("Mapping file is not valid JSON")
		}
	}

	sess := &session.Session{
		UserID:        "cli",
		Token:         session.NewToken(*token, time.Time{}),
		SpreadsheetID: *sheet,
	}

	ctx := logger.WithContext(context.Background(), log)
	client := extract.NewClient(*backendURL, log)

	ingestor := csvingest.NewIngestor(client, log)
	if err := ingestor.LoadFile(data); err != nil {
		log.Fatal().Err(err).Msg("Statement is not UTF-8 or Shift_JIS text")
	}

	log.Info().Str("file", *file).Bool("preset_mapping", mapping != nil).Msg("Analyzing statement")
	if err := ingestor.Analyze(ctx, sess, mapping); err != nil {
		log.Fatal().Err(err).Msg("Analysis failed")
	}

	rows := ingestor.Rows()
	for i, row := range rows {
		fmt.Printf("%3d  %-10s  %-24s  %s\n", i, row.Date, row.Store, row.Price)
	}
	fmt.Printf("%d rows extracted\n", len(rows))

	if m := ingestor.Mapping(); m != nil && mapping == nil {
		inferred, _ := json.Marshal(m)
		fmt.Printf("inferred mapping: %s\n", inferred)
	}

	if *dryRun {
		return
	}

	scheduler := csvingest.NewScheduler(client, log)
	scheduler.OnProgress = func(p csvingest.Progress) {
		fmt.Printf("saved %d of %d month batches\n", p.Current, p.Total)
	}
	scheduler.OnWait = func(secondsLeft int) {
		fmt.Printf("\rrate limited, retrying in %3ds", secondsLeft)
		if secondsLeft == 0 {
			fmt.Println()
		}
	}

	if err := scheduler.SaveAll(ctx, sess, rows); err != nil {
		log.Fatal().Err(err).Msg("Save aborted")
	}
	fmt.Println("Statement saved successfully.")
}
