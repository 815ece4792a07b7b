package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/stockflow_backend/export"
	"bitbucket.org/mmdatafocus/stockflow_backend/models"
	"bitbucket.org/mmdatafocus/stockflow_backend/models/reports"
	"bitbucket.org/mmdatafocus/stockflow_backend/utils"
)

// export-file renders one export artifact from a raw provider payload on
// disk, without touching the provider. Handy for inspecting what a
// local-fallback render produces for a given payload.
//
// Example:
//   go run ./cmd/export-file \
//     --payload=imports.json --kind=Import --format=pdf \
//     --from=2026-01-01 --to=2026-01-31 --out=./exports
func main() {
	var (
		payloadPath = flag.String("payload", "", "path to a raw provider JSON payload (required)")
		kindStr     = flag.String("kind", "Import", "transaction kind (Import/Sale)")
		formatStr   = flag.String("format", "xlsx", "output format (xlsx/csv/pdf/html)")
		fromDate    = flag.String("from", "", "window start, YYYY-MM-DD (required)")
		toDate      = flag.String("to", "", "window end, YYYY-MM-DD (required)")
		columnsStr  = flag.String("columns", "", "comma-separated column ids (default: all)")
		details     = flag.Bool("details", true, "include line-item detail rows")
		outDir      = flag.String("out", ".", "output directory")
	)
	flag.Parse()

	if *payloadPath == "" || *fromDate == "" || *toDate == "" {
		fmt.Fprintln(os.Stderr, "missing required flags")
		flag.Usage()
		os.Exit(2)
	}

	raw, err := os.ReadFile(*payloadPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read payload: %v\n", err)
		os.Exit(1)
	}
	var payload any
	if err := utils.UnmarshalFromJSON(raw, &payload); err != nil {
		fmt.Fprintf(os.Stderr, "payload is not JSON: %v\n", err)
		os.Exit(1)
	}

	kind := models.TransactionKind(*kindStr)
	records, err := models.CanonicalizeAs(payload, kind)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: some rows were skipped: %v\n", err)
	}

	cols := export.AllColumns
	if strings.TrimSpace(*columnsStr) != "" {
		cols = nil
		for _, p := range strings.Split(*columnsStr, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cols = append(cols, export.Column(p))
			}
		}
	}

	req := export.Request{
		Kind:            kind,
		Format:          export.Format(*formatStr),
		Scope:           export.ScopeFiltered,
		FromDate:        *fromDate,
		ToDate:          *toDate,
		SelectedColumns: cols,
		IncludeDetails:  *details,
	}
	if err := req.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid request: %v\n", err)
		os.Exit(2)
	}

	filtered := make([]*models.TransactionRecord, 0, len(records))
	for _, rec := range records {
		if rec.InDateRange(req.FromTime(), req.ToTime()) {
			filtered = append(filtered, rec)
		}
	}

	now := time.Now()
	rows := models.Flatten(filtered, now)
	summary := reports.Aggregate(rows, filtered)
	artifact, err := export.Render(rows, summary, req, now)
	if err != nil {
		fmt.Fprintf(os.Stderr, "render failed: %v\n", err)
		os.Exit(1)
	}

	sink := export.FileSink{Dir: *outDir}
	if err := sink.Save(context.Background(), artifact); err != nil {
		fmt.Fprintf(os.Stderr, "write failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s (%d bytes, %d rows)\n", artifact.Filename, len(artifact.Bytes), len(rows))
}
