package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/books_ledger/config"
	"github.com/mmdatafocus/books_ledger/middlewares"
	"github.com/mmdatafocus/books_ledger/models"
	"github.com/mmdatafocus/books_ledger/models/reports"
	"github.com/mmdatafocus/books_ledger/utils"
	"github.com/mmdatafocus/books_ledger/workflow"
)

func main() {
	chargeID := flag.String("charge-id", "", "Required: charge id")
	insert := flag.Bool("insert", false, "Persist records that are not stored yet")
	xlsxPath := flag.String("xlsx", "", "Optional: write the records to this xlsx file")
	gcsObject := flag.String("gcs-object", "", "Optional: upload the xlsx export to GCS_BUCKET under this name")
	migrate := flag.Bool("migrate", false, "Run AutoMigrate before generating")
	flag.Parse()

	if strings.TrimSpace(*chargeID) == "" {
		fmt.Fprintln(os.Stderr, "--charge-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	if *migrate {
		if err := models.MigrateTable(db); err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			os.Exit(1)
		}
	}

	policy, err := config.LoadLedgerPolicy()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ledger policy: %v\n", err)
		os.Exit(1)
	}
	logger := config.GetLogger()
	gen, err := workflow.NewLedgerGenerator(workflow.NewGormDependencies(db), policy, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ledger generator: %v\n", err)
		os.Exit(1)
	}

	ctx := middlewares.WithLoaders(context.Background(), db)
	ctx = utils.SetUserNameInContext(ctx, "System")
	charge, err := models.NewChargeProvider(db).GetCharge(ctx, *chargeID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load charge: %v\n", err)
		os.Exit(1)
	}

	result, err := gen.GenerateLedgerRecords(ctx, charge, workflow.Options{InsertIfNotExists: *insert})
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate ledger: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "encode result: %v\n", err)
		os.Exit(1)
	}

	if *xlsxPath == "" && *gcsObject == "" {
		return
	}
	var buf bytes.Buffer
	if err := reports.WriteLedgerWorkbook(&buf, result); err != nil {
		fmt.Fprintf(os.Stderr, "xlsx export: %v\n", err)
		os.Exit(1)
	}
	if *xlsxPath != "" {
		if err := os.WriteFile(*xlsxPath, buf.Bytes(), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", *xlsxPath, err)
			os.Exit(1)
		}
	}
	if *gcsObject != "" {
		uri, err := utils.UploadBytesToGCS(ctx, *gcsObject, buf.Bytes())
		if err != nil {
			fmt.Fprintf(os.Stderr, "upload: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, "uploaded", uri)
	}
}
