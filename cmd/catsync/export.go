package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sddi-tools/catsync/internal/ckan"
	"github.com/sddi-tools/catsync/internal/logging"
	"github.com/sddi-tools/catsync/internal/sheet"
)

var exportCommand = &cobra.Command{
	Use:   "export [dataset...]",
	Short: "Append catalog datasets to the metadata workbook",
	Long: `Fetches the named datasets (or every dataset when none are given) and appends
one workbook row per dataset in the curated column layout.`,
	RunE: runExportCmd,
}

var (
	exportConfigPath string
	exportCatalogURL string
	exportAPIKey     string
	exportWorkbook   string
	exportSheet      string
	exportLogLevel   string
	exportLogFormat  string
)

func init() {
	exportCommand.Flags().StringVar(&exportConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	exportCommand.Flags().StringVar(&exportCatalogURL, "catalog-url", "", "Catalog API base URL")
	exportCommand.Flags().StringVar(&exportAPIKey, "api-key", "", "Catalog API key (optional, defaults to CATSYNC_API_KEY env var)")
	exportCommand.Flags().StringVarP(&exportWorkbook, "workbook", "w", "", "Path to the metadata workbook")
	exportCommand.Flags().StringVar(&exportSheet, "sheet", "", "Worksheet to append to (defaults to the first sheet)")
	exportCommand.Flags().StringVar(&exportLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	exportCommand.Flags().StringVar(&exportLogFormat, "log-format", "", "Log format (json, console)")

	rootCmd.AddCommand(exportCommand)
}

func runExportCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadTransferConfig(cmd, exportConfigPath, exportCatalogURL, exportAPIKey,
		exportWorkbook, "", exportLogLevel, exportLogFormat)
	if err != nil {
		return err
	}

	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		return err
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := ckan.New(cfg.CatalogURL, &ckan.Options{APIKey: cfg.APIKey, Timeout: cfg.Timeout()})
	if err != nil {
		return err
	}
	wb, err := sheet.Open(cfg.WorkbookPath)
	if err != nil {
		return err
	}
	defer func() { _ = wb.Close() }()

	sheetName := exportSheet
	if sheetName == "" {
		names := wb.SheetNames()
		if len(names) == 0 {
			return fmt.Errorf("workbook %s has no sheets", cfg.WorkbookPath)
		}
		sheetName = names[0]
	}

	names := args
	if len(names) == 0 {
		names, err = client.ListDatasets(ctx)
		if err != nil {
			return err
		}
	}

	var exported, failed int
	for _, name := range names {
		ds, err := client.GetDataset(ctx, name)
		if err != nil {
			failed++
			logging.L().Warn("fetching dataset failed",
				logging.String("dataset", name), logging.Err(err))
			continue
		}
		if err := wb.AppendDataset(sheetName, ds); err != nil {
			failed++
			logging.L().Warn("appending dataset row failed",
				logging.String("dataset", name), logging.Err(err))
			continue
		}
		exported++
	}

	if err := wb.Save(); err != nil {
		return err
	}

	logging.L().Info("export finished",
		logging.Int("exported", exported), logging.Int("failed", failed))
	fmt.Fprintf(os.Stdout, "Export finished: %d datasets written, %d failed\n", exported, failed)
	if failed > 0 {
		return fmt.Errorf("export finished with %d failed datasets", failed)
	}
	return nil
}
