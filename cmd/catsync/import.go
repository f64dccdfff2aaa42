package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sddi-tools/catsync/internal/ckan"
	"github.com/sddi-tools/catsync/internal/config"
	"github.com/sddi-tools/catsync/internal/logging"
	"github.com/sddi-tools/catsync/internal/schema"
	"github.com/sddi-tools/catsync/internal/sheet"
)

var importCommand = &cobra.Command{
	Use:   "import",
	Short: "Create or update catalog datasets from the metadata workbook",
	Long: `Reads every worksheet whose name matches a configured schema type, builds a
catalog package per row and creates the dataset or updates it when mapped
fields differ. Row failures are logged and skipped; the import keeps going.`,
	RunE: runImportCmd,
}

// fields the catalog manages itself; a merge-update must not echo them back.
var serverManagedFields = []string{
	"revision_id", "metadata_created", "metadata_modified", "creator_user_id",
}

var (
	importConfigPath   string
	importCatalogURL   string
	importAPIKey       string
	importWorkbook     string
	importSchemaConfig string
	importLogLevel     string
	importLogFormat    string
)

func init() {
	importCommand.Flags().StringVar(&importConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	importCommand.Flags().StringVar(&importCatalogURL, "catalog-url", "", "Catalog API base URL")
	importCommand.Flags().StringVar(&importAPIKey, "api-key", "", "Catalog API key (optional, defaults to CATSYNC_API_KEY env var)")
	importCommand.Flags().StringVarP(&importWorkbook, "workbook", "w", "", "Path to the metadata workbook")
	importCommand.Flags().StringVar(&importSchemaConfig, "schema-config", "", "Path to the schema mapping configuration")
	importCommand.Flags().StringVar(&importLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	importCommand.Flags().StringVar(&importLogFormat, "log-format", "", "Log format (json, console)")

	rootCmd.AddCommand(importCommand)
}

func loadTransferConfig(cmd *cobra.Command, configPath, catalogURL, apiKey, workbook, schemaConfig, logLevel, logFormat string) (config.Config, error) {
	var cfg config.Config
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}

	if cmd.Flags().Changed("catalog-url") {
		cfg.CatalogURL = catalogURL
	}
	if cmd.Flags().Changed("api-key") {
		cfg.APIKey = apiKey
	}
	if cmd.Flags().Changed("workbook") {
		cfg.WorkbookPath = workbook
	}
	if cmd.Flags().Changed("schema-config") {
		cfg.SchemaConfig = schemaConfig
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.LogFormat = logFormat
	}

	cfg = cfg.MergeWithDefaults(config.Defaults())
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("CATSYNC_API_KEY")
	}

	if cfg.CatalogURL == "" {
		return cfg, fmt.Errorf("config error: catalog_url is required")
	}
	if cfg.WorkbookPath == "" {
		return cfg, fmt.Errorf("config error: workbook_path is required")
	}
	return cfg, nil
}

func runImportCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadTransferConfig(cmd, importConfigPath, importCatalogURL, importAPIKey,
		importWorkbook, importSchemaConfig, importLogLevel, importLogFormat)
	if err != nil {
		return err
	}
	if cfg.SchemaConfig == "" {
		return fmt.Errorf("config error: schema_config is required for import")
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
	manager, err := schema.LoadManager(cfg.SchemaConfig)
	if err != nil {
		return err
	}
	wb, err := sheet.Open(cfg.WorkbookPath)
	if err != nil {
		return err
	}
	defer func() { _ = wb.Close() }()

	schemaTypes := make(map[string]struct{})
	for _, t := range manager.SchemaTypes() {
		schemaTypes[t] = struct{}{}
	}

	var created, updated, unchanged, failed int
	for _, sheetName := range wb.SheetNames() {
		if _, ok := schemaTypes[sheetName]; !ok {
			continue
		}
		rows, err := wb.Rows(sheetName, 1)
		if err != nil {
			logging.L().Warn("skipping unreadable sheet",
				logging.String("sheet", sheetName), logging.Err(err))
			continue
		}
		for i, row := range rows {
			outcome, err := importRow(ctx, client, manager, row, sheetName)
			if err != nil {
				failed++
				logging.L().Warn("row import failed",
					logging.String("sheet", sheetName), logging.Int("row", i+2), logging.Err(err))
				continue
			}
			switch outcome {
			case "created":
				created++
			case "updated":
				updated++
			default:
				unchanged++
			}
		}
	}

	logging.L().Info("import finished",
		logging.Int("created", created),
		logging.Int("updated", updated),
		logging.Int("unchanged", unchanged),
		logging.Int("failed", failed),
	)
	fmt.Fprintf(os.Stdout, "Import finished: %d created, %d updated, %d unchanged, %d failed\n",
		created, updated, unchanged, failed)
	if failed > 0 {
		return fmt.Errorf("import finished with %d failed rows", failed)
	}
	return nil
}

// importRow creates or updates one dataset from a workbook row. Returns one of
// "created", "updated" or "unchanged".
func importRow(ctx context.Context, client *ckan.Client, manager *schema.Manager, row map[string]any, schemaType string) (string, error) {
	pkg, err := manager.BuildPackage(row, schemaType)
	if err != nil {
		return "", err
	}
	name, _ := pkg["name"].(string)
	if name == "" {
		return "", fmt.Errorf("row produced no dataset name")
	}

	existing, err := client.GetDatasetRaw(ctx, name)
	if ckan.IsNotFound(err) {
		if err := client.CreateDataset(ctx, pkg); err != nil {
			return "", err
		}
		return "created", nil
	}
	if err != nil {
		return "", err
	}

	tpl, err := manager.Template(schemaType)
	if err != nil {
		return "", err
	}
	diffs := schema.CompareMappedFields(row, existing, tpl)
	if len(diffs) == 0 {
		return "unchanged", nil
	}
	logDiffs(name, diffs)

	// Merge onto the existing record so unmapped fields survive the update.
	update := make(map[string]any, len(existing)+len(pkg))
	for k, v := range existing {
		update[k] = v
	}
	for k, v := range pkg {
		update[k] = v
	}
	update["id"] = existing["id"]
	for _, field := range serverManagedFields {
		delete(update, field)
	}

	if err := client.UpdateDataset(ctx, update); err != nil {
		// A malformed spatial payload fails the whole update; retry without it.
		if _, hasSpatial := update["spatial"]; hasSpatial {
			delete(update, "spatial")
			if retryErr := client.UpdateDataset(ctx, update); retryErr == nil {
				return "updated", nil
			}
		}
		return "", err
	}
	return "updated", nil
}

func logDiffs(name string, diffs map[string][2]string) {
	fields := make([]string, 0, len(diffs))
	for f := range diffs {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		logging.L().Debug("field differs",
			logging.String("dataset", name),
			logging.String("field", f),
			logging.String("have", diffs[f][0]),
			logging.String("want", diffs[f][1]),
		)
	}
}
