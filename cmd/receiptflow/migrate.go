package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Veraticus/receipt-flow/internal/archive"
	"github.com/Veraticus/receipt-flow/internal/cli"
	"github.com/Veraticus/receipt-flow/internal/common"
	"github.com/Veraticus/receipt-flow/internal/migrate"
	"github.com/Veraticus/receipt-flow/internal/paperless"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate <library>",
		Short: "Migrate a receipt library to paperless-ngx",
		Long: `Upload every receipt in the library to a paperless-ngx server.

Receipts are processed one at a time in primary-key order; each upload
waits for server-side ingestion before metadata is attached, so an
aborted run can always resume with --start.`,
		Args: cobra.ExactArgs(1),
		RunE: runMigrate,
	}

	// Flags
	cmd.Flags().String("url", "", "Base URL of the paperless-ngx server")
	cmd.Flags().String("auth", "", "API token for the paperless-ngx server")
	cmd.Flags().Bool("noop", false, "Dry run: log intended actions without uploading anything")
	cmd.Flags().Int("start", 0, "Index of the first record to process (resume point)")
	cmd.Flags().Int("count", 0, "Maximum number of records to process (0 = all)")
	cmd.Flags().Duration("poll-interval", 2*time.Second, "Delay between task status polls")
	cmd.Flags().Int("max-polls", 0, "Give up on a task after this many polls (0 = wait forever)")
	cmd.Flags().Float64("rate-limit", 0, "Maximum API requests per second (0 = unlimited)")
	cmd.Flags().Int("amount-field", 1, "Custom field ID that receives the receipt amount")

	// Bind to viper
	_ = viper.BindPFlag("migrate.url", cmd.Flags().Lookup("url"))
	_ = viper.BindPFlag("migrate.auth", cmd.Flags().Lookup("auth"))
	_ = viper.BindPFlag("migrate.noop", cmd.Flags().Lookup("noop"))
	_ = viper.BindPFlag("migrate.start", cmd.Flags().Lookup("start"))
	_ = viper.BindPFlag("migrate.count", cmd.Flags().Lookup("count"))
	_ = viper.BindPFlag("migrate.poll_interval", cmd.Flags().Lookup("poll-interval"))
	_ = viper.BindPFlag("migrate.max_polls", cmd.Flags().Lookup("max-polls"))
	_ = viper.BindPFlag("migrate.rate_limit", cmd.Flags().Lookup("rate-limit"))
	_ = viper.BindPFlag("migrate.amount_field", cmd.Flags().Lookup("amount-field"))

	return cmd
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	url := viper.GetString("migrate.url")
	auth := viper.GetString("migrate.auth")
	if url == "" {
		return common.NewUserError("--url is required", common.ErrMissingConfig)
	}
	if auth == "" {
		return common.NewUserError("--auth is required", common.ErrMissingConfig)
	}

	lib, err := archive.Open(args[0])
	if err != nil {
		return err
	}
	defer func() { _ = lib.Close() }()

	total, err := lib.CountReceipts(ctx)
	if err != nil {
		return err
	}
	slog.Info(cli.FormatTitle(fmt.Sprintf("Migrating %d receipts to %s", total, url)))

	client := paperless.NewClient(url, auth,
		paperless.WithRateLimit(viper.GetFloat64("migrate.rate_limit")))

	correspondents, err := paperless.NewReferenceCache(ctx, client, "correspondents")
	if err != nil {
		return err
	}
	tags, err := paperless.NewReferenceCache(ctx, client, "tags")
	if err != nil {
		return err
	}
	slog.Info("Reference caches loaded",
		"correspondents", correspondents.Len(),
		"tags", tags.Len())

	waiter := paperless.NewPublicationWaiter(client,
		viper.GetDuration("migrate.poll_interval"),
		viper.GetInt("migrate.max_polls"))

	driver := migrate.NewDriver(lib, client, waiter, tags, correspondents, migrate.Options{
		ProgressWriter: os.Stderr,
		Start:          viper.GetInt("migrate.start"),
		Count:          viper.GetInt("migrate.count"),
		AmountField:    viper.GetInt("migrate.amount_field"),
		DryRun:         viper.GetBool("migrate.noop"),
	})

	summary, runErr := driver.Run(ctx)

	content := fmt.Sprintf(`Processed:  %d
Uploaded:   %d
Duplicates: %d`, summary.Processed, summary.Uploaded, summary.Duplicates)
	if summary.LastIndex >= 0 {
		content += fmt.Sprintf("\n\nResume a later run with --start %d", summary.LastIndex+1)
	}
	slog.Info(cli.RenderBox("Migration summary", content))

	if runErr != nil {
		slog.Error(cli.FormatError("Migration failed"), "error", runErr)
		return runErr
	}

	slog.Info(cli.FormatSuccess("Migration complete"))
	return nil
}
