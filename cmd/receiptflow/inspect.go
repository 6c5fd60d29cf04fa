package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/receipt-flow/internal/archive"
	"github.com/Veraticus/receipt-flow/internal/cli"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func inspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <library>",
		Short: "Show what a migration run would see",
		Long: `Read the receipt library and print the records with their derived
titles, dates and tags. Useful for picking --start and --count windows
before a live run; touches nothing but the local library.`,
		Args: cobra.ExactArgs(1),
		RunE: runInspect,
	}

	cmd.Flags().Int("limit", 10, "Number of receipts to show (0 = all)")
	_ = viper.BindPFlag("inspect.limit", cmd.Flags().Lookup("limit"))

	return cmd
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	lib, err := archive.Open(args[0])
	if err != nil {
		return err
	}
	defer func() { _ = lib.Close() }()

	receipts, err := lib.Receipts(ctx)
	if err != nil {
		return err
	}

	limit := viper.GetInt("inspect.limit")
	shown := len(receipts)
	if limit > 0 && limit < shown {
		shown = limit
	}

	var lines []string
	for index, receipt := range receipts[:shown] {
		created := "?"
		if t, err := receipt.CreatedAt(); err == nil {
			created = t.Format("2006-01-02")
		}
		lines = append(lines, fmt.Sprintf("%4d  %s  %-30s  tags: %s",
			index, created, receipt.FileName(index),
			strings.Join(receipt.TagNames(), ", ")))
	}

	title := fmt.Sprintf("%d receipts (%d shown)", len(receipts), shown)
	slog.Info(cli.RenderBox(title, strings.Join(lines, "\n")))
	return nil
}
