// Package migrate orchestrates the per-receipt migration pipeline:
// transform, upload, wait for ingestion, resolve reference entities,
// patch metadata. Processing is strictly sequential; one receipt fully
// completes before the next begins.
package migrate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/receipt-flow/internal/model"
	"github.com/Veraticus/receipt-flow/internal/paperless"

	"github.com/schollz/progressbar/v3"
)

// Source provides the receipts to migrate and resolves their files.
type Source interface {
	Receipts(ctx context.Context) ([]model.Receipt, error)
	DocumentPath(relative string) string
}

// DocumentService is the slice of the remote API the driver mutates.
type DocumentService interface {
	UploadDocument(ctx context.Context, req paperless.UploadRequest) (string, error)
	PatchDocument(ctx context.Context, documentID int, patch paperless.DocumentPatch) error
}

// Waiter blocks until a submitted task reaches a terminal state.
type Waiter interface {
	Wait(ctx context.Context, taskID string) (paperless.Outcome, error)
}

// Resolver turns a free-text name into a remote entity ID.
type Resolver interface {
	Get(ctx context.Context, name string) (int, error)
}

// Options controls windowing and dry-run behavior for one run.
type Options struct {
	// ProgressWriter receives the progress bar; nil disables it.
	ProgressWriter io.Writer
	// Start skips records before this index.
	Start int
	// Count caps how many records this run processes; zero means all.
	Count int
	// AmountField is the remote custom-field ID holding the amount.
	AmountField int
	// DryRun logs intended actions without any network mutation.
	DryRun bool
}

// Summary reports what a run accomplished.
type Summary struct {
	Processed  int
	Uploaded   int
	Duplicates int
	// LastIndex is the highest index fully processed; resume a failed
	// run with --start LastIndex+1. Negative when nothing completed.
	LastIndex int
}

// Driver runs the migration. Cross-record state lives entirely in the
// two resolvers, which persist for the whole run.
type Driver struct {
	source         Source
	docs           DocumentService
	waiter         Waiter
	tags           Resolver
	correspondents Resolver
	opts           Options
}

// NewDriver wires a driver from its collaborators.
func NewDriver(source Source, docs DocumentService, waiter Waiter, tags, correspondents Resolver, opts Options) *Driver {
	if opts.AmountField <= 0 {
		opts.AmountField = 1
	}
	return &Driver{
		source:         source,
		docs:           docs,
		waiter:         waiter,
		tags:           tags,
		correspondents: correspondents,
		opts:           opts,
	}
}

// Run migrates the configured window of receipts. Any transport or
// classification failure aborts the run; the summary always reflects
// how far it got.
func (d *Driver) Run(ctx context.Context) (Summary, error) {
	summary := Summary{LastIndex: -1}

	receipts, err := d.source.Receipts(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to load receipts: %w", err)
	}

	bar := d.newProgressBar(len(receipts))

	for index, receipt := range receipts {
		_ = bar.Add(1)

		if index < d.opts.Start {
			continue
		}
		if d.opts.Count > 0 && index >= d.opts.Start+d.opts.Count {
			break
		}

		if err := d.processReceipt(ctx, index, &receipt, &summary); err != nil {
			slog.Error("Migration aborted",
				"index", index,
				"last_completed_index", summary.LastIndex,
				"resume_with_start", summary.LastIndex+1,
				"error", err)
			return summary, err
		}

		summary.Processed++
		summary.LastIndex = index
	}

	return summary, nil
}

func (d *Driver) processReceipt(ctx context.Context, index int, receipt *model.Receipt, summary *Summary) error {
	fileName := receipt.FileName(index)
	created, err := receipt.CreatedAt()
	if err != nil {
		return err
	}

	slog.Info("Processing receipt",
		"index", index,
		"path", receipt.Path,
		"title", fileName,
		"created", created,
		"amount", receipt.Amount,
		"amount_string", receipt.AmountString)

	if d.opts.DryRun {
		slog.Info("Dry run, skipping upload", "index", index, "title", fileName)
		return nil
	}

	taskID, err := d.upload(ctx, receipt, fileName, created)
	if err != nil {
		return err
	}
	slog.Info("Task submitted", "index", index, "task_id", taskID)

	outcome, err := d.waiter.Wait(ctx, taskID)
	if err != nil {
		return err
	}
	if outcome.Status == paperless.OutcomeDuplicate {
		summary.Duplicates++
	} else {
		summary.Uploaded++
	}

	patch, err := d.buildPatch(ctx, receipt)
	if err != nil {
		return err
	}

	if !patch.IsEmpty() {
		if outcome.DocumentID == 0 {
			slog.Error("No document id for finished task, skipping metadata patch",
				"index", index, "title", fileName, "task_id", taskID)
		} else if err := d.docs.PatchDocument(ctx, outcome.DocumentID, patch); err != nil {
			return err
		}
	}

	slog.Info("Receipt migrated",
		"index", index,
		"title", fileName,
		"document_id", outcome.DocumentID,
		"status", outcome.Status)
	slog.Info("Resume point", "start", index+1)
	return nil
}

// upload opens the receipt's file just long enough to submit it, so a
// long run never accumulates open descriptors.
func (d *Driver) upload(ctx context.Context, receipt *model.Receipt, fileName string, created time.Time) (string, error) {
	file, err := os.Open(d.source.DocumentPath(receipt.Path))
	if err != nil {
		return "", fmt.Errorf("failed to open receipt file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return d.docs.UploadDocument(ctx, paperless.UploadRequest{
		Document: file,
		FileName: baseName(receipt.Path),
		Title:    fileName,
		Created:  created,
	})
}

// buildPatch resolves reference entities and assembles the metadata
// patch. Only populated fields are attached.
func (d *Driver) buildPatch(ctx context.Context, receipt *model.Receipt) (paperless.DocumentPatch, error) {
	var patch paperless.DocumentPatch

	for _, name := range receipt.TagNames() {
		id, err := d.tags.Get(ctx, name)
		if err != nil {
			return patch, err
		}
		patch.Tags = append(patch.Tags, id)
	}

	if receipt.Merchant != "" {
		id, err := d.correspondents.Get(ctx, receipt.Merchant)
		if err != nil {
			return patch, err
		}
		patch.Correspondent = &id
	}

	if receipt.Amount > 0 {
		patch.CustomFields = []paperless.CustomField{{
			Field: d.opts.AmountField,
			Value: "USD" + strconv.FormatFloat(receipt.Amount, 'f', -1, 64),
		}}
	}

	if notes := strings.TrimSpace(receipt.Notes); notes != "" {
		patch.Notes = notes
	}

	return patch, nil
}

func (d *Driver) newProgressBar(total int) *progressbar.ProgressBar {
	writer := d.opts.ProgressWriter
	if writer == nil {
		writer = io.Discard
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(writer),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Migrating receipts..."),
	)
}

func baseName(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}
