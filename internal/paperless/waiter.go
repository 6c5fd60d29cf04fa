package paperless

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/receipt-flow/internal/common"
)

// Task statuses reported by the server.
const (
	StatusPending = "PENDING"
	StatusStarted = "STARTED"
	StatusSuccess = "SUCCESS"
)

// OutcomeStatus classifies how an ingestion task finished.
type OutcomeStatus string

const (
	// OutcomeNew means the upload produced a new document.
	OutcomeNew OutcomeStatus = "new"
	// OutcomeDuplicate means the server matched the upload to an
	// existing document.
	OutcomeDuplicate OutcomeStatus = "duplicate"
)

// Outcome is the terminal result of a successful wait. DocumentID is
// zero when the server reported success without a related document.
type Outcome struct {
	Status     OutcomeStatus
	DocumentID int
}

// PublicationWaiter polls the task-status endpoint until a submitted
// document finishes server-side processing.
type PublicationWaiter struct {
	client   *Client
	interval time.Duration
	// maxPolls bounds the number of status queries; zero means poll
	// forever, matching the historical behavior of a human-supervised
	// migration.
	maxPolls int
}

// NewPublicationWaiter creates a waiter polling at the given interval.
func NewPublicationWaiter(client *Client, interval time.Duration, maxPolls int) *PublicationWaiter {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &PublicationWaiter{
		client:   client,
		interval: interval,
		maxPolls: maxPolls,
	}
}

// Wait blocks until the task reaches a terminal state and classifies
// it. Unexpected terminal statuses and transport failures are fatal.
func (w *PublicationWaiter) Wait(ctx context.Context, taskID string) (Outcome, error) {
	for polls := 0; ; polls++ {
		if w.maxPolls > 0 && polls >= w.maxPolls {
			return Outcome{}, fmt.Errorf("task %s still not finished after %d polls", taskID, w.maxPolls)
		}

		task, err := w.client.GetTask(ctx, taskID)
		if err != nil {
			return Outcome{}, err
		}
		slog.Debug("Task status", "task_id", taskID, "status", task.Status)

		switch {
		case task.Status == StatusPending || task.Status == StatusStarted:
			select {
			case <-ctx.Done():
				return Outcome{}, ctx.Err()
			case <-time.After(w.interval):
			}

		case task.Status == StatusSuccess:
			return Outcome{Status: OutcomeNew, DocumentID: documentID(task)}, nil

		case isDuplicate(task):
			slog.Warn("Document was a duplicate",
				"file", task.TaskFileName,
				"original_document", documentID(task))
			return Outcome{Status: OutcomeDuplicate, DocumentID: documentID(task)}, nil

		default:
			slog.Error("Unexpected task result",
				"task_id", taskID,
				"status", task.Status,
				"result", task.Result,
				"file", task.TaskFileName)
			return Outcome{}, fmt.Errorf("%w: task %s finished as %s: %s",
				common.ErrUnexpectedStatus, taskID, task.Status, task.Result)
		}
	}
}

// isDuplicate recognizes the server's duplicate rejection. There is no
// dedicated status code for this; the server reports it only in the
// result message, so the heuristic lives behind this one predicate in
// case the wording changes.
func isDuplicate(task Task) bool {
	return strings.Contains(task.Result, "is a duplicate of")
}

func documentID(task Task) int {
	if task.RelatedDocument == nil {
		return 0
	}
	return *task.RelatedDocument
}
