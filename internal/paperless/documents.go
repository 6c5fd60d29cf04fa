package paperless

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UploadRequest carries the file and basic metadata submitted to the
// document ingestion endpoint.
type UploadRequest struct {
	Created  time.Time
	Document io.Reader
	FileName string
	Title    string
}

// Task is one entry from the task-status endpoint.
type Task struct {
	RelatedDocument *int   `json:"related_document"`
	Status          string `json:"status"`
	Result          string `json:"result"`
	TaskFileName    string `json:"task_file_name"`
}

// CustomField is a custom-field assignment on a document patch.
type CustomField struct {
	Value string `json:"value"`
	Field int    `json:"field"`
}

// DocumentPatch is the metadata applied to a document after ingestion.
// Zero-valued fields are omitted from the request entirely.
type DocumentPatch struct {
	Correspondent *int          `json:"correspondent,omitempty"`
	Notes         string        `json:"notes,omitempty"`
	Tags          []int         `json:"tags,omitempty"`
	CustomFields  []CustomField `json:"custom_fields,omitempty"`
}

// IsEmpty reports whether the patch would change nothing.
func (p DocumentPatch) IsEmpty() bool {
	return p.Correspondent == nil && p.Notes == "" && len(p.Tags) == 0 && len(p.CustomFields) == 0
}

// UploadDocument submits a file for ingestion and returns the task
// UUID the server assigned to it.
func (c *Client) UploadDocument(ctx context.Context, req UploadRequest) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("document", req.FileName)
	if err != nil {
		return "", fmt.Errorf("failed to create multipart file field: %w", err)
	}
	if _, err := io.Copy(part, req.Document); err != nil {
		return "", fmt.Errorf("failed to copy document into request: %w", err)
	}
	if err := writer.WriteField("title", req.Title); err != nil {
		return "", fmt.Errorf("failed to write title field: %w", err)
	}
	if err := writer.WriteField("created", req.Created.Format(time.RFC3339)); err != nil {
		return "", fmt.Errorf("failed to write created field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	url := c.baseURL + "/api/documents/post_document/"
	body, err := c.do(ctx, http.MethodPost, url, writer.FormDataContentType(), &buf)
	if err != nil {
		return "", err
	}

	// The endpoint returns the task UUID as a quoted string.
	taskID := strings.Trim(strings.TrimSpace(string(body)), `"`)
	if _, err := uuid.Parse(taskID); err != nil {
		return "", fmt.Errorf("server returned invalid task id %q: %w", taskID, err)
	}
	return taskID, nil
}

// GetTask queries the status of a submitted ingestion task.
func (c *Client) GetTask(ctx context.Context, taskID string) (Task, error) {
	var tasks []Task
	url := fmt.Sprintf("%s/api/tasks/?task_id=%s", c.baseURL, taskID)
	if err := c.getJSON(ctx, url, &tasks); err != nil {
		return Task{}, err
	}
	if len(tasks) == 0 {
		return Task{}, fmt.Errorf("no task found for id %s", taskID)
	}
	return tasks[0], nil
}

// PatchDocument applies metadata to an ingested document.
func (c *Client) PatchDocument(ctx context.Context, documentID int, patch DocumentPatch) error {
	data, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to encode document patch: %w", err)
	}
	url := fmt.Sprintf("%s/api/documents/%d/", c.baseURL, documentID)
	_, err = c.do(ctx, http.MethodPatch, url, "application/json", bytes.NewReader(data))
	return err
}
