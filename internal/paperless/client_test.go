package paperless

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/receipt-flow/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/documents/post_document/", r.URL.Path)
		require.Equal(t, "Token sekrit", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "7-Acme Co.pdf", r.FormValue("title"))
		assert.Equal(t, "2021-03-05T00:00:00Z", r.FormValue("created"))

		file, header, err := r.FormFile("document")
		require.NoError(t, err)
		defer func() { _ = file.Close() }()
		assert.Equal(t, "a.pdf", header.Filename)
		content, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "%PDF-fake", string(content))

		fmt.Fprint(w, `"01937b2e-1111-7222-8333-444455556666"`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "sekrit")
	taskID, err := client.UploadDocument(context.Background(), UploadRequest{
		Document: strings.NewReader("%PDF-fake"),
		FileName: "a.pdf",
		Title:    "7-Acme Co.pdf",
		Created:  time.Date(2021, 3, 5, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "01937b2e-1111-7222-8333-444455556666", taskID)
}

func TestUploadDocumentRejectsBadTaskID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `"not-a-uuid"`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "sekrit")
	_, err := client.UploadDocument(context.Background(), UploadRequest{
		Document: strings.NewReader("x"),
		FileName: "a.pdf",
		Title:    "t",
		Created:  time.Now(),
	})
	assert.Error(t, err)
}

func TestPatchDocument(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		require.Equal(t, "/api/documents/42/", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	correspondent := 9
	client := NewClient(server.URL, "sekrit")
	err := client.PatchDocument(context.Background(), 42, DocumentPatch{
		Tags:          []int{1, 2},
		Correspondent: &correspondent,
		CustomFields:  []CustomField{{Field: 1, Value: "USD12.5"}},
		Notes:         "lunch",
	})
	require.NoError(t, err)

	assert.Equal(t, []any{float64(1), float64(2)}, got["tags"])
	assert.Equal(t, float64(9), got["correspondent"])
	assert.Equal(t, "lunch", got["notes"])
	require.Len(t, got["custom_fields"], 1)
}

func TestPatchOmitsEmptyFields(t *testing.T) {
	var raw []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		raw, err = io.ReadAll(r.Body)
		require.NoError(t, err)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "sekrit")
	require.NoError(t, client.PatchDocument(context.Background(), 42, DocumentPatch{Notes: "n"}))
	assert.JSONEq(t, `{"notes": "n"}`, string(raw))
}

func TestNon2xxBecomesHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such document", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "sekrit")
	err := client.PatchDocument(context.Background(), 42, DocumentPatch{Notes: "n"})
	require.Error(t, err)

	var httpErr *common.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.Equal(t, "no such document", httpErr.Body)
}

func TestGetTaskEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "sekrit")
	_, err := client.GetTask(context.Background(), "11111111-2222-3333-4444-555555555555")
	assert.Error(t, err)
}

func TestNormalizeLink(t *testing.T) {
	secure := NewClient("https://paperless.example.com", "t")
	assert.Equal(t, "https://paperless.example.com/api/tags/?page=2",
		secure.normalizeLink("http://paperless.example.com/api/tags/?page=2"))

	plain := NewClient("http://localhost:8000", "t")
	assert.Equal(t, "http://localhost:8000/api/tags/?page=2",
		plain.normalizeLink("http://localhost:8000/api/tags/?page=2"))
}

func TestIsDuplicatePredicate(t *testing.T) {
	assert.True(t, isDuplicate(Task{Result: "Not consuming x: It is a duplicate of y (#3)"}))
	assert.False(t, isDuplicate(Task{Result: "something else went wrong"}))
	assert.False(t, isDuplicate(Task{}))
}
