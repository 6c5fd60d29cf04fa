package paperless

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Veraticus/receipt-flow/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTaskServer serves a scripted sequence of task states, one per
// status query.
func newTaskServer(t *testing.T, states []Task) *httptest.Server {
	t.Helper()

	call := 0
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tasks/", r.URL.Path)
		require.NotEmpty(t, r.URL.Query().Get("task_id"))

		state := states[call]
		if call < len(states)-1 {
			call++
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode([]Task{state}))
	}))
}

func intPtr(v int) *int { return &v }

func TestWaitSuccessAfterPending(t *testing.T) {
	server := newTaskServer(t, []Task{
		{Status: StatusPending},
		{Status: StatusStarted},
		{Status: StatusSuccess, RelatedDocument: intPtr(42)},
	})
	defer server.Close()

	waiter := NewPublicationWaiter(NewClient(server.URL, "sekrit"), time.Millisecond, 0)
	outcome, err := waiter.Wait(context.Background(), "11111111-2222-3333-4444-555555555555")
	require.NoError(t, err)
	assert.Equal(t, Outcome{Status: OutcomeNew, DocumentID: 42}, outcome)
}

func TestWaitDuplicate(t *testing.T) {
	server := newTaskServer(t, []Task{
		{
			Status:          "FAILURE",
			Result:          "receipt.pdf: Not consuming receipt.pdf: It is a duplicate of 3-Delta.pdf (#99)",
			RelatedDocument: intPtr(99),
			TaskFileName:    "receipt.pdf",
		},
	})
	defer server.Close()

	waiter := NewPublicationWaiter(NewClient(server.URL, "sekrit"), time.Millisecond, 0)
	outcome, err := waiter.Wait(context.Background(), "11111111-2222-3333-4444-555555555555")
	require.NoError(t, err)
	assert.Equal(t, Outcome{Status: OutcomeDuplicate, DocumentID: 99}, outcome)
}

func TestWaitUnexpectedStatusIsFatal(t *testing.T) {
	server := newTaskServer(t, []Task{
		{Status: "FAILURE", Result: "the OCR engine exploded"},
	})
	defer server.Close()

	waiter := NewPublicationWaiter(NewClient(server.URL, "sekrit"), time.Millisecond, 0)
	_, err := waiter.Wait(context.Background(), "11111111-2222-3333-4444-555555555555")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrUnexpectedStatus))
	assert.Contains(t, err.Error(), "the OCR engine exploded")
}

func TestWaitTransportFailureIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gateway timeout", http.StatusBadGateway)
	}))
	defer server.Close()

	waiter := NewPublicationWaiter(NewClient(server.URL, "sekrit"), time.Millisecond, 0)
	_, err := waiter.Wait(context.Background(), "11111111-2222-3333-4444-555555555555")
	require.Error(t, err)

	var httpErr *common.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
}

func TestWaitHonorsMaxPolls(t *testing.T) {
	server := newTaskServer(t, []Task{{Status: StatusPending}})
	defer server.Close()

	waiter := NewPublicationWaiter(NewClient(server.URL, "sekrit"), time.Millisecond, 3)
	_, err := waiter.Wait(context.Background(), "11111111-2222-3333-4444-555555555555")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 polls")
}

func TestWaitStopsOnContextCancel(t *testing.T) {
	server := newTaskServer(t, []Task{{Status: StatusPending}})
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	waiter := NewPublicationWaiter(NewClient(server.URL, "sekrit"), time.Minute, 0)

	done := make(chan error, 1)
	go func() {
		_, err := waiter.Wait(ctx, "11111111-2222-3333-4444-555555555555")
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("wait did not return after cancellation")
	}
}
