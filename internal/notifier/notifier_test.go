package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/italolelis/poster_downloader/internal/downloader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscordNotifier_Notify(t *testing.T) {
	var got map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := NewDiscordNotifier(server.URL)
	require.NoError(t, n.Notify(context.Background(), "hello"))
	assert.Equal(t, "hello", got["content"])
}

func TestDiscordNotifier_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	err := NewDiscordNotifier(server.URL).Notify(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")

	err = (&DiscordNotifier{}).Notify(context.Background(), "hello")
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = NewDiscordNotifier(server.URL).Notify(ctx, "hello")
	require.ErrorIs(t, err, context.Canceled)
}

func TestBatchMessage(t *testing.T) {
	start := time.Now()
	report := &downloader.Report{
		BatchID:    "b1",
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Second),
		Outcomes: []downloader.Outcome{
			{RecordID: "1", Status: downloader.StatusSuccess, Bytes: 2000},
			{RecordID: "2", Status: downloader.StatusFailure, Kind: downloader.KindTimeout, Err: errors.New("slow")},
			{RecordID: "3", Status: downloader.StatusFailure, Kind: downloader.KindBadStatus},
			{RecordID: "4", Status: downloader.StatusFailure, Kind: downloader.KindBadStatus},
		},
	}

	msg := BatchMessage(report)
	assert.Contains(t, msg, "batch b1 finished: 1 saved (2.0 kB), 3 failed in 3s")
	assert.Contains(t, msg, "\n- bad_status: 2\n- timeout: 1")

	clean := BatchMessage(&downloader.Report{BatchID: "b2", StartedAt: start, FinishedAt: start})
	assert.Contains(t, clean, "✅")
}
