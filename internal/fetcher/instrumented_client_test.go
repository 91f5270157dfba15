package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/italolelis/poster_downloader/internal/telemetry"
	"github.com/stretchr/testify/require"
)

func TestInstrumentedClient_Do(t *testing.T) {
	ctx := context.Background()

	tel, err := telemetry.New(ctx, telemetry.Config{Enabled: true, ServiceName: "fetcher_test"})
	require.NoError(t, err)

	defer tel.Shutdown(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.jpg" {
			w.WriteHeader(http.StatusNotFound)

			return
		}

		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewInstrumentedClient(NewClient(testOptions()), tel)

	res, err := client.Do(ctx, server.URL+"/1.jpg")
	require.NoError(t, err)
	require.Equal(t, "ok", string(res.Body))
	require.Equal(t, 1, res.Attempts)

	res, err = client.Do(ctx, server.URL+"/missing.jpg")

	var statusErr *BadStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, 1, res.Attempts)

	metrics := httptest.NewServer(tel.Handler())
	defer metrics.Close()

	resp, err := http.Get(metrics.URL)
	require.NoError(t, err)

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "fetch_attempts")
}

func TestInstrumentedClient_NilTelemetry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	res, err := NewInstrumentedClient(NewClient(testOptions()), nil).Do(context.Background(), server.URL)
	require.NoError(t, err)
	require.Equal(t, "ok", string(res.Body))
}
