package fetcher

import (
	"context"

	"github.com/italolelis/poster_downloader/internal/telemetry"
)

// InstrumentedClient wraps Client with a span per fetch and an attempts
// histogram.
type InstrumentedClient struct {
	client    *Client
	telemetry *telemetry.Telemetry
}

// NewInstrumentedClient creates a new instrumented client.
func NewInstrumentedClient(client *Client, tel *telemetry.Telemetry) *InstrumentedClient {
	return &InstrumentedClient{
		client:    client,
		telemetry: tel,
	}
}

// Do fetches url with telemetry.
func (c *InstrumentedClient) Do(ctx context.Context, url string) (Result, error) {
	var result Result

	err := c.telemetry.InstrumentOperation(ctx, "fetch", "fetcher", func(ctx context.Context) error {
		var err error
		result, err = c.client.Do(ctx, url)

		return err
	})

	status := "success"
	if err != nil {
		status = "error"
	}

	c.telemetry.RecordFetchAttempts(ctx, result.Attempts, status)

	return result, err
}
