package fetcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessages(t *testing.T) {
	cause := errors.New("connection reset")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "bad status",
			err:  &BadStatusError{URL: "http://x/1.jpg", StatusCode: 404},
			want: "unexpected status for http://x/1.jpg: 404 Not Found",
		},
		{
			name: "network",
			err:  &NetworkError{URL: "http://x/1.jpg", Err: cause},
			want: "network error fetching http://x/1.jpg: connection reset",
		},
		{
			name: "timeout",
			err:  &TimeoutError{URL: "http://x/1.jpg", Timeout: "30s", Err: context.DeadlineExceeded},
			want: "fetching http://x/1.jpg timed out after 30s",
		},
		{
			name: "invalid url",
			err:  &InvalidURLError{URL: "nope", Err: cause},
			want: `invalid url "nope": connection reset`,
		},
		{
			name: "exhausted",
			err:  &ExhaustedError{URL: "http://x/1.jpg", Attempts: 3, Last: cause},
			want: "giving up on http://x/1.jpg after 3 attempts: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExhaustedError_UnwrapChain(t *testing.T) {
	timeout := &TimeoutError{URL: "http://x", Timeout: "1s", Err: context.DeadlineExceeded}
	err := fmt.Errorf("task 1: %w", &ExhaustedError{URL: "http://x", Attempts: 2, Last: timeout})

	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatal("errors.As should find the last cause through the chain")
	}

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("errors.Is should reach context.DeadlineExceeded")
	}
}
