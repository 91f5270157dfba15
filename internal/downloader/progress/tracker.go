package progress

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	bar "github.com/charmbracelet/bubbles/progress"
	"github.com/dustin/go-humanize"
)

const defaultWidth = 40

// Snapshot is a point-in-time view of a batch's progress.
type Snapshot struct {
	Total     int           `json:"total"`
	Completed int           `json:"completed"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Bytes     int64         `json:"bytes"`
	Elapsed   time.Duration `json:"elapsed_ns"`
}

// Percent returns the completed fraction in [0, 1].
func (s Snapshot) Percent() float64 {
	if s.Total <= 0 {
		return 0
	}

	return float64(s.Completed) / float64(s.Total)
}

// Tracker counts finished tasks of a batch. It is safe for concurrent use and
// a nil *Tracker ignores every call.
type Tracker struct {
	total     atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	bytes     atomic.Int64
	startedAt atomic.Int64

	bar bar.Model
}

// New creates a Tracker whose bar is width cells wide.
func New(width int) *Tracker {
	if width <= 0 {
		width = defaultWidth
	}

	return &Tracker{
		bar: bar.New(bar.WithDefaultGradient(), bar.WithWidth(width)),
	}
}

// Start resets the counters for a batch of total tasks.
func (t *Tracker) Start(total int) {
	if t == nil {
		return
	}

	t.total.Store(int64(total))
	t.succeeded.Store(0)
	t.failed.Store(0)
	t.bytes.Store(0)
	t.startedAt.Store(time.Now().UnixNano())
}

// Add records one finished task.
func (t *Tracker) Add(ok bool, bytes int) {
	if t == nil {
		return
	}

	if ok {
		t.succeeded.Add(1)
		t.bytes.Add(int64(bytes))

		return
	}

	t.failed.Add(1)
}

func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{}
	}

	s := Snapshot{
		Total:     int(t.total.Load()),
		Succeeded: int(t.succeeded.Load()),
		Failed:    int(t.failed.Load()),
		Bytes:     t.bytes.Load(),
	}
	s.Completed = s.Succeeded + s.Failed

	if started := t.startedAt.Load(); started > 0 {
		s.Elapsed = time.Since(time.Unix(0, started))
	}

	return s
}

// View renders the bar followed by the counters on one line.
func (t *Tracker) View() string {
	if t == nil {
		return ""
	}

	s := t.Snapshot()

	return fmt.Sprintf("%s %d/%d posters, %d failed, %s, %s",
		t.bar.ViewAs(s.Percent()),
		s.Completed, s.Total, s.Failed,
		humanize.Bytes(uint64(s.Bytes)),
		s.Elapsed.Round(time.Second),
	)
}

// Run redraws the progress line on w every interval until ctx is done, then
// draws it a last time and ends the line.
func (t *Tracker) Run(ctx context.Context, w io.Writer, interval time.Duration) {
	if t == nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(w, "\r%s\n", t.View())

			return
		case <-ticker.C:
			fmt.Fprintf(w, "\r%s", t.View())
		}
	}
}
