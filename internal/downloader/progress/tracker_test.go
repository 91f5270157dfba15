package progress

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_ConcurrentAdds(t *testing.T) {
	tr := New(20)
	tr.Start(100)

	var wg sync.WaitGroup

	for i := range 100 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			tr.Add(i%4 != 0, 10)
		}()
	}

	wg.Wait()

	s := tr.Snapshot()
	require.Equal(t, 100, s.Total)
	require.Equal(t, 100, s.Completed)
	require.Equal(t, 75, s.Succeeded)
	require.Equal(t, 25, s.Failed)
	require.EqualValues(t, 750, s.Bytes)
	require.InDelta(t, 1.0, s.Percent(), 0.0001)
}

func TestTracker_StartResets(t *testing.T) {
	tr := New(0)
	tr.Start(2)
	tr.Add(true, 5)
	tr.Start(3)

	s := tr.Snapshot()
	require.Equal(t, 3, s.Total)
	require.Zero(t, s.Completed)
	require.Zero(t, s.Bytes)
}

func TestTracker_NilIsNoop(t *testing.T) {
	var tr *Tracker

	tr.Start(3)
	tr.Add(true, 1)

	require.Equal(t, Snapshot{}, tr.Snapshot())
	require.Empty(t, tr.View())
	require.Zero(t, Snapshot{}.Percent())
}

func TestTracker_View(t *testing.T) {
	tr := New(10)
	tr.Start(4)
	tr.Add(true, 2048)
	tr.Add(false, 0)

	view := tr.View()
	assert.Contains(t, view, "2/4 posters")
	assert.Contains(t, view, "1 failed")
	assert.Contains(t, view, "2.0 kB")
}

func TestTracker_RunEndsLineOnCancel(t *testing.T) {
	tr := New(10)
	tr.Start(1)
	tr.Add(true, 1)

	ctx, cancel := context.WithCancel(context.Background())

	var out bytes.Buffer

	done := make(chan struct{})

	go func() {
		defer close(done)

		tr.Run(ctx, &out, time.Millisecond)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	<-done

	require.True(t, strings.HasSuffix(out.String(), "\n"))
	require.Contains(t, out.String(), "1/1 posters")
}

func TestSummary(t *testing.T) {
	out := Summary("batch-1", Snapshot{Total: 3, Completed: 3, Succeeded: 1, Failed: 2, Bytes: 1000},
		map[string]int{"timeout": 1, "bad_status": 1})

	assert.Contains(t, out, "batch-1")
	assert.Contains(t, out, "saved   1")
	assert.Contains(t, out, "failed  2")
	assert.Less(t, strings.Index(out, "bad_status"), strings.Index(out, "timeout"))
}
