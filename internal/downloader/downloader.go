package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/italolelis/poster_downloader/internal/downloader/progress"
	"github.com/italolelis/poster_downloader/internal/fetcher"
	"github.com/italolelis/poster_downloader/internal/logctx"
	"github.com/italolelis/poster_downloader/internal/storage"
	"github.com/italolelis/poster_downloader/internal/telemetry"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	dirPerm  = 0755
	filePerm = 0644

	posterExt = ".jpg"
)

// Fetcher retrieves the payload behind a URL.
type Fetcher interface {
	Do(ctx context.Context, url string) (fetcher.Result, error)
}

type Downloader struct {
	outputDir   string
	maxParallel int
	fetcher     Fetcher

	store     storage.OutcomeWriteRepository
	telemetry *telemetry.Telemetry
	progress  *progress.Tracker
}

type Option func(*Downloader)

// WithStore saves every outcome to store.
func WithStore(store storage.OutcomeWriteRepository) Option {
	return func(d *Downloader) {
		d.store = store
	}
}

func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(d *Downloader) {
		d.telemetry = tel
	}
}

// WithProgress reports every finished task to tracker.
func WithProgress(tracker *progress.Tracker) Option {
	return func(d *Downloader) {
		d.progress = tracker
	}
}

// NewDownloader creates a Downloader writing to outputDir with at most
// maxParallel tasks in flight.
func NewDownloader(outputDir string, maxParallel int, f Fetcher, opts ...Option) *Downloader {
	if maxParallel <= 0 {
		maxParallel = 1
	}

	d := &Downloader{
		outputDir:   outputDir,
		maxParallel: maxParallel,
		fetcher:     f,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// DownloadBatch downloads every task and returns one outcome per task. The
// batch id is taken from ctx when set with logctx.WithBatchID, otherwise a
// new one is generated.
//
// Individual failures never abort the batch and are never returned as an
// error; the only error is failing to create the output directory. When ctx
// is cancelled the tasks that have not started yet are reported as canceled
// and the batch waits for the in-flight ones before returning.
func (d *Downloader) DownloadBatch(ctx context.Context, tasks []Task) (*Report, error) {
	batchID := logctx.BatchIDFromContext(ctx)
	if batchID == "" {
		batchID = uuid.NewString()
	}

	report := &Report{
		BatchID:   batchID,
		StartedAt: time.Now(),
	}

	if len(tasks) == 0 {
		report.FinishedAt = report.StartedAt

		return report, nil
	}

	if err := os.MkdirAll(d.outputDir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	ctx = logctx.WithBatchID(ctx, batchID)
	logger := logctx.LoggerFromContext(ctx)

	logger.InfoContext(ctx, "starting batch", "tasks", len(tasks), "max_parallel", d.maxParallel, "output_dir", d.outputDir)

	d.progress.Start(len(tasks))

	outcomes := make([]Outcome, len(tasks))
	sem := semaphore.NewWeighted(int64(d.maxParallel))

	// A plain group: one failed task must not cancel its siblings.
	var wg errgroup.Group

	for i, task := range tasks {
		if err := sem.Acquire(ctx, 1); err != nil {
			outcomes[i] = failure(task, KindCanceled, fmt.Errorf("task not started: %w", err), 0)
			d.finish(ctx, batchID, outcomes[i])

			continue
		}

		wg.Go(func() error {
			defer sem.Release(1)

			outcomes[i] = d.process(ctx, task)
			d.finish(ctx, batchID, outcomes[i])

			return nil
		})
	}

	_ = wg.Wait()

	report.Outcomes = outcomes
	report.FinishedAt = time.Now()

	d.telemetry.RecordBatch(ctx, len(tasks), report.Failed(), report.Duration())

	logger.InfoContext(ctx, "batch finished",
		"tasks", len(tasks),
		"succeeded", report.Succeeded(),
		"failed", report.Failed(),
		"bytes", humanize.Bytes(uint64(report.Bytes())),
		"duration", report.Duration().String(),
	)

	return report, nil
}

// process runs one task while it holds a concurrency slot. A panic outside
// run, in the instrumentation, keeps an outcome run already produced.
func (d *Downloader) process(ctx context.Context, task Task) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			if outcome.Status == "" {
				outcome = failure(task, KindUnexpected, &PanicError{RecordID: task.RecordID, Value: r}, 0)

				return
			}

			logctx.LoggerFromContext(ctx).ErrorContext(ctx, "panic after task finished", "record_id", task.RecordID, "panic", fmt.Sprint(r))
		}
	}()

	d.telemetry.InstrumentDownload(ctx, func(ctx context.Context) telemetry.DownloadResult {
		outcome = d.run(ctx, task)

		return telemetry.DownloadResult{
			Status: string(outcome.Status),
			Kind:   string(outcome.Kind),
			Bytes:  outcome.Bytes,
		}
	})

	return outcome
}

func (d *Downloader) run(ctx context.Context, task Task) (outcome Outcome) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			outcome = failure(task, KindUnexpected, &PanicError{RecordID: task.RecordID, Value: r}, outcome.Attempts)
		}

		outcome.Duration = time.Since(start)
	}()

	if err := ctx.Err(); err != nil {
		return failure(task, KindCanceled, fmt.Errorf("task not started: %w", err), 0)
	}

	targetPath, err := d.targetPath(task.RecordID)
	if err != nil {
		return failure(task, KindWriteError, err, 0)
	}

	res, err := d.fetcher.Do(ctx, task.SourceURL)
	if err != nil {
		return failure(task, Classify(err), err, res.Attempts)
	}

	// Keeps the attempt count if writing panics.
	outcome.Attempts = res.Attempts

	if err := writeFile(d.outputDir, targetPath, res.Body); err != nil {
		return failure(task, KindWriteError, err, res.Attempts)
	}

	return Outcome{
		RecordID:  task.RecordID,
		SourceURL: task.SourceURL,
		Status:    StatusSuccess,
		Path:      targetPath,
		Attempts:  res.Attempts,
		Bytes:     len(res.Body),
	}
}

// finish reports a terminal outcome to the log, the store and the progress
// tracker.
func (d *Downloader) finish(ctx context.Context, batchID string, o Outcome) {
	logger := logctx.LoggerFromContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "panic while reporting outcome", "record_id", o.RecordID, "panic", fmt.Sprint(r))
		}
	}()

	if o.Succeeded() {
		logger.DebugContext(ctx, "poster saved", "record_id", o.RecordID, "path", o.Path, "size", humanize.Bytes(uint64(o.Bytes)), "attempts", o.Attempts)
	} else {
		logger.ErrorContext(ctx, "failed to download poster",
			"record_id", o.RecordID,
			"source_url", o.SourceURL,
			"kind", string(o.Kind),
			"attempts", o.Attempts,
			"err", o.Err,
		)
	}

	if d.store != nil {
		if err := d.save(ctx, batchID, o); err != nil {
			logger.WarnContext(ctx, "failed to save outcome", "record_id", o.RecordID, "err", err)
		}
	}

	d.progress.Add(o.Succeeded(), o.Bytes)
}

// save stores o, turning a panicking store into an error.
func (d *Downloader) save(ctx context.Context, batchID string, o Outcome) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{RecordID: o.RecordID, Value: r}
		}
	}()

	// The outcome is final even when the batch was cancelled.
	return d.store.SaveOutcome(context.WithoutCancel(ctx), toRecord(batchID, o))
}

func (d *Downloader) targetPath(recordID string) (string, error) {
	if recordID == "" || recordID == "." || recordID == ".." || strings.ContainsAny(recordID, `/\`) {
		return "", &WriteError{Path: recordID + posterExt, Err: errInvalidRecordID}
	}

	return filepath.Join(d.outputDir, recordID+posterExt), nil
}

// writeFile replaces targetPath atomically so readers never see a partial poster.
func writeFile(dir, targetPath string, body []byte) error {
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(targetPath)+"-*.tmp")
	if err != nil {
		return &WriteError{Path: targetPath, Err: err}
	}

	tmpPath := tmp.Name()

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return &WriteError{Path: targetPath, Err: err}
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)

		return &WriteError{Path: targetPath, Err: err}
	}

	if err := os.Chmod(tmpPath, filePerm); err != nil {
		os.Remove(tmpPath)

		return &WriteError{Path: targetPath, Err: err}
	}

	if err := os.Rename(tmpPath, targetPath); err != nil {
		os.Remove(tmpPath)

		return &WriteError{Path: targetPath, Err: err}
	}

	return nil
}

func failure(task Task, kind FailureKind, err error, attempts int) Outcome {
	return Outcome{
		RecordID:  task.RecordID,
		SourceURL: task.SourceURL,
		Status:    StatusFailure,
		Kind:      kind,
		Err:       err,
		Attempts:  attempts,
	}
}

func toRecord(batchID string, o Outcome) storage.OutcomeRecord {
	rec := storage.OutcomeRecord{
		BatchID:   batchID,
		RecordID:  o.RecordID,
		SourceURL: o.SourceURL,
		Status:    string(o.Status),
		Kind:      string(o.Kind),
		Path:      o.Path,
		Attempts:  o.Attempts,
		Bytes:     o.Bytes,
	}

	if o.Err != nil {
		rec.Detail = o.Err.Error()
	}

	return rec
}
