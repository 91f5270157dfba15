package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/poster_downloader/internal/config"
	"github.com/italolelis/poster_downloader/internal/dataset"
	"github.com/italolelis/poster_downloader/internal/logctx"
	"github.com/italolelis/poster_downloader/internal/records"
	"golang.org/x/sync/errgroup"
)

const (
	defaultCSVFile = "anime.csv"
	genreSeparator = ","
)

func main() {
	var (
		encodedOut  = flag.String("encoded-out", "", "write the one-hot encoded records to this file")
		checkImages = flag.Bool("check-images", false, "decode every image and report the ones that fail")
		width       = flag.Int("width", 0, "resize width used when checking images")
		height      = flag.Int("height", 0, "resize height used when checking images")
	)

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: poster_dataset [flags] [csv-file]\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	csvFile := defaultCSVFile
	if flag.NArg() > 0 {
		csvFile = flag.Arg(0)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := logctx.NewLogger(os.Stderr, cfg.SlogLevel(), nil)
	slog.SetDefault(logger)

	ctx := logctx.WithLogger(context.Background(), logger)

	opts := runOptions{
		csvFile:     csvFile,
		encodedOut:  *encodedOut,
		checkImages: *checkImages,
		width:       *width,
		height:      *height,
	}

	if err := run(ctx, os.Stdout, cfg, opts); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

type runOptions struct {
	csvFile     string
	encodedOut  string
	checkImages bool
	width       int
	height      int
}

func run(ctx context.Context, out io.Writer, cfg *config.Config, opts runOptions) error {
	paths, err := config.LoadPaths(cfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	paths.Display(out)
	fmt.Fprintln(out)

	table, err := records.ReadCSV(filepath.Join(paths.DataPath, opts.csvFile))
	if err != nil {
		return err
	}

	encoded, genres, err := records.OneHotEncode(table, cfg.GenresColumn, genreSeparator)
	if err != nil {
		return fmt.Errorf("failed to encode genres: %w", err)
	}

	if opts.encodedOut != "" {
		if err := writeTable(opts.encodedOut, encoded); err != nil {
			return err
		}
	}

	ds, err := dataset.New(ctx, paths.ImagesPath, encoded, dataset.Options{
		IDColumn:     cfg.IDColumn,
		LabelColumn:  cfg.LabelColumn,
		LabelColumns: genres,
		Width:        opts.width,
		Height:       opts.height,
	})
	if err != nil {
		return fmt.Errorf("failed to build dataset: %w", err)
	}

	printSummary(out, ds, cfg.LabelColumn, table.Len(), genres)

	if opts.checkImages {
		failed := checkImages(ctx, ds)
		fmt.Fprintf(out, "\nImages failing to decode: %s of %s\n", humanize.Comma(int64(failed)), humanize.Comma(int64(ds.Len())))
	}

	return nil
}

func writeTable(path string, t *records.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := t.Write(f); err != nil {
		f.Close()

		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return f.Close()
}

func printSummary(out io.Writer, ds *dataset.Dataset, labelColumn string, recordCount int, genres []string) {
	fmt.Fprintln(out, "Dataset:")
	fmt.Fprintf(out, "RECORDS:\t %s\n", humanize.Comma(int64(recordCount)))
	fmt.Fprintf(out, "SAMPLES:\t %s\n", humanize.Comma(int64(ds.Len())))
	fmt.Fprintf(out, "UNMATCHED:\t %s\n", humanize.Comma(int64(len(ds.Skipped()))))
	fmt.Fprintf(out, "GENRES:\t\t %d\n", len(genres))

	dist := ds.LabelDistribution()

	labels := make([]int, 0, len(dist))
	for label := range dist {
		labels = append(labels, label)
	}

	sort.Ints(labels)

	fmt.Fprintf(out, "\nLabel %q:\n", labelColumn)

	for _, label := range labels {
		fmt.Fprintf(out, "  %d\t %s\n", label, humanize.Comma(int64(dist[label])))
	}

	counts := ds.LabelCounts()

	byCount := slices.Clone(genres)
	sort.SliceStable(byCount, func(i, j int) bool {
		return counts[byCount[i]] > counts[byCount[j]]
	})

	fmt.Fprintln(out, "\nGenres:")

	for _, genre := range byCount {
		fmt.Fprintf(out, "  %-20s %s\n", genre, humanize.Comma(int64(counts[genre])))
	}
}

// checkImages decodes every sample on all CPUs and returns how many failed.
func checkImages(ctx context.Context, ds *dataset.Dataset) int {
	logger := logctx.LoggerFromContext(ctx)

	var failed atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for i := range ds.Len() {
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if _, err := ds.Image(i); err != nil {
				failed.Add(1)
				logger.WarnContext(ctx, "failed to decode image", "index", i, "err", err)
			}

			return nil
		})
	}

	_ = g.Wait()

	return int(failed.Load())
}
