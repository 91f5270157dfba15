package dataset

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // JPEG decoder registration
	_ "image/png"  // PNG decoder registration, some posters are PNGs named .jpg
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/italolelis/poster_downloader/internal/logctx"
	"github.com/italolelis/poster_downloader/internal/records"
	"golang.org/x/image/draw"
)

const imageExt = ".jpg"

// Options configures how images are joined to the metadata table.
type Options struct {
	// IDColumn holds the identifier matching the image file names.
	// Default: malID
	IDColumn string

	// LabelColumn holds the 0/1 target of a sample.
	// Default: comedy
	LabelColumn string

	// LabelColumns are exposed on every sample as a multi-hot vector, usually
	// the columns added by records.OneHotEncode.
	LabelColumns []string

	// Width and Height resize decoded images when both are positive.
	Width  int
	Height int
}

// Sample is one (image, label) pair.
type Sample struct {
	ID        string
	ImagePath string
	Label     int
	Labels    []int
}

// Dataset indexes the posters of an images directory against a metadata
// table. It is read-only after New and safe for concurrent use.
type Dataset struct {
	imageDir string
	opts     Options
	samples  []Sample
	skipped  []string
}

// New lists the images of imageDir and joins them to the rows of table.
// Images without a matching row are skipped and logged.
func New(ctx context.Context, imageDir string, table *records.Table, opts Options) (*Dataset, error) {
	if opts.IDColumn == "" {
		opts.IDColumn = "malID"
	}

	if opts.LabelColumn == "" {
		opts.LabelColumn = "comedy"
	}

	opts.LabelColumns = slices.Clone(opts.LabelColumns)

	logger := logctx.LoggerFromContext(ctx)

	byID, err := table.Index(opts.IDColumn)
	if err != nil {
		return nil, fmt.Errorf("failed to index records: %w", err)
	}

	byNumber := numericIndex(byID)

	labelIdx, err := table.ColumnIndex(opts.LabelColumn)
	if err != nil {
		return nil, fmt.Errorf("failed to find label column: %w", err)
	}

	multiIdx := make([]int, len(opts.LabelColumns))
	for i, column := range opts.LabelColumns {
		if multiIdx[i], err = table.ColumnIndex(column); err != nil {
			return nil, fmt.Errorf("failed to find label column: %w", err)
		}
	}

	entries, err := os.ReadDir(imageDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}

	d := &Dataset{imageDir: imageDir, opts: opts}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), imageExt) {
			continue
		}

		id := strings.TrimSuffix(entry.Name(), imageExt)

		row, ok := byID[id]
		if !ok {
			row, ok = byNumber[canonicalID(id)]
		}

		if !ok {
			logger.WarnContext(ctx, "skipping image without record", "image", entry.Name())
			d.skipped = append(d.skipped, id)

			continue
		}

		label, err := parseLabel(table.Rows[row][labelIdx])
		if err != nil {
			return nil, fmt.Errorf("record %s: %s: %w", id, opts.LabelColumn, err)
		}

		labels := make([]int, len(multiIdx))
		for i, idx := range multiIdx {
			if labels[i], err = parseLabel(table.Rows[row][idx]); err != nil {
				return nil, fmt.Errorf("record %s: %s: %w", id, opts.LabelColumns[i], err)
			}
		}

		d.samples = append(d.samples, Sample{
			ID:        id,
			ImagePath: filepath.Join(imageDir, entry.Name()),
			Label:     label,
			Labels:    labels,
		})
	}

	logger.DebugContext(ctx, "dataset indexed", "image_dir", imageDir, "samples", len(d.samples), "skipped", len(d.skipped))

	return d, nil
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.samples)
}

// Item returns the sample at i.
func (d *Dataset) Item(i int) (Sample, error) {
	if i < 0 || i >= len(d.samples) {
		return Sample{}, fmt.Errorf("index %d out of range [0, %d)", i, len(d.samples))
	}

	return d.samples[i], nil
}

// Image decodes the poster of sample i as RGBA, resized when the options ask
// for it.
func (d *Dataset) Image(i int) (*image.RGBA, error) {
	s, err := d.Item(i)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(s.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.ImagePath, err)
	}

	bounds := img.Bounds()

	if d.opts.Width > 0 && d.opts.Height > 0 {
		dst := image.NewRGBA(image.Rect(0, 0, d.opts.Width, d.opts.Height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)

		return dst, nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)

	return dst, nil
}

// Skipped returns the ids of the images that had no matching record.
func (d *Dataset) Skipped() []string {
	return d.skipped
}

// LabelDistribution counts the samples per label value.
func (d *Dataset) LabelDistribution() map[int]int {
	dist := make(map[int]int)
	for _, s := range d.samples {
		dist[s.Label]++
	}

	return dist
}

// LabelCounts counts the positive samples of every multi-hot column.
func (d *Dataset) LabelCounts() map[string]int {
	counts := make(map[string]int, len(d.opts.LabelColumns))

	for _, s := range d.samples {
		for i, v := range s.Labels {
			if v != 0 {
				counts[d.opts.LabelColumns[i]]++
			}
		}
	}

	return counts
}

// numericIndex re-keys the numeric ids of byID by their canonical form so
// that 007.jpg joins record 7. On collisions the first row wins.
func numericIndex(byID map[string]int) map[string]int {
	m := make(map[string]int, len(byID))

	for id, row := range byID {
		if !isNumber(id) {
			continue
		}

		key := canonicalID(id)
		if prev, ok := m[key]; !ok || row < prev {
			m[key] = row
		}
	}

	return m
}

// canonicalID strips leading zeros from integer ids and keeps the rest as is.
func canonicalID(id string) string {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return id
	}

	return strconv.FormatInt(n, 10)
}

func isNumber(id string) bool {
	_, err := strconv.ParseInt(id, 10, 64)

	return err == nil
}

// parseLabel reads integer labels, tolerating float renderings such as "1.0".
func parseLabel(value string) (int, error) {
	value = strings.TrimSpace(value)

	if n, err := strconv.Atoi(value); err == nil {
		return n, nil
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid label %q", value)
	}

	return int(f), nil
}
