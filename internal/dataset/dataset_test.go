package dataset

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/italolelis/poster_downloader/internal/records"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const metadata = "malID,title,genres\n" +
	"1,Cowboy Bebop,\"Action,Sci-Fi\"\n" +
	"5,Trigun,\"comedy,Action\"\n" +
	"8,Nichijou,comedy\n"

func writeJPEG(t *testing.T, path string, w, h int) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, color.RGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}

	f, err := os.Create(path)
	require.NoError(t, err)

	defer f.Close()

	require.NoError(t, jpeg.Encode(f, img, nil))
}

func newFixture(t *testing.T) (string, *records.Table, []string) {
	t.Helper()

	dir := t.TempDir()

	writeJPEG(t, filepath.Join(dir, "1.jpg"), 16, 24)
	writeJPEG(t, filepath.Join(dir, "5.jpg"), 10, 10)
	writeJPEG(t, filepath.Join(dir, "8.jpg"), 12, 8)
	writeJPEG(t, filepath.Join(dir, "999.jpg"), 4, 4)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.jpg"), 0o755))

	table, err := records.Read(strings.NewReader(metadata))
	require.NoError(t, err)

	encoded, genres, err := records.OneHotEncode(table, "genres", ",")
	require.NoError(t, err)

	return dir, encoded, genres
}

func TestNew_JoinsImagesToRecords(t *testing.T) {
	dir, table, genres := newFixture(t)

	ds, err := New(context.Background(), dir, table, Options{LabelColumns: genres})
	require.NoError(t, err)

	require.Equal(t, 3, ds.Len())
	assert.Equal(t, []string{"999"}, ds.Skipped())

	first, err := ds.Item(0)
	require.NoError(t, err)
	assert.Equal(t, "1", first.ID)
	assert.Equal(t, filepath.Join(dir, "1.jpg"), first.ImagePath)
	assert.Equal(t, 0, first.Label)
	assert.Equal(t, []int{1, 1, 0}, first.Labels, "Action, Sci-Fi, comedy")

	second, err := ds.Item(1)
	require.NoError(t, err)
	assert.Equal(t, "5", second.ID)
	assert.Equal(t, 1, second.Label)

	assert.Equal(t, map[int]int{0: 1, 1: 2}, ds.LabelDistribution())
	assert.Equal(t, map[string]int{"Action": 2, "Sci-Fi": 1, "comedy": 2}, ds.LabelCounts())

	_, err = ds.Item(3)
	require.Error(t, err)
	_, err = ds.Item(-1)
	require.Error(t, err)
}

func TestNew_MissingColumns(t *testing.T) {
	dir, table, _ := newFixture(t)

	_, err := New(context.Background(), dir, table, Options{LabelColumn: "drama"})
	require.Error(t, err)

	_, err = New(context.Background(), dir, table, Options{IDColumn: "id"})
	require.Error(t, err)

	_, err = New(context.Background(), filepath.Join(dir, "missing"), table, Options{})
	require.Error(t, err)
}

func TestImage(t *testing.T) {
	dir, table, _ := newFixture(t)

	ds, err := New(context.Background(), dir, table, Options{})
	require.NoError(t, err)

	img, err := ds.Image(0)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 24), img.Bounds())

	r, _, _, a := img.At(8, 12).RGBA()
	assert.Greater(t, r>>8, uint32(150))
	assert.Equal(t, uint32(0xffff), a)

	resized, err := New(context.Background(), dir, table, Options{Width: 8, Height: 8})
	require.NoError(t, err)

	img, err = resized.Image(0)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 8), img.Bounds())
}

func TestImage_DecodeError(t *testing.T) {
	dir, table, _ := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1.jpg"), []byte("not an image"), 0o644))

	ds, err := New(context.Background(), dir, table, Options{})
	require.NoError(t, err)

	_, err = ds.Image(0)
	require.Error(t, err)
}

func TestParseLabel(t *testing.T) {
	n, err := parseLabel(" 1 ")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = parseLabel("0.0")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = parseLabel("yes")
	require.Error(t, err)
}

func TestNew_JoinsZeroPaddedIDs(t *testing.T) {
	dir := t.TempDir()

	writeJPEG(t, filepath.Join(dir, "005.jpg"), 4, 4)
	writeJPEG(t, filepath.Join(dir, "0x8.jpg"), 4, 4)

	table, err := records.Read(strings.NewReader(metadata))
	require.NoError(t, err)

	encoded, _, err := records.OneHotEncode(table, "genres", ",")
	require.NoError(t, err)

	ds, err := New(context.Background(), dir, encoded, Options{})
	require.NoError(t, err)

	require.Equal(t, 1, ds.Len())

	sample, err := ds.Item(0)
	require.NoError(t, err)
	assert.Equal(t, "005", sample.ID)
	assert.Equal(t, 1, sample.Label, "005.jpg joins record 5")
	assert.Equal(t, []string{"0x8"}, ds.Skipped())
}

func TestNew_KeepsOwnLabelColumns(t *testing.T) {
	dir, table, genres := newFixture(t)

	ds, err := New(context.Background(), dir, table, Options{LabelColumns: genres})
	require.NoError(t, err)

	genres[0], genres[1] = genres[1], genres[0]

	assert.Equal(t, map[string]int{"Action": 2, "Sci-Fi": 1, "comedy": 2}, ds.LabelCounts())
}
