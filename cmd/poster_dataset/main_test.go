package main

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/italolelis/poster_downloader/internal/config"
	"github.com/italolelis/poster_downloader/internal/dataset"
	"github.com/italolelis/poster_downloader/internal/records"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T) (*config.Config, string) {
	t.Helper()

	base := t.TempDir()
	images := filepath.Join(base, "data", "images")
	require.NoError(t, os.MkdirAll(images, 0o755))

	settings := "base_dir: " + base + "\ndata_dir: data\noutput_dir: output\nlog_dir: logs\nmodel_dir: models\nimages_dir: images\n"
	settingsPath := filepath.Join(base, "config.yaml")
	require.NoError(t, os.WriteFile(settingsPath, []byte(settings), 0o644))

	csv := "malID,genres,poster_url\n1,\"Comedy,Action\",http://x/1.jpg\n2,Drama,http://x/2.jpg\n3,comedy,\n"
	require.NoError(t, os.WriteFile(filepath.Join(base, "data", "anime.csv"), []byte(csv), 0o644))

	for _, id := range []string{"1", "2", "42"} {
		f, err := os.Create(filepath.Join(images, id+".jpg"))
		require.NoError(t, err)
		require.NoError(t, jpeg.Encode(f, image.NewRGBA(image.Rect(0, 0, 4, 4)), nil))
		require.NoError(t, f.Close())
	}

	return &config.Config{
		ConfigPath:   settingsPath,
		IDColumn:     "malID",
		GenresColumn: "genres",
		LabelColumn:  "Comedy",
	}, base
}

func TestRun(t *testing.T) {
	cfg, base := writeFixture(t)
	encodedOut := filepath.Join(base, "encoded.csv")

	var out bytes.Buffer

	err := run(context.Background(), &out, cfg, runOptions{
		csvFile:     "anime.csv",
		encodedOut:  encodedOut,
		checkImages: true,
		width:       2,
		height:      2,
	})
	require.NoError(t, err)

	output := out.String()
	assert.Contains(t, output, "IMAGES_PATH:\t "+filepath.Join(base, "data", "images"))
	assert.Contains(t, output, "SAMPLES:\t 2")
	assert.Contains(t, output, "UNMATCHED:\t 1")
	assert.Contains(t, output, "GENRES:\t\t 4")
	assert.Contains(t, output, "Images failing to decode: 0 of 2")

	encoded, err := records.ReadCSV(encodedOut)
	require.NoError(t, err)
	assert.Equal(t, []string{"malID", "poster_url", "Action", "Comedy", "Drama", "comedy"}, encoded.Header)
}

func TestRun_MissingCSV(t *testing.T) {
	cfg, _ := writeFixture(t)

	err := run(context.Background(), &bytes.Buffer{}, cfg, runOptions{csvFile: "missing.csv"})
	require.Error(t, err)
}

func TestPrintSummary_LeavesGenreOrder(t *testing.T) {
	dir := t.TempDir()

	for _, id := range []string{"1", "2"} {
		f, err := os.Create(filepath.Join(dir, id+".jpg"))
		require.NoError(t, err)
		require.NoError(t, jpeg.Encode(f, image.NewRGBA(image.Rect(0, 0, 2, 2)), nil))
		require.NoError(t, f.Close())
	}

	table, err := records.Read(strings.NewReader("malID,genres\n1,Drama\n2,\"Drama,Action\"\n"))
	require.NoError(t, err)

	encoded, genres, err := records.OneHotEncode(table, "genres", ",")
	require.NoError(t, err)
	require.Equal(t, []string{"Action", "Drama"}, genres)

	ds, err := dataset.New(context.Background(), dir, encoded, dataset.Options{LabelColumn: "Drama", LabelColumns: genres})
	require.NoError(t, err)

	var out bytes.Buffer
	printSummary(&out, ds, "Drama", 2, genres)

	assert.Equal(t, []string{"Action", "Drama"}, genres)
	assert.Equal(t, map[string]int{"Action": 1, "Drama": 2}, ds.LabelCounts())

	output := out.String()
	assert.Less(t, strings.Index(output, "  Drama"), strings.Index(output, "  Action"), "genres are listed by count")
}
