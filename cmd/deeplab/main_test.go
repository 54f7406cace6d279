package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sugarme/deeplab/deeplab"
)

func TestReadSamples(t *testing.T) {
	dir := t.TempDir()
	csv := filepath.Join(dir, "val.csv")
	content := "image,label\nimg/a.png,ann/a.png\n/abs/b.png,ann/b.png\n"
	require.NoError(t, os.WriteFile(csv, []byte(content), 0o644))

	samples, err := readSamples(csv)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, filepath.Join(dir, "img/a.png"), samples[0].image)
	assert.Equal(t, filepath.Join(dir, "ann/a.png"), samples[0].label)
	assert.Equal(t, "/abs/b.png", samples[1].image)
}

func TestReadSamplesMissingColumns(t *testing.T) {
	csv := filepath.Join(t.TempDir(), "val.csv")
	require.NoError(t, os.WriteFile(csv, []byte("file,mask\na.png,b.png\n"), 0o644))

	_, err := readSamples(csv)
	assert.Error(t, err)

	_, err = readSamples(filepath.Join(t.TempDir(), "none.csv"))
	assert.Error(t, err)
}

func TestClassSummary(t *testing.T) {
	cfg := deeplab.DefaultConfig()
	cfg.Model.NumClasses = 3
	cfg.Data.ClassNames = []string{"background", "road", "car"}

	got := classSummary(cfg, []int64{0, 0, 2, 2})
	assert.Equal(t, "background 50.0%, car 50.0%", got)
}
