package report_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sugarme/deeplab/metric"
	"github.com/sugarme/deeplab/report"
)

func newReport(t *testing.T) *report.Report {
	t.Helper()
	cm := metric.NewConfusionMatrix(2, 255)
	require.NoError(t, cm.Add([]int64{1, 0, 0, 1, 0, 0, 1, 0, 0}, []int64{1, 0, 0, 1, 1, 0, 1, 0, 0}))

	names := []string{"background", "kidney"}
	return report.New(cm, 1, func(i int) string { return names[i] })
}

func TestReportScores(t *testing.T) {
	r := newReport(t)

	require.Len(t, r.Classes, 2)
	assert.Equal(t, "kidney", r.Classes[1].Class)
	assert.InDelta(t, 0.75, r.Classes[1].IoU, 1e-9)
	assert.InDelta(t, (5.0/6.0+0.75)/2, r.MeanIoU, 1e-9)
	assert.True(t, strings.HasPrefix(r.Summary(), "[EVAL] #Images: 1 mIoU: 0.7917"))
}

func TestReportCSV(t *testing.T) {
	r := newReport(t)

	var buf bytes.Buffer
	require.NoError(t, r.WriteCSV(&buf))

	df := dataframe.ReadCSV(&buf)
	require.NoError(t, df.Err)
	assert.Equal(t, []string{"Class", "IoU", "Accuracy", "Dice"}, df.Names())
	assert.Equal(t, []string{"background", "kidney"}, df.Col("Class").Records())
	assert.InDelta(t, 0.75, df.Col("IoU").Float()[1], 1e-6)
}

func TestReportPlot(t *testing.T) {
	r := newReport(t)

	path := filepath.Join(t.TempDir(), "iou.png")
	require.NoError(t, r.PlotIoU(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.Size() > 0)
}
