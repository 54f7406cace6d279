package report

import (
	"fmt"
	"io"
	"os"

	"github.com/go-gota/gota/dataframe"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/sugarme/deeplab/metric"
)

// ClassScore holds evaluation scores of one class.
type ClassScore struct {
	Class    string
	IoU      float64
	Accuracy float64
	Dice     float64
}

// Report is a summary of an evaluation run.
type Report struct {
	Images   int
	MeanIoU  float64
	Accuracy float64
	Kappa    float64
	MeanDice float64
	Classes  []ClassScore
}

// New builds a Report from an accumulated confusion matrix. className maps a
// class index to its display name.
func New(cm *metric.ConfusionMatrix, images int, className func(int) string) *Report {
	iou := cm.ClassIoU()
	acc := cm.ClassAccuracy()
	dice := cm.ClassDice()

	classes := make([]ClassScore, len(iou))
	for i := range iou {
		classes[i] = ClassScore{
			Class:    className(i),
			IoU:      iou[i],
			Accuracy: acc[i],
			Dice:     dice[i],
		}
	}

	return &Report{
		Images:   images,
		MeanIoU:  cm.MeanIoU(),
		Accuracy: cm.Accuracy(),
		Kappa:    cm.Kappa(),
		MeanDice: cm.MeanDice(),
		Classes:  classes,
	}
}

// Summary returns a one-line summary.
func (r *Report) Summary() string {
	return fmt.Sprintf("[EVAL] #Images: %d mIoU: %.4f Acc: %.4f Kappa: %.4f Dice: %.4f", r.Images, r.MeanIoU, r.Accuracy, r.Kappa, r.MeanDice)
}

// DataFrame returns per-class scores as a dataframe.
func (r *Report) DataFrame() dataframe.DataFrame {
	return dataframe.LoadStructs(r.Classes)
}

// WriteCSV writes per-class scores as CSV.
func (r *Report) WriteCSV(w io.Writer) error {
	df := r.DataFrame()
	if df.Err != nil {
		return df.Err
	}
	return df.WriteCSV(w)
}

// SaveCSV writes per-class scores to a CSV file.
func (r *Report) SaveCSV(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}

	if err := r.WriteCSV(f); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

// PlotIoU saves a bar chart of per-class IoU. The image format follows the
// file extension (png, svg, pdf...).
func (r *Report) PlotIoU(filename string) error {
	p, err := plot.New()
	if err != nil {
		return err
	}
	p.Title.Text = fmt.Sprintf("Class IoU (mIoU %.4f)", r.MeanIoU)
	p.Y.Label.Text = "IoU"
	p.Y.Min = 0
	p.Y.Max = 1

	values := make(plotter.Values, len(r.Classes))
	names := make([]string, len(r.Classes))
	for i, c := range r.Classes {
		values[i] = c.IoU
		names[i] = c.Class
	}

	bars, err := plotter.NewBarChart(values, vg.Points(16))
	if err != nil {
		return err
	}
	p.Add(bars)
	p.NominalX(names...)

	width := vg.Length(len(r.Classes)+2) * vg.Points(24)
	if width < 4*vg.Inch {
		width = 4 * vg.Inch
	}

	return p.Save(width, 4*vg.Inch, filename)
}
