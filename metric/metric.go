package metric

import (
	"fmt"
	"math"

	ts "github.com/sugarme/gotch/tensor"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ConfusionMatrix accumulates pixel counts of (label, prediction) pairs.
// Rows are ground truth classes, columns predicted classes. Pixels whose label
// equals the ignore index are skipped.
type ConfusionMatrix struct {
	numClasses  int
	ignoreIndex int64
	m           *mat.Dense
}

// NewConfusionMatrix creates an empty confusion matrix.
func NewConfusionMatrix(numClasses int, ignoreIndex int64) *ConfusionMatrix {
	return &ConfusionMatrix{
		numClasses:  numClasses,
		ignoreIndex: ignoreIndex,
		m:           mat.NewDense(numClasses, numClasses, nil),
	}
}

// Add accumulates flattened prediction and label maps.
func (c *ConfusionMatrix) Add(pred, label []int64) error {
	if len(pred) != len(label) {
		err := fmt.Errorf("metric: prediction and label sizes differ: %v vs %v", len(pred), len(label))
		return err
	}

	n := int64(c.numClasses)
	for i, l := range label {
		if l == c.ignoreIndex {
			continue
		}
		p := pred[i]
		if l < 0 || l >= n {
			err := fmt.Errorf("metric: label %v at pixel %v out of range [0, %v)", l, i, n)
			return err
		}
		if p < 0 || p >= n {
			err := fmt.Errorf("metric: prediction %v at pixel %v out of range [0, %v)", p, i, n)
			return err
		}
		c.m.Set(int(l), int(p), c.m.At(int(l), int(p))+1)
	}

	return nil
}

// AddTensor accumulates a prediction tensor and a label tensor of the same
// number of elements (e.g. [B H W]).
func (c *ConfusionMatrix) AddTensor(pred, label *ts.Tensor) error {
	return c.Add(pred.Int64Values(), label.Int64Values())
}

// Matrix returns a copy of the counts.
func (c *ConfusionMatrix) Matrix() *mat.Dense {
	return mat.DenseCopyOf(c.m)
}

func (c *ConfusionMatrix) areas() (intersect, predArea, labelArea []float64) {
	intersect = make([]float64, c.numClasses)
	predArea = make([]float64, c.numClasses)
	labelArea = make([]float64, c.numClasses)
	for i := 0; i < c.numClasses; i++ {
		intersect[i] = c.m.At(i, i)
		labelArea[i] = floats.Sum(c.m.RawRowView(i))
		predArea[i] = floats.Sum(mat.Col(nil, i, c.m))
	}
	return intersect, predArea, labelArea
}

// ClassIoU returns intersection over union per class. Classes absent from
// both prediction and label get 0.
func (c *ConfusionMatrix) ClassIoU() []float64 {
	intersect, predArea, labelArea := c.areas()
	iou := make([]float64, c.numClasses)
	for i := range iou {
		union := predArea[i] + labelArea[i] - intersect[i]
		if union > 0 {
			iou[i] = intersect[i] / union
		}
	}
	return iou
}

// MeanIoU is the mean of ClassIoU.
func (c *ConfusionMatrix) MeanIoU() float64 {
	return floats.Sum(c.ClassIoU()) / float64(c.numClasses)
}

// Accuracy is the fraction of non-ignored pixels predicted correctly.
func (c *ConfusionMatrix) Accuracy() float64 {
	total := mat.Sum(c.m)
	if total == 0 {
		return 0
	}
	var correct float64
	for i := 0; i < c.numClasses; i++ {
		correct += c.m.At(i, i)
	}
	return correct / total
}

// ClassAccuracy returns per class precision: correct pixels over pixels
// predicted as that class.
func (c *ConfusionMatrix) ClassAccuracy() []float64 {
	intersect, predArea, _ := c.areas()
	acc := make([]float64, c.numClasses)
	for i := range acc {
		if predArea[i] > 0 {
			acc[i] = intersect[i] / predArea[i]
		}
	}
	return acc
}

// Kappa is Cohen's kappa coefficient.
func (c *ConfusionMatrix) Kappa() float64 {
	total := mat.Sum(c.m)
	if total == 0 {
		return 0
	}
	_, predArea, labelArea := c.areas()
	po := c.Accuracy()
	pe := floats.Dot(predArea, labelArea) / (total * total)
	if pe == 1 {
		return 0
	}
	return (po - pe) / (1 - pe)
}

// ClassDice returns the Dice coefficient per class.
func (c *ConfusionMatrix) ClassDice() []float64 {
	intersect, predArea, labelArea := c.areas()
	dice := make([]float64, c.numClasses)
	for i := range dice {
		if s := predArea[i] + labelArea[i]; s > 0 {
			dice[i] = 2 * intersect[i] / s
		}
	}
	return dice
}

// MeanDice is the mean of ClassDice.
func (c *ConfusionMatrix) MeanDice() float64 {
	return floats.Sum(c.ClassDice()) / float64(c.numClasses)
}

// IoU calculates intersection over union of 2 binary masks (values > 0.5
// are foreground). It returns NaN if the masks differ in size.
func IoU(pred, target *ts.Tensor) float64 {
	cm, err := binaryConfusion(pred, target)
	if err != nil {
		return math.NaN()
	}
	return cm.ClassIoU()[1]
}

// DiceCoeff calculates the Dice coefficient of 2 binary masks.
// It returns NaN if the masks differ in size.
func DiceCoeff(pred, target *ts.Tensor) float64 {
	cm, err := binaryConfusion(pred, target)
	if err != nil {
		return math.NaN()
	}
	return cm.ClassDice()[1]
}

// JaccardIndex calculates mean IoU over numClasses classes of 2 label maps.
// It returns NaN on size mismatch or out of range labels.
func JaccardIndex(pred, target *ts.Tensor, numClasses int) float64 {
	cm := NewConfusionMatrix(numClasses, -1)
	if err := cm.AddTensor(pred, target); err != nil {
		return math.NaN()
	}
	return cm.MeanIoU()
}

func binaryConfusion(pred, target *ts.Tensor) (*ConfusionMatrix, error) {
	cm := NewConfusionMatrix(2, -1)
	err := cm.Add(binarize(pred.Float64Values()), binarize(target.Float64Values()))
	return cm, err
}

// binarize thresholds values at 0.5.
func binarize(values []float64) []int64 {
	out := make([]int64, len(values))
	for i, v := range values {
		if v > 0.5 {
			out[i] = 1
		}
	}
	return out
}
