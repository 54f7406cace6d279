package deeplab

import (
	"fmt"
	"log"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/deeplab/encoder"
)

// Options configures a DeepLabV2 model.
type Options struct {
	NumClasses int64
	// BackboneIndices selects backbone feature maps. Only the first is used.
	BackboneIndices []int
	ASPPRatios      []int64
	// AlignCorners is passed to bilinear upsampling. It should be false when
	// the input size is even (e.g. 1024x512) and true otherwise (e.g. 769x769).
	AlignCorners bool
	// Pretrained is an optional checkpoint of the whole model.
	Pretrained string
}

// DefaultOptions returns the DeepLabV2 defaults for numClasses classes.
func DefaultOptions(numClasses int64) Options {
	return Options{
		NumClasses:      numClasses,
		BackboneIndices: []int{3},
		ASPPRatios:      []int64{6, 12, 18, 24},
		AlignCorners:    false,
	}
}

// DeepLabV2 is a DeepLabV2 semantic segmentation model.
// Ref: https://arxiv.org/abs/1606.00915
type DeepLabV2 struct {
	backbone     encoder.Backbone
	head         *Head
	numClasses   int64
	alignCorners bool
}

// New creates a DeepLabV2 model on top of backbone. Head variables are created
// under `head` in vs; backbone variables must already belong to vs.
//
// If opts.Pretrained is set, the whole model is loaded from it and any
// loading error is returned.
func New(vs *nn.VarStore, backbone encoder.Backbone, opts Options) (*DeepLabV2, error) {
	if backbone == nil {
		return nil, fmt.Errorf("deeplabv2: nil backbone")
	}
	if opts.NumClasses <= 0 {
		return nil, fmt.Errorf("deeplabv2: invalid number of classes %d", opts.NumClasses)
	}
	if len(opts.ASPPRatios) == 0 {
		return nil, fmt.Errorf("deeplabv2: no aspp ratios")
	}
	for _, r := range opts.ASPPRatios {
		if r <= 0 {
			return nil, fmt.Errorf("deeplabv2: invalid aspp ratio %d", r)
		}
	}
	if len(opts.BackboneIndices) == 0 {
		return nil, fmt.Errorf("deeplabv2: no backbone indices")
	}

	featChannels := backbone.FeatChannels()
	var backboneChannels []int64
	for _, i := range opts.BackboneIndices {
		if i < 0 || i >= len(featChannels) {
			return nil, fmt.Errorf("deeplabv2: backbone index %d out of range [0, %d)", i, len(featChannels))
		}
		backboneChannels = append(backboneChannels, featChannels[i])
	}

	if hasMixedUnitRatio(opts.ASPPRatios) {
		log.Printf("WARNING: aspp ratio 1 uses no padding and shrinks its branch output; summing it with ratios %v will fail.\n", opts.ASPPRatios)
	}

	head := NewHead(vs.Root().Sub("head"), opts.NumClasses, opts.BackboneIndices, backboneChannels, opts.ASPPRatios)
	m := &DeepLabV2{
		backbone:     backbone,
		head:         head,
		numClasses:   opts.NumClasses,
		alignCorners: opts.AlignCorners,
	}

	if opts.Pretrained != "" {
		if err := LoadWeights(vs, opts.Pretrained); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func hasMixedUnitRatio(ratios []int64) bool {
	if len(ratios) < 2 {
		return false
	}
	for _, r := range ratios {
		if r == 1 {
			return true
		}
	}
	return false
}

// Head returns the model head.
func (m *DeepLabV2) Head() *Head {
	return m.head
}

// NumClasses returns the number of output classes.
func (m *DeepLabV2) NumClasses() int64 {
	return m.numClasses
}

// ForwardAll runs x of shape [B C H W] through the model and returns a single
// element slice holding logits of shape [B numClasses H W].
func (m *DeepLabV2) ForwardAll(x *ts.Tensor, train bool) ([]*ts.Tensor, error) {
	size := x.MustSize()
	if len(size) != 4 {
		err := fmt.Errorf("deeplabv2: expected 4D input [B C H W], got shape %v", size)
		return nil, err
	}

	features := m.backbone.ForwardAll(x, train)
	logit, err := m.head.ForwardFeatures(features)
	for _, f := range features {
		f.MustDrop()
	}
	if err != nil {
		return nil, err
	}

	out, err := logit.UpsampleBilinear2d(size[2:], m.alignCorners, nil, nil, false)
	logit.MustDrop()
	if err != nil {
		return nil, fmt.Errorf("deeplabv2: upsampling logits: %w", err)
	}

	return []*ts.Tensor{out}, nil
}

// ForwardT implements ts.ModuleT for DeepLabV2. It returns the upsampled
// logits and exits on error, as gotch `Must` functions do.
func (m *DeepLabV2) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	logits, err := m.ForwardAll(x, train)
	if err != nil {
		log.Fatal(err)
	}
	return logits[0]
}

// Predict runs an inference forward pass and returns the most likely class of
// each pixel, as an int64 tensor of shape [B H W] on the CPU.
func (m *DeepLabV2) Predict(x *ts.Tensor) (*ts.Tensor, error) {
	var (
		logits []*ts.Tensor
		err    error
	)
	ts.NoGrad(func() {
		logits, err = m.ForwardAll(x, false)
	})
	if err != nil {
		return nil, err
	}

	pred, err := logits[0].Argmax([]int64{1}, false, true)
	if err != nil {
		return nil, fmt.Errorf("deeplabv2: argmax over classes: %w", err)
	}

	return pred.MustTo(gotch.CPU, true), nil
}
