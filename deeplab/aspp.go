package deeplab

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/deeplab/base"
)

// ASPP is the DeepLabV2 Atrous Spatial Pyramid Pooling module: one 3x3 dilated
// convolution per rate, all applied to the same input and summed.
//
// Ref. https://arxiv.org/abs/1606.00915
type ASPP struct {
	ratios []int64
	blocks []*nn.Conv2D
}

// NewASPP creates an ASPP module with one branch per ratio. Branch i lives at
// path p/<i>.
func NewASPP(p *nn.Path, ratios []int64, cIn, cOut int64) *ASPP {
	blocks := make([]*nn.Conv2D, 0, len(ratios))
	for i, ratio := range ratios {
		blocks = append(blocks, base.AtrousConv2d(p.Sub(fmt.Sprint(i)), cIn, cOut, 3, asppPadding(ratio), ratio))
	}

	r := make([]int64, len(ratios))
	copy(r, ratios)

	return &ASPP{ratios: r, blocks: blocks}
}

// asppPadding is 0 for ratio 1, ratio otherwise.
func asppPadding(ratio int64) int64 {
	if ratio == 1 {
		return 0
	}
	return ratio
}

// Blocks returns the branch convolutions in ratio order.
func (a *ASPP) Blocks() []*nn.Conv2D {
	return a.blocks
}

// Ratios returns the dilation rate of each branch.
func (a *ASPP) Ratios() []int64 {
	r := make([]int64, len(a.ratios))
	copy(r, a.ratios)
	return r
}

// Forward sums the outputs of every branch on x.
func (a *ASPP) Forward(x *ts.Tensor) (*ts.Tensor, error) {
	if len(a.blocks) == 0 {
		return nil, fmt.Errorf("deeplabv2: aspp has no branches")
	}

	var sum *ts.Tensor
	for i, block := range a.blocks {
		c := block.Config
		y, err := ts.Conv2d(x, block.Ws, block.Bs, c.Stride, c.Padding, c.Dilation, c.Groups)
		if err != nil {
			if sum != nil {
				sum.MustDrop()
			}
			return nil, fmt.Errorf("deeplabv2: aspp branch %d (ratio %d): %w", i, a.ratios[i], err)
		}
		if sum == nil {
			sum = y
			continue
		}

		added, err := sum.Add(y, false)
		y.MustDrop()
		sum.MustDrop()
		if err != nil {
			return nil, fmt.Errorf("deeplabv2: aspp branch %d (ratio %d): summing outputs: %w", i, a.ratios[i], err)
		}
		sum = added
	}

	return sum, nil
}
