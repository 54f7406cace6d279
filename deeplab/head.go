package deeplab

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// Head is the DeepLabV2 head. It applies ASPP to one backbone feature map.
type Head struct {
	aspp            *ASPP
	backboneIndices []int
}

// NewHead creates a Head. Only the first backbone index and its channel count
// are used.
func NewHead(p *nn.Path, numClasses int64, backboneIndices []int, backboneChannels []int64, asppRatios []int64) *Head {
	idx := make([]int, len(backboneIndices))
	copy(idx, backboneIndices)

	return &Head{
		aspp:            NewASPP(p.Sub("aspp"), asppRatios, backboneChannels[0], numClasses),
		backboneIndices: idx,
	}
}

// ASPP returns the head's ASPP module.
func (h *Head) ASPP() *ASPP {
	return h.aspp
}

// ForwardFeatures selects the configured feature map and returns class logits
// at the feature map resolution.
func (h *Head) ForwardFeatures(features []*ts.Tensor) (*ts.Tensor, error) {
	idx := h.backboneIndices[0]
	if idx < 0 || idx >= len(features) {
		err := fmt.Errorf("deeplabv2: backbone index %d out of range: got %d feature maps", idx, len(features))
		return nil, err
	}

	return h.aspp.Forward(features[idx])
}
