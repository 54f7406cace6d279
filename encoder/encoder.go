package encoder

import (
	"fmt"
	"strings"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// Backbone is a feature extractor for a segmentation model.
//
// ForwardAll returns one feature map per stage, in the same order and with the
// channel counts reported by FeatChannels.
type Backbone interface {
	ForwardAll(x *ts.Tensor, train bool) []*ts.Tensor
	FeatChannels() []int64
}

// Config describes a backbone to build.
type Config struct {
	Type         string `yaml:"type"`
	OutputStride int64  `yaml:"output_stride"`
	Pretrained   string `yaml:"pretrained"`
}

// New builds the backbone described by cfg under path p.
func New(p *nn.Path, cfg Config) (Backbone, error) {
	stride := cfg.OutputStride
	if stride == 0 {
		stride = 32
	}
	switch stride {
	case 8, 16, 32:
	default:
		err := fmt.Errorf("encoder: unsupported output stride %v, expected 8, 16 or 32", cfg.OutputStride)
		return nil, err
	}

	switch strings.ToLower(cfg.Type) {
	case "resnet18":
		return NewResNet18(p, stride), nil
	case "resnet34":
		return NewResNet34(p, stride), nil
	case "resnet50":
		return NewResNet50(p, stride), nil
	case "resnet101":
		return NewResNet101(p, stride), nil
	default:
		err := fmt.Errorf("encoder: unsupported backbone type %q", cfg.Type)
		return nil, err
	}
}
