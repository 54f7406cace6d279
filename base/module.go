package base

import (
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// Conv2d creates Conv2D module.
func Conv2d(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.Conv2D {
	config := nn.DefaultConv2DConfig()
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{padding, padding}

	return nn.NewConv2D(p, cIn, cOut, ksize, config)
}

// Conv2dNoBias creates Conv2D with no bias.
func Conv2dNoBias(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.Conv2D {
	config := nn.DefaultConv2DConfig()
	config.Bias = false
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{padding, padding}

	return nn.NewConv2D(p, cIn, cOut, ksize, config)
}

// DilatedConv2dNoBias creates a bias-free Conv2D with dilation. Padding is
// set to `dilation` for 3x3 kernels so spatial size only depends on stride.
func DilatedConv2dNoBias(p *nn.Path, cIn, cOut, ksize, stride, dilation int64) *nn.Conv2D {
	padding := dilation * (ksize - 1) / 2
	config := nn.DefaultConv2DConfig()
	config.Bias = false
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{padding, padding}
	config.Dilation = []int64{dilation, dilation}

	return nn.NewConv2D(p, cIn, cOut, ksize, config)
}

// AtrousConv2d creates a stride-1 Conv2D with the given dilation rate and
// padding. Its bias is initialized to zero.
func AtrousConv2d(p *nn.Path, cIn, cOut, ksize, padding, dilation int64) *nn.Conv2D {
	config := nn.DefaultConv2DConfig()
	config.Padding = []int64{padding, padding}
	config.Dilation = []int64{dilation, dilation}
	config.BsInit = nn.NewConstInit(0.0)

	return nn.NewConv2D(p, cIn, cOut, ksize, config)
}

// Conv2dBn creates a SequentialT composing of Conv2D no bias and a BatchNorm.
func Conv2dBn(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.SequentialT {
	seq := nn.SeqT()
	seq.Add(Conv2dNoBias(p.Sub("0"), cIn, cOut, ksize, padding, stride))
	seq.Add(nn.BatchNorm2D(p.Sub("1"), cOut, nn.DefaultBatchNormConfig()))

	return seq
}

// Conv2dRelu creates a SequentialT composing of Conv2D No bias, BatchNorm and a ReLU activation.
func Conv2dRelu(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.SequentialT {
	seq := nn.SeqT()
	seq.Add(Conv2dNoBias(p.Sub("conv1"), cIn, cOut, ksize, padding, stride))
	seq.Add(nn.BatchNorm2D(p.Sub("bn1"), cOut, nn.DefaultBatchNormConfig()))
	seq.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustRelu(false)
	}))

	return seq
}
