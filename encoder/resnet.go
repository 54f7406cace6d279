package encoder

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/deeplab/base"
)

// ResNet is a ResNet backbone returning the outputs of its 4 stages.
// With output stride 16 or 8, the strides of the last stages are replaced by
// dilation so the feature maps keep a higher resolution.
type ResNet struct {
	layer0       ts.ModuleT
	layer1       ts.ModuleT
	layer2       ts.ModuleT
	layer3       ts.ModuleT
	layer4       ts.ModuleT
	featChannels []int64
}

// ForwardAll implements Backbone interface for ResNet.
func (e *ResNet) ForwardAll(x *ts.Tensor, train bool) []*ts.Tensor {
	xn := rgbNormalize(x)
	x0 := e.layer0.ForwardT(xn, train)
	xn.MustDrop()
	x1 := e.layer1.ForwardT(x0, train)
	x0.MustDrop()
	x2 := e.layer2.ForwardT(x1, train)
	x3 := e.layer3.ForwardT(x2, train)
	x4 := e.layer4.ForwardT(x3, train)

	return []*ts.Tensor{x1, x2, x3, x4}
}

// FeatChannels implements Backbone interface for ResNet.
func (e *ResNet) FeatChannels() []int64 {
	out := make([]int64, len(e.featChannels))
	copy(out, e.featChannels)
	return out
}

// stageStrides returns stride and dilation of stages 1-4 for an output stride.
func stageStrides(outputStride int64) (strides, dilations []int64) {
	switch outputStride {
	case 8:
		return []int64{1, 2, 1, 1}, []int64{1, 1, 2, 4}
	case 16:
		return []int64{1, 2, 2, 1}, []int64{1, 1, 1, 2}
	default:
		return []int64{1, 2, 2, 2}, []int64{1, 1, 1, 1}
	}
}

func NewResNet18(p *nn.Path, outputStride int64) *ResNet {
	return newBasicResNet(p, []int64{2, 2, 2, 2}, outputStride)
}

func NewResNet34(p *nn.Path, outputStride int64) *ResNet {
	return newBasicResNet(p, []int64{3, 4, 6, 3}, outputStride)
}

func NewResNet50(p *nn.Path, outputStride int64) *ResNet {
	return newBottleneckResNet(p, []int64{3, 4, 6, 3}, outputStride)
}

func NewResNet101(p *nn.Path, outputStride int64) *ResNet {
	return newBottleneckResNet(p, []int64{3, 4, 23, 3}, outputStride)
}

func newBasicResNet(p *nn.Path, blocks []int64, outputStride int64) *ResNet {
	strides, dilations := stageStrides(outputStride)
	return &ResNet{
		layer0:       layerZero(p), // NOTE. `conv1` and `bn1` are at root of pretrained model
		layer1:       basicLayer(p.Sub("layer1"), 64, 64, strides[0], dilations[0], blocks[0]),
		layer2:       basicLayer(p.Sub("layer2"), 64, 128, strides[1], dilations[1], blocks[1]),
		layer3:       basicLayer(p.Sub("layer3"), 128, 256, strides[2], dilations[2], blocks[2]),
		layer4:       basicLayer(p.Sub("layer4"), 256, 512, strides[3], dilations[3], blocks[3]),
		featChannels: []int64{64, 128, 256, 512},
	}
}

func newBottleneckResNet(p *nn.Path, blocks []int64, outputStride int64) *ResNet {
	strides, dilations := stageStrides(outputStride)
	return &ResNet{
		layer0:       layerZero(p),
		layer1:       bottleneckLayer(p.Sub("layer1"), 64, 64, strides[0], dilations[0], blocks[0]),
		layer2:       bottleneckLayer(p.Sub("layer2"), 256, 128, strides[1], dilations[1], blocks[1]),
		layer3:       bottleneckLayer(p.Sub("layer3"), 512, 256, strides[2], dilations[2], blocks[2]),
		layer4:       bottleneckLayer(p.Sub("layer4"), 1024, 512, strides[3], dilations[3], blocks[3]),
		featChannels: []int64{256, 512, 1024, 2048},
	}
}

func rgbNormalize(x *ts.Tensor) *ts.Tensor {
	meanVals := []float32{0.485, 0.456, 0.406} // image RGB mean
	sdVals := []float32{0.229, 0.224, 0.225}   // image RGB standard error

	device := x.MustDevice()
	mean := ts.MustOfSlice(meanVals).MustView([]int64{1, 3, 1, 1}, true).MustTo(device, true)
	sd := ts.MustOfSlice(sdVals).MustView([]int64{1, 3, 1, 1}, true).MustTo(device, true)

	// x = (x - mean)/sd
	n := x.MustSub(mean, false).MustDiv(sd, true)
	mean.MustDrop()
	sd.MustDrop()

	return n
}

func layerZero(p *nn.Path) ts.ModuleT {
	layer0 := base.Conv2dRelu(p, 3, 64, 7, 3, 2)
	layer0.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustMaxPool2d([]int64{3, 3}, []int64{2, 2}, []int64{1, 1}, []int64{1, 1}, false, false)
	}))

	return layer0
}

func basicLayer(path *nn.Path, cIn, cOut, stride, dilation, cnt int64) ts.ModuleT {
	layer := nn.SeqT()
	layer.Add(NewBasicBlock(path.Sub("0"), cIn, cOut, stride, dilation))
	for blockIndex := 1; blockIndex < int(cnt); blockIndex++ {
		layer.Add(NewBasicBlock(path.Sub(fmt.Sprint(blockIndex)), cOut, cOut, 1, dilation))
	}

	return layer
}

func bottleneckLayer(path *nn.Path, cIn, width, stride, dilation, cnt int64) ts.ModuleT {
	layer := nn.SeqT()
	layer.Add(NewBottleneck(path.Sub("0"), cIn, width, stride, dilation))
	for blockIndex := 1; blockIndex < int(cnt); blockIndex++ {
		layer.Add(NewBottleneck(path.Sub(fmt.Sprint(blockIndex)), width*bottleneckExpansion, width, 1, dilation))
	}

	return layer
}

func downSample(path *nn.Path, cIn, cOut, stride int64) ts.ModuleT {
	if stride != 1 || cIn != cOut {
		return base.Conv2dBn(path, cIn, cOut, 1, 0, stride)
	}
	return nn.SeqT()
}

type BasicBlock struct {
	Conv1      *nn.Conv2D
	Bn1        *nn.BatchNorm
	Conv2      *nn.Conv2D
	Bn2        *nn.BatchNorm
	Downsample ts.ModuleT
}

func NewBasicBlock(path *nn.Path, cIn, cOut, stride, dilation int64) *BasicBlock {
	conv1 := base.DilatedConv2dNoBias(path.Sub("conv1"), cIn, cOut, 3, stride, dilation)
	bn1 := nn.BatchNorm2D(path.Sub("bn1"), cOut, nn.DefaultBatchNormConfig())
	conv2 := base.DilatedConv2dNoBias(path.Sub("conv2"), cOut, cOut, 3, 1, dilation)
	bn2 := nn.BatchNorm2D(path.Sub("bn2"), cOut, nn.DefaultBatchNormConfig())
	downsample := downSample(path.Sub("downsample"), cIn, cOut, stride)

	return &BasicBlock{conv1, bn1, conv2, bn2, downsample}
}

func (bb *BasicBlock) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	c1 := bb.Conv1.ForwardT(x, train)
	bn1Ts := bb.Bn1.ForwardT(c1, train)
	c1.MustDrop()
	relu := bn1Ts.MustRelu(true)
	c2 := bb.Conv2.ForwardT(relu, train)
	relu.MustDrop()
	bn2Ts := bb.Bn2.ForwardT(c2, train)
	c2.MustDrop()
	dsl := bb.Downsample.ForwardT(x, train)
	dslAdd := dsl.MustAdd(bn2Ts, true)
	bn2Ts.MustDrop()
	res := dslAdd.MustRelu(true)

	return res
}

const bottleneckExpansion int64 = 4

// Bottleneck is the 1x1-3x3-1x1 residual block of ResNet50 and deeper.
type Bottleneck struct {
	Conv1      *nn.Conv2D
	Bn1        *nn.BatchNorm
	Conv2      *nn.Conv2D
	Bn2        *nn.BatchNorm
	Conv3      *nn.Conv2D
	Bn3        *nn.BatchNorm
	Downsample ts.ModuleT
}

func NewBottleneck(path *nn.Path, cIn, width, stride, dilation int64) *Bottleneck {
	cOut := width * bottleneckExpansion
	conv1 := base.Conv2dNoBias(path.Sub("conv1"), cIn, width, 1, 0, 1)
	bn1 := nn.BatchNorm2D(path.Sub("bn1"), width, nn.DefaultBatchNormConfig())
	conv2 := base.DilatedConv2dNoBias(path.Sub("conv2"), width, width, 3, stride, dilation)
	bn2 := nn.BatchNorm2D(path.Sub("bn2"), width, nn.DefaultBatchNormConfig())
	conv3 := base.Conv2dNoBias(path.Sub("conv3"), width, cOut, 1, 0, 1)
	bn3 := nn.BatchNorm2D(path.Sub("bn3"), cOut, nn.DefaultBatchNormConfig())
	downsample := downSample(path.Sub("downsample"), cIn, cOut, stride)

	return &Bottleneck{conv1, bn1, conv2, bn2, conv3, bn3, downsample}
}

func (b *Bottleneck) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	c1 := b.Conv1.ForwardT(x, train)
	bn1Ts := b.Bn1.ForwardT(c1, train)
	c1.MustDrop()
	relu1 := bn1Ts.MustRelu(true)
	c2 := b.Conv2.ForwardT(relu1, train)
	relu1.MustDrop()
	bn2Ts := b.Bn2.ForwardT(c2, train)
	c2.MustDrop()
	relu2 := bn2Ts.MustRelu(true)
	c3 := b.Conv3.ForwardT(relu2, train)
	relu2.MustDrop()
	bn3Ts := b.Bn3.ForwardT(c3, train)
	c3.MustDrop()
	dsl := b.Downsample.ForwardT(x, train)
	dslAdd := dsl.MustAdd(bn3Ts, true)
	bn3Ts.MustDrop()

	return dslAdd.MustRelu(true)
}
