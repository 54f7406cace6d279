package encoder_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/deeplab/encoder"
)

func TestResNetFeatureShapes(t *testing.T) {
	tests := []struct {
		name         string
		outputStride int64
		want         [][]int64
	}{
		{"os32", 32, [][]int64{{1, 64, 16, 16}, {1, 128, 8, 8}, {1, 256, 4, 4}, {1, 512, 2, 2}}},
		{"os16", 16, [][]int64{{1, 64, 16, 16}, {1, 128, 8, 8}, {1, 256, 4, 4}, {1, 512, 4, 4}}},
		{"os8", 8, [][]int64{{1, 64, 16, 16}, {1, 128, 8, 8}, {1, 256, 8, 8}, {1, 512, 8, 8}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vs := nn.NewVarStore(gotch.CPU)
			net := encoder.NewResNet18(vs.Root(), tt.outputStride)
			assert.Equal(t, []int64{64, 128, 256, 512}, net.FeatChannels())

			x := ts.MustRand([]int64{1, 3, 64, 64}, gotch.Float, gotch.CPU)
			defer x.MustDrop()

			var feats []*ts.Tensor
			ts.NoGrad(func() {
				feats = net.ForwardAll(x, false)
			})
			require.Len(t, feats, 4)
			for i, f := range feats {
				assert.Equal(t, tt.want[i], f.MustSize(), "stage %d", i+1)
				f.MustDrop()
			}
		})
	}
}

func TestBottleneckFeatChannels(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	net := encoder.NewResNet50(vs.Root(), 8)
	assert.Equal(t, []int64{256, 512, 1024, 2048}, net.FeatChannels())

	// torchvision naming so converted weights line up.
	names := make(map[string]bool)
	for n := range vs.Vars.NamedVariables {
		names[n] = true
	}
	for _, n := range []string{"conv1.weight", "bn1.weight", "layer1.0.conv3.weight", "layer1.0.downsample.0.weight", "layer4.2.bn3.bias"} {
		assert.True(t, names[n], "missing variable %q", n)
	}
}

func TestNew(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)

	b, err := encoder.New(vs.Root().Sub("a"), encoder.Config{Type: "ResNet18", OutputStride: 16})
	require.NoError(t, err)
	assert.Equal(t, []int64{64, 128, 256, 512}, b.FeatChannels())

	_, err = encoder.New(vs.Root().Sub("b"), encoder.Config{Type: "vgg16"})
	assert.EqualError(t, err, `encoder: unsupported backbone type "vgg16"`)

	_, err = encoder.New(vs.Root().Sub("c"), encoder.Config{Type: "resnet18", OutputStride: 4})
	assert.EqualError(t, err, "encoder: unsupported output stride 4, expected 8, 16 or 32")
}
