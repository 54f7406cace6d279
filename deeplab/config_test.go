package deeplab

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deeplabv2.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
model:
  num_classes: 3
  backbone:
    type: ResNet18
data:
  class_names: [background, road, car]
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, int64(3), cfg.Model.NumClasses)
	assert.Equal(t, "ResNet18", cfg.Model.Backbone.Type)
	assert.Equal(t, int64(8), cfg.Model.Backbone.OutputStride)
	assert.Equal(t, []int{3}, cfg.Model.BackboneIndices)
	assert.Equal(t, []int64{6, 12, 18, 24}, cfg.Model.ASPPRatios)
	assert.False(t, cfg.Model.AlignCorners)
	assert.Empty(t, cfg.Model.Pretrained)
	assert.Equal(t, int64(255), cfg.Data.IgnoreIndex)
	assert.Equal(t, "road", cfg.ClassName(1))
	assert.Equal(t, "7", cfg.ClassName(7))
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "model: [1, 2"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, `
model:
  num_classes: 2
data:
  class_names: [a, b, c]
`))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, `
data:
  input_size: [512]
`))
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model.NumClasses = 4
	cfg.Model.Backbone.Type = "resnet18"
	cfg.Model.Backbone.OutputStride = 16
	cfg.Model.ASPPRatios = []int64{3, 6}

	vs := nn.NewVarStore(gotch.CPU)
	m, err := Build(vs, cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(4), m.NumClasses())
	assert.Equal(t, []int64{3, 6}, m.Head().ASPP().Ratios())

	x := ts.MustRand([]int64{1, 3, 32, 32}, gotch.Float, gotch.CPU)
	defer x.MustDrop()
	out := forward(t, m, x)
	defer out.MustDrop()
	assert.Equal(t, []int64{1, 4, 32, 32}, out.MustSize())

	// Backbone weights are found at the root of the var store.
	path := filepath.Join(t.TempDir(), "model.ot")
	require.NoError(t, SaveWeights(vs, path))

	cfg.Model.Backbone.Pretrained = path
	cfg.Model.Pretrained = path
	_, err = Build(nn.NewVarStore(gotch.CPU), cfg)
	require.NoError(t, err)

	cfg.Model.Backbone.Type = "mobilenet"
	_, err = Build(nn.NewVarStore(gotch.CPU), cfg)
	assert.Error(t, err)
}

func TestShippedConfigs(t *testing.T) {
	paths, err := filepath.Glob("../configs/*.yml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, p := range paths {
		cfg, err := LoadConfig(p)
		require.NoError(t, err, p)
		assert.Greater(t, cfg.Model.NumClasses, int64(0), p)
		assert.Empty(t, cfg.Model.Pretrained, p)
	}
}
