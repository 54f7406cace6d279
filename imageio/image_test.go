package imageio_test

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sugarme/deeplab/imageio"
)

func TestToTensor(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{255, 0, 51, 255})
		}
	}

	x := imageio.ToTensor(img, 4, 3)
	defer x.MustDrop()

	assert.Equal(t, []int64{3, 3, 4}, x.MustSize())
	vals := x.Float64Values()
	assert.InDelta(t, 1.0, vals[0], 1e-6)     // R
	assert.InDelta(t, 0.0, vals[12], 1e-6)    // G
	assert.InDelta(t, 0.2, vals[24], 1e-6)    // B
	assert.InDelta(t, 0.2, vals[len(vals)-1], 1e-6)
}

func TestColorMap(t *testing.T) {
	p := imageio.ColorMap(4)
	require.Len(t, p, 4)
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, p[0])
	assert.Equal(t, color.RGBA{128, 0, 0, 255}, p[1])
	assert.Equal(t, color.RGBA{0, 128, 0, 255}, p[2])
	assert.Equal(t, color.RGBA{128, 128, 0, 255}, p[3])
	assert.Len(t, imageio.ColorMap(1000), 256)
}

func TestLabelRoundTrip(t *testing.T) {
	labels := []int64{
		0, 1, 2, 3,
		3, 2, 1, 0,
	}
	img, err := imageio.LabelToImage(labels, 4, 2, imageio.ColorMap(4))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "label.png")
	require.NoError(t, imageio.SavePNG(img, path))

	x, err := imageio.ReadLabel(path, 4, 2)
	require.NoError(t, err)
	defer x.MustDrop()
	assert.Equal(t, []int64{2, 4}, x.MustSize())
	assert.Equal(t, labels, x.Int64Values())

	// Nearest neighbour keeps class ids when upscaling.
	big, err := imageio.ReadLabel(path, 8, 4)
	require.NoError(t, err)
	defer big.MustDrop()
	for _, v := range big.Int64Values() {
		assert.True(t, v >= 0 && v <= 3)
	}

	_, err = imageio.LabelToImage(labels, 3, 3, imageio.ColorMap(4))
	assert.Error(t, err)
}

func TestReadGrayLabel(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 3, 1))
	gray.Pix = []uint8{0, 7, 255}
	path := filepath.Join(t.TempDir(), "gray.png")
	require.NoError(t, imageio.SavePNG(gray, path))

	x, err := imageio.ReadLabel(path, 3, 1)
	require.NoError(t, err)
	defer x.MustDrop()
	assert.Equal(t, []int64{0, 7, 255}, x.Int64Values())
}

func TestReadImageUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.bmp")
	require.NoError(t, os.WriteFile(path, []byte("BM"), 0o644))

	_, err := imageio.ReadImage(path)
	assert.ErrorContains(t, err, "imageio: unsupported image format")
}

func TestOverlay(t *testing.T) {
	base := image.NewRGBA(image.Rect(0, 0, 4, 4))
	mask := image.NewUniform(color.RGBA{255, 0, 0, 255})
	out := imageio.Overlay(base, image.NewRGBA(image.Rect(0, 0, 2, 2)), 64)
	assert.Equal(t, base.Bounds(), out.Bounds())

	red := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			red.Set(x, y, mask.C)
		}
	}
	out = imageio.Overlay(base, red, 128)
	r, g, _, _ := out.At(3, 3).RGBA()
	assert.True(t, r > 0)
	assert.Equal(t, uint32(0), g)
}

func TestResizeLabels(t *testing.T) {
	labels := []int64{
		1, 2,
		3, 4,
	}
	out := imageio.ResizeLabels(labels, 2, 2, 4, 4)
	assert.Equal(t, []int64{
		1, 1, 2, 2,
		1, 1, 2, 2,
		3, 3, 4, 4,
		3, 3, 4, 4,
	}, out)
}
