package imageio

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"github.com/chai2010/tiff"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	ts "github.com/sugarme/gotch/tensor"
	"golang.org/x/image/draw"
)

// ReadImage reads image from file.
func ReadImage(filename string) (image.Image, error) {
	ext := filepath.Ext(filename)
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch ext {
	case ".png", ".PNG":
		return png.Decode(f)
	case ".jpg", ".jpeg", ".JPG", ".JPEG":
		return jpeg.Decode(f)
	case ".tiff", ".tif", ".TIFF", ".TIF":
		return tiff.Decode(f)
	default:
		err = fmt.Errorf("imageio: unsupported image format %v", ext)
		return nil, err
	}
}

// ToTensor resizes img to width x height and converts it to a float tensor
// of shape [3 H W] with RGB values in [0, 1].
func ToTensor(img image.Image, width, height int) *ts.Tensor {
	resized := imaging.Resize(img, width, height, imaging.Linear)

	plane := width * height
	data := make([]float32, 3*plane)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := resized.NRGBAAt(x, y)
			i := y*width + x
			data[i] = float32(c.R) / 255
			data[plane+i] = float32(c.G) / 255
			data[2*plane+i] = float32(c.B) / 255
		}
	}

	return ts.MustOfSlice(data).MustView([]int64{3, int64(height), int64(width)}, true)
}

// labelIndices returns class ids of a label image as a gray image. Paletted
// images keep their palette indices; other images are converted to gray.
func labelIndices(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	switch m := img.(type) {
	case *image.Paletted:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				gray.Pix[y*gray.Stride+x] = m.ColorIndexAt(b.Min.X+x, b.Min.Y+y)
			}
		}
	default:
		draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	}
	return gray
}

// ReadLabel reads a label image of class ids (grayscale or paletted PNG) and
// returns an int64 tensor of shape [H W], resized with nearest neighbour to
// width x height.
func ReadLabel(filename string, width, height int) (*ts.Tensor, error) {
	img, err := ReadImage(filename)
	if err != nil {
		return nil, err
	}

	gray := labelIndices(img)
	if gray.Bounds().Dx() != width || gray.Bounds().Dy() != height {
		gray = ResizeLabel(gray, width, height)
	}

	data := make([]int64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			data[y*width+x] = int64(gray.Pix[y*gray.Stride+x])
		}
	}

	return ts.MustOfSlice(data).MustView([]int64{int64(height), int64(width)}, true), nil
}

// ResizeLabel resizes a label image with nearest neighbour interpolation so
// class ids are preserved.
func ResizeLabel(label *image.Gray, width, height int) *image.Gray {
	out := resize.Resize(uint(width), uint(height), label, resize.NearestNeighbor)
	if g, ok := out.(*image.Gray); ok {
		return g
	}
	g := image.NewGray(out.Bounds())
	draw.Draw(g, g.Bounds(), out, out.Bounds().Min, draw.Src)
	return g
}

// ColorMap returns a palette of n colors. Color 0 is black.
//
// Ref. PASCAL VOC color map.
func ColorMap(n int) color.Palette {
	if n > 256 {
		n = 256
	}
	palette := make(color.Palette, n)
	for i := 0; i < n; i++ {
		var r, g, b uint8
		c := i
		for j := 7; j >= 0; j-- {
			r |= uint8((c>>0)&1) << j
			g |= uint8((c>>1)&1) << j
			b |= uint8((c>>2)&1) << j
			c >>= 3
		}
		palette[i] = color.RGBA{r, g, b, 255}
	}
	return palette
}

// LabelToImage colors a [H W] label map with palette. Labels outside the
// palette are drawn with color 0.
func LabelToImage(labels []int64, width, height int, palette color.Palette) (*image.Paletted, error) {
	if len(labels) != width*height {
		err := fmt.Errorf("imageio: expected %v labels for a %vx%v image, got %v", width*height, width, height, len(labels))
		return nil, err
	}

	img := image.NewPaletted(image.Rect(0, 0, width, height), palette)
	for i, l := range labels {
		if l < 0 || int(l) >= len(palette) {
			l = 0
		}
		img.Pix[i] = uint8(l)
	}

	return img, nil
}

// Overlay draws mask over img with the given opacity (0-255) and returns the
// result at img size. mask is scaled to img size first.
func Overlay(img, mask image.Image, opacity uint8) *image.RGBA {
	b := img.Bounds()
	rec := image.Rect(0, 0, b.Dx(), b.Dy())
	dstImg := image.NewRGBA(rec)
	draw.Draw(dstImg, rec, img, b.Min, draw.Src)

	scaled := image.NewRGBA(rec)
	draw.NearestNeighbor.Scale(scaled, rec, mask, mask.Bounds(), draw.Src, nil)

	alpha := image.NewUniform(color.Alpha{opacity})
	draw.DrawMask(dstImg, rec, scaled, image.Point{}, alpha, image.Point{}, draw.Over)

	return dstImg
}

// SavePNG encodes img to a PNG file.
func SavePNG(img image.Image, filename string) error {
	out, err := os.Create(filename)
	if err != nil {
		return err
	}

	if err := png.Encode(out, img); err != nil {
		out.Close()
		return err
	}

	return out.Close()
}

// ResizeLabels resizes a flattened [H W] label map with nearest neighbour.
// Labels must fit in a byte.
func ResizeLabels(labels []int64, width, height, newWidth, newHeight int) []int64 {
	gray := image.NewGray(image.Rect(0, 0, width, height))
	for i, l := range labels {
		gray.Pix[i] = uint8(l)
	}

	resized := ResizeLabel(gray, newWidth, newHeight)
	out := make([]int64, newWidth*newHeight)
	for y := 0; y < newHeight; y++ {
		for x := 0; x < newWidth; x++ {
			out[y*newWidth+x] = int64(resized.Pix[y*resized.Stride+x])
		}
	}
	return out
}
