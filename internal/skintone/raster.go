package skintone

import (
	"image"
	"image/color"
)

// Raster is a decoded, opaque RGB image owned by a single pipeline call
type Raster struct {
	Width  int
	Height int
	// Pix holds packed R,G,B samples, row-major, 3*Width bytes per row
	Pix []uint8
	// ByteLength is the size of the encoded input this raster came from
	ByteLength int
}

// NewRaster allocates a black raster
func NewRaster(width, height int) *Raster {
	return &Raster{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*3),
	}
}

// NewUniformRaster allocates a raster filled with one colour
func NewUniformRaster(width, height int, r, g, b uint8) *Raster {
	out := NewRaster(width, height)
	for i := 0; i < len(out.Pix); i += 3 {
		out.Pix[i], out.Pix[i+1], out.Pix[i+2] = r, g, b
	}
	return out
}

func (r *Raster) offset(x, y int) int {
	return (y*r.Width + x) * 3
}

// At returns the RGB sample at (x, y)
func (r *Raster) At(x, y int) (uint8, uint8, uint8) {
	i := r.offset(x, y)
	return r.Pix[i], r.Pix[i+1], r.Pix[i+2]
}

// Set writes the RGB sample at (x, y)
func (r *Raster) Set(x, y int, cr, cg, cb uint8) {
	i := r.offset(x, y)
	r.Pix[i], r.Pix[i+1], r.Pix[i+2] = cr, cg, cb
}

// PixelCount returns Width*Height
func (r *Raster) PixelCount() int {
	return r.Width * r.Height
}

// Clone returns a deep copy
func (r *Raster) Clone() *Raster {
	out := &Raster{Width: r.Width, Height: r.Height, ByteLength: r.ByteLength}
	out.Pix = append([]uint8(nil), r.Pix...)
	return out
}

// Gray converts to an 8-bit luma image using the standard library model
func (r *Raster) Gray() *image.Gray {
	gray := image.NewGray(image.Rect(0, 0, r.Width, r.Height))
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			cr, cg, cb := r.At(x, y)
			gray.SetGray(x, y, color.GrayModel.Convert(color.RGBA{R: cr, G: cg, B: cb, A: 0xff}).(color.Gray))
		}
	}
	return gray
}

// RelativeRect maps fractional coordinates onto pixel bounds. The result is
// at least one pixel wide and tall and always lies inside the raster.
func (r *Raster) RelativeRect(x0, y0, x1, y1 float64) image.Rectangle {
	minX := clampInt(int(x0*float64(r.Width)), 0, r.Width-1)
	minY := clampInt(int(y0*float64(r.Height)), 0, r.Height-1)
	maxX := clampInt(int(x1*float64(r.Width)), minX+1, r.Width)
	maxY := clampInt(int(y1*float64(r.Height)), minY+1, r.Height)
	return image.Rect(minX, minY, maxX, maxY)
}

// Pixels returns the samples inside rect in row-major order
func (r *Raster) Pixels(rect image.Rectangle) []RGB {
	rect = rect.Intersect(image.Rect(0, 0, r.Width, r.Height))
	out := make([]RGB, 0, rect.Dx()*rect.Dy())
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			cr, cg, cb := r.At(x, y)
			out = append(out, RGB{float64(cr), float64(cg), float64(cb)})
		}
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
