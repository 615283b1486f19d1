package images

import (
	"image"
	"image/color"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// Channels is the number of interleaved channels in a Frame.
const Channels = 3

// Frame is one captured image with interleaved 8-bit RGB pixels, row major.
type Frame struct {
	// Width of the frame in pixels.
	Width int
	// Height of the frame in pixels.
	Height int
	// Pix holds Width*Height*3 bytes, R G B per pixel.
	Pix []byte
	// Seq is the capture sequence number assigned by the source.
	Seq uint64
	// Timestamp is when the frame was captured.
	Timestamp time.Time
}

// NewFrame allocates a black frame of the given size.
func NewFrame(width, height int) *Frame {
	if width < 0 || height < 0 {
		width, height = 0, 0
	}
	return &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*Channels),
	}
}

// Validate checks that the frame has positive dimensions and a large enough pixel buffer.
//
// Returns:
//   - error: An error describing the first problem found, nil for a usable frame.
func (f *Frame) Validate() error {
	if f == nil {
		return errors.New("frame is nil")
	}
	if f.Width <= 0 || f.Height <= 0 {
		return errors.Errorf("invalid frame dimensions: %dx%d", f.Width, f.Height)
	}
	if want := f.Width * f.Height * Channels; len(f.Pix) < want {
		return errors.Errorf("frame buffer holds %d bytes, needs %d", len(f.Pix), want)
	}
	return nil
}

// At returns the RGB value of the pixel at (x, y).
func (f *Frame) At(x, y int) (r, g, b uint8) {
	i := (y*f.Width + x) * Channels
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

// Set writes the RGB value of the pixel at (x, y).
func (f *Frame) Set(x, y int, r, g, b uint8) {
	i := (y*f.Width + x) * Channels
	f.Pix[i], f.Pix[i+1], f.Pix[i+2] = r, g, b
}

// Image returns the frame as an opaque *image.NRGBA.
func (f *Frame) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		src := f.Pix[y*f.Width*Channels : (y+1)*f.Width*Channels]
		dst := img.Pix[y*img.Stride : y*img.Stride+f.Width*4]
		for x := 0; x < f.Width; x++ {
			dst[x*4+0] = src[x*3+0]
			dst[x*4+1] = src[x*3+1]
			dst[x*4+2] = src[x*3+2]
			dst[x*4+3] = 0xff
		}
	}
	return img
}

// FromImage converts any image.Image into a Frame, dropping alpha.
//
// Arguments:
//   - img: The source image.
//
// Returns:
//   - *Frame: The converted frame.
func FromImage(img image.Image) *Frame {
	// imaging.Clone normalizes every image type to a zero-origin NRGBA.
	src := imaging.Clone(img)
	b := src.Bounds()
	f := NewFrame(b.Dx(), b.Dy())
	for y := 0; y < f.Height; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+f.Width*4]
		for x := 0; x < f.Width; x++ {
			i := (y*f.Width + x) * Channels
			f.Pix[i+0] = row[x*4+0]
			f.Pix[i+1] = row[x*4+1]
			f.Pix[i+2] = row[x*4+2]
		}
	}
	return f
}

// Fill paints the rectangle r with c, clipped to the frame.
func (f *Frame) Fill(r image.Rectangle, c color.Color) {
	r = r.Intersect(image.Rect(0, 0, f.Width, f.Height))
	cr, cg, cb, _ := c.RGBA()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			f.Set(x, y, uint8(cr>>8), uint8(cg>>8), uint8(cb>>8))
		}
	}
}
