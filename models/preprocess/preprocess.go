// Package preprocess - Letterbox preprocessing of frames into model input tensors.
package preprocess

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/nfnt/resize"
	"github.com/nvr-ai/live-detect/images"
	"github.com/nvr-ai/live-detect/inference"
	"github.com/pkg/errors"
)

// ChannelOrder defines the ordering of image channels.
type ChannelOrder int

const (
	// ChannelOrderHWC is Height-Width-Channel ordering, shape [1, H, W, 3].
	ChannelOrderHWC ChannelOrder = iota
	// ChannelOrderCHW is Channel-Height-Width ordering (common for ONNX), shape [1, 3, H, W].
	ChannelOrderCHW
)

func (o ChannelOrder) String() string {
	if o == ChannelOrderCHW {
		return "CHW"
	}
	return "HWC"
}

// Letterbox maps coordinates between the original frame and the model input.
//
// The frame is padded on the bottom and right into a square of Side x Side pixels, which is then
// resized to TargetWidth x TargetHeight. A Letterbox is only valid for frames of SrcWidth x
// SrcHeight.
type Letterbox struct {
	SrcWidth     int
	SrcHeight    int
	Side         int
	TargetWidth  int
	TargetHeight int
	// XRatio is Side / SrcWidth.
	XRatio float32
	// YRatio is Side / SrcHeight.
	YRatio float32
}

// NewLetterbox computes the transform for a frame and a target size.
func NewLetterbox(srcWidth, srcHeight, targetWidth, targetHeight int) Letterbox {
	side := max(srcWidth, srcHeight)
	return Letterbox{
		SrcWidth:     srcWidth,
		SrcHeight:    srcHeight,
		Side:         side,
		TargetWidth:  targetWidth,
		TargetHeight: targetHeight,
		XRatio:       float32(side) / float32(srcWidth),
		YRatio:       float32(side) / float32(srcHeight),
	}
}

// ToFrame maps a box from model input space to original frame pixels, clamped to the frame.
func (l Letterbox) ToFrame(b images.Box) images.Box {
	sx := float32(l.Side) / float32(l.TargetWidth)
	sy := float32(l.Side) / float32(l.TargetHeight)
	return b.Scale(sx, sy).Clamp(float32(l.SrcWidth), float32(l.SrcHeight))
}

// ToTarget maps a box from original frame pixels to model input space.
func (l Letterbox) ToTarget(b images.Box) images.Box {
	sx := float32(l.TargetWidth) / float32(l.Side)
	sy := float32(l.TargetHeight) / float32(l.Side)
	return b.Scale(sx, sy)
}

// Content returns the part of the model input covered by frame pixels; the rest is padding.
func (l Letterbox) Content() images.Box {
	return l.ToTarget(images.Box{X2: float32(l.SrcWidth), Y2: float32(l.SrcHeight)})
}

// Preprocessor converts frames into normalized model input tensors.
type Preprocessor struct {
	// Order is the channel layout of the produced tensor.
	Order ChannelOrder
}

// New creates a preprocessor producing tensors in the given channel order.
func New(order ChannelOrder) *Preprocessor {
	return &Preprocessor{Order: order}
}

// ForShape derives the target size and channel order from a model's declared input shape.
//
// Arguments:
//   - shape: A [1, H, W, 3] or [1, 3, H, W] shape.
//
// Returns:
//   - width, height: The target size.
//   - order: The channel order.
//   - error: An error if the shape is not an image input.
func ForShape(shape inference.Shape) (width, height int, order ChannelOrder, err error) {
	if len(shape) != 4 || !shape.Valid() || shape[0] != 1 {
		return 0, 0, 0, errors.Wrapf(inference.ErrPreprocess, "unsupported input shape %v", shape)
	}
	switch {
	case shape[3] == images.Channels:
		return int(shape[2]), int(shape[1]), ChannelOrderHWC, nil
	case shape[1] == images.Channels:
		return int(shape[3]), int(shape[2]), ChannelOrderCHW, nil
	default:
		return 0, 0, 0, errors.Wrapf(inference.ErrPreprocess, "input shape %v has no 3-channel axis", shape)
	}
}

// Prepare letterboxes, resizes and normalizes a frame.
//
// Order of operations:
//  1. Pad the frame on the bottom and right with black into a max(w, h) square.
//  2. Resize the square to targetWidth x targetHeight with bilinear interpolation.
//  3. Divide every channel value by 255 and add the batch dimension.
//
// Arguments:
//   - frame: The source frame.
//   - targetWidth, targetHeight: The model input size.
//
// Returns:
//   - *inference.Tensor: The input tensor, owned by the caller.
//   - Letterbox: The transform for mapping detections back onto this frame.
//   - error: ErrPreprocess for an invalid frame or target size.
func (p *Preprocessor) Prepare(frame *images.Frame, targetWidth, targetHeight int) (*inference.Tensor, Letterbox, error) {
	if err := frame.Validate(); err != nil {
		return nil, Letterbox{}, errors.Wrapf(inference.ErrPreprocess, "%v", err)
	}
	if targetWidth <= 0 || targetHeight <= 0 {
		return nil, Letterbox{}, errors.Wrapf(inference.ErrPreprocess, "invalid target size %dx%d", targetWidth, targetHeight)
	}

	lb := NewLetterbox(frame.Width, frame.Height, targetWidth, targetHeight)
	padded := pad(frame, lb.Side)
	resized := resize.Resize(uint(targetWidth), uint(targetHeight), padded, resize.Bilinear)

	var shape inference.Shape
	if p.Order == ChannelOrderCHW {
		shape = inference.Shape{1, images.Channels, int64(targetHeight), int64(targetWidth)}
	} else {
		shape = inference.Shape{1, int64(targetHeight), int64(targetWidth), images.Channels}
	}
	data := make([]float32, shape.Size())
	p.fill(data, resized, targetWidth, targetHeight)

	tensor, err := inference.NewTensor(shape, data)
	if err != nil {
		return nil, Letterbox{}, errors.Wrap(inference.ErrPreprocess, err.Error())
	}
	return tensor, lb, nil
}

// pad copies the frame into the top-left corner of an opaque black side x side square.
func pad(frame *images.Frame, side int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	for y := 0; y < frame.Height; y++ {
		src := frame.Pix[y*frame.Width*images.Channels : (y+1)*frame.Width*images.Channels]
		row := dst.Pix[y*dst.Stride:]
		for x := 0; x < frame.Width; x++ {
			row[x*4+0] = src[x*3+0]
			row[x*4+1] = src[x*3+1]
			row[x*4+2] = src[x*3+2]
		}
	}
	return dst
}

// fill writes normalized channel values of img into data in the configured order.
func (p *Preprocessor) fill(data []float32, img image.Image, width, height int) {
	plane := width * height
	set := func(x, y int, r, g, b uint8) {
		if p.Order == ChannelOrderCHW {
			i := y*width + x
			data[i] = float32(r) / 255.0
			data[plane+i] = float32(g) / 255.0
			data[2*plane+i] = float32(b) / 255.0
			return
		}
		i := (y*width + x) * images.Channels
		data[i] = float32(r) / 255.0
		data[i+1] = float32(g) / 255.0
		data[i+2] = float32(b) / 255.0
	}

	b := img.Bounds()
	switch src := img.(type) {
	case *image.RGBA:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				o := src.PixOffset(b.Min.X+x, b.Min.Y+y)
				set(x, y, src.Pix[o], src.Pix[o+1], src.Pix[o+2])
			}
		}
	case *image.NRGBA:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				o := src.PixOffset(b.Min.X+x, b.Min.Y+y)
				set(x, y, src.Pix[o], src.Pix[o+1], src.Pix[o+2])
			}
		}
	default:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				set(x, y, uint8(r>>8), uint8(g>>8), uint8(bl>>8))
			}
		}
	}
}
