// Package images - Frame and box primitives shared by the detection pipeline.
package images

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
)

// Box is an axis-aligned bounding box.
//
// Corners are stored y-before-x, (Y1, X1) top-left and (Y2, X2) bottom-right, which is the
// ordering the suppression step consumes.
type Box struct {
	Y1, X1, Y2, X2 float32
}

// BoxFromCenter converts a center/size box into corner form.
//
// Arguments:
//   - cx, cy: The box center.
//   - w, h: The box width and height.
//
// Returns:
//   - Box: The corner-form box.
func BoxFromCenter(cx, cy, w, h float32) Box {
	x1 := cx - w/2
	y1 := cy - h/2
	return Box{Y1: y1, X1: x1, Y2: y1 + h, X2: x1 + w}
}

// Width returns the horizontal extent of the box.
func (b Box) Width() float32 {
	return math32.Abs(b.X2 - b.X1)
}

// Height returns the vertical extent of the box.
func (b Box) Height() float32 {
	return math32.Abs(b.Y2 - b.Y1)
}

// Area returns the area of the box.
func (b Box) Area() float32 {
	return b.Width() * b.Height()
}

// Center returns the center point (x, y) of the box.
func (b Box) Center() (float32, float32) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// Canon returns the box with Y1 <= Y2 and X1 <= X2.
func (b Box) Canon() Box {
	return Box{
		Y1: math32.Min(b.Y1, b.Y2),
		X1: math32.Min(b.X1, b.X2),
		Y2: math32.Max(b.Y1, b.Y2),
		X2: math32.Max(b.X1, b.X2),
	}
}

// Scale multiplies the x coordinates by sx and the y coordinates by sy.
func (b Box) Scale(sx, sy float32) Box {
	return Box{Y1: b.Y1 * sy, X1: b.X1 * sx, Y2: b.Y2 * sy, X2: b.X2 * sx}
}

// Clamp limits the box to [0, width] x [0, height].
func (b Box) Clamp(width, height float32) Box {
	c := b.Canon()
	return Box{
		Y1: clamp(c.Y1, 0, height),
		X1: clamp(c.X1, 0, width),
		Y2: clamp(c.Y2, 0, height),
		X2: clamp(c.X2, 0, width),
	}
}

// Rect converts the box to an image.Rectangle, rounding to the nearest pixel.
func (b Box) Rect() image.Rectangle {
	c := b.Canon()
	return image.Rect(
		int(math32.Round(c.X1)),
		int(math32.Round(c.Y1)),
		int(math32.Round(c.X2)),
		int(math32.Round(c.Y2)),
	)
}

func (b Box) String() string {
	return fmt.Sprintf("(y1=%.1f, x1=%.1f, y2=%.1f, x2=%.1f)", b.Y1, b.X1, b.Y2, b.X2)
}

// IoU calculates the intersection over union of two boxes.
//
// The overlap is computed on canonicalized corners, so boxes with swapped corners compare the
// same as their canonical form. Boxes without a positive area never overlap anything.
//
//	IoU = Area of Intersection / Area of Union
//
// Arguments:
//   - a: The first box.
//   - b: The second box.
//
// Returns:
//   - float32: A value in [0, 1].
//
// Example:
//
// ```go
//
//	a := Box{Y1: 0, X1: 0, Y2: 10, X2: 10}
//	b := Box{Y1: 5, X1: 5, Y2: 15, X2: 15}
//	iou := IoU(a, b) // 25 / 175 = 0.142857
//
// ```
func IoU(a, b Box) float32 {
	a = a.Canon()
	b = b.Canon()

	areaA := a.Area()
	areaB := b.Area()
	if areaA <= 0 || areaB <= 0 {
		return 0
	}

	iy1 := math32.Max(a.Y1, b.Y1)
	ix1 := math32.Max(a.X1, b.X1)
	iy2 := math32.Min(a.Y2, b.Y2)
	ix2 := math32.Min(a.X2, b.X2)

	interArea := math32.Max(iy2-iy1, 0) * math32.Max(ix2-ix1, 0)
	unionArea := areaA + areaB - interArea
	if unionArea <= 0 {
		return 0
	}

	return interArea / unionArea
}

func clamp(v, lo, hi float32) float32 {
	return math32.Max(lo, math32.Min(v, hi))
}
