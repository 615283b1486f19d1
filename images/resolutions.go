package images

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Resolution is a named capture resolution of a surveillance camera.
type Resolution struct {
	// Name is the short name accepted by ParseResolution, e.g. "1080p".
	Name string `json:"name"`
	// AspectRatio is the nominal ratio, e.g. "16:9".
	AspectRatio string `json:"aspect_ratio"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// MegaPixels returns the pixel count in millions, rounded to two decimals.
func (r Resolution) MegaPixels() float64 {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	return math.Round(float64(r.Width*r.Height)/10_000) / 100
}

func (r Resolution) String() string {
	return fmt.Sprintf("%s (%dx%d, %.2fMP)", r.Name, r.Width, r.Height, r.MegaPixels())
}

// Common camera resolutions in increasing pixel count.
var resolutions = []Resolution{
	{Name: "nhd", AspectRatio: "16:9", Width: 640, Height: 360},
	{Name: "vga", AspectRatio: "4:3", Width: 640, Height: 480},
	{Name: "fwvga", AspectRatio: "16:9", Width: 854, Height: 480},
	{Name: "540p", AspectRatio: "16:9", Width: 960, Height: 540},
	{Name: "720p", AspectRatio: "16:9", Width: 1280, Height: 720},
	{Name: "1mp", AspectRatio: "5:4", Width: 1280, Height: 1024},
	{Name: "2mp", AspectRatio: "4:3", Width: 1600, Height: 1200},
	{Name: "1080p", AspectRatio: "16:9", Width: 1920, Height: 1080},
	{Name: "3mp", AspectRatio: "4:3", Width: 2048, Height: 1536},
	{Name: "1440p", AspectRatio: "16:9", Width: 2560, Height: 1440},
	{Name: "4mp", AspectRatio: "16:9", Width: 2688, Height: 1520},
	{Name: "6mp", AspectRatio: "3:2", Width: 3072, Height: 2048},
	{Name: "4k", AspectRatio: "16:9", Width: 3840, Height: 2160},
	{Name: "12mp", AspectRatio: "4:3", Width: 4000, Height: 3000},
}

// Resolutions returns the named resolutions in increasing pixel count.
func Resolutions() []Resolution {
	return append([]Resolution(nil), resolutions...)
}

// ParseResolution accepts a resolution name (case-insensitive) or WIDTHxHEIGHT.
//
// Arguments:
//   - s: e.g. "1080p", "4K" or "800x600".
//
// Returns:
//   - Resolution: The resolution. Custom sizes are named after their dimensions.
//   - error: An error if s is neither a known name nor positive dimensions.
func ParseResolution(s string) (Resolution, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, r := range resolutions {
		if r.Name == name {
			return r, nil
		}
	}

	w, h, ok := strings.Cut(name, "x")
	if ok {
		width, errW := strconv.Atoi(w)
		height, errH := strconv.Atoi(h)
		if errW == nil && errH == nil && width > 0 && height > 0 {
			return Resolution{Name: name, Width: width, Height: height}, nil
		}
	}
	return Resolution{}, errors.Errorf("unknown resolution %q", s)
}
