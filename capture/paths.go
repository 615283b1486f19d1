package capture

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true, ".gif": true, ".tif": true, ".tiff": true,
}

// IsImage reports whether path has a still image extension.
func IsImage(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsStill reports whether source names still images: an image file, a directory or a glob.
func IsStill(source string) bool {
	if strings.ContainsAny(source, "*?[") || IsImage(source) {
		return true
	}
	info, err := os.Stat(source)
	return err == nil && info.IsDir()
}

// ImagePaths expands a still image source into image files in lexical order.
//
// Arguments:
//   - source: An image file, a directory (not recursed) or a glob pattern.
//
// Returns:
//   - []string: The image files.
//   - error: ErrCaptureUnsupported if the source matches no image.
func ImagePaths(source string) ([]string, error) {
	var candidates []string
	info, err := os.Stat(source)
	switch {
	case err == nil && info.IsDir():
		entries, err := os.ReadDir(source)
		if err != nil {
			return nil, errors.Wrapf(ErrCaptureUnsupported, "reading %s: %v", source, err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				candidates = append(candidates, filepath.Join(source, e.Name()))
			}
		}
	case err == nil:
		candidates = []string{source}
	default:
		matches, err := filepath.Glob(source)
		if err != nil {
			return nil, errors.Wrapf(ErrCaptureUnsupported, "pattern %s: %v", source, err)
		}
		candidates = matches
	}

	var paths []string
	for _, p := range candidates {
		if IsImage(p) {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return nil, errors.Wrapf(ErrCaptureUnsupported, "no images in %s", source)
	}
	sort.Strings(paths)
	return paths, nil
}
