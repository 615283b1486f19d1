package models

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ArtifactName is the file looked up inside a model directory.
const ArtifactName = "model.onnx"

// Fetch reads a model artifact from a local path or an http(s) URL.
//
// Progress is reported as monotonically non-decreasing fractions in [0, 1] and terminates at 1.0 on
// success. When the size of the artifact is unknown only the final 1.0 is reported.
//
// Arguments:
//   - ctx: Cancels a remote download.
//   - location: A file, a directory holding model.onnx, a path that gains ".onnx", or a URL.
//   - progress: Optional progress callback.
//
// Returns:
//   - []byte: The artifact contents.
//   - error: An error if the artifact could not be found or read.
func Fetch(ctx context.Context, location string, progress ProgressFunc) ([]byte, error) {
	if progress == nil {
		progress = func(float64) {}
	}

	var (
		body io.ReadCloser
		size int64
	)
	if isRemote(location) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid model url %q", location)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, errors.Wrapf(err, "downloading %q", location)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, errors.Errorf("downloading %q: unexpected status %s", location, resp.Status)
		}
		body, size = resp.Body, resp.ContentLength
	} else {
		path, err := Resolve(location)
		if err != nil {
			return nil, err
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "opening %q", path)
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "stat %q", path)
		}
		body, size = f, info.Size()
	}
	defer body.Close()

	progress(0)
	data, err := io.ReadAll(&progressReader{r: body, total: size, fn: progress})
	if err != nil {
		return nil, errors.Wrapf(err, "reading %q", location)
	}
	progress(1)
	return data, nil
}

// Resolve maps a local model location to the artifact file.
//
// Arguments:
//   - location: A file, a directory holding model.onnx, or a path that exists with an ".onnx" suffix.
//
// Returns:
//   - string: The artifact path.
//   - error: An error if no artifact exists at the location.
func Resolve(location string) (string, error) {
	info, err := os.Stat(location)
	switch {
	case err == nil && info.IsDir():
		path := filepath.Join(location, ArtifactName)
		if _, err := os.Stat(path); err != nil {
			return "", errors.Wrapf(err, "model directory %q has no %s", location, ArtifactName)
		}
		return path, nil
	case err == nil:
		return location, nil
	case os.IsNotExist(err) && filepath.Ext(location) == "":
		if _, err := os.Stat(location + ".onnx"); err == nil {
			return location + ".onnx", nil
		}
	}
	return "", errors.Errorf("model artifact not found at %q", location)
}

func isRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

type progressReader struct {
	r     io.Reader
	total int64
	read  int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if n > 0 && p.total > 0 {
		f := float64(p.read) / float64(p.total)
		if f > 1 {
			f = 1
		}
		p.fn(f)
	}
	return n, err
}
