package providers

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// LibraryPathEnv overrides the shared library location.
const LibraryPathEnv = "ONNXRUNTIME_LIB"

// ErrLibraryNotFound is returned when the onnxruntime shared library cannot be located.
var ErrLibraryNotFound = errors.New("onnxruntime library not found")

// SharedLibPath returns the path to the shared library for the current platform.
//
// Returns:
//   - string: The value of ONNXRUNTIME_LIB when set, otherwise the bundled library under
//     ./third_party.
//   - error: An error if the platform has no bundled library.
func SharedLibPath() (string, error) {
	if p := os.Getenv(LibraryPathEnv); p != "" {
		return p, nil
	}
	var name string
	switch runtime.GOOS {
	case "windows":
		name = "onnxruntime.dll"
	case "darwin":
		name = "libonnxruntime.1.23.0.dylib"
	case "linux":
		name = "onnxruntime.so"
		if runtime.GOARCH == "arm64" {
			name = "onnxruntime_arm64.so"
		}
	default:
		return "", errors.Wrapf(ErrLibraryNotFound, "no bundled library for %s/%s", runtime.GOOS, runtime.GOARCH)
	}
	return filepath.Join("third_party", name), nil
}

var envMu sync.Mutex

// initEnvironment loads the shared library and initializes the runtime once per process.
func initEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libPath == "" {
		p, err := SharedLibPath()
		if err != nil {
			return err
		}
		libPath = p
	}
	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(ErrLibraryNotFound, "%s: %v", libPath, err)
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "initializing onnxruntime environment")
	}
	return nil
}
