package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Watcher reloads a configuration file whenever it changes on disk.
//
// The parent directory is watched rather than the file, so editors that replace the file on save
// are followed.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	log     *zap.Logger
	last    *Config
}

// NewWatcher starts watching path. current is the configuration already in use; reloads equal to
// it are not reported.
//
// Arguments:
//   - path: The configuration file.
//   - current: The configuration loaded from path.
//   - log: Logger; nil discards.
//
// Returns:
//   - *Watcher: The watcher. Run delivers the changes.
//   - error: An error if the directory cannot be watched.
func NewWatcher(path string, current *Config, log *zap.Logger) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "resolving config path")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating file watcher")
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, errors.Wrapf(err, "watching %s", filepath.Dir(abs))
	}
	return &Watcher{path: abs, watcher: w, log: log.With(zap.String("config", abs)), last: current}, nil
}

// Run calls onChange with every valid configuration that differs from the previous one, until ctx
// is cancelled. Invalid files are logged and skipped.
func (w *Watcher) Run(ctx context.Context, onChange func(*Config)) error {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("config watch error", zap.Error(err))
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload(onChange)
		}
	}
}

func (w *Watcher) reload(onChange func(*Config)) {
	data, err := os.ReadFile(w.path)
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		// Truncated mid-save; the write that follows triggers another reload.
		return
	}
	cfg, err := Parse(data)
	if err != nil {
		w.log.Warn("ignoring config change", zap.Error(err))
		return
	}
	if reflect.DeepEqual(cfg, w.last) {
		return
	}
	w.last = cfg
	w.log.Info("config reloaded", zap.String("model", string(cfg.Model.ID)))
	onChange(cfg)
}
