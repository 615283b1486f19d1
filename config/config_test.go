package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvr-ai/live-detect/inference/providers"
	"github.com/nvr-ai/live-detect/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
model:
  id: YOLOv8n
  location: /srv/models/v8n.onnx
  num_classes: 3
detection:
  score_threshold: 0.4
scheduler:
  inference_timeout: 750ms
runtime:
  provider: cuda
  cuda:
    deviceID: 1
streams:
  - name: door
    source: "0"
    resolution: 720p
  - name: shots
    source: ./shots/*.jpg
    fps: 2
    loop: true
log:
  format: json
`

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "detect.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, models.DefaultID, cfg.Model.ID)
	assert.Equal(t, 10, cfg.Controller().ReportEvery)
	assert.Equal(t, 100, cfg.Controller().Postprocess.MaxOutputSize)
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, t.TempDir(), sample))
	require.NoError(t, err)

	assert.Equal(t, models.YOLOv8n, cfg.Model.ID)
	assert.Equal(t, float32(0.4), cfg.Detection.ScoreThreshold)
	assert.Equal(t, float32(0.5), cfg.Detection.IoUThreshold, "unset fields keep defaults")
	assert.Equal(t, 100, cfg.Detection.MaxOutputSize)
	assert.Equal(t, 750*time.Millisecond, cfg.Scheduler.InferenceTimeout)
	assert.Equal(t, 10, cfg.Scheduler.ReportEvery)
	assert.Equal(t, providers.CUDAProviderBackend, cfg.Runtime.Provider)
	assert.Equal(t, 1, cfg.Runtime.CUDA.DeviceID)
	assert.Equal(t, providers.GraphOptimizationExtended, cfg.Runtime.Optimization.GraphOptimization)
	require.Len(t, cfg.Streams, 2)
	assert.Equal(t, StreamConfig{Name: "shots", Source: "./shots/*.jpg", FPS: 2, Loop: true}, cfg.Streams[1])
	w, h, err := cfg.Streams[0].Size()
	require.NoError(t, err)
	assert.Equal(t, []int{1280, 720}, []int{w, h})
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Parse([]byte("model: ["))
	assert.Error(t, err)

	_, err = Parse([]byte(`
model:
  id: resnet
detection:
  score_threshold: 1.5
  max_output_size: 0
streams: []
log:
  format: text
`))
	require.Error(t, err)
	for _, want := range []string{"model.id", "score_threshold", "max_output_size", "at least one stream", "log.format"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateStreams(t *testing.T) {
	cfg := Default()
	cfg.Streams = []StreamConfig{{Name: "a", Source: "0"}, {Name: "a", Source: " "}, {Source: "1", FPS: -1, Resolution: "huge"}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not unique")
	assert.Contains(t, err.Error(), "streams[1].source is required")
	assert.Contains(t, err.Error(), "streams[2].fps")
	assert.Contains(t, err.Error(), "streams[2].resolution")
}

func TestResolve(t *testing.T) {
	cfg := Default()
	cfg.Model = ModelConfig{ID: models.YOLO11s, Location: "/tmp/s.onnx", NumClasses: 2, InputSize: 320}

	spec, err := cfg.Resolve(models.YOLO11s)
	require.NoError(t, err)
	assert.Equal(t, models.Spec{ID: models.YOLO11s, Family: models.FamilyYOLO, Location: "/tmp/s.onnx", NumClasses: 2, InputSize: 320}, spec)

	spec, err = cfg.Resolve(models.YOLO11n)
	require.NoError(t, err)
	assert.Equal(t, 80, spec.NumClasses, "overrides only apply to the configured model")
	assert.Equal(t, filepath.Join(models.DefaultDir, "yolo11n"), spec.Location)

	_, err = cfg.Resolve("nope")
	assert.ErrorIs(t, err, models.ErrUnknownModel)

	next := *cfg
	assert.False(t, cfg.ModelChanged(&next))
	next.Model.ID = models.YOLO11m
	assert.True(t, cfg.ModelChanged(&next))
}

func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, sample)
	current, err := Load(path)
	require.NoError(t, err)

	w, err := NewWatcher(path, current, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan *Config, 16)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, func(c *Config) { changes <- c }) }()

	// Invalid and unrelated files are ignored.
	writeConfig(t, dir, "model: [")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1"), 0o600))

	writeConfig(t, dir, "model:\n  id: yolo11m\n")
	timeout := time.After(5 * time.Second)
	for reloaded := false; !reloaded; {
		select {
		case c := <-changes:
			reloaded = c.Model.ID == models.YOLO11m
		case <-timeout:
			t.Fatal("no reload after the file changed")
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
