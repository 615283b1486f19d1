// Package config - YAML configuration of the detector, its runtime and its streams.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nvr-ai/live-detect/controller"
	"github.com/nvr-ai/live-detect/images"
	"github.com/nvr-ai/live-detect/inference/providers"
	"github.com/nvr-ai/live-detect/logger"
	"github.com/nvr-ai/live-detect/models"
	"github.com/nvr-ai/live-detect/models/postprocess"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Config represents the detector configuration.
type Config struct {
	Model     ModelConfig        `yaml:"model"`
	Detection postprocess.Config `yaml:"detection"`
	Scheduler SchedulerConfig    `yaml:"scheduler"`
	Runtime   providers.Config   `yaml:"runtime"`
	Streams   []StreamConfig     `yaml:"streams"`
	Log       logger.Config      `yaml:"log"`
}

// ModelConfig selects the model and optionally overrides its registry entry.
type ModelConfig struct {
	// ID is the registry identifier.
	ID models.ID `yaml:"id"`
	// Location replaces the registry location when set.
	Location string `yaml:"location"`
	// NumClasses replaces the registry class count when positive.
	NumClasses int `yaml:"num_classes"`
	// InputSize replaces the registry input side when positive.
	InputSize int `yaml:"input_size"`
}

// SchedulerConfig contains frame loop settings shared by every stream.
type SchedulerConfig struct {
	// InferenceTimeout bounds every model run. Zero means no bound.
	InferenceTimeout time.Duration `yaml:"inference_timeout"`
	// ReportEvery is the number of cycles per frame rate report.
	ReportEvery int `yaml:"report_every"`
}

// StreamConfig describes one frame source.
type StreamConfig struct {
	// Name identifies the stream in logs and results. Empty generates an id.
	Name string `yaml:"name"`
	// Source is a camera index, a video file or URL, an image file, a directory or a glob.
	Source string `yaml:"source"`
	// FPS paces video files and image sources. Zero keeps the source default.
	FPS float64 `yaml:"fps"`
	// Loop restarts finite sources at the end.
	Loop bool `yaml:"loop"`
	// Resolution requests a capture resolution from cameras by name ("1080p") or as WIDTHxHEIGHT.
	Resolution string `yaml:"resolution"`
}

// Size returns the requested capture resolution, or zeros for the device default.
func (s StreamConfig) Size() (width, height int, err error) {
	if s.Resolution == "" {
		return 0, 0, nil
	}
	r, err := images.ParseResolution(s.Resolution)
	if err != nil {
		return 0, 0, err
	}
	return r.Width, r.Height, nil
}

// Default returns the configuration used when no file is given: the default model on camera 0.
func Default() *Config {
	return &Config{
		Model:     ModelConfig{ID: models.DefaultID},
		Detection: postprocess.DefaultConfig(),
		Scheduler: SchedulerConfig{ReportEvery: controller.DefaultConfig().ReportEvery},
		Runtime:   providers.DefaultConfig(),
		Streams:   []StreamConfig{{Name: "camera", Source: "0"}},
		Log:       logger.DefaultConfig(),
	}
}

// Load reads the configuration from a YAML file.
//
// Fields missing from the file keep their defaults.
//
// Arguments:
//   - path: The path of the YAML file.
//
// Returns:
//   - *Config: The validated configuration.
//   - error: An error if the file cannot be read, parsed or validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Model.ID == "" {
		c.Model.ID = models.DefaultID
	}
	c.Model.ID = models.ID(strings.ToLower(strings.TrimSpace(string(c.Model.ID))))
	if c.Scheduler.ReportEvery == 0 {
		c.Scheduler.ReportEvery = controller.DefaultConfig().ReportEvery
	}
	if c.Log.Level == "" {
		c.Log.Level = logger.DefaultConfig().Level
	}
	if c.Log.Format == "" {
		c.Log.Format = logger.DefaultConfig().Format
	}
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var err error

	if _, e := models.ParseID(string(c.Model.ID)); e != nil {
		err = multierr.Append(err, errors.Wrap(e, "model.id"))
	}
	if c.Model.NumClasses < 0 {
		err = multierr.Append(err, fmt.Errorf("model.num_classes must be >= 0, got: %d", c.Model.NumClasses))
	}
	if c.Model.InputSize < 0 {
		err = multierr.Append(err, fmt.Errorf("model.input_size must be >= 0, got: %d", c.Model.InputSize))
	}
	if e := c.Detection.Validate(); e != nil {
		err = multierr.Append(err, errors.Wrap(e, "detection"))
	}
	if c.Scheduler.InferenceTimeout < 0 {
		err = multierr.Append(err, fmt.Errorf("scheduler.inference_timeout must be >= 0, got: %v", c.Scheduler.InferenceTimeout))
	}
	if c.Scheduler.ReportEvery < 0 {
		err = multierr.Append(err, fmt.Errorf("scheduler.report_every must be >= 0, got: %d", c.Scheduler.ReportEvery))
	}
	if e := c.Runtime.Validate(); e != nil {
		err = multierr.Append(err, errors.Wrap(e, "runtime"))
	}

	if len(c.Streams) == 0 {
		err = multierr.Append(err, errors.New("at least one stream is required"))
	}
	names := make(map[string]bool, len(c.Streams))
	for i, s := range c.Streams {
		if strings.TrimSpace(s.Source) == "" {
			err = multierr.Append(err, fmt.Errorf("streams[%d].source is required", i))
		}
		if s.FPS < 0 {
			err = multierr.Append(err, fmt.Errorf("streams[%d].fps must be >= 0, got: %v", i, s.FPS))
		}
		if _, _, e := s.Size(); e != nil {
			err = multierr.Append(err, errors.Wrapf(e, "streams[%d].resolution", i))
		}
		if s.Name != "" {
			if names[s.Name] {
				err = multierr.Append(err, fmt.Errorf("streams[%d].name %q is not unique", i, s.Name))
			}
			names[s.Name] = true
		}
	}

	if f := c.Log.Format; f != "json" && f != "console" {
		err = multierr.Append(err, fmt.Errorf("invalid log.format: %s (must be: json or console)", f))
	}
	return err
}

// Controller returns the scheduler settings of every stream.
func (c *Config) Controller() controller.Config {
	return controller.Config{
		Postprocess: c.Detection,
		ReportEvery: c.Scheduler.ReportEvery,
	}
}

// Resolve looks a model up in the registry and applies the model section overrides to the
// configured model. It has the signature of inference.Resolver.
//
// Arguments:
//   - id: The model identifier.
//
// Returns:
//   - models.Spec: The spec to load.
//   - error: models.ErrUnknownModel if the id is not registered.
func (c *Config) Resolve(id models.ID) (models.Spec, error) {
	spec, err := models.Lookup(id)
	if err != nil {
		return models.Spec{}, err
	}
	if id != c.Model.ID {
		return spec, nil
	}
	if c.Model.Location != "" {
		spec.Location = c.Model.Location
	}
	if c.Model.NumClasses > 0 {
		spec.NumClasses = c.Model.NumClasses
	}
	if c.Model.InputSize > 0 {
		spec.InputSize = c.Model.InputSize
	}
	return spec, nil
}

// ModelChanged reports whether switching from c to next requires a model swap.
func (c *Config) ModelChanged(next *Config) bool {
	return c.Model != next.Model
}
