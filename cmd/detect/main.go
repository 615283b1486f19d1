// Package main - The detect command runs live object detection over cameras, videos and images.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/nvr-ai/live-detect/config"
	"github.com/nvr-ai/live-detect/inference/providers"
	"github.com/nvr-ai/live-detect/models"
	"github.com/urfave/cli/v2"
)

const (
	flagConfig    = "config"
	flagModel     = "model"
	flagSource    = "source"
	flagScore     = "score"
	flagIoU       = "iou"
	flagMaxOutput = "max-output"
	flagLogLevel  = "log-level"
	flagProvider  = "provider"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	ids := make([]string, 0, len(models.IDs()))
	for _, id := range models.IDs() {
		ids = append(ids, string(id))
	}
	return &cli.App{
		Name:            "detect",
		Usage:           "run object detection on cameras, video files and still images",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE` and reload the model when it changes",
				EnvVars: []string{"DETECT_CONFIG"},
			},
			&cli.StringFlag{
				Name:    flagModel,
				Aliases: []string{"m"},
				Usage:   "model `ID`, one of " + strings.Join(ids, ", "),
			},
			&cli.StringSliceFlag{
				Name:    flagSource,
				Aliases: []string{"s"},
				Usage:   "camera index, video file or URL, image, directory or glob; repeat for several streams",
			},
			&cli.Float64Flag{
				Name:  flagScore,
				Usage: "minimum detection score in [0, 1]",
			},
			&cli.Float64Flag{
				Name:  flagIoU,
				Usage: "overlap in [0, 1] at which a weaker box is suppressed",
			},
			&cli.IntFlag{
				Name:  flagMaxOutput,
				Usage: "maximum detections per frame",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Usage: "log `LEVEL`: debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:  flagProvider,
				Usage: "execution provider: cpu, cuda, coreml or openvino",
			},
		},
		Action: runAction,
	}
}

// loadConfig reads the configuration file, if any, and applies the command line overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String(flagConfig); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := applyFlags(c, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags overrides cfg with the flags set on the command line. It runs again on every reload so
// the command line keeps precedence over the file.
func applyFlags(c *cli.Context, cfg *config.Config) error {
	if c.IsSet(flagModel) {
		id, err := models.ParseID(c.String(flagModel))
		if err != nil {
			return err
		}
		cfg.Model.ID = id
	}
	if c.IsSet(flagSource) {
		cfg.Streams = cfg.Streams[:0:0]
		for _, src := range c.StringSlice(flagSource) {
			cfg.Streams = append(cfg.Streams, config.StreamConfig{Source: src})
		}
	}
	if c.IsSet(flagScore) {
		cfg.Detection.ScoreThreshold = float32(c.Float64(flagScore))
	}
	if c.IsSet(flagIoU) {
		cfg.Detection.IoUThreshold = float32(c.Float64(flagIoU))
	}
	if c.IsSet(flagMaxOutput) {
		cfg.Detection.MaxOutputSize = c.Int(flagMaxOutput)
	}
	if c.IsSet(flagLogLevel) {
		cfg.Log.Level = c.String(flagLogLevel)
	}
	if c.IsSet(flagProvider) {
		cfg.Runtime.Provider = providers.ProviderBackend(c.String(flagProvider))
	}
	return nil
}
