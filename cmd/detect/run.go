package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nvr-ai/live-detect/capture"
	"github.com/nvr-ai/live-detect/capture/camera"
	"github.com/nvr-ai/live-detect/config"
	"github.com/nvr-ai/live-detect/controller"
	"github.com/nvr-ai/live-detect/inference"
	"github.com/nvr-ai/live-detect/inference/providers"
	"github.com/nvr-ai/live-detect/logger"
	"github.com/nvr-ai/live-detect/models"
	"github.com/urfave/cli/v2"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	backend, err := providers.NewBackend(cfg.Runtime, log.Named("runtime"))
	if err != nil {
		return err
	}

	active := atomic.NewPointer(cfg)
	manager := inference.NewManager(backend,
		inference.WithLogger(log.Named("models")),
		inference.WithResolver(func(id models.ID) (models.Spec, error) { return active.Load().Resolve(id) }),
		inference.WithInferenceTimeout(cfg.Scheduler.InferenceTimeout),
	)
	defer func() {
		if err := manager.Dispose(); err != nil {
			log.Warn("disposing model failed", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := manager.Load(ctx, cfg.Model.ID, loadProgress(log, cfg.Model.ID)); err != nil {
		return err
	}

	schedulers := make([]*controller.Scheduler, 0, len(cfg.Streams))
	for _, sc := range cfg.Streams {
		source, err := newSource(sc, log)
		if err != nil {
			return err
		}
		opts := []controller.Option{
			controller.WithLogger(log.Named("scheduler")),
			controller.OnResult(resultLogger(log, active)),
		}
		if sc.Name != "" {
			opts = append(opts, controller.WithID(sc.Name))
		}
		schedulers = append(schedulers, controller.New(source, manager, cfg.Controller(), opts...))
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	watchDone := make(chan struct{})
	if path := c.String(flagConfig); path != "" {
		w, err := config.NewWatcher(path, cfg, log)
		if err != nil {
			return err
		}
		go func() {
			defer close(watchDone)
			_ = w.Run(watchCtx, func(next *config.Config) { reload(watchCtx, c, log, manager, active, next) })
		}()
	} else {
		close(watchDone)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range schedulers {
		s := s
		g.Go(func() error { return s.Run(gctx) })
	}
	err = g.Wait()
	stopWatch()
	<-watchDone

	for _, s := range schedulers {
		st := s.Stats()
		log.Info("stream finished",
			zap.String("stream", s.ID()),
			zap.Uint64("cycles", st.Cycles),
			zap.Uint64("failures", st.Failures),
			zap.Uint64("dropped", st.Dropped),
			zap.Float64("fps", st.FPS),
		)
	}
	return err
}

// reload applies a changed configuration file. Only model changes take effect without a restart.
func reload(ctx context.Context, c *cli.Context, log *zap.Logger, manager *inference.Manager,
	active *atomic.Pointer[config.Config], next *config.Config) {
	if err := applyFlags(c, next); err != nil {
		log.Warn("ignoring config change", zap.Error(err))
		return
	}
	if err := next.Validate(); err != nil {
		log.Warn("ignoring config change", zap.Error(err))
		return
	}

	prev := active.Swap(next)
	if !prev.ModelChanged(next) {
		log.Info("config changed without a model change, restart to apply it")
		return
	}
	if err := manager.Swap(ctx, next.Model.ID, loadProgress(log, next.Model.ID)); err != nil {
		active.Store(prev)
	}
}

// newSource picks the capture implementation for a stream.
func newSource(sc config.StreamConfig, log *zap.Logger) (capture.Source, error) {
	width, height, err := sc.Size()
	if err != nil {
		return nil, err
	}
	opts := []capture.Option{
		capture.WithLogger(log.Named("capture")),
		capture.WithLoop(sc.Loop),
		capture.WithSize(width, height),
	}
	if sc.FPS > 0 {
		opts = append(opts, capture.WithFPS(sc.FPS))
	}
	if capture.IsStill(sc.Source) {
		paths, err := capture.ImagePaths(sc.Source)
		if err != nil {
			return nil, err
		}
		return capture.NewFiles(paths, opts...), nil
	}
	return camera.New(sc.Source, opts...), nil
}

// loadProgress logs load progress in steps of a quarter.
func loadProgress(log *zap.Logger, id models.ID) models.ProgressFunc {
	logged := -1
	return func(f float64) {
		step := int(f * 4)
		if step <= logged {
			return
		}
		logged = step
		log.Info("loading model", zap.String("model", string(id)), zap.Int("percent", int(f*100)))
	}
}

// resultLogger logs the labels of every result with detections, and empty results at debug level.
func resultLogger(log *zap.Logger, active *atomic.Pointer[config.Config]) func(controller.Result) {
	log = log.Named("results")
	return func(res controller.Result) {
		fields := []zap.Field{
			zap.String("stream", res.Stream),
			zap.Uint64("seq", res.Seq),
			zap.String("model", string(res.Model)),
			zap.Duration("latency", res.Latency),
		}
		if len(res.Detections) == 0 {
			log.Debug("no detections", fields...)
			return
		}
		spec, err := active.Load().Resolve(res.Model)
		if err != nil {
			spec = models.Spec{ID: res.Model, Family: models.FamilyYOLO}
		}
		labels := make([]string, len(res.Detections))
		for i, d := range res.Detections {
			labels[i] = spec.ClassName(d.Class)
		}
		log.Info("detections", append(fields, zap.Strings("labels", labels), zap.Stringers("boxes", res.Detections))...)
	}
}
