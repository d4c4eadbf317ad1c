//go:build linux

package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/kevmo314/go-uvc-gadget"
	"github.com/kevmo314/go-uvc-gadget/pkg/config"
	"github.com/kevmo314/go-uvc-gadget/pkg/configfs"
	"github.com/kevmo314/go-uvc-gadget/pkg/source"
	"github.com/kevmo314/go-uvc-gadget/pkg/streaming"
	"github.com/rivo/tview"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is set at link time.
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	status := flag.Bool("tui", false, "show a live status screen")
	fps := flag.Int("fps", 30, "frame rate of the test pattern and capture sources")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var logView *tview.TextView
	var out io.Writer
	if *status {
		logView = tview.NewTextView()
		logView.SetMaxLines(200).SetBorder(true).SetTitle("Log")
		out = logView
	}
	logger, err := newLogger(cfg.Log, out)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	discoverer, err := newDiscoverer(logger, cfg)
	if err != nil {
		logger.Fatal("invalid function configuration", zap.Error(err))
	}
	newProducer, err := producerFactory(logger, cfg, *fps)
	if err != nil {
		logger.Fatal("invalid source", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipes := newPipelines(logger.Named("pipeline"), newProducer)
	h := newGadgetHooks(logger.Named("hooks"), pipes)
	registry := uvc.NewRegistry(logger.Named("registry"), h, uvc.Options{
		EventTimeout:     cfg.EventTimeout,
		ConsumeTimeout:   cfg.ConsumeTimeout,
		WatchdogPeriod:   cfg.WatchdogPeriod,
		ReadyTimeout:     cfg.ReadyTimeout,
		StallThreshold:   cfg.StallThreshold,
		BulkTimeoutLimit: cfg.BulkTimeoutLimit,
		NumBuffers:       cfg.NumBuffers,
	})
	manager := uvc.NewManager(logger.Named("lifecycle"), registry, discoverer, cfg.DiscoveryInterval)
	manager.OnInstance = pipes.attach

	logger.Info("starting uvc gadget",
		zap.String("version", version),
		zap.String("transport", cfg.Transport),
		zap.String("speed", cfg.Speed),
		zap.String("source", cfg.Source))

	if !*status {
		if err := manager.Run(ctx); err != nil {
			logger.Fatal("lifecycle manager failed", zap.Error(err))
		}
		return
	}

	done := make(chan error, 1)
	go func() { done <- manager.Run(ctx) }()
	if err := runStatus(ctx, registry, logView); err != nil {
		logger.Error("status screen failed", zap.Error(err))
	}
	stop()
	if err := <-done; err != nil {
		logger.Error("lifecycle manager failed", zap.Error(err))
	}
}

func newLogger(cfg config.LogConfig, out io.Writer) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if cfg.Mode == "development" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if out == nil {
		return zc.Build()
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(zc.EncoderConfig), zapcore.AddSync(out), zc.Level)
	return zap.New(core), nil
}

func newDiscoverer(logger *zap.Logger, cfg *config.Config) (uvc.Discoverer, error) {
	fns, err := cfg.StaticFunctions()
	if err != nil {
		return nil, err
	}
	if len(fns) > 0 {
		return uvc.StaticFunctions(fns), nil
	}
	transport, err := streaming.ParseTransport(cfg.Transport)
	if err != nil {
		return nil, err
	}
	speed, err := streaming.ParseSpeed(cfg.Speed)
	if err != nil {
		return nil, err
	}
	scanner := configfs.NewScanner(logger, cfg.ConfigFSRoot, cfg.UDCRoot)
	scanner.Transport = transport
	scanner.Speed = speed
	return scanner, nil
}

func producerFactory(logger *zap.Logger, cfg *config.Config, fps int) (func(*uvc.Instance) source.Producer, error) {
	kind, device, err := cfg.SourceKind()
	if err != nil {
		return nil, err
	}
	switch kind {
	case "pattern":
		return func(inst *uvc.Instance) source.Producer {
			return source.NewPattern(logger.With(zap.Int("instance", inst.ID())), fps, inst.Function.Name)
		}, nil
	case "v4l2":
		return func(inst *uvc.Instance) source.Producer {
			return source.NewCapture(logger.With(zap.Int("instance", inst.ID())), device, uint32(fps))
		}, nil
	}
	return nil, nil
}
