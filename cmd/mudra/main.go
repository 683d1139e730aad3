// Package main provides the CLI entrypoint for mudra.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detect"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/progress"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/vocab"
)

var (
	configPath string
	dbPath     string
	logLevel   string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "mudra",
		Short:         "Sign language practice with live camera feedback",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath(), "config file path")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default from config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newPracticeCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newSeedCmd())
	rootCmd.AddCommand(newVocabCmd())
	rootCmd.AddCommand(newUserCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newPluginsCmd())

	return rootCmd
}

// loadConfig reads the config file and applies any flags set on cmd.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to load config: %w", err)
	}
	applyStringFlag(cmd, "db", &cfg.Store.Path, dbPath)
	applyStringFlag(cmd, "log-level", &cfg.Log.Level, logLevel)
	return cfg, nil
}

// applyStringFlag overwrites target with value when the flag was given explicitly.
func applyStringFlag(cmd *cobra.Command, name string, target *string, value string) {
	if !cmd.Flags().Changed(name) {
		return
	}
	*target = value
}

func applyFloatFlag(cmd *cobra.Command, name string, target *float64, value float64) {
	if !cmd.Flags().Changed(name) {
		return
	}
	*target = value
}

func applyIntFlag(cmd *cobra.Command, name string, target *int, value int) {
	if !cmd.Flags().Changed(name) {
		return
	}
	*target = value
}

func newLogger(cfg config.LogConfig, quiet bool) (*zap.SugaredLogger, error) {
	opts := logging.Options{
		Level:      cfg.Level,
		File:       cfg.File,
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAgeDays: cfg.MaxAgeDays,
		Quiet:      quiet,
	}
	if quiet && opts.File == "" {
		opts.File = config.DefaultLogPath()
	}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	return logging.New(opts)
}

func openStore(path string) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	st, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	return st, nil
}

func newDetector(ctx context.Context, cfg config.DetectionConfig, items []vocab.Item, logger *zap.SugaredLogger) (detect.Detector, error) {
	switch cfg.Backend {
	case config.BackendGemini:
		d, err := detect.NewGeminiDetector(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, vocab.Labels(items), cfg.Timeout.Duration)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini detector: %w", err)
		}
		return d, nil
	default:
		return detect.NewHTTPClient(cfg.URL, cfg.Timeout.Duration, logger.Named("detect")), nil
	}
}

// practiceEnv holds everything a practice front end needs.
type practiceEnv struct {
	cfg    config.Config
	logger *zap.SugaredLogger
	store  *store.Store
	source vocab.Source
	app    *app.App

	stopPlugins func()
}

func (e *practiceEnv) Close() {
	if e.stopPlugins != nil {
		e.stopPlugins()
	}
	if err := e.app.Close(); err != nil {
		e.logger.Warnw("failed to close practice loop", "error", err)
	}
	if err := e.store.Close(); err != nil {
		e.logger.Warnw("failed to close db", "error", err)
	}
	_ = e.logger.Sync()
}

func newPracticeEnv(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger) (*practiceEnv, error) {
	st, err := openStore(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	source := vocab.NewStoreSource(st)
	items, err := source.List(ctx)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to load vocabulary: %w", err)
	}
	if len(items) == 0 {
		logger.Warnw("vocabulary is empty; run `mudra seed` to load the default signs")
	}

	detector, err := newDetector(ctx, cfg.Detection, items, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	a := app.New(app.Config{
		Vocabulary: source,
		Camera: capture.NewCamera(capture.Constraints{
			DeviceID: cfg.Camera.Device,
			Width:    cfg.Camera.Width,
			Height:   cfg.Camera.Height,
			FPS:      cfg.Camera.FPS,
			Facing:   capture.Facing(cfg.Camera.Facing),
		}),
		Detector: detector,
		Progress: progress.NewStoreBackend(st),
		Sampler: capture.SamplerConfig{
			RefreshHz:       cfg.Practice.RefreshHz,
			StillQuality:    cfg.Detection.StillQuality,
			StillMaxWidth:   cfg.Detection.StillMaxWidth,
			MotionThreshold: cfg.Detection.MotionThreshold,
		},
		Threshold:      cfg.Detection.Threshold,
		Floor:          cfg.Detection.Floor,
		Interval:       cfg.Detection.Interval.Duration,
		SkipStill:      cfg.Detection.SkipStill,
		CorrectDelay:   cfg.Practice.CorrectDelay.Duration,
		IncorrectDelay: cfg.Practice.IncorrectDelay.Duration,
		Logger:         logger.Named("app"),
	})

	env := &practiceEnv{cfg: cfg, logger: logger, store: st, source: source, app: a}
	env.startPlugins(ctx)
	return env, nil
}

// startPlugins forwards practice events to any plugins installed in the plugin directory.
func (e *practiceEnv) startPlugins(ctx context.Context) {
	logger := e.logger.Named("plugin")
	mgr := plugin.NewManager(e.cfg.Plugins.Dir, logger)
	if err := mgr.Discover(); err != nil {
		logger.Warnw("plugin discovery failed", "dir", e.cfg.Plugins.Dir, "error", err)
		return
	}
	if len(mgr.List()) == 0 {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	events, unsubscribe := e.app.Subscribe()
	d := plugin.NewDispatcher(mgr, plugin.NewExecutor(e.cfg.Plugins.Timeout.Duration), logger)
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx, events)
	}()

	e.stopPlugins = func() {
		cancel()
		unsubscribe()
		<-done
	}
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and the mudra data directory.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	dataWebDir := filepath.Join(config.XDGDataHome(), "mudra", "web")
	if info, err := os.Stat(dataWebDir); err == nil && info.IsDir() {
		return dataWebDir
	}

	return ""
}

func logErrf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format, args...)
}
