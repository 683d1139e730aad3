package main

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/auth"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/tray"
)

var (
	serveAddr      string
	serveStatic    string
	serveBackend   string
	serveDetectURL string
	serveThreshold float64
	serveTray      bool
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the practice API and web view",
		Args:  cobra.NoArgs,
		RunE:  runServeCmd,
	}

	cmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&serveStatic, "static", "", "static web directory (default: auto-detect)")
	cmd.Flags().StringVar(&serveBackend, "backend", "http", "detection backend: http or gemini")
	cmd.Flags().StringVar(&serveDetectURL, "detect-url", "", "detection service base URL")
	cmd.Flags().Float64Var(&serveThreshold, "threshold", 0.3, "minimum detection confidence (0-1)")
	cmd.Flags().BoolVar(&serveTray, "tray", false, "show practice controls in the system tray")

	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyStringFlag(cmd, "addr", &cfg.Server.Addr, serveAddr)
	applyStringFlag(cmd, "static", &cfg.Server.StaticDir, serveStatic)
	applyStringFlag(cmd, "backend", &cfg.Detection.Backend, serveBackend)
	applyStringFlag(cmd, "detect-url", &cfg.Detection.URL, serveDetectURL)
	applyFloatFlag(cmd, "threshold", &cfg.Detection.Threshold, serveThreshold)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := newLogger(cfg.Log, false)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	env, err := newPracticeEnv(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer env.Close()

	webDir := cfg.Server.StaticDir
	if webDir == "" {
		webDir = findWebDir()
	}
	if webDir != "" {
		logger.Infow("serving static files", "dir", webDir)
	}

	srv := server.New(server.Config{
		StaticDir:  webDir,
		Store:      env.store,
		App:        env.app,
		Detector:   env.app.Detector(),
		Vocabulary: env.source,
		Resolver:   auth.NewStoreResolver(env.store),
		Threshold:  cfg.Detection.Threshold,
		Logger:     logger.Named("server"),
	})
	defer srv.Close()

	if !serveTray {
		return srv.ListenAndServe(ctx, cfg.Server.Addr)
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe(ctx, cfg.Server.Addr)
	}()

	t := tray.New()
	bindTray(ctx, t, env.app, viewURL(cfg.Server.Addr), logger.Named("tray"))
	t.OnQuit(cancel)
	go func() {
		<-ctx.Done()
		t.Quit()
	}()
	t.Run()

	cancel()
	return <-errc
}

// trayControls is the part of the practice loop the tray drives.
type trayControls interface {
	StartPractice(ctx context.Context, id auth.Identity) error
	StartCamera(ctx context.Context) error
	StopCamera() error
	Skip()
	Subscribe() (<-chan app.Event, func())
}

// bindTray connects the tray menu to the practice loop and mirrors loop
// events back into the menu until ctx is done.
func bindTray(ctx context.Context, t *tray.Tray, a trayControls, url string, logger *zap.SugaredLogger) {
	t.OnStart(func() {
		err := a.StartPractice(ctx, auth.Identity{})
		if errors.Is(err, session.ErrActive) {
			err = a.StartCamera(ctx)
		}
		if err != nil {
			logger.Warnw("failed to start practice", "error", err)
		}
	})
	t.OnSkip(a.Skip)
	t.OnCamera(func(on bool) {
		var err error
		if on {
			err = a.StartCamera(ctx)
		} else {
			err = a.StopCamera()
		}
		if err != nil {
			logger.Warnw("camera toggle failed", "on", on, "error", err)
			t.SetCamera(false)
		}
	})
	t.OnOpen(func() {
		if err := openBrowser(url); err != nil {
			logger.Warnw("failed to open browser", "url", url, "error", err)
		}
	})

	events, unsubscribe := a.Subscribe()
	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				applyTrayEvent(t, e)
			}
		}
	}()
}

func applyTrayEvent(t *tray.Tray, e app.Event) {
	switch e.Type {
	case app.EventSession:
		t.SetCamera(e.Streaming)
		if e.Session != nil && e.Session.Current != nil {
			t.SetSign(e.Session.Current.DisplayName)
		} else {
			t.SetSign("")
		}
	case app.EventCamera:
		t.SetCamera(e.Streaming)
	case app.EventStatus:
		t.SetStatus(e.Status)
	case app.EventCompleted:
		t.SetSign("")
		t.SetCamera(false)
	}
}

// viewURL turns a listen address into a browsable URL.
func viewURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/"
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
