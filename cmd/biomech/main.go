package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	_ "go.uber.org/automaxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/biomech/internal/app"
	"github.com/ayusman/biomech/internal/capture"
	"github.com/ayusman/biomech/internal/config"
	"github.com/ayusman/biomech/internal/detector"
	"github.com/ayusman/biomech/internal/engine"
	"github.com/ayusman/biomech/internal/publish"
	"github.com/ayusman/biomech/internal/server"
	"github.com/ayusman/biomech/internal/store"
	"github.com/ayusman/biomech/internal/tray"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	headless := flag.Bool("headless", false, "run without the tray icon")
	flag.Parse()

	fmt.Println("Biomech - Joint Kinematics")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}
	if *headless {
		cfg.Tray = false
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !cfg.Tray {
		if err := run(ctx, cfg, nil); err != nil {
			log.Fatalf("Biomech failed: %v", err)
		}
		return
	}

	// systray owns the main thread; the runtime runs beside it.
	t := tray.New()
	ctx, cancel := context.WithCancel(ctx)
	t.Bind(tray.Actions{Quit: cancel})
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, cfg, t)
		t.Quit()
	}()
	t.Run()
	cancel()
	if err := <-done; err != nil {
		log.Fatalf("Biomech failed: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config, t *tray.Tray) error {
	model, err := cfg.Model()
	if err != nil {
		return err
	}

	var st *store.Store
	if cfg.Store.Path != "" {
		if dir := filepath.Dir(cfg.Store.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create data directory: %w", err)
			}
		}
		st, err = store.New(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
		log.Printf("Recording sessions to %s", st.Path())
	}

	a := app.New(app.Config{
		Engine: engine.Config{
			Model:           model,
			WindowSize:      cfg.Analysis.WindowSize,
			HistoryCapacity: cfg.Analysis.HistoryCapacity,
			GracePeriod:     cfg.Analysis.GracePeriod,
		},
		Store:         st,
		SubjectHeight: cfg.Detector.SubjectHeight,
	})

	previews, closeDetectors, err := addSources(a, cfg)
	if err != nil {
		return err
	}
	defer closeDetectors()

	if cfg.MQTT.Enabled {
		pub, err := publish.NewMQTTPublisher(publish.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		})
		if err != nil {
			log.Printf("MQTT disabled: %v", err)
		} else {
			a.AddPublisher(pub)
		}
	}

	staticDir := cfg.Server.StaticDir
	if info, err := os.Stat(staticDir); err != nil || !info.IsDir() {
		staticDir = ""
	} else {
		fmt.Printf("Serving static files from: %s\n", staticDir)
	}

	srv := server.New(server.Config{
		StaticDir:     staticDir,
		App:           a,
		Store:         st,
		SubjectHeight: cfg.Detector.SubjectHeight,
		Previews:      previews,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Run(ctx) })
	g.Go(func() error { return srv.Run(ctx, cfg.Server.Addr) })
	if t != nil {
		wireTray(ctx, g, t, a, cfg)
	}
	return g.Wait()
}

// addSources creates one camera source per configured camera, each with
// its own detector process.
func addSources(a *app.App, cfg config.Config) (map[string]server.FrameSource, func(), error) {
	previews := make(map[string]server.FrameSource)
	var detectors []detector.Detector
	closeAll := func() {
		for _, d := range detectors {
			if err := d.Close(); err != nil {
				log.Printf("Error closing detector: %v", err)
			}
		}
	}

	norm := detector.NewNormalizer(cfg.Detector.SubjectHeight, cfg.Detector.ExcludedPose)
	for _, cam := range cfg.Cameras {
		dcfg := detector.DefaultConfig()
		dcfg.Python = cfg.Detector.Python
		dcfg.Script = cfg.Detector.Script
		if cfg.Detector.IdleTimeout > 0 {
			dcfg.IdleTimeout = cfg.Detector.IdleTimeout
		}
		det, err := detector.NewMediaPipeDetector(dcfg)
		if err != nil {
			closeAll()
			if errors.Is(err, detector.ErrScriptNotFound) {
				return nil, nil, fmt.Errorf("camera %s: %w (set detector.script or post landmarks to /api/landmarks)", cam.ID, err)
			}
			return nil, nil, fmt.Errorf("camera %s: %w", cam.ID, err)
		}
		detectors = append(detectors, det)

		src := capture.NewSource(capture.SourceConfig{
			ID:              cam.ID,
			FPS:             cam.FPS,
			Mirror:          cam.Mirror,
			MotionThreshold: cam.MotionThreshold,
			Preview:         cam.Preview,
		}, openCamera(cam), det, norm, a)
		a.AddSource(src)
		if cam.Preview {
			previews[cam.ID] = src
		}
		log.Printf("Camera %s on %s", cam.ID, cameraName(cam))
	}
	return previews, closeAll, nil
}

func openCamera(cam config.CameraConfig) capture.Camera {
	if cam.File != "" {
		return capture.NewFileCamera(cam.File)
	}
	return capture.NewCamera(cam.Device)
}

func cameraName(cam config.CameraConfig) string {
	if cam.File != "" {
		return cam.File
	}
	return fmt.Sprintf("device %d", cam.Device)
}

// wireTray connects the tray menu to the app and keeps the last-update
// item current.
func wireTray(ctx context.Context, g *errgroup.Group, t *tray.Tray, a *app.App, cfg config.Config) {
	t.Bind(tray.Actions{
		Toggle:    a.SetEnabled,
		Dashboard: func() { openBrowser(dashboardURL(cfg.Server.Addr)) },
		Record: func(recording bool) error {
			rec := a.Recorder()
			if rec == nil {
				return errors.New("no store configured")
			}
			if recording {
				_, err := rec.Start("", a.Cameras(), cfg.Detector.SubjectHeight)
				return err
			}
			_, err := rec.Stop()
			return err
		},
	})

	snaps, cancel := a.Subscribe()
	g.Go(func() error {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return nil
			case snap, ok := <-snaps:
				if !ok {
					return nil
				}
				t.SetLastUpdate(a.LastUpdate(), len(snap.Cameras))
				if rec := a.Recorder(); rec != nil {
					t.SetRecording(rec.Active() != nil)
				}
			}
		}
	})
}

func dashboardURL(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Printf("Failed to open browser: %v", err)
	}
}
