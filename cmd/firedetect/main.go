package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/GabrielNarvadez/fire-detection/internal/api"
	"github.com/GabrielNarvadez/fire-detection/internal/auth"
	"github.com/GabrielNarvadez/fire-detection/internal/camera"
	"github.com/GabrielNarvadez/fire-detection/internal/config"
	"github.com/GabrielNarvadez/fire-detection/internal/engine"
	"github.com/GabrielNarvadez/fire-detection/internal/oracle"
	"github.com/GabrielNarvadez/fire-detection/internal/sink"
	"github.com/GabrielNarvadez/fire-detection/internal/source"
	"github.com/GabrielNarvadez/fire-detection/internal/storage"
	"github.com/GabrielNarvadez/fire-detection/internal/ws"
)

func main() {
	// Define command line flags, add any other flag required to configure the
	// service.
	var (
		modeF    = flag.String("mode", "dual", "Run mode (valid values: dual, single, monitor)")
		deviceF  = flag.String("device", "/dev/video0", "Capture device path or stream URL")
		fpsF     = flag.Int("fps", 10, "Capture frame rate")
		dbF      = flag.String("db", "", "SQLite database path (overrides FIREDETECT_DB)")
		httpF    = flag.String("http", "", "HTTP listen address (overrides FIREDETECT_HTTP)")
		oracleF  = flag.String("oracle", "", "Inference service endpoint (overrides FIREDETECT_ORACLE)")
		nameF    = flag.String("location", "Main Entrance", "Camera location name")
		latF     = flag.Float64("lat", 14.5995, "Camera latitude")
		lonF     = flag.Float64("lon", 120.9842, "Camera longitude")
		probeF   = flag.Duration("probe-interval", 30*time.Second, "Camera probe interval (monitor mode)")
	)
	flag.Parse()

	// Setup logger. Replace logger with your own log package of choice.
	var (
		logger *log.Logger
	)
	{
		logger = log.New(os.Stderr, "[firedetect] ", log.Ltime)
	}

	cfg := config.Default()
	if *dbF != "" {
		cfg.DatabasePath = *dbF
	}
	if *httpF != "" {
		cfg.HTTPAddr = *httpF
	}
	if *oracleF != "" {
		cfg.OracleEndpoint = *oracleF
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid configuration: %s", err)
	}

	// Initialize the detection sink and run migrations
	snk, err := sink.New(cfg.DatabasePath)
	if err != nil {
		logger.Fatalf("failed to open database %s: %s", cfg.DatabasePath, err)
	}
	defer snk.Close()
	if err := snk.Migrate(); err != nil {
		logger.Fatalf("failed to migrate database: %s", err)
	}

	// Initialize artifact storage
	store, err := storage.NewStore(cfg.ImageDir, cfg.ClipDir, cfg.FrameDir)
	if err != nil {
		logger.Fatalf("failed to create artifact directories: %s", err)
	}

	// Initialize the inference oracle
	orc := oracle.NewHTTPOracle(cfg.OracleEndpoint)
	if !orc.IsHealthy() {
		logger.Printf("warning: inference service at %s is not healthy yet", cfg.OracleEndpoint)
	}

	registry := camera.NewRegistry(snk)
	hub := ws.NewHub()
	defer hub.Close()

	eng := engine.New(cfg, orc, snk, store, registry, hub)

	location := camera.Location{Name: *nameF, Latitude: *latF, Longitude: *lonF}
	visual := engine.CameraInfo{ID: 1, Name: "Main Camera", Location: location}
	thermal := engine.CameraInfo{ID: 2, Name: "Thermal Camera", Location: location, Thermal: true}

	seedCamera(logger, snk, visual)

	// Create channel used by both the signal handler and server goroutines
	// to notify the main goroutine when to stop the server.
	errc := make(chan error)

	// Setup interrupt handler. This optional step configures the process so
	// that SIGINT and SIGTERM signals cause the services to stop gracefully.
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	switch *modeF {
	case "dual":
		// One physical capture shared by the visual camera and the simulated
		// thermal camera.
		seedCamera(logger, snk, thermal)

		capture := source.NewFFmpegSource(0, *deviceF, *fpsF, 640, 480)
		broadcaster := source.NewBroadcaster(capture)

		visualSrc := broadcaster.Subscribe(visual.ID, 10)
		thermalSrc := source.NewThermalSource(thermal.ID, broadcaster.Subscribe(thermal.ID, 10))

		if err := eng.StartCamera(visual, visualSrc); err != nil {
			logger.Fatalf("failed to start camera %d: %s", visual.ID, err)
		}
		if err := eng.StartCamera(thermal, thermalSrc); err != nil {
			logger.Fatalf("failed to start camera %d: %s", thermal.ID, err)
		}
		if err := snk.RecordActivity("Dual camera monitoring started"); err != nil {
			logger.Printf("warning: failed to record activity: %s", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := broadcaster.Run(ctx); err != nil {
				errc <- fmt.Errorf("capture failed: %w", err)
			}
		}()

	case "single":
		src := source.NewFFmpegSource(visual.ID, *deviceF, *fpsF, 640, 480)
		if err := eng.StartCamera(visual, src); err != nil {
			logger.Fatalf("failed to start camera %d: %s", visual.ID, err)
		}

	case "monitor":
		// No capture pipelines, just reachability probes for the dashboard
		registry.Add(camera.State{ID: visual.ID, Name: visual.Name, Location: location})

		monitor := camera.NewMonitor(registry, *probeF)
		if strings.HasPrefix(*deviceF, "http://") || strings.HasPrefix(*deviceF, "https://") {
			monitor.Watch(visual.ID, camera.HTTPProbe(nil, *deviceF))
		} else {
			monitor.Watch(visual.ID, camera.DeviceProbe(*deviceF))
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			monitor.Run(ctx)
		}()

	default:
		logger.Fatalf("invalid mode argument: %q (valid modes: dual|single|monitor)", *modeF)
	}

	if err := snk.RecordActivity("Fire detection system started"); err != nil {
		logger.Printf("warning: failed to record activity: %s", err)
	}

	// Start the dashboard API server
	authenticator := auth.NewAuthenticator(snk, cfg.JWTSecret, cfg.JWTExpiry)
	apiServer := api.NewServer(snk, registry, hub, authenticator, cfg.FrameDir)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: apiServer.Routes(),
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	// Wait for signal.
	logger.Printf("exiting (%v)", <-errc)

	// Send cancellation signal to the goroutines.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP shutdown failed: %s", err)
	}

	eng.Close()
	wg.Wait()

	if err := snk.RecordActivity("Fire detection system stopped"); err != nil {
		logger.Printf("warning: failed to record activity: %s", err)
	}
	logger.Println("exited")
}

// seedCamera ensures the camera row exists so the dashboard lists the
// camera before its first detection
func seedCamera(logger *log.Logger, snk *sink.SQLiteSink, info engine.CameraInfo) {
	err := snk.SaveCamera(&sink.CameraRow{
		ID:        info.ID,
		Name:      info.Name,
		Location:  info.Location.Name,
		Latitude:  info.Location.Latitude,
		Longitude: info.Location.Longitude,
		Status:    string(camera.StatusOffline),
	})
	if err != nil {
		logger.Printf("warning: failed to seed camera %d: %s", info.ID, err)
	}
}
