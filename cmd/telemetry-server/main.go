// Command telemetry-server runs the telemetry push engine driven by a
// synthetic robot.
//
// This is useful for exercising the browser viewer without a robot. The
// robot circles a fixed track and publishes a rendered top-down view, its
// pose and either a planned path or a navigation grid.
//
// Usage:
//
//	go run ./cmd/telemetry-server [flags]
//
// Flags:
//
//	-config   JSON engine config (optional)
//	-profile  Overlay profile: path or navgrid (default: path)
//	-rate     Simulation frame rate in Hz (default: 15)
//	-admin    Debug listen address; empty serves /debug/ on the viewer port
//	-verbose  Enable debug logging
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/telemetry-gui/internal/config"
	"github.com/banshee-data/telemetry-gui/internal/monitoring"
	"github.com/banshee-data/telemetry-gui/internal/pose"
	"github.com/banshee-data/telemetry-gui/internal/sim"
	"github.com/banshee-data/telemetry-gui/internal/telemetry"
	"github.com/banshee-data/telemetry-gui/internal/version"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON engine config")
	profile := flag.String("profile", "", "Overlay profile: path or navgrid (overrides config)")
	rate := flag.Float64("rate", 15, "Simulation frame rate in Hz")
	adminAddr := flag.String("admin", "", "Debug listen address (empty: share the viewer port)")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		log.Printf("telemetry-server %s", version.String())
		return
	}
	if *rate <= 0 {
		log.Fatalf("-rate must be positive, got %v", *rate)
	}

	ec := config.EmptyEngineConfig()
	if *configPath != "" {
		loaded, err := config.LoadEngineConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		ec = loaded
	}
	if err := ec.ApplyEnv(os.Getenv); err != nil {
		log.Fatalf("Invalid environment: %v", err)
	}
	if *profile != "" {
		ec.Profile = profile
	}
	monitoring.SetVerbose(*verbose || ec.GetVerbose())

	log.Printf("Starting telemetry-server %s", version.String())

	grid, err := pose.NewGridMap(pose.DefaultGridConfig())
	if err != nil {
		log.Fatalf("Failed to build grid map: %v", err)
	}

	cfg := telemetry.ConfigFromEngineConfig(ec)
	engine, err := telemetry.NewEngine(cfg, grid)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	var admin *http.Server
	if *adminAddr == "" {
		engine.AttachAdminRoutes(engine.Channel().Mux())
	} else {
		mux := http.NewServeMux()
		engine.AttachAdminRoutes(mux)
		admin = &http.Server{Addr: *adminAddr, Handler: mux}
		go func() {
			log.Printf("Debug pages on http://%s/debug/", *adminAddr)
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Admin server error: %v", err)
			}
		}()
	}

	if err := engine.Start(); err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}

	simCfg := sim.DefaultConfig()
	simCfg.Profile = cfg.Profile
	simCfg.FrameRate = *rate
	robot := sim.NewRobot(simCfg, grid, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := robot.Run(ctx, engine); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Robot stopped: %v", err)
		}
	}()

	log.Printf("Server ready, waiting for a viewer on %s", engine.Channel().Addr())
	if path := engine.Channel().MarkerPath(); path != "" {
		log.Printf("Readiness marker at %s", path)
	}
	<-ctx.Done()

	log.Printf("Shutting down...")
	<-done
	if admin != nil {
		admin.Close()
	}
	engine.Stop()
	log.Printf("Last measured frame period: %.1fms", engine.Monitor().Measured())
}
