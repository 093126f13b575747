// Command videoengine is the engine's CLI/daemon entrypoint, grounded on
// nvr.go's Run/newApp split: parse flags, assemble an engine.Engine, serve
// the Host Protocol over a local websocket until an interrupt. It has no
// one-shot export mode; exports are started through the Host Protocol.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"videoengine/internal/config"
	"videoengine/pkg/composition"
	"videoengine/pkg/engine"
	"videoengine/pkg/export"
	"videoengine/pkg/playback"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", "videoengine.yaml", "path to engine config")
		projectPath = flag.String("project-db", "videoengine.project.db", "path to the project database")
		logDBPath   = flag.String("log-db", "", "path to the log database (disabled if empty)")
		addr        = flag.String("listen", ":8088", "address to serve the Host Protocol websocket on")
		requireAuth = flag.Bool("auth", false, "require a bearer-token handshake before dispatching commands")
		width       = flag.Int("width", 1920, "composition frame width")
		height      = flag.Int("height", 1080, "composition frame height")
		frameRate   = flag.Float64("fps", 30, "composition frame rate")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	e, err := engine.New(engine.Options{
		Config:            cfg,
		CompositionConfig: composition.Config{Width: *width, Height: *height, FrameRate: *frameRate},
		LogDBPath:         *logDBPath,
		ProjectDBPath:     *projectPath,
		NewDecoder:        func() playback.Decoder { return playback.NewFakeDecoder() },
		NewEncoder:        func() export.Encoder { return export.NewMP4Encoder() },
		RequireAuth:       *requireAuth,
	})
	if err != nil {
		return fmt.Errorf("assemble engine: %w", err)
	}
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())

	mux := http.NewServeMux()
	e.ServeHTTP(mux, "/ws")
	server := &http.Server{Addr: *addr, Handler: mux}

	fatal := make(chan error, 1)
	go func() { fatal <- server.ListenAndServe() }()
	go e.Run(ctx) //nolint:errcheck

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-fatal:
		if err != nil && err != http.ErrServerClosed {
			cancel()
			return fmt.Errorf("serve: %w", err)
		}
	case sig := <-stop:
		e.Logger.Info().Src("videoengine").Msgf("received %v, stopping", sig)
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}
