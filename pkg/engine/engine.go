// Package engine wires the Sample Store, Composition Model, Playback
// Coordinator, Sprite Pipeline, Export Pipeline and Host Protocol into one
// running instance, analogous to nvr.go's App struct: one
// constructor assembling every subsystem against a Config, and one Run
// driving them until ctx is cancelled.
package engine

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"videoengine/internal/config"
	"videoengine/pkg/composition"
	"videoengine/pkg/export"
	"videoengine/pkg/hostproto"
	"videoengine/pkg/log"
	"videoengine/pkg/playback"
	"videoengine/pkg/sample"
	"videoengine/pkg/sprite"
)

// DecoderFactory constructs a fresh Decoder instance; the engine calls it
// once for the Playback Coordinator, once for the Sprite Pipeline, and
// once per source touched during an export run: each subsystem owns its
// own decoder instances, with no shared decoder state between them.
type DecoderFactory func() playback.Decoder

// EncoderFactory constructs a fresh Encoder instance for an export run.
type EncoderFactory func() export.Encoder

// Engine is the assembled, runnable instance.
type Engine struct {
	Config *config.Config

	Logger      *log.Logger
	LogStore    *log.Store
	Sources     *sample.Store
	Composition *composition.Composition
	Coordinator *playback.Coordinator
	Sprites     *sprite.Pipeline
	Exporter    *export.Pipeline
	ProjectDB   *composition.Store

	Bus    *hostproto.Bus
	Server *hostproto.Server

	session *hostproto.SessionStore
	wg      *sync.WaitGroup
}

// Options configures New beyond Config. Logger/LogStore/ProjectDB paths are
// left to the caller (typically cmd/videoengine) so tests can use in-memory
// or temp-dir variants without New needing its own flag parsing.
type Options struct {
	Config            *config.Config
	CompositionConfig composition.Config
	LogDBPath         string
	ProjectDBPath     string
	NewDecoder        DecoderFactory
	NewEncoder        EncoderFactory
	RequireAuth       bool
}

// New assembles an Engine. The Playback Coordinator, Sprite Pipeline and
// Export Pipeline each get their own decoder from opts.NewDecoder, so no
// decoder instance is ever shared across subsystems.
func New(opts Options) (*Engine, error) {
	if opts.NewDecoder == nil {
		return nil, fmt.Errorf("engine: NewDecoder factory is required")
	}

	wg := &sync.WaitGroup{}
	logger := log.NewLogger(wg)

	var logStore *log.Store
	if opts.LogDBPath != "" {
		logStore = log.NewStore(opts.LogDBPath, wg)
	}

	sources := sample.NewStore()

	bus := hostproto.NewBus(wg)

	comp := composition.New(opts.CompositionConfig, sources, nil)

	coordinator := playback.NewCoordinator(opts.NewDecoder(), nil, hostproto.BridgePlaybackEvents(bus))

	geometry := opts.Config.Sheet()
	budget := opts.Config.SpriteCacheBudget()
	cache := sprite.NewCache(int64(budget))
	sprites := sprite.NewPipeline(sources, opts.NewDecoder(), cache, geometry, 1_000_000, hostproto.BridgeSpriteEvents(bus))

	exportNewDecoder := opts.NewDecoder
	exporter := export.NewPipeline(sources, exportNewDecoder, hostproto.BridgeExportEvents(bus))

	var projectDB *composition.Store
	if opts.ProjectDBPath != "" {
		var err error
		projectDB, err = composition.OpenStore(opts.ProjectDBPath)
		if err != nil {
			return nil, fmt.Errorf("engine: open project store: %w", err)
		}
	}

	server := hostproto.NewServer(sources, coordinator, comp, sprites, exporter, bus)
	if opts.NewEncoder != nil {
		server.NewEncoder = func() export.Encoder { return opts.NewEncoder() }
	}

	var session *hostproto.SessionStore
	if opts.RequireAuth {
		s, token, err := hostproto.NewSessionStore()
		if err != nil {
			return nil, fmt.Errorf("engine: session store: %w", err)
		}
		session = s
		logger.Info().Src("engine").Msgf("session token: %s", token)
	}

	return &Engine{
		Config:      opts.Config,
		Logger:      logger,
		LogStore:    logStore,
		Sources:     sources,
		Composition: comp,
		Coordinator: coordinator,
		Sprites:     sprites,
		Exporter:    exporter,
		ProjectDB:   projectDB,
		Bus:         bus,
		Server:      server,
		session:     session,
		wg:          wg,
	}, nil
}

// Run starts the logger fan-out, the event bus fan-out, and (if a log
// database path was configured) the log store writer, blocking until ctx
// is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.Logger.Start(ctx)
	e.Bus.Run(ctx)
	if e.LogStore != nil {
		if err := e.LogStore.Init(ctx); err != nil {
			return fmt.Errorf("engine: log store: %w", err)
		}
		go e.LogStore.Run(ctx, e.Logger)
	}
	<-ctx.Done()
	e.wg.Wait()
	return nil
}

// ServeHTTP registers the Host Protocol websocket endpoint on mux,
// grounded on nvr.go's mux.Handle("/api/logs", ...) wiring style.
func (e *Engine) ServeHTTP(mux *http.ServeMux, path string) {
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 24*time.Hour)
		defer cancel()
		if err := hostproto.ServeWebSocket(ctx, w, r, e.Server, e.Bus, e.session); err != nil {
			e.Logger.Error().Src("hostproto").Msgf("websocket session: %v", err)
		}
	})
}

// Close tears down persistence handles opened by New.
func (e *Engine) Close() error {
	if e.Coordinator != nil {
		e.Coordinator.Close()
	}
	if e.ProjectDB != nil {
		return e.ProjectDB.Close()
	}
	return nil
}
