package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/fencepost-audio/scrobbled/internal/adapter"
	"github.com/fencepost-audio/scrobbled/internal/clock"
	"github.com/fencepost-audio/scrobbled/internal/config"
	"github.com/fencepost-audio/scrobbled/internal/dispatch"
	"github.com/fencepost-audio/scrobbled/internal/dispatch/fanout"
	"github.com/fencepost-audio/scrobbled/internal/lastfm"
	"github.com/fencepost-audio/scrobbled/internal/metrics"
	"github.com/fencepost-audio/scrobbled/internal/play"
	"github.com/fencepost-audio/scrobbled/internal/poller"
	"github.com/fencepost-audio/scrobbled/internal/retry"
	"github.com/fencepost-audio/scrobbled/internal/state"
	"github.com/fencepost-audio/scrobbled/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "scrobbled: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg)
	logger.Info().Int("sources", len(cfg.Sources)).Int("clients", len(cfg.Clients)).
		Msg("scrobbled starting")

	stateMgr, err := openState(cfg)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer stateMgr.Close()

	clients, err := buildClients(cfg)
	if err != nil {
		return fmt.Errorf("build clients: %w", err)
	}

	dispatchClients := make([]dispatch.Client, 0, len(clients))
	retryClients := make([]retry.Client, 0, len(clients))
	for _, c := range clients {
		dispatchClients = append(dispatchClients, c)
		retryClients = append(retryClients, c)
	}

	dispatcher, err := fanout.New(dispatchClients, 0, stateMgr, logger)
	if err != nil {
		return fmt.Errorf("build dispatcher: %w", err)
	}

	reg := metrics.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	waitForSignal(ctx, cancel, logger)

	var wg sync.WaitGroup

	if cfg.MetricsAddr != "" {
		startMetricsServer(ctx, &wg, cfg.MetricsAddr, reg, logger)
	}

	retryLoop := retry.New(stateMgr, retryClients, logger, 5*time.Minute)
	wg.Add(1)
	go func() {
		defer wg.Done()
		retryLoop.Run(ctx)
	}()

	startedAt := time.Now()
	for _, src := range cfg.Sources {
		src := src
		a, err := buildAdapter(src)
		if err != nil {
			logger.Error().Err(err).Str("source", src.Identifier).Msg("skipping source: unsupported adapter type")
			continue
		}

		p := poller.New(cfg.PollerConfig(src), a, dispatcher, clock.Real{}, logger, reg, startedAt)
		sv := supervisor.New(p, logger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sv.Run(ctx); err != nil {
				logger.Error().Err(err).Str("source", src.Identifier).Msg("supervisor exited")
				return
			}
			status := p.Status()
			logger.Info().Str("source", src.Identifier).
				Str("lastActivity", humanize.Time(status.LastActivityAt)).
				Int("tracksDiscovered", status.TracksDiscovered).
				Msg("supervisor stopped")
		}()
	}

	wg.Wait()
	logger.Info().Msg("scrobbled stopped")
	return nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	var w io.Writer = os.Stdout
	if cfg.LogFormat != "json" {
		w = zerolog.ConsoleWriter{Out: os.Stdout}
	}

	level := zerolog.InfoLevel
	if cfg.LogLevel != "" {
		if parsed, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
			level = parsed
		}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func openState(cfg *config.Config) (*state.Manager, error) {
	if cfg.StatePath != "" {
		return state.OpenAt(cfg.StatePath)
	}
	return state.Open()
}

func buildClients(cfg *config.Config) ([]*lastfm.Client, error) {
	clients := make([]*lastfm.Client, 0, len(cfg.Clients))
	for _, c := range cfg.Clients {
		if c.Type != "lastfm" {
			continue
		}
		sessionKey, err := c.ResolvedSessionKey()
		if err != nil {
			return nil, fmt.Errorf("client %s: %w", c.Name, err)
		}
		clients = append(clients, lastfm.New(c.Name, c.APIKey, c.APISecret, sessionKey))
	}
	return clients, nil
}

// buildAdapter constructs the per-source Adapter named by src.Type. Real
// vendor adapters are out of scope (§1); "fixture" is the one reference
// implementation this repository ships, an empty scripted sequence that
// simply never discovers a play. A deployment wires a vendor adapter here
// the same way it wires "fixture".
func buildAdapter(src config.Source) (poller.Adapter, error) {
	switch src.Type {
	case "fixture", "":
		return adapter.NewFixture([][]play.Record{{}}, false), nil
	default:
		return nil, fmt.Errorf("unknown adapter type %q", src.Type)
	}
}

func startMetricsServer(ctx context.Context, wg *sync.WaitGroup, addr string, reg *metrics.Registry, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func waitForSignal(ctx context.Context, cancel context.CancelFunc, logger zerolog.Logger) {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-signalCh:
			logger.Info().Str("signal", sig.String()).Msg("shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()
}
