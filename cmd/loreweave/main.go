// Command loreweave is the main entry point for the Loreweave game-master
// backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"github.com/emberforge/loreweave/internal/auth"
	"github.com/emberforge/loreweave/internal/config"
	"github.com/emberforge/loreweave/internal/gm"
	"github.com/emberforge/loreweave/internal/health"
	"github.com/emberforge/loreweave/internal/observe"
	"github.com/emberforge/loreweave/internal/resilience"
	"github.com/emberforge/loreweave/internal/server"
	"github.com/emberforge/loreweave/internal/session"
	"github.com/emberforge/loreweave/pkg/memory/postgres"
	"github.com/emberforge/loreweave/pkg/provider/embeddings"
	oaembed "github.com/emberforge/loreweave/pkg/provider/embeddings/openai"
	"github.com/emberforge/loreweave/pkg/provider/llm"
	"github.com/emberforge/loreweave/pkg/provider/llm/anyllm"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "loreweave: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "loreweave: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("loreweave starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "loreweave",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	llmProvider, embedder, err := buildProviders(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Memory store ──────────────────────────────────────────────────────────
	dims := cfg.Memory.EmbeddingDimensions
	if dims == 0 {
		dims = 1536 // matches OpenAI text-embedding-3-small
	}
	store, err := postgres.NewStore(ctx, cfg.Memory.PostgresDSN, dims)
	if err != nil {
		slog.Error("failed to connect to memory store", "err", err)
		return 1
	}
	defer store.Close()

	// ── Agent factory ─────────────────────────────────────────────────────────
	factoryOpts := []gm.FactoryOption{}
	if cfg.Session.HistoryLimit > 0 {
		factoryOpts = append(factoryOpts, gm.WithHistoryLimit(cfg.Session.HistoryLimit))
	}
	if cfg.Session.MemoryTopK > 0 {
		factoryOpts = append(factoryOpts, gm.WithMemoryTopK(cfg.Session.MemoryTopK))
	}
	if embedder != nil {
		factoryOpts = append(factoryOpts, gm.WithEmbedder(embedder))
	}
	factory, err := gm.NewFactory(llmProvider, store.Messages(), store.Memories(), store.Quests(), factoryOpts...)
	if err != nil {
		slog.Error("failed to create agent factory", "err", err)
		return 1
	}

	// ── Session registry + orchestrator ──────────────────────────────────────
	regOpts := []session.RegistryOption{}
	if cfg.Session.MaxIdle > 0 {
		regOpts = append(regOpts, session.WithMaxIdle(cfg.Session.MaxIdle))
	}
	if cfg.Session.SweepInterval > 0 {
		regOpts = append(regOpts, session.WithSweepInterval(cfg.Session.SweepInterval))
	}
	registry := session.NewRegistry(regOpts...)

	if _, err := metrics.ObserveActiveSessions(func() int64 {
		return int64(registry.Len())
	}); err != nil {
		slog.Warn("failed to register active-sessions gauge", "err", err)
	}

	orchOpts := []session.OrchestratorOption{session.WithMetrics(metrics)}
	if cfg.Session.AgentTimeout > 0 {
		orchOpts = append(orchOpts, session.WithAgentTimeout(cfg.Session.AgentTimeout))
	}
	if embedder != nil {
		orchOpts = append(orchOpts, session.WithSummaryEmbedder(embedder))
	}
	orchestrator, err := session.NewOrchestrator(registry, store.Messages(), store.Memories(), factory, orchOpts...)
	if err != nil {
		slog.Error("failed to create orchestrator", "err", err)
		return 1
	}

	// ── Auth ──────────────────────────────────────────────────────────────────
	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		Secret: []byte(cfg.Auth.JWTSecret),
		Issuer: cfg.Auth.Issuer,
	})
	if err != nil {
		slog.Error("failed to create auth verifier", "err", err)
		return 1
	}

	// ── Health ────────────────────────────────────────────────────────────────
	healthHandler := health.New(version,
		health.Checker{Name: "database", Check: store.Ping},
	)

	// ── HTTP server ───────────────────────────────────────────────────────────
	srvCfg := server.Config{ListenAddr: cfg.Server.ListenAddr}
	if srvCfg.ListenAddr == "" {
		srvCfg.ListenAddr = ":8080"
	}
	if cfg.Server.TLS != nil {
		srvCfg.CertFile = cfg.Server.TLS.CertFile
		srvCfg.KeyFile = cfg.Server.TLS.KeyFile
	}
	srv := server.New(srvCfg, orchestrator, verifier, healthHandler, metrics)

	slog.Info("server ready — press Ctrl+C to shut down")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return registry.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })

	err = g.Wait()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutting down")
	if drained := registry.Drain(); len(drained) > 0 {
		slog.Info("discarded live sessions on shutdown", "count", len(drained))
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// openai, anthropic, gemini, deepseek, mistral, groq, llamacpp, llamafile
	// all share the same pattern: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"openai", "anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})
}

// buildProviders instantiates the LLM and embeddings providers, wrapping
// each in a failover chain when fallbacks are configured. Every completion
// backend is instrumented individually so the latency histogram attributes
// name the backend that actually served, not just the chain.
func buildProviders(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (llm.Provider, embeddings.Provider, error) {
	newLLM := func(entry config.ProviderEntry, kind string) (llm.Provider, error) {
		p, err := reg.CreateLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
		}
		slog.Info("provider created", "kind", kind, "name", entry.Name, "model", entry.Model)
		return observe.InstrumentLLM(p, entry.Name, metrics), nil
	}

	llmProvider, err := newLLM(cfg.Providers.LLM, "llm")
	if err != nil {
		return nil, nil, err
	}
	if len(cfg.Providers.LLMFallbacks) > 0 {
		fb := resilience.NewLLMFallback(llmProvider, cfg.Providers.LLM.Name, resilience.ChainConfig{})
		for _, entry := range cfg.Providers.LLMFallbacks {
			p, err := newLLM(entry, "llm-fallback")
			if err != nil {
				return nil, nil, err
			}
			fb.AddFallback(entry.Name, p)
		}
		llmProvider = fb
	}

	var embedder embeddings.Provider
	if name := cfg.Providers.Embeddings.Name; name != "" {
		embedder, err = reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if err != nil {
			return nil, nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		}
		slog.Info("provider created", "kind", "embeddings", "name", name, "model", cfg.Providers.Embeddings.Model)
	}
	if embedder != nil && len(cfg.Providers.EmbeddingsFallbacks) > 0 {
		fb := resilience.NewEmbeddingsFallback(embedder, cfg.Providers.Embeddings.Name, resilience.ChainConfig{})
		for _, entry := range cfg.Providers.EmbeddingsFallbacks {
			p, err := reg.CreateEmbeddings(entry)
			if err != nil {
				return nil, nil, fmt.Errorf("create embeddings fallback %q: %w", entry.Name, err)
			}
			fb.AddFallback(entry.Name, p)
			slog.Info("provider created", "kind", "embeddings-fallback", "name", entry.Name, "model", entry.Model)
		}
		embedder = fb
	}

	return llmProvider, embedder, nil
}

// newLogger builds the process-wide slog logger at the configured level.
func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
