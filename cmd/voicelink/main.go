// Command voicelink bridges a LiveKit audio room with a duplex
// speech-to-speech model session.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/overlapai/voicelink/internal/agent"
	"github.com/overlapai/voicelink/internal/config"
	"github.com/overlapai/voicelink/internal/health"
	"github.com/overlapai/voicelink/internal/observe"
	"github.com/overlapai/voicelink/internal/retrieval"
	"github.com/overlapai/voicelink/internal/retrieval/postgres"
	"github.com/overlapai/voicelink/internal/transcript"
	"github.com/overlapai/voicelink/pkg/realtime/openai"
	"github.com/overlapai/voicelink/pkg/rtc/livekit"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "voicelink.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Configuration (with hot reload) ───────────────────────────────────────
	level := new(slog.LevelVar)
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			level.Set(d.NewLogLevel.Slog())
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voicelink: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voicelink: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()
	cfg := watcher.Current()

	// ── Logger ────────────────────────────────────────────────────────────────
	level.Set(cfg.Server.LogLevel.Slog())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("voicelink starting",
		"config", *configPath,
		"room", cfg.Room.Name,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "voicelink"})
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

	eg, egCtx := errgroup.WithContext(ctx)

	// ── Realtime session ──────────────────────────────────────────────────────
	session, err := openai.Connect(ctx, openai.Config{
		APIKey:             cfg.Realtime.APIKey,
		Model:              cfg.Realtime.Model,
		BaseURL:            cfg.Realtime.BaseURL,
		Voice:              cfg.Realtime.Voice,
		Instructions:       cfg.Realtime.Instructions,
		InputTranscription: cfg.Transcription.User,
	})
	if err != nil {
		slog.Error("failed to connect realtime session", "err", err)
		return 1
	}
	defer session.Close()

	// ── Room connection ───────────────────────────────────────────────────────
	room, err := livekit.Connect(ctx, livekit.Config{
		URL:       cfg.Room.URL,
		APIKey:    cfg.Room.APIKey,
		APISecret: cfg.Room.APISecret,
		RoomName:  cfg.Room.Name,
		Identity:  cfg.Room.Identity,
	}, livekit.WithLogger(logger))
	if err != nil {
		slog.Error("failed to connect to room", "err", err)
		return 1
	}
	defer room.Disconnect()

	// ── Agent options ─────────────────────────────────────────────────────────
	opts := buildAgentOptions(cfg, logger)

	// ── Retrieval augmentation (optional) ─────────────────────────────────────
	var index *postgres.Index
	if cfg.Retrieval.Enabled {
		augmenter, idx, err := buildAugmenter(ctx, cfg)
		if err != nil {
			slog.Error("failed to initialise retrieval", "err", err)
			return 1
		}
		index = idx
		opts = append(opts, agent.WithAugmenter(augmenter))
	}
	if index != nil {
		defer index.Close()
	}

	// ── Metrics + health endpoint (optional) ──────────────────────────────────
	if cfg.Server.MetricsAddr != "" {
		probes := health.NewHandler()
		probes.Add("room", func(context.Context) error {
			if !room.IsConnected() {
				return errors.New("room disconnected")
			}
			return nil
		})
		if index != nil {
			probes.Add("retrieval", index.Ping)
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		probes.Register(mux)
		srv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux}

		eg.Go(func() error {
			slog.Info("metrics endpoint listening", "addr", cfg.Server.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		eg.Go(func() error {
			<-egCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	printStartupSummary(cfg)

	// ── Agent ─────────────────────────────────────────────────────────────────
	a := agent.New(session, opts...)
	if err := a.Start(ctx, room, cfg.Room.Participant); err != nil {
		slog.Error("failed to start agent", "err", err)
		return 1
	}

	slog.Info("agent ready — press Ctrl+C to shut down")

	<-ctx.Done()
	slog.Info("shutdown signal received, stopping…")

	if err := a.Close(); err != nil {
		slog.Warn("agent close error", "err", err)
	}
	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildAgentOptions translates the config into agent options.
func buildAgentOptions(cfg *config.Config, logger *slog.Logger) []agent.Option {
	opts := []agent.Option{agent.WithLogger(logger)}

	if cfg.Audio.SampleRate > 0 {
		format := agent.DefaultFormat
		format.SampleRate = cfg.Audio.SampleRate
		if cfg.Audio.Channels > 0 {
			format.Channels = cfg.Audio.Channels
		}
		frameSamples := cfg.Audio.FrameSamples
		if frameSamples <= 0 {
			frameSamples = agent.DefaultInputFrameSamples
		}
		opts = append(opts, agent.WithAudioFormat(format, frameSamples))
	}

	tr := transcript.DefaultOptions()
	tr.UserTranscription = cfg.Transcription.User
	tr.AgentTranscription = cfg.Transcription.Agent
	if cfg.Transcription.AgentSpeed > 0 {
		tr.AgentTranscriptionSpeed = cfg.Transcription.AgentSpeed
	}
	opts = append(opts, agent.WithTranscription(tr))

	if cfg.Agent.TrackName != "" {
		opts = append(opts, agent.WithTrackName(cfg.Agent.TrackName))
	}
	if cfg.Agent.StatePublishDelay > 0 {
		opts = append(opts, agent.WithStatePublishDelay(cfg.Agent.StatePublishDelay))
	}
	if cfg.Agent.IngestBuffer > 0 {
		opts = append(opts, agent.WithIngestBuffer(cfg.Agent.IngestBuffer))
	}
	return opts
}

// buildAugmenter wires the embedding client, pgvector index, and retriever
// into a text stream augmenter. The returned index must be closed by the
// caller.
func buildAugmenter(ctx context.Context, cfg *config.Config) (*retrieval.Augmenter, *postgres.Index, error) {
	apiKey := cfg.Retrieval.Embedding.APIKey
	if apiKey == "" {
		apiKey = cfg.Realtime.APIKey
	}
	embedder, err := retrieval.NewOpenAIEmbedder(apiKey, cfg.Retrieval.Embedding.Model)
	if err != nil {
		return nil, nil, fmt.Errorf("create embedder: %w", err)
	}

	dims := cfg.Retrieval.Embedding.Dimensions
	if dims <= 0 {
		dims = embedder.Dimensions()
	}
	index, err := postgres.NewIndex(ctx, cfg.Retrieval.PostgresDSN, dims)
	if err != nil {
		return nil, nil, fmt.Errorf("open index: %w", err)
	}

	var retrOpts []retrieval.RetrieverOption
	if cfg.Retrieval.TopK > 0 {
		retrOpts = append(retrOpts, retrieval.WithTopK(cfg.Retrieval.TopK))
	}
	retriever := retrieval.NewRetriever(embedder, index, retrOpts...)

	var augOpts []retrieval.AugmenterOption
	if cfg.Retrieval.QueryLimit > 0 {
		augOpts = append(augOpts, retrieval.WithQueryLimit(cfg.Retrieval.QueryLimit))
	}
	return retrieval.NewAugmenter(retriever, augOpts...), index, nil
}

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Voicelink — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Printf("║  Room            : %-19s ║\n", trim(cfg.Room.Name, 19))
	fmt.Printf("║  Model           : %-19s ║\n", trim(orDefault(cfg.Realtime.Model, "(default)"), 19))
	fmt.Printf("║  Voice           : %-19s ║\n", trim(orDefault(cfg.Realtime.Voice, "(default)"), 19))
	if cfg.Retrieval.Enabled {
		fmt.Printf("║  Retrieval       : %-19s ║\n", "enabled")
	} else {
		fmt.Printf("║  Retrieval       : %-19s ║\n", "(disabled)")
	}
	if cfg.Server.MetricsAddr != "" {
		fmt.Printf("║  Metrics addr    : %-19s ║\n", trim(cfg.Server.MetricsAddr, 19))
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func trim(v string, max int) string {
	if len(v) <= max {
		return v
	}
	return v[:max-1] + "…"
}
