package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/inquestlabs/inquest/internal/config"
	"github.com/inquestlabs/inquest/internal/server"
	"github.com/inquestlabs/inquest/internal/server/metrics"
	"github.com/inquestlabs/inquest/pkg/auth"
	"github.com/inquestlabs/inquest/pkg/llm"
	"github.com/inquestlabs/inquest/pkg/logger"
	"github.com/inquestlabs/inquest/pkg/logstore"
	"github.com/inquestlabs/inquest/pkg/orchestrator"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultHTTPListenAddr    = "0.0.0.0:8080"
	defaultMetricsAddr       = "0.0.0.0:9090"
	defaultReadHeaderTimeout = 30 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
	defaultProbeTimeout      = 2 * time.Minute
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	httpListenAddrFlag := flag.String("http-listen-addr", defaultHTTPListenAddr, "HTTP server listen address")
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "Address to listen on for prometheus metrics (set to empty string to disable)")
	readHeaderTimeoutFlag := flag.Duration("read-header-timeout", defaultReadHeaderTimeout, "HTTP read header timeout")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", defaultShutdownTimeout, "Server shutdown timeout")
	skipProbeFlag := flag.Bool("skip-workspace-probe", false, "skip the startup workspace reachability probe")
	flag.Parse()

	log := logger.New(*verboseFlag)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var metricsServerErrCh = make(chan error, 1)
	if *metricsAddrFlag != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", *metricsAddrFlag)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				metricsServerErrCh <- err
				return
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, mux); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
				metricsServerErrCh <- err
			}
		}()
	}

	tokens := auth.NewCachingTokenProvider(mustStaticTokens(cfg.StoreToken), cfg.TokenCacheTTL)
	store, err := logstore.New(&logstore.Config{
		Logger:      log,
		Endpoint:    cfg.StoreEndpoint,
		WorkspaceID: cfg.StoreWorkspaceID,
		Tokens:      tokens,
		Timeout:     cfg.StoreTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create workspace client: %w", err)
	}

	if !*skipProbeFlag {
		if err := probeWorkspace(ctx, log, store); err != nil {
			return fmt.Errorf("workspace probe failed: %w", err)
		}
	}

	model, err := newModelClient(log, cfg)
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(&orchestrator.Config{
		Logger:          log,
		LLM:             model,
		Store:           store,
		MaxAnalysisRows: cfg.MaxAnalysisRows,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	srv, err := server.New(&server.Config{
		Logger:         log,
		Orchestrator:   orch,
		Store:          store,
		AllowedOrigins: cfg.AllowedOrigins,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              *httpListenAddrFlag,
		Handler:           srv.Router(),
		ReadHeaderTimeout: *readHeaderTimeoutFlag,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "address", *httpListenAddrFlag, "provider", cfg.LLMProvider, "model", cfg.LLMModel)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("server: shutting down", "reason", ctx.Err())
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), *shutdownTimeoutFlag)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("server: graceful shutdown failed", "error", err)
			return err
		}
		return nil
	case err := <-serverErrCh:
		log.Error("server: server error causing shutdown", "error", err)
		return err
	case err := <-metricsServerErrCh:
		log.Error("server: metrics server error causing shutdown", "error", err)
		return err
	}
}

// probeWorkspace blocks until the workspace answers, so that a transient
// outage at deploy time does not crash-loop the service. Per-run queries are
// never retried; only this startup probe is.
func probeWorkspace(ctx context.Context, log *slog.Logger, store *logstore.Client) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 15 * time.Second
	bo.MaxElapsedTime = defaultProbeTimeout
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := store.Ping(ctx)
		if err != nil {
			log.Info("workspace not ready, retrying", "attempt", attempt, "error", err)
		}
		return err
	}, backoff.WithContext(bo, ctx))
}

func newModelClient(log *slog.Logger, cfg config.Config) (llm.Client, error) {
	switch cfg.LLMProvider {
	case config.ProviderAnthropic:
		return llm.NewAnthropicClient(&llm.AnthropicConfig{
			Logger:    log,
			Client:    anthropic.NewClient(),
			Model:     anthropic.Model(cfg.LLMModel),
			MaxTokens: int64(cfg.LLMMaxTokens),
		})
	default:
		return llm.NewOpenAIClient(&llm.OpenAIConfig{
			Logger:      log,
			BaseURL:     cfg.LLMBaseURL,
			APIKey:      cfg.LLMAPIKey,
			Model:       cfg.LLMModel,
			Temperature: cfg.LLMTemperature,
			MaxTokens:   cfg.LLMMaxTokens,
			Timeout:     cfg.LLMTimeout,
		})
	}
}

func mustStaticTokens(token string) auth.TokenProvider {
	tokens, err := auth.NewStaticTokenProvider(token)
	if err != nil {
		// Config validation already requires a non-empty token.
		panic(err)
	}
	return tokens
}
