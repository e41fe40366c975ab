// Copyright 2025 James Ross
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TGAC/grassroots-core/internal/config"
	"github.com/TGAC/grassroots-core/internal/dispatcher"
	"github.com/TGAC/grassroots-core/internal/federation"
	"github.com/TGAC/grassroots-core/internal/jobsmanager"
	"github.com/TGAC/grassroots-core/internal/linked"
	"github.com/TGAC/grassroots-core/internal/obs"
	"github.com/TGAC/grassroots-core/internal/registry"
	"github.com/TGAC/grassroots-core/internal/schema"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	var configPath string
	var showVersion bool

	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config/grassroots.yaml", "Path to application YAML config")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse flags: %v\n", err)
		os.Exit(2)
	}

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := obs.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	tp, err := obs.MaybeInitTracing(cfg)
	if err != nil {
		logger.Warn("tracing disabled: init failed", obs.Err(err))
	}
	if tp != nil {
		defer tp.Shutdown(context.Background())
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.JobsManager.Addr,
		Username:     cfg.JobsManager.Username,
		Password:     cfg.JobsManager.Password,
		DB:           cfg.JobsManager.DB,
		DialTimeout:  cfg.JobsManager.DialTimeout,
		ReadTimeout:  cfg.JobsManager.ReadTimeout,
		WriteTimeout: cfg.JobsManager.WriteTimeout,
		MaxRetries:   cfg.JobsManager.MaxRetries,
	})
	defer rdb.Close()

	jm := jobsmanager.New(rdb, cfg.JobsManager.KeyPrefix, nil, logger)

	reg := registry.New(cfg.Registry, registry.Global(), logger)
	if err := reg.Reload(); err != nil {
		logger.Warn("initial registry reload failed, starting with no services", obs.Err(err))
	}
	defer reg.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := reg.Watch(ctx); err != nil {
		logger.Warn("registry hot-reload watcher not started", obs.Err(err))
	}

	fedClient := federation.NewClient(cfg.Federation, logger)
	audit := dispatcher.NewAuditLogger(cfg.Audit)
	if audit != nil {
		defer audit.Close()
	}

	d := &dispatcher.Dispatcher{
		SchemaVersion:   schema.Version{Major: cfg.Schema.Major, Minor: cfg.Schema.Minor},
		Provider:        schema.Provider{Name: cfg.Provider.Name, URI: cfg.Provider.URI, Description: cfg.Provider.Description, Logo: cfg.Provider.Logo},
		Registry:        reg,
		JobsManager:     jm,
		Federation:      fedClient,
		Generators:      linked.NewGenerateRegistry(),
		Audit:           audit,
		Log:             logger,
		SelfURI:         cfg.Provider.URI,
		ExternalServers: externalServersFromConfig(cfg),
		Proxy:           httpProxy(cfg.Federation.RequestTimeout),
	}

	obs.StartJobsManagerSizeUpdater(ctx, cfg.Observability.SampleInterval, func(ctx context.Context) (int, error) {
		jobs, err := jm.List(ctx)
		if err != nil {
			return 0, err
		}
		return len(jobs), nil
	}, logger)

	metricsSrv := obs.StartHTTPServer(cfg, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })

	mux := http.NewServeMux()
	mux.Handle("/dispatch", dispatchHandler(d, logger))
	apiSrv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	go func() {
		logger.Info("grassrootsd: listening", obs.String("addr", cfg.ListenAddr))
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("grassrootsd: server error", obs.Err(err))
		}
	}()

	go handleSignals(cancel, logger)
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("grassrootsd: graceful shutdown failed", obs.Err(err))
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("grassrootsd: metrics server shutdown failed", obs.Err(err))
	}
}

func externalServersFromConfig(cfg *config.Config) map[string]*dispatcher.ExternalServer {
	out := make(map[string]*dispatcher.ExternalServer, len(cfg.ServersManager.Servers))
	for _, s := range cfg.ServersManager.Servers {
		out[s.URI] = &dispatcher.ExternalServer{Name: s.Name, URI: s.URI}
	}
	return out
}

// httpProxy builds a ProxyFunc that forwards the raw request body to a
// peer's /dispatch endpoint and returns its raw response body, used for
// server_uri-targeted requests that this server does not own.
func httpProxy(timeout time.Duration) dispatcher.ProxyFunc {
	client := &http.Client{Timeout: timeout}
	return func(ctx context.Context, peerURI string, rawRequest []byte) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, peerURI+"/dispatch", bytes.NewReader(rawRequest))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		return io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	}
}

func handleSignals(cancel context.CancelFunc, logger *zap.Logger) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("signal received, shutting down", obs.String("signal", sig.String()))
	cancel()

	select {
	case sig2 := <-sigCh:
		logger.Warn("second signal received, forcing exit", obs.String("signal", sig2.String()))
		os.Exit(1)
	case <-time.After(5 * time.Second):
	}
}
