package main

import (
	"context"
	"crypto/x509"
	"errors"
	"flag"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/yndnr/metastore-go/internal/infra/buildinfo"
	"github.com/yndnr/metastore-go/internal/infra/shutdown"
	"github.com/yndnr/metastore-go/internal/infra/tlsroots"
	"github.com/yndnr/metastore-go/internal/server/config"
	"github.com/yndnr/metastore-go/internal/server/httpserver"
	"github.com/yndnr/metastore-go/internal/telemetry/logger"
	"github.com/yndnr/metastore-go/internal/telemetry/metric"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		checkConfig = flag.Bool("check-config", false, "Validate the configuration and exit")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("metastore-server %s\n", buildinfo.String())
		return nil
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *checkConfig {
		fmt.Println("configuration ok")
		return nil
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)

	info := buildinfo.Get()
	log.Info("starting metastore-server",
		"version", info.Version,
		"commit", info.Commit,
		"config", *configFile,
		"settings", config.Sanitize(cfg))

	metrics := metric.NewRegistry()
	engine, err := initStorage(cfg, log.Slog(), metrics)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	// Hooks run newest first, so the HTTP server stops before the engine.
	shutdownHandler := shutdown.NewHandler(cfg.Server.ShutdownTimeout, log.Slog())
	shutdownHandler.OnShutdown("storage", func(context.Context) error {
		return engine.Close()
	})

	ctx, stop := shutdownHandler.NotifyContext(context.Background())
	defer stop()

	if err := engine.Recover(ctx); err != nil {
		return errors.Join(fmt.Errorf("storage recovery: %w", err), shutdownHandler.Shutdown())
	}

	srvCfg := httpserver.Config{
		Addr:         cfg.Server.HTTP.Addr,
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.HTTP.TLSCertFile != "" {
		reloader, clientCAs, err := initTLS(cfg, log)
		if err != nil {
			return errors.Join(err, shutdownHandler.Shutdown())
		}
		srvCfg.TLS = tlsroots.ServerConfig(reloader, clientCAs)
		g.Go(func() error {
			return reloader.Run(gctx)
		})
	}

	router := httpserver.NewRouter(&httpserver.RouterConfig{
		Engine:         engine,
		Metrics:        metrics,
		Logger:         log.Slog(),
		AdminAllowList: cfg.Server.HTTP.AdminAllowList,
		RateLimit:      cfg.Server.HTTP.RateLimit,
		EnableAudit:    true,
	})
	httpServer := httpserver.New(srvCfg, router)
	shutdownHandler.OnShutdown("http", httpServer.Shutdown)

	if *configFile != "" {
		watcher, err := watchConfig(*configFile, log)
		if err != nil {
			log.Warn("config watcher disabled", "error", err)
		} else {
			shutdownHandler.OnShutdown("config-watcher", func(context.Context) error {
				return watcher.Stop()
			})
		}
	}

	g.Go(func() error {
		log.Info("HTTP server listening",
			"addr", cfg.Server.HTTP.Addr,
			"tls", srvCfg.TLS != nil,
			"mtls", cfg.Server.HTTP.TLSClientCAFile != "")
		if err := httpServer.ListenAndServe(); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	log.Info("server started, press Ctrl+C to stop")
	<-gctx.Done()
	log.Info("shutting down")

	shutdownErr := shutdownHandler.Shutdown()
	if err := errors.Join(g.Wait(), shutdownErr); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// initTLS loads the serving certificate and, for mutual TLS, the client
// CA pool.
func initTLS(cfg *config.ServerConfig, log logger.Logger) (*tlsroots.CertReloader, *x509.CertPool, error) {
	reloader, err := tlsroots.NewCertReloader(cfg.Server.HTTP.TLSCertFile, cfg.Server.HTTP.TLSKeyFile,
		tlsroots.WithLogger(log.Slog()))
	if err != nil {
		return nil, nil, fmt.Errorf("load tls certificate: %w", err)
	}
	if cfg.Server.HTTP.TLSClientCAFile == "" {
		return reloader, nil, nil
	}
	pool, err := tlsroots.LoadClientCAs(cfg.Server.HTTP.TLSClientCAFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load client cas: %w", err)
	}
	return reloader, pool, nil
}
