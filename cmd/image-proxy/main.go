package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/williamjxj/bestitconsultants-sub001/pkg/config"
	"github.com/williamjxj/bestitconsultants-sub001/pkg/logging"
	"github.com/williamjxj/bestitconsultants-sub001/pkg/metrics"
)

func main() {
	configPath := flag.String("config", os.Getenv("IMGPROXY_CONFIG"), "path to a YAML, TOML or JSON config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatal().Err(err).Msg("Image proxy failed")
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	_, logCloser := logging.Setup(logging.Config{
		Level:      logging.LogLevel(cfg.Log.Level),
		Service:    "image-proxy",
		Pretty:     cfg.Log.Pretty,
		Output:     os.Stderr,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Compress:   cfg.Log.Compress,
	})
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Metrics.ReportInterval > 0 {
		go metrics.NewReporter(a.recorder, cfg.Metrics.ReportInterval).Run(ctx)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      a.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.Server.Addr).
			Bool("remote_enabled", cfg.Remote.Enabled).
			Str("origin_driver", cfg.Origin.Driver).
			Bool("fallback_enabled", cfg.Fallback.Enabled).
			Bool("shared_cache", cfg.Cache.RedisURL != "").
			Msg("Starting image proxy")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Dur("timeout", cfg.Server.ShutdownTimeout).Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
