package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cardtable/coordinator/internal/config"
	"cardtable/coordinator/internal/coordinator"
	"cardtable/coordinator/internal/httpapi"
	"cardtable/coordinator/internal/limiter"
	"cardtable/coordinator/internal/logging"
	"cardtable/coordinator/internal/session"
	"cardtable/coordinator/internal/timers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.L().Fatal("invalid configuration", logging.Error(err))
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		logging.L().Fatal("logger setup failed", logging.Error(err))
	}
	defer func() { _ = logger.Sync() }()

	store := session.NewStore(session.WithMaxSessions(cfg.MaxSessions))
	coord := coordinator.New(coordinator.Options{
		Logger:             logger,
		Store:              store,
		Timers:             timers.NewScheduler(),
		Limiter:            limiter.NewSlidingWindow(cfg.RateWindow, cfg.RateLimit, nil),
		MaxFrameBytes:      cfg.MaxFrameBytes,
		MaxStateBytes:      cfg.MaxStateBytes,
		ReversionDelay:     cfg.ReversionDelay,
		EmptyTeardownDelay: cfg.EmptyTeardownDelay,
		IdleTimeout:        cfg.IdleTimeout,
		SessionLogDir:      cfg.SessionLogDir,
	})

	mux := http.NewServeMux()
	mux.Handle("/ws", coordinator.NewWSHandler(coord, logger, cfg.AllowedOrigins, cfg.MaxFrameBytes, cfg.PingInterval))

	// One admin reset per minute is plenty.
	adminLimiter := limiter.NewSlidingWindow(time.Minute, 1, nil)
	httpapi.NewHandlerSet(httpapi.Options{
		Logger:      logger,
		Stats:       coord,
		Resetter:    coord,
		AdminToken:  cfg.AdminToken,
		RateLimiter: adminLimiter,
	}).Register(mux)

	server := &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("coordinator listening",
			logging.String("addr", cfg.Address),
			logging.Bool("tls", cfg.TLSCertPath != ""))
		if cfg.TLSCertPath != "" {
			errCh <- server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			errCh <- server.ListenAndServe()
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", logging.Error(err))
		}
	case sig := <-stop:
		logger.Info("shutting down", logging.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("graceful shutdown incomplete", logging.Error(err))
		}
		coord.Reset()
	}
}
