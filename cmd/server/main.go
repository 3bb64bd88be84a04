// Package main starts the GophBank onboarding front-end server: it wires
// configuration, logging, the OTP timer store, the banking backend client,
// sessions and the HTTP API.
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/atinyakov/GophBank/internal/backend"
	"github.com/atinyakov/GophBank/internal/config"
	"github.com/atinyakov/GophBank/internal/db"
	"github.com/atinyakov/GophBank/internal/logger"
	"github.com/atinyakov/GophBank/internal/middleware"
	"github.com/atinyakov/GophBank/internal/onboarding"
	"github.com/atinyakov/GophBank/internal/repository"
	"github.com/atinyakov/GophBank/internal/server/handler/http"
	"github.com/atinyakov/GophBank/internal/service"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line and environment configuration.
	options := config.Parse()
	addr := options.Port

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otpLimiter := middleware.NewRateLimiter(middleware.PerMinute(6), 3)
	sessionOpts := []service.Option{
		service.WithLogger(zapLogger),
		service.WithOnEnd(otpLimiter.Forget),
	}

	// Sessions and OTP countdowns live in Postgres when a DSN is configured,
	// so a restart resumes every applicant; in memory otherwise.
	var timers onboarding.TimerStore
	if options.DatabaseDSN != "" {
		postgresDB, err := db.InitPostgres(options.DatabaseDSN)
		if err != nil {
			zapLogger.Fatal("cannot init database", zap.Error(err))
		}
		defer postgresDB.Close()

		db.StartExpiredTimerCleaner(ctx, postgresDB,
			time.Hour,    // interval
			24*time.Hour, // retention
			zapLogger,
		)
		db.StartExpiredSessionCleaner(ctx, postgresDB, time.Hour, zapLogger)
		timers = repository.NewPostgresTimerRepository(postgresDB)
		sessionOpts = append(sessionOpts, service.WithStore(repository.NewPostgresSessionRepository(postgresDB)))
	} else {
		zapLogger.Warn("no database configured, sessions and OTP timers are kept in memory")
		timers = onboarding.NewMemoryTimerStore()
	}

	// One configured client for every backend call.
	httpClient, err := backend.NewHTTPClient(options.CAFile, options.CertFile, options.KeyFile)
	if err != nil {
		zapLogger.Fatal("cannot build backend client", zap.Error(err))
	}
	client := backend.New(options.BackendURL, httpClient, zapLogger)

	sessions := service.NewSessionService(timers,
		func(token string) service.Backend { return client.WithToken(token) },
		sessionOpts...,
	)
	sessions.StartSweeper(ctx, time.Minute)

	router := http.NewRouter(
		&http.SessionHandler{Sessions: sessions},
		&http.OnboardingHandler{Log: zapLogger},
		&http.AdminHandler{Log: zapLogger},
		sessions,
		otpLimiter,
		zapLogger,
	)

	server := &nethttp.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("shutdown failed", zap.Error(err))
		}
	}()

	zapLogger.Info("starting server",
		zap.String("addr", addr),
		zap.String("backend", client.BaseURL()),
		zap.Bool("tls", options.TLSCert != "" && options.TLSKey != ""))

	if options.TLSCert != "" && options.TLSKey != "" {
		err = server.ListenAndServeTLS(options.TLSCert, options.TLSKey)
	} else {
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		zapLogger.Fatal("server failed", zap.Error(err))
	}
}
