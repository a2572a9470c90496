// Package main starts the Aegis data-quality monitoring service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/cmd/aegis/handlers"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/ai"
	aiproviders "github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/ai/providers"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/architect"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/config"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/crypto"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/db"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/executor"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/investigator"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/lineage"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/notifier"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/orchestrator"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/scanner"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/sentinel"
)

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

// run wires and operates the service. Returns the process exit code: 0 on
// clean shutdown, 1 on startup failure.
func run() int {
	_ = godotenv.Load() // best-effort; env vars win

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("configuration invalid")
		return 1
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(level)
	}

	cipher, err := crypto.NewAESCipher(cfg.EncryptionKey)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize cipher")
		return 1
	}

	store, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.DBPath).Msg("failed to open store")
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("store close failed")
		}
	}()

	connectionRepo := db.NewConnectionRepository(store.DB())
	tableRepo := db.NewTableRepository(store.DB())
	snapshotRepo := db.NewSnapshotRepository(store.DB())
	anomalyRepo := db.NewAnomalyRepository(store.DB())
	incidentRepo := db.NewIncidentRepository(store.DB())
	lineageRepo := db.NewLineageRepository(store.DB())

	hub := notifier.NewHub(cfg.EventBuffer)

	lineageEngine := lineage.NewEngine(lineageRepo, lineage.Options{
		StaleAfter:    cfg.LineageStaleAfter,
		MinConfidence: cfg.LineageMinConf,
		MaxDepth:      cfg.LineageMaxDepth,
	}, log)

	var provider ai.Provider
	if cfg.LLMEnabled() {
		provider = ai.NewBreakerProvider(aiproviders.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.LLMModel), log)
		log.Info().Str("model", cfg.LLMModel).Msg("llm diagnosis enabled")
	} else {
		log.Info().Msg("no llm key configured, running fallback-only diagnosis")
	}

	arch := architect.New(provider, lineageEngine, anomalyRepo, snapshotRepo, tableRepo, log)
	exec := executor.New()
	orch := orchestrator.New(incidentRepo, arch, exec, hub, log)

	schemaSentinel := sentinel.NewSchemaSentinel(snapshotRepo, log)
	freshnessSentinel := sentinel.NewFreshnessSentinel(anomalyRepo, log)

	inv := investigator.New(provider, lineageEngine, tableRepo, log)

	scan := scanner.New(connectionRepo, tableRepo, cipher,
		schemaSentinel, freshnessSentinel, orch, lineageEngine, inv,
		hub, scanner.Intervals{
			Scan:        cfg.ScanInterval,
			Lineage:     cfg.LineageRefresh,
			Rediscovery: cfg.RediscoveryInterval,
		}, cfg.ScanWorkers, log)
	scan.Start()
	defer scan.Stop()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	handlers.RegisterRoutes(router, handlers.Deps{
		Connections: handlers.NewConnectionHandlers(connectionRepo, tableRepo, cipher, inv),
		Tables:      handlers.NewTableHandlers(tableRepo),
		Incidents:   handlers.NewIncidentHandlers(incidentRepo, orch),
		Lineage:     handlers.NewLineageHandlers(lineageEngine),
		System:      handlers.NewSystemHandlers(connectionRepo, tableRepo, incidentRepo, anomalyRepo, lineageRepo, scan),
		WS:          handlers.NewWSHandlers(hub, log),
		APIKey:      cfg.APIKey,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("aegis listening")
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed to start")
			return 1
		}
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("server shutdown incomplete")
	}
	return 0
}
