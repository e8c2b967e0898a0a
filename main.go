package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juniorbasecompany/turna/audit"
	"github.com/juniorbasecompany/turna/authz"
	"github.com/juniorbasecompany/turna/blob"
	"github.com/juniorbasecompany/turna/broker"
	"github.com/juniorbasecompany/turna/clock"
	"github.com/juniorbasecompany/turna/config"
	"github.com/juniorbasecompany/turna/domain"
	"github.com/juniorbasecompany/turna/extract"
	"github.com/juniorbasecompany/turna/files"
	"github.com/juniorbasecompany/turna/jobengine"
	"github.com/juniorbasecompany/turna/logger"
	"github.com/juniorbasecompany/turna/membership"
	"github.com/juniorbasecompany/turna/router"
	"github.com/juniorbasecompany/turna/schedule"
	"github.com/juniorbasecompany/turna/solver"
	"github.com/juniorbasecompany/turna/store"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)
	clk := clock.Real()

	log.Info().Str("env", cfg.Env).Msg("turna starting")

	ctx := context.Background()

	// Persistence
	st, err := store.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("store init failed")
	}
	defer st.Close()
	log.Info().Msg("database connected")

	// Queue broker
	queue, err := broker.NewRedisQueue(cfg.RedisURL, cfg.QueueName, log)
	if err != nil {
		log.Fatal().Err(err).Msg("redis init failed")
	}
	if err := queue.Ping(); err != nil {
		log.Warn().Err(err).Msg("redis ping failed; enqueue will return unavailable until it recovers")
	} else {
		log.Info().Msg("redis connected")
	}
	defer queue.Close()

	// Blob storage
	var blobs blob.Store
	if cfg.S3Bucket != "" {
		s3Store, err := blob.NewS3(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Endpoint)
		if err != nil {
			log.Fatal().Err(err).Msg("s3 init failed")
		}
		blobs = s3Store
		log.Info().Str("bucket", cfg.S3Bucket).Msg("s3 blob store configured")
	} else {
		blobs = blob.NewMemory()
		log.Warn().Msg("S3_BUCKET not set; using in-memory blob store (development only)")
	}

	// Audit trail
	auditRecorder := audit.NewRecorder(log, audit.NewStoreSink(st))
	auditRecorder.Start(ctx)

	// Services
	tokens := authz.NewTokenIssuer(cfg.TokenSecret, cfg.TokenTTL, clk)
	members := membership.NewService(st, auditRecorder, tokens, clk, log)
	fileSvc := files.NewService(st, blobs, clk, log)

	solverOpts := solver.Options{
		UnassignedPenalty:         cfg.UnassignedPenalty,
		PedUnassignedExtraPenalty: cfg.PedUnassignedExtraPenalty,
		PedProOnNonPedPenalty:     cfg.PedProOnNonPedPenalty,
		AllowUnassigned:           true,
		MaxTime:                   cfg.SolverMaxTime,
		Workers:                   cfg.SolverWorkers,
	}
	materializer := schedule.NewMaterializer(st, blobs, schedule.NewPlainRenderer(), clk, solverOpts, log)

	// Job engine and handlers
	engine := jobengine.New(st, queue, clk, cfg, log)
	engine.Register(domain.JobPing, jobengine.PingHandler())
	engine.Register(domain.JobGenerateSchedule, jobengine.HandlerFunc(materializer.Run))
	engine.Register(domain.JobGenerateThumbnail, files.ThumbnailHandler(st, blobs, noopThumbnailRenderer{}))

	if cfg.GeminiAPIKey != "" {
		extractor, err := extract.NewGeminiExtractor(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, log)
		if err != nil {
			log.Fatal().Err(err).Msg("extractor init failed")
		}
		orchestrator := extract.NewOrchestrator(st, blobs, extractor, log)
		engine.Register(domain.JobExtractDemand, jobengine.HandlerFunc(orchestrator.Run))
		log.Info().Str("model", cfg.GeminiModel).Msg("demand extractor registered")
	} else {
		log.Warn().Msg("GEMINI_API_KEY not set; EXTRACT_DEMAND jobs disabled")
	}

	engine.Start(ctx)

	// Stale-job reconciler
	reconciler := jobengine.NewReconciler(engine, cfg.ReconcileInterval, log)
	reconciler.Start()

	// HTTP adapter
	r := router.NewRouter(router.Deps{
		Cfg:        cfg,
		Log:        log,
		Tokens:     tokens,
		Membership: members,
		Engine:     engine,
		Schedules:  materializer,
		Files:      fileSvc,
	})

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.SSETimeout + 10*time.Second, // extra buffer for streaming
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("turna listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")

	reconciler.Stop()
	engine.Stop()
	auditRecorder.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("turna stopped gracefully")
	}
}

// noopThumbnailRenderer renders nothing: Render always returns
// Unavailable, so thumbnail jobs for supported files end FAILED. Jobs for
// unsupported types or with an existing thumbnail still complete as
// skipped, since the handler returns before calling Render.
type noopThumbnailRenderer struct{}

func (noopThumbnailRenderer) Render(ctx context.Context, data []byte, contentType string) ([]byte, error) {
	return nil, domain.Unavailable("thumbnail renderer not configured")
}
