package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"scorio/backend/features/job"
	"scorio/backend/features/result"
	"scorio/backend/features/upload"
	"scorio/backend/internal/config"
	"scorio/backend/internal/dispatch"
	"scorio/backend/internal/middleware"
)

type App struct {
	Handler    http.Handler
	JobService *job.Service
	Dispatcher *dispatch.Dispatcher

	port int
}

func New(cfg *config.Config, db *sql.DB, pub job.EventPublisher) (*App, error) {
	// Feature: Job
	jobRepo := job.NewPostgresRepo(db)
	lifecycle := job.NewLifecycle(jobRepo, pub)

	client := dispatch.NewClient(cfg.AIBaseURL, cfg.AppBaseURL, time.Duration(cfg.DispatchTimeoutSeconds)*time.Second)
	dispatcher := dispatch.NewDispatcher(client, lifecycle, cfg.DispatchWorkers)

	jobService := job.NewService(jobRepo, lifecycle, dispatcher)
	jobHandler := job.NewHandler(jobService)

	// Feature: Upload
	hub := upload.NewHub()
	ingestor := upload.NewIngestor(cfg.InputDir(), hub)
	uploadHandler := upload.NewHandler(ingestor, jobService, hub, cfg.MaxUploadSizeMB)

	// Feature: Result
	resolver, err := result.NewResolver(cfg.StorageRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to create result resolver: %w", err)
	}
	resultHandler := result.NewHandler(resolver)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /jobs", middleware.CorrelationID(enableCORS(jobHandler.Create)))
	mux.Handle("GET /jobs", middleware.CorrelationID(enableCORS(jobHandler.List)))
	mux.Handle("GET /jobs/{id}", middleware.CorrelationID(enableCORS(jobHandler.Get)))
	mux.Handle("POST /jobs/{id}/callback", middleware.CorrelationID(enableCORS(jobHandler.Callback)))

	mux.Handle("POST /jobs/upload", middleware.CorrelationID(enableCORS(uploadHandler.Upload)))
	mux.Handle("GET /jobs/{id}/progress", middleware.CorrelationID(enableCORS(uploadHandler.Progress)))

	mux.Handle("GET /results", middleware.CorrelationID(enableCORS(resultHandler.Get)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:    mux,
		JobService: jobService,
		Dispatcher: dispatcher,
		port:       cfg.ServerPort,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.Dispatcher.Start()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: a.Handler,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		a.Dispatcher.Stop()
		return err
	}

	// Shutdown returns only after in-flight handlers finish, so nothing can
	// enqueue once it completes. Only then is it safe to stop the dispatcher.
	<-shutdownDone
	a.Dispatcher.Stop()
	return nil
}
