package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/cloudcrate/cloudcrate/internal/auth"
	"github.com/cloudcrate/cloudcrate/internal/config"
	"github.com/cloudcrate/cloudcrate/internal/handlers"
	"github.com/cloudcrate/cloudcrate/internal/mimetypes"
	"github.com/cloudcrate/cloudcrate/internal/service"
	"github.com/cloudcrate/cloudcrate/internal/storage"
	"github.com/cloudcrate/cloudcrate/internal/tracing"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setupLogging(cfg)
	log.Info().Str("service", cfg.ServiceName).Str("port", cfg.ServicePort).Msg("starting")

	shutdownTracer, err := tracing.InitTracer(cfg.ServiceName, cfg.JaegerEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.Warn().Err(err).Msg("error shutting down tracer")
		}
	}()

	objectStore, err := storage.NewMinioStore(
		cfg.MinIOEndpoint,
		cfg.MinIOAccessKey,
		cfg.MinIOSecretKey,
		cfg.MinIOBucketName,
		cfg.MinIOUseSSL,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize object store")
	}
	if err := objectStore.EnsureBucket(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to provision bucket")
	}
	log.Info().Str("bucket", cfg.MinIOBucketName).Msg("object store ready")

	metadataStore, err := storage.NewMySQLClient(cfg.GetDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metadata store")
	}
	defer metadataStore.Close()
	if err := metadataStore.InitSchema(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}
	log.Info().Msg("metadata store ready")

	fileCache, err := storage.NewRedisCache(cfg.GetRedisAddr(), cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize cache")
	}
	defer fileCache.Close()
	log.Info().Msg("cache ready")

	allowlist := mimetypes.New(cfg.AllowedMimeTypes)

	fileService := service.NewFileService(objectStore, metadataStore, metadataStore, metadataStore, fileCache, allowlist)
	folderService := service.NewFolderService(metadataStore, metadataStore)

	verifier := auth.NewVerifier(cfg.JWTSecret)
	fileHandler := handlers.NewFileHandler(fileService, cfg.MaxUploadBytes)
	folderHandler := handlers.NewFolderHandler(folderService)

	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.Use(verifier.Middleware)

	api.Handle("/files", traced(fileHandler.Upload, "POST /api/files")).Methods("POST")
	api.Handle("/files/{id}/download", traced(fileHandler.Download, "GET /api/files/{id}/download")).Methods("GET")
	api.Handle("/files/{id}", traced(fileHandler.Delete, "DELETE /api/files/{id}")).Methods("DELETE")
	api.Handle("/quota", traced(fileHandler.Quota, "GET /api/quota")).Methods("GET")

	api.Handle("/folders", traced(folderHandler.Create, "POST /api/folders")).Methods("POST")
	api.Handle("/folders", traced(folderHandler.List, "GET /api/folders")).Methods("GET")
	api.Handle("/folders/{id}", traced(folderHandler.Contents, "GET /api/folders/{id}")).Methods("GET")
	api.Handle("/folders/{id}", traced(folderHandler.Rename, "PATCH /api/folders/{id}")).Methods("PATCH")
	api.Handle("/folders/{id}", traced(folderHandler.Delete, "DELETE /api/folders/{id}")).Methods("DELETE")

	srv := &http.Server{
		Addr:         ":" + cfg.ServicePort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("forced shutdown")
	}

	log.Info().Msg("server exited")
}

func traced(h http.HandlerFunc, name string) http.Handler {
	return otelhttp.NewHandler(h, name)
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
