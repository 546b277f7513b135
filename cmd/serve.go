package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"catalog-service/internal/api"
	"catalog-service/internal/config"
	"catalog-service/internal/integrity"
	"catalog-service/internal/store"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the gRPC health endpoint",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	backend, err := openBackend(cmd.Context(), cfg, log)
	if err != nil {
		log.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Warn("error closing store", "error", err)
		}
	}()

	stores := store.StoresOf(backend)
	manager := integrity.NewManager(stores, log)
	handler := api.NewHTTPHandler(manager, stores, backend, log)

	httpServer := &http.Server{
		Addr:         ":" + cfg.HttpServer.Port,
		Handler:      newRouter(cfg, handler, log),
		ReadTimeout:  cfg.HttpServer.TimeoutRead,
		WriteTimeout: cfg.HttpServer.TimeoutWrite,
		IdleTimeout:  cfg.HttpServer.TimeoutIdle,
	}

	healthServer := health.NewServer()
	grpcServer := newGRPCServer(healthServer)
	grpcListener, err := net.Listen("tcp", ":"+cfg.GrpcServer.Port)
	if err != nil {
		return fmt.Errorf("listen for gRPC on port %s: %w", cfg.GrpcServer.Port, err)
	}

	serveErr := make(chan error, 2)
	go func() {
		log.Info("HTTP server listening", "port", cfg.HttpServer.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
	go func() {
		log.Info("gRPC server listening", "port", cfg.GrpcServer.Port)
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			serveErr <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case sig := <-sigChan:
		log.Info("received signal, starting graceful shutdown", "signal", sig.String())
	case runErr = <-serveErr:
		log.Error("server failed, shutting down", "error", runErr)
	}

	shutdown(log, httpServer, grpcServer, healthServer)
	return runErr
}

// openBackend connects the store selected by STORE_DRIVER.
func openBackend(ctx context.Context, cfg *config.Config, log *slog.Logger) (store.Backend, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		ctx, cancel := context.WithTimeout(ctx, cfg.Mongo.Timeout)
		defer cancel()

		client, err := store.ConnectMongo(ctx, cfg.Mongo.URI)
		if err != nil {
			return nil, err
		}
		s := store.NewMongoStore(client, client.Database(cfg.Mongo.Database), cfg.Mongo.Transactions)
		if err := s.EnsureIndexes(ctx); err != nil {
			s.Close()
			return nil, err
		}
		log.Info("mongo store ready", "database", cfg.Mongo.Database, "transactions", cfg.Mongo.Transactions)
		return s, nil

	case config.DriverMemory:
		log.Warn("using in-memory store, data is lost on exit")
		return store.NewMemoryStore(), nil

	default:
		db, err := openPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		if cfg.Postgres.MigrateOnStart {
			if err := store.Migrate(db, "up", log); err != nil {
				db.Close()
				return nil, err
			}
		}
		log.Info("postgres store ready", "host", cfg.Postgres.Host, "dbname", cfg.Postgres.DBName)
		return store.NewPostgresStore(db), nil
	}
}

func newRouter(cfg *config.Config, handler *api.HTTPHandler, log *slog.Logger) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(log.Handler(), slog.LevelInfo),
		NoColor: true,
	}))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(cfg.HttpServer.RequestTimeout))
	router.Use(cors.New(cors.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler)

	handler.RegisterRoutes(router)
	return router
}

// newGRPCServer exposes the health checking protocol and reflection.
func newGRPCServer(healthServer *health.Server) *grpc.Server {
	s := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(s, healthServer)
	reflection.Register(s)
	return s
}

func shutdown(log *slog.Logger, httpServer *http.Server, grpcServer *grpc.Server, healthServer *health.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	healthServer.Shutdown()

	stoppedGrpc := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stoppedGrpc)
	}()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn("HTTP server graceful shutdown failed", "error", err)
	} else {
		log.Info("HTTP server shut down")
	}

	select {
	case <-stoppedGrpc:
		log.Info("gRPC server shut down")
	case <-ctx.Done():
		log.Warn("gRPC graceful stop timed out, forcing stop", "error", ctx.Err())
		grpcServer.Stop()
	}
}
