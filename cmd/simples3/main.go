package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"simples3/internal/api"
	"simples3/internal/bucketreg"
	"simples3/internal/config"
	"simples3/internal/cors"
	"simples3/internal/credential"
	"simples3/internal/lifecycle"
	"simples3/internal/logging"
	"simples3/internal/metadata"
	"simples3/internal/metrics"
	"simples3/internal/multipart"
	"simples3/internal/objectstore"
	"simples3/internal/runtime"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("startup failed: %v", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogFormat, os.Stdout)

	if err := runtime.EnsureStorageAvailable(cfg.DataDir); err != nil {
		logger.Error("startup failed: storage readiness", "error", err)
		os.Exit(1)
	}
	if err := runtime.EnsureStorageAvailable(cfg.MetadataDir); err != nil {
		logger.Error("startup failed: metadata dir readiness", "error", err)
		os.Exit(1)
	}

	metaPath := filepath.Join(cfg.MetadataDir, "meta.db")
	meta, err := metadata.Open(metaPath)
	if err != nil {
		logger.Error("startup failed: open metadata store", "error", err)
		os.Exit(1)
	}
	defer meta.Close()

	if warning, err := runtime.CheckMetadataFilePermissions(metaPath); err != nil {
		logger.Warn("metadata file permission check skipped", "error", err)
	} else if warning != "" {
		logger.Warn("metadata file permissions warning", "warning", warning)
	}

	objects, err := objectstore.New(cfg.DataDir, cfg.MaxObjectSize, meta)
	if err != nil {
		logger.Error("startup failed: open object store", "error", err)
		os.Exit(1)
	}
	mpu := multipart.New(filepath.Join(cfg.DataDir, ".mpu"), meta, objects)
	buckets := bucketreg.NewStore(meta)
	credentials := credential.NewStore(meta)
	lifecycleStore := lifecycle.NewStore(meta)
	corsStore := cors.NewStore(meta)

	registry, promReg := metrics.New()
	_ = promReg // exposed over HTTP is out of scope; counters are read back directly in tests

	scanner := &lifecycle.Scanner{
		Store:   lifecycleStore,
		Backend: objects,
		Counter: registry,
		Logger:  logger,
	}
	stopLifecycle := scanner.Run(context.Background(), time.Duration(cfg.LifecycleScan)*time.Second)

	multipartInterval := time.Duration(cfg.MultipartCleanup) * time.Second
	multipartStaleAfter := time.Duration(cfg.MultipartStaleAfter) * time.Second
	stopMultipart := mpu.Run(context.Background(), multipartInterval, multipartStaleAfter, logger)

	readyCheck := func() error {
		if err := runtime.EnsureStorageAvailable(cfg.DataDir); err != nil {
			return err
		}
		return nil
	}

	svc := &api.Service{
		Objects:            objects,
		Multipart:          mpu,
		Buckets:            buckets,
		Credentials:        credentials,
		Lifecycle:          lifecycleStore,
		CORS:               &cors.Evaluator{Store: corsStore, GlobalOrigins: cfg.CORSOrigins},
		Metrics:            registry,
		Region:             cfg.Region,
		ServiceName:        "s3",
		ClockSkew:          15 * time.Minute,
		ServiceHost:        cfg.Hostname,
		MaxBodyBytes:       cfg.MaxXMLBodySize,
		MaxPolicyBodyBytes: cfg.MaxPolicyBodySize,
		AnonymousGlobal:    cfg.AnonymousGlobal,
		ReadyCheck:         readyCheck,
		Now:                time.Now,
		Logger:             logger,
	}

	handler := withServerHeader(svc.Handler())

	srv, err := runtime.New(cfg, handler, logger)
	if err != nil {
		logger.Error("startup failed: server init", "error", err)
		os.Exit(1)
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-shutdownCh
		stopMultipart()
		stopLifecycle()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if shutdownErr := srv.Shutdown(ctx); shutdownErr != nil {
			logger.Error("graceful shutdown failed", "error", shutdownErr)
		}
	}()

	logger.Info("server starting", "addr", cfg.BindAddress, "region", cfg.Region)
	if err := srv.Start(); err != nil && err != http.ErrServerClosed {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func withServerHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "simples3")
		next.ServeHTTP(w, r)
	})
}
