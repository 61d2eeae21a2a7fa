package main

import (
	"context"
	"mindmesh/mindmesh/config"
	"mindmesh/mindmesh/controllers"
	"mindmesh/mindmesh/middlewares"
	"mindmesh/mindmesh/routes"
	"mindmesh/mindmesh/services/chat"
	"mindmesh/mindmesh/services/digest"
	"mindmesh/mindmesh/services/llm"
	"mindmesh/mindmesh/sources/psql"
	"mindmesh/mindmesh/sources/psql/dao"
	"mindmesh/mindmesh/sources/storage"
	"mindmesh/mindmesh/utils/logging"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()
	logging.InitLogger(cfg.LogDir)
	defer logging.Sync()
	if cfg.JWTSecret == "" {
		logging.ErrorLogger.Error("JWT_SECRET is not set")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := psql.NewDatabase(ctx, cfg)
	if err != nil {
		logging.ErrorLogger.Error("database connection error", zap.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	gateway := llm.NewGatewayClient(llm.GatewayConfig{
		URL:     cfg.GatewayURL,
		APIKey:  cfg.GatewayAPIKey,
		Model:   cfg.GatewayModel,
		Timeout: cfg.GatewayTimeout,
	})

	// The digest archive is optional.
	var archive digest.Archive
	if cfg.MinIOEndpoint != "" {
		minioClient, err := storage.NewMinIOClient(ctx, cfg)
		if err != nil {
			logging.ErrorLogger.Error("minio connection error, digests will not be archived", zap.Error(err))
		} else {
			archive = minioClient
		}
	}

	chatCtrl := controllers.NewChatController(dao.NewChatDAO(db.DB), gateway,
		chat.WithMaxFrameBytes(cfg.MaxFrameBytes))
	defer chatCtrl.Close()
	digestCtrl := controllers.NewDigestController(
		digest.NewService(dao.NewDigestDAO(db.DB), gateway, archive))
	healthCtrl := controllers.NewHealthController(db)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewares.RequestLogger)
	r.Use(middleware.Recoverer)

	r.Mount("/health", routes.HealthRoutes(healthCtrl))
	r.Mount("/chat", routes.ChatRoutes(chatCtrl, cfg))
	r.Mount("/digest", routes.DigestRoutes(digestCtrl, cfg))

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logging.AppLogger.Info("server listening", zap.String("addr", cfg.ServerAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.ErrorLogger.Error("server listen error", zap.Error(err))
		}
	}()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	// Abort in-flight streams so Shutdown does not wait on them.
	chatCtrl.Close()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.ErrorLogger.Error("server shutdown error", zap.Error(err))
	}
	logging.AppLogger.Info("server shutdown complete")
}
