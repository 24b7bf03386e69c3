package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"os/signal"
	"syscall"

	"contentvault/pkg/app"
	"contentvault/pkg/config"
	"contentvault/pkg/logging"
	"contentvault/pkg/server"
	"contentvault/pkg/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func main() {
	// 1. Load Config
	cfgFile := flag.String("config", "", "config file (default is ./.cv/config.yaml or $HOME/.cv/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("❌ Logger error: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	// 2. Init Core Application
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 相对路径按进程工作目录解析
	application, err := app.New(ctx, cfg, ".", logger, registry)
	if err != nil {
		logger.Fatal("failed to initialize app", zap.Error(err))
	}
	defer application.Close()

	spaces, err := application.BuildDataSpaces(ctx)
	if err != nil {
		logger.Fatal("failed to build data spaces", zap.Error(err))
	}
	svc, err := service.NewContentService(logger, spaces...)
	if err != nil {
		logger.Fatal("failed to create content service", zap.Error(err))
	}

	// 3. Setup Network
	lis, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", cfg.Server.Listen), zap.Error(err))
	}

	srv := server.New(logger, registry, svc)

	// 4. Start Server (Async)
	go func() {
		logger.Info("grpc server listening", zap.String("addr", cfg.Server.Listen), zap.Int("data_spaces", len(spaces)))
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("grpc server failed", zap.Error(err))
			stop()
		}
	}()
	if cfg.Server.MetricsListen != "" {
		go func() {
			if err := srv.ServeMetrics(ctx, cfg.Server.MetricsListen); err != nil {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	// 5. Graceful Shutdown
	<-ctx.Done()
	logger.Warn("shutting down server")
	srv.GracefulStop()
	logger.Info("server stopped")
}
