package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	cvrpc "contentvault/pkg/api/cvrpc/v1"

	grpcprometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
)

// Server 组合了 gRPC 服务和 /metrics HTTP 端点
type Server struct {
	grpc     *grpc.Server
	metrics  *grpcprometheus.ServerMetrics
	registry *prometheus.Registry
	logger   *zap.Logger
}

func New(logger *zap.Logger, registry *prometheus.Registry, svc cvrpc.ContentStoreServer) *Server {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	metrics := grpcprometheus.NewServerMetrics(func(c *prometheus.CounterOpts) {
		c.Namespace = "contentvault"
	})
	metrics.EnableHandlingTimeHistogram(func(h *prometheus.HistogramOpts) {
		h.Namespace = "contentvault"
	})
	registry.MustRegister(
		metrics,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// 拦截器顺序: recovery 在最内层，panic 也会被记日志和计入指标
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			metrics.UnaryServerInterceptor(),
			UnaryLoggingInterceptor(logger),
			UnaryRecoveryInterceptor(logger),
		),
		grpc.ChainStreamInterceptor(
			metrics.StreamServerInterceptor(),
			StreamLoggingInterceptor(logger),
			StreamRecoveryInterceptor(logger),
		),
		grpc.MaxRecvMsgSize(256*1024*1024),
		grpc.MaxSendMsgSize(256*1024*1024),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	cvrpc.RegisterContentStoreServer(gs, svc)
	metrics.InitializeMetrics(gs)

	return &Server{grpc: gs, metrics: metrics, registry: registry, logger: logger}
}

func (s *Server) GRPC() *grpc.Server {
	return s.grpc
}

// Serve 阻塞直到 lis 关闭
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
	return s.grpc.Serve(lis)
}

// ServeMetrics 在 addr 上暴露 /metrics，直到 ctx 结束
func (s *Server) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("metrics endpoint listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func (s *Server) GracefulStop() {
	s.grpc.GracefulStop()
}
