package capp

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/you-humble/audioclip/internal/converter"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 15 * time.Second

type app struct {
	di     *dependencyInjector
	addr   string
	srv    *grpc.Server
	health *health.Server
}

func New(ctx context.Context, cfgPath string) *app {
	di := newDI(cfgPath)
	l := di.Logger()

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		converter.RecoveryUnaryInterceptor(l),
		converter.UnaryLoggingInterceptor(l),
	))
	converter.Register(grpcServer, di.Service(ctx))

	hs := health.NewServer()
	hs.SetServingStatus(converter.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, hs)

	return &app{
		di:     di,
		addr:   di.Config().Addr,
		srv:    grpcServer,
		health: hs,
	}
}

func (a *app) Run(ctx context.Context) error {
	l := a.di.Logger()

	lis, err := net.Listen("tcp", a.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		l.Info("converter gRPC service listening", "addr", a.addr)
		if err := a.srv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("failed to serve: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		l.Info("shutdown signal received, starting graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := a.shutdown(shutdownCtx); err != nil {
			l.Error("graceful shutdown failed", "err", err)
		} else {
			l.Info("graceful shutdown completed")
		}

	case err := <-errCh:
		l.Error("server exited with error", "err", err)
		return err
	}

	return nil
}

func (a *app) shutdown(ctx context.Context) error {
	l := a.di.Logger()
	a.health.Shutdown()

	done := make(chan struct{})
	go func() {
		l.Info("stopping gRPC server gracefully...")
		a.srv.GracefulStop()
		l.Info("gRPC server stopped")
		close(done)
	}()

	select {
	case <-ctx.Done():
		l.Warn("graceful stop timed out, forcing stop")
		a.srv.Stop()
		return fmt.Errorf("shutdown timeout exceeded: %w", ctx.Err())
	case <-done:
		return nil
	}
}
