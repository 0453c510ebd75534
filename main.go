package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/krau/objclassify/assets"
	"github.com/krau/objclassify/config"
	"github.com/krau/objclassify/logger"
	"github.com/krau/objclassify/monitor"
	"github.com/krau/objclassify/onnx"
	"github.com/krau/objclassify/server"
	"github.com/krau/objclassify/service"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := config.C()
	if err := logger.Init(cfg.LogLevel, cfg.LogDev); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.L()
	log.Info("Starting objclassify")

	if err := onnx.Init(); err != nil {
		// The service still answers with the fallback result.
		log.Warn("ONNX Runtime unavailable, classifier will stay unloaded", zap.Error(err))
	}
	defer onnx.Destroy()

	if err := run(ctx, cfg, log, nil); err != nil {
		log.Error("objclassify stopped", zap.Error(err))
	}
}

// run serves HTTP (and gRPC health when configured) until ctx is done.
// ready, when set, receives the HTTP listener address once it accepts
// connections.
func run(ctx context.Context, cfg config.Config, log *zap.Logger, ready func(net.Addr)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	filter, err := service.ResampleFilter(cfg.Resample)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	loader := &onnx.Loader{
		Dir:            cfg.ModelDir,
		URLs:           cfg.ModelURLs,
		Fetcher:        assets.NewFetcher(5*time.Minute, log.Named("assets")),
		IntraOpThreads: cfg.IntraOpThreads,
	}
	pipeline := service.NewPipeline(loader, service.DirTextLoader(cfg.ModelDir), service.Options{
		ModelCandidates: cfg.ModelCandidates,
		LabelsID:        cfg.LabelsFile,
		Threshold:       cfg.Threshold,
		Preprocess: service.PreprocessOptions{
			NormalizeSigned: cfg.NormalizeSigned,
			Filter:          filter,
		},
	}, log.Named("pipeline"))
	defer pipeline.Dispose()

	health := server.NewHealthServer(pipeline)
	go func() {
		pipeline.Load()
		health.Refresh()
	}()

	if cfg.Metrics {
		go monitor.StartProcessSampler(ctx, log.Named("monitor"))
	}

	var grpcServer *grpc.Server
	if cfg.GRPCPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
		if err != nil {
			return fmt.Errorf("failed to listen for gRPC on %d: %w", cfg.GRPCPort, err)
		}
		grpcServer = server.NewGRPCServer(health)
		defer grpcServer.GracefulStop()
		go func() {
			log.Info("gRPC health listening", zap.String("address", lis.Addr().String()))
			if err := grpcServer.Serve(lis); err != nil {
				log.Error("gRPC server error", zap.Error(err))
				cancel()
			}
		}()
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Handler: server.New(pipeline, server.Options{
			Token:       cfg.Token,
			MaxUploadMB: cfg.MaxUploadMB,
			Metrics:     cfg.Metrics,
			Log:         log.Named("http"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	lis, err := net.Listen("tcp", net.JoinHostPort(cfg.Host, cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	log.Info("Listening on", zap.String("address", lis.Addr().String()))
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	if ready != nil {
		ready(lis.Addr())
	}

	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}
	log.Info("shutting down")
	health.Shutdown()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Warn("http shutdown", zap.Error(shutdownErr))
	}
	return err
}
