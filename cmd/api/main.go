package main

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dimiro1/banner"
	"github.com/gin-gonic/gin"
	"github.com/xpanvictor/voxchat/internal/app"
	"github.com/xpanvictor/voxchat/internal/config"
	"github.com/xpanvictor/voxchat/internal/server"
	"github.com/xpanvictor/voxchat/pkg/Logger"
	"github.com/xpanvictor/voxchat/pkg/observe"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func printBanner() {
	tpl := "{{ .Title \"VOXCHAT\" \"\" 0 }}\nVersion: " + version + "\n"
	banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
}

// Entry point for the voice chat server.
// Loads config, wires the session and serves the page until interrupted.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := Logger.New(cfg.Debug)
	defer func() { _ = logger.Sync() }()
	printBanner()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Errorf("server exited: %v", err)
		os.Exit(1)
	}
	logger.Info("Shutdown system")
}

func run(ctx context.Context, cfg *config.Settings, logger *Logger.Logger) error {
	provider, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(sctx); err != nil {
			logger.Warnf("metrics shutdown: %v", err)
		}
	}()
	metrics, err := observe.NewMetrics(provider.MeterProvider)
	if err != nil {
		return err
	}

	a, err := app.NewApp(ctx, cfg, logger, app.Options{
		Metrics:        metrics,
		MetricsHandler: provider.Handler(),
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warnf("%v", err)
		}
	}()
	a.Prepare(ctx)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	routes, err := server.InitializeRoutes(ctx, cfg, router, a.GetServerDependencies())
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return a.SystemManager.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		// sockets are hijacked and not closed by Shutdown
		_ = routes.Close()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Errorf("Shutdown err %v", err)
		}
		a.Controller.Wait()
		return nil
	})

	return g.Wait()
}
