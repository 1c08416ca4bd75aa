package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xpanvictor/voxchat/internal/config"
	"github.com/xpanvictor/voxchat/internal/domains/conversation"
	"github.com/xpanvictor/voxchat/internal/domains/session"
	"github.com/xpanvictor/voxchat/internal/handlers"
	wshandler "github.com/xpanvictor/voxchat/internal/handlers/websocket"
	"github.com/xpanvictor/voxchat/pkg/Logger"
	"github.com/xpanvictor/voxchat/pkg/io"
	"github.com/xpanvictor/voxchat/pkg/io/mic"
	"github.com/xpanvictor/voxchat/pkg/io/registry"
	"github.com/xpanvictor/voxchat/pkg/observe"
)

type Dependencies struct {
	Configs        *config.Settings
	Logger         *Logger.Logger
	Session        *session.Session
	Controller     *conversation.Controller
	Mic            *mic.Microphone
	Publisher      *io.Publisher
	DeviceRegistry registry.Registry
	Metrics        *observe.Metrics
	MetricsHandler http.Handler
}

func NewServerDependencies(
	config *config.Settings,
	logger *Logger.Logger,
	sess *session.Session,
	controller *conversation.Controller,
	microphone *mic.Microphone,
	publisher *io.Publisher,
	deviceRegistry registry.Registry,
	metrics *observe.Metrics,
	metricsHandler http.Handler,
) Dependencies {
	return Dependencies{
		Configs:        config,
		Logger:         logger,
		Session:        sess,
		Controller:     controller,
		Mic:            microphone,
		Publisher:      publisher,
		DeviceRegistry: deviceRegistry,
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
	}
}

// Routes owns the handlers that hold resources; Close releases them.
type Routes struct {
	ws *wshandler.WebSocketHandler
}

func (r *Routes) Close() error {
	if r == nil || r.ws == nil {
		return nil
	}
	return r.ws.Close()
}

// InitializeRoutes mounts the page, the JSON API, the browser socket and,
// when enabled, the scrape endpoint. baseCtx bounds cycles started from a
// request.
func InitializeRoutes(baseCtx context.Context, cfg *config.Settings, r *gin.Engine, dep Dependencies) (*Routes, error) {
	metrics := dep.Metrics
	if metrics == nil {
		metrics = observe.Discard()
	}

	r.Use(
		handlers.ErrorHandlerMiddleware(dep.Logger),
		handlers.RequestLoggerMiddleware(dep.Logger),
		handlers.CORSMiddleware(),
		handlers.MetricsMiddleware(metrics),
	)

	page, err := NewPageHandler(dep.Session, dep.Logger)
	if err != nil {
		return nil, err
	}
	r.GET("/", page.Index)
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, handlers.HealthResponse{Status: "ok"})
	})

	handlers.NewSessionHandler(baseCtx, dep.Session, dep.Controller, dep.Logger.Named("api")).
		RegisterRoutes(r)

	ws := wshandler.NewWebSocketHandler(baseCtx, wshandler.Deps{
		Session:        dep.Session,
		Controller:     dep.Controller,
		Mic:            dep.Mic,
		Publisher:      dep.Publisher,
		DeviceRegistry: dep.DeviceRegistry,
		Metrics:        metrics,
		Logger:         dep.Logger.Named("ws"),
		IdleTimeout:    cfg.Server.WSIdleTimeout,
	})
	ws.RegisterRoutes(r)

	if cfg.Metrics.Enabled && dep.MetricsHandler != nil {
		r.GET(cfg.Metrics.Path, gin.WrapH(dep.MetricsHandler))
	}

	return &Routes{ws: ws}, nil
}
