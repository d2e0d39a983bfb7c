// Package main runs the tutoring live agent: the local companion process
// that converts sessions between offline and online, keeps the UI's session
// views consistent, and records the live room from the best capture source.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tutorlane/liveclient/config"
	"github.com/tutorlane/liveclient/internal/capture"
	"github.com/tutorlane/liveclient/internal/consistency"
	"github.com/tutorlane/liveclient/internal/conversion"
	"github.com/tutorlane/liveclient/internal/middleware"
	"github.com/tutorlane/liveclient/internal/realtime"
	"github.com/tutorlane/liveclient/internal/recorder"
	"github.com/tutorlane/liveclient/internal/sessionapi"
	"github.com/tutorlane/liveclient/internal/sessioncache"
	"github.com/tutorlane/liveclient/internal/sessions"
	"github.com/tutorlane/liveclient/pkg/redis"
	"github.com/tutorlane/liveclient/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()

	// Redis is optional: without it, events stay local to this agent.
	var pub realtime.Publisher
	var sub realtime.Subscriber
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Warn("redis disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			pubsub := realtime.NewRedisPubSub(rdb.Client, logger)
			pub, sub = pubsub, pubsub
		}
	}
	hub := realtime.NewHub(logger, pub, sub)

	// Session service client and view cache.
	apiClient := sessionapi.NewClient(
		cfg.Session.BaseURL,
		cfg.Session.Token,
		time.Duration(cfg.Session.TimeoutSec)*time.Second,
		logger,
	)
	cache := sessioncache.NewStore(logger)

	// Conversion pipeline.
	poller := consistency.NewPoller(cache, apiClient, logger)
	pollCtx, pollCancel := context.WithCancel(context.Background())
	defer pollCancel()
	coordinator := conversion.NewCoordinator(cache, apiClient, realtime.NewNotifier(hub), poller, pollCtx, logger)
	conversionHandler := conversion.NewHandler(coordinator, logger)

	// Read views.
	reader := sessions.NewReader(cache, apiClient, logger)
	sessionHandler := sessions.NewHandler(reader, logger)

	// Capture and recording. The whiteboard page only exists when a
	// browser is configured.
	var whiteboard *rod.Page
	if cfg.Browser.WhiteboardURL != "" {
		whiteboard = openWhiteboard(cfg.Browser, logger)
	}
	screen := capture.NewScreenSource(capture.ScreenOptions{
		FFmpegPath:  cfg.Recording.FFmpegPath,
		Display:     cfg.Recording.Display,
		FrameRate:   cfg.Recording.FrameRate,
		AudioDevice: cfg.Recording.SystemAudio,
	}, logger)
	canvas := capture.NewCanvasSource(whiteboard, cfg.Recording.FFmpegPath, 15, logger)
	devices := capture.NewDeviceSource(capture.DeviceOptions{
		FFmpegPath:  cfg.Recording.FFmpegPath,
		VideoDevice: cfg.Recording.CameraDev,
		AudioDevice: cfg.Recording.MicDev,
		FrameRate:   cfg.Recording.FrameRate,
	}, logger)
	composer := capture.NewComposer(screen, canvas, logger)
	probe := capture.NewProbe(cfg.Recording.FFmpegPath, logger)
	recorderSvc := recorder.NewService(composer, probe, devices, cfg.Recording.OutputDir, cfg.Recording.FFmpegPath, logger)
	recorderHandler := recorder.NewHandler(recorderSvc, probe, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	api := router.Group("")
	api.Use(middleware.Auth())
	{
		api.GET("/sessions", sessionHandler.List)
		api.GET("/sessions/live", sessionHandler.Live)
		api.GET("/sessions/online", sessionHandler.Online)

		api.POST("/sessions/:id/convert", conversionHandler.Convert)
		api.POST("/sessions/:id/revert", conversionHandler.Revert)

		api.GET("/recording/support", recorderHandler.Support)
		api.POST("/sessions/:id/recording/start", recorderHandler.Start)
		api.POST("/sessions/:id/recording/stop", recorderHandler.Stop)
	}

	// WebSocket (token in query; no Authorization header on upgrades).
	router.GET("/ws", realtime.ServeWs(hub, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("agent listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	pollCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("agent stopped")
}

// openWhiteboard launches the embedded browser and navigates to the
// whiteboard. Failure disables the canvas capture tier, nothing else.
func openWhiteboard(cfg config.BrowserConfig, logger *zap.Logger) *rod.Page {
	l := launcher.New().Headless(true)
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	u, err := l.Launch()
	if err != nil {
		logger.Warn("whiteboard browser unavailable", zap.Error(err))
		return nil
	}
	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		logger.Warn("whiteboard browser connect failed", zap.Error(err))
		return nil
	}
	page, err := browser.Page(proto.TargetCreateTarget{URL: cfg.WhiteboardURL})
	if err != nil {
		logger.Warn("whiteboard page failed", zap.Error(err))
		return nil
	}
	return page
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
