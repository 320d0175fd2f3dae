package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koopa0/system-design/14-target-duel/internal"
)

func main() {
	// 解析命令行參數
	var (
		configPath = flag.String("config", "", "YAML 配置檔路徑")
		port       = flag.Int("port", 8080, "服務器端口")
		logLevel   = flag.String("log-level", "info", "日誌級別 (debug, info, warn, error)")
		logFormat  = flag.String("log-format", "text", "日誌格式 (text, json)")
	)
	flag.Parse()

	cfg, err := internal.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "載入配置失敗: %v\n", err)
		os.Exit(1)
	}

	// 只有明確指定的參數覆蓋配置
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Server.Port = *port
		case "log-level":
			cfg.Server.LogLevel = *logLevel
		case "log-format":
			cfg.Server.LogFormat = *logFormat
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "配置無效: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(cfg *internal.Config) error {
	// 設置日誌
	logger := setupLogger(cfg.Server.LogLevel, cfg.Server.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := internal.SetupTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}

	// 內嵌 NATS，作為事件推送通道
	natsServer, err := internal.NewNatsServer(logger,
		internal.WithNatsHost(cfg.NATS.Host),
		internal.WithNatsPort(cfg.NATS.Port),
		internal.WithNatsStartTimeout(cfg.NATS.StartTimeout),
	)
	if err != nil {
		return fmt.Errorf("create nats: %w", err)
	}
	if err := natsServer.Start(); err != nil {
		return fmt.Errorf("start nats: %w", err)
	}

	gateway := internal.NewNatsGateway(natsServer)
	queue := internal.NewQueue(logger)
	registry := internal.NewRegistry(cfg.Arena, logger)
	lobby := internal.NewLobby(queue, registry, gateway, cfg.Arena, logger)
	simulator := internal.NewSimulator(registry, gateway, cfg.Arena.GraceDelay, logger)
	scheduler := internal.NewScheduler(cfg.Arena.TickInterval(), logger, simulator)
	wsHub := internal.NewWebSocketHub(lobby, gateway, logger)
	handler := internal.NewHandler(registry, queue, wsHub, logger)

	// 設置路由
	mux := http.NewServeMux()

	// HTTP API 路由
	mux.Handle("/", handler.Routes())

	// WebSocket 路由
	mux.HandleFunc("GET /ws", wsHub.ServeWS)

	// 創建 HTTP 服務器
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	scheduler.Start(ctx)

	// 啟動服務器
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("對戰服務器啟動",
			"port", cfg.Server.Port,
			"log_level", cfg.Server.LogLevel,
			"log_format", cfg.Server.LogFormat,
			"tick_rate", cfg.Arena.TickRate)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// 等待中斷信號
	select {
	case <-ctx.Done():
		logger.Info("收到關閉信號，開始優雅關閉...")
	case err := <-serverErr:
		logger.Error("服務器啟動失敗", "error", err)
	}

	// 優雅關閉
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// 停止接受新連接
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("服務器關閉失敗", "error", err)
	}

	wsHub.Stop()
	scheduler.Stop()
	registry.Stop()
	natsServer.Close()

	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Error("關閉追蹤失敗", "error", err)
	}

	logger.Info("服務器已關閉")
	return nil
}

// setupLogger 設置日誌
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: level == "debug", // debug 模式顯示源碼位置
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
