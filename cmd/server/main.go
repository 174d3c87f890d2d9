package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lastmail/backend/internal/config"
	"lastmail/backend/internal/health"
	"lastmail/backend/internal/logger"
	"lastmail/backend/internal/mailstore"
	"lastmail/backend/internal/middleware"
	"lastmail/backend/internal/monitoring"
	"lastmail/backend/internal/service"
	"lastmail/backend/internal/storage/redis"
	httptransport "lastmail/backend/internal/transport/http"
)

const version = "1.0.0"

// main 启动邮件查询 HTTP 服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		File:        cfg.Log.File,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting lastmail server",
		zap.String("version", version),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)
	if !cfg.IMAPConfigured() {
		log.Warn("IMAP credentials not configured, lookups will fail until they are set")
	}

	// 初始化监控系统
	metrics := monitoring.NewMetrics(nil)

	// 初始化邮箱与查询服务
	mailbox := mailstore.NewMailbox(mailstore.Config{
		Host:        cfg.IMAP.Host,
		Port:        cfg.IMAP.Port,
		Username:    cfg.IMAP.Username,
		Password:    cfg.IMAP.Password,
		Folder:      cfg.IMAP.Folder,
		SSLTrust:    cfg.IMAP.SSLTrust,
		ScanMax:     cfg.IMAP.ScanMax,
		DialTimeout: cfg.IMAP.DialTimeout,
		MaxSessions: cfg.IMAP.MaxSessions,
	}, log.Named("mailstore"))

	emailService := service.NewEmailService(mailbox, cfg.Mailbox.AllowedDomains, log.Named("email"))
	emailService.SetObserver(metrics)
	catalog := service.NewCatalog()

	log.Info("mailbox configured",
		zap.String("address", mailbox.Addr()),
		zap.String("folder", cfg.IMAP.Folder),
		zap.Int("scan_window", mailbox.ScanWindow()),
		zap.Strings("allowed_domains", cfg.Mailbox.AllowedDomains),
		zap.Strings("services", catalog.Keys()),
	)

	// 限流：配置了 Redis 时多实例共享计数，否则使用进程内令牌桶
	var (
		limiter     middleware.Limiter
		redisClient *redis.Client
	)
	if cfg.RateLimit.Enabled {
		limiter, redisClient = newLimiter(cfg, log)
	}
	if closer, ok := limiter.(*middleware.MemoryLimiter); ok {
		defer closer.Close()
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	// 初始化健康检查
	healthOpts := health.Options{
		IMAPAddr: health.IMAPAddr(cfg.IMAP.Host, cfg.IMAP.Port),
	}
	if redisClient != nil {
		healthOpts.Redis = redisClient
	}
	healthChecker := health.NewChecker(healthOpts, log.Named("health"))

	// 创建 HTTP 服务器
	httpAddr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:       cfg,
		EmailService: emailService,
		Catalog:      catalog,
		Metrics:      metrics,
		Health:       healthChecker,
		Limiter:      limiter,
		Logger:       log,
	})

	// 一次查询可能包含连接、扫描、搜索和下载正文，写超时需要覆盖 IMAP 连接超时
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.IMAP.DialTimeout + 90*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		log.Info("server stopped")
		return nil
	})

	// 等待所有 goroutine 完成
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// newLimiter 根据配置选择限流器
//
// Redis 连接失败时退回进程内限流，服务仍可启动。
func newLimiter(cfg *config.Config, log *zap.Logger) (middleware.Limiter, *redis.Client) {
	if cfg.Redis.Address != "" {
		client, err := redis.New(cfg.Redis, log.Named("redis"))
		if err == nil {
			log.Info("using redis rate limiter",
				zap.Int("requests", cfg.RateLimit.Requests),
				zap.Duration("window", cfg.RateLimit.Window),
			)
			return middleware.NewRedisLimiter(client, cfg.RateLimit.Requests, cfg.RateLimit.Window), client
		}
		log.Warn("redis unavailable, falling back to in-memory rate limiter", zap.Error(err))
	}

	log.Info("using in-memory rate limiter",
		zap.Int("requests", cfg.RateLimit.Requests),
		zap.Duration("window", cfg.RateLimit.Window),
	)
	return middleware.NewMemoryLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window), nil
}
