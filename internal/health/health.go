package health

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

// Pinger 可探测连通性的依赖（例如 Redis）
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options 健康检查参数
type Options struct {
	// IMAPAddr 为空时不检查 IMAP 连通性
	IMAPAddr string
	// Redis 为空时不检查 Redis
	Redis         Pinger
	Timeout       time.Duration
	MaxGoroutines int
}

// Checker 健康检查器
//
// 存活检查只看进程自身（goroutine 数量）；就绪检查探测 IMAP 服务器的
// TCP 连通性以及可选的 Redis。IMAP 检查不登录，避免每次探测都消耗会话。
type Checker struct {
	health healthcheck.Handler
	log    *zap.Logger
}

// NewChecker 创建健康检查器
func NewChecker(opts Options, log *zap.Logger) *Checker {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.MaxGoroutines <= 0 {
		opts.MaxGoroutines = 1000
	}

	hc := &Checker{
		health: healthcheck.NewHandler(),
		log:    log,
	}

	hc.health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(opts.MaxGoroutines))

	if opts.IMAPAddr != "" {
		hc.health.AddReadinessCheck("imap", hc.logged("imap", healthcheck.TCPDialCheck(opts.IMAPAddr, opts.Timeout)))
	}
	if opts.Redis != nil {
		hc.health.AddReadinessCheck("redis", hc.logged("redis", PingCheck(opts.Redis, opts.Timeout)))
	}

	return hc
}

// Handler 返回健康检查处理器，提供 /live 与 /ready
func (hc *Checker) Handler() http.Handler {
	return hc.health
}

func (hc *Checker) logged(name string, check healthcheck.Check) healthcheck.Check {
	return func() error {
		err := check()
		if err != nil {
			hc.log.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
		}
		return err
	}
}

// PingCheck 使用 Pinger 的健康检查
func PingCheck(p Pinger, timeout time.Duration) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return p.Ping(ctx)
	}
}

// IMAPAddr 拼接 IMAP 地址，host 为空时返回空串
func IMAPAddr(host string, port int) string {
	if host == "" {
		return ""
	}
	if port <= 0 {
		port = 993
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
