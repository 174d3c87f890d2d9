package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// IMAPConfig 定义读取邮件使用的 IMAP 账户
type IMAPConfig struct {
	Host        string        // IMAP 服务器地址
	Port        int           // 端口，默认 993（隐式 TLS）
	Username    string        // 登录用户名，为空时查询接口返回配置错误
	Password    string        // 登录密码
	Folder      string        // 读取的邮件夹，默认 INBOX
	SSLTrust    string        // 证书校验使用的主机名，"*" 表示不校验，留空使用 Host
	ScanMax     int           // 本地扫描的最新邮件数量，默认 500
	DialTimeout time.Duration // 建立连接的超时时间，默认 30 秒
	MaxSessions int           // 同时打开的 IMAP 连接上限，默认 10，<= 0 不限制
}

// MailboxConfig 定义可查询的收件人范围
type MailboxConfig struct {
	AllowedDomains []string // 允许查询的收件人域名列表
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
	File        string // 日志文件路径，留空只输出到标准输出
}

// AuthConfig 定义 API Key 访问控制
type AuthConfig struct {
	APIKeys []string // 允许的 API Key，为空时不启用校验
}

// RateLimitConfig 定义查询接口的限流策略
type RateLimitConfig struct {
	Enabled  bool          // 是否启用限流
	Requests int           // 每个窗口内单个客户端允许的请求数
	Window   time.Duration // 窗口长度
}

// RedisConfig 定义 Redis 配置，配置地址后限流计数保存在 Redis 中
type RedisConfig struct {
	Address  string // Redis 服务地址，格式 "host:port"，留空使用进程内限流
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server    ServerConfig    // HTTP 服务器配置
	IMAP      IMAPConfig      // IMAP 账户配置
	Mailbox   MailboxConfig   // 收件人范围配置
	CORS      CORSConfig      // 跨域配置
	Log       LogConfig       // 日志配置
	Auth      AuthConfig      // API Key 配置
	RateLimit RateLimitConfig // 限流配置
	Redis     RedisConfig     // Redis 配置
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: LASTMAIL_
// 例如: LASTMAIL_SERVER_PORT, LASTMAIL_IMAP_HOST
//
// IMAP 账户同时兼容不带前缀的 IMAP_HOST / IMAP_USERNAME 等变量。
// 用户名密码为空不视为加载错误，由查询接口在请求时返回配置错误。
func Load() (*Config, error) {
	// 尝试加载 .env 文件（静默失败，因为 .env 文件是可选的）
	loadEnvFile()

	viper.SetEnvPrefix("lastmail")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	for _, key := range []string{"host", "port", "username", "password", "folder", "ssl_trust", "scan_max"} {
		envKey := "IMAP_" + strings.ToUpper(key)
		_ = viper.BindEnv("imap."+key, "LASTMAIL_"+envKey, envKey)
	}

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("imap.host", "")
	viper.SetDefault("imap.port", 993)
	viper.SetDefault("imap.username", "")
	viper.SetDefault("imap.password", "")
	viper.SetDefault("imap.folder", "INBOX")
	viper.SetDefault("imap.ssl_trust", "")
	viper.SetDefault("imap.scan_max", 500)
	viper.SetDefault("imap.dial_timeout", "30s")
	viper.SetDefault("imap.max_sessions", 10)
	viper.SetDefault("mailbox.allowed_domains", "klbdescuentos.com")
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("log.file", "")
	viper.SetDefault("auth.api_keys", "")
	viper.SetDefault("ratelimit.enabled", true)
	viper.SetDefault("ratelimit.requests", 30)
	viper.SetDefault("ratelimit.window", "1m")
	viper.SetDefault("redis.address", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	dialTimeout, err := time.ParseDuration(viper.GetString("imap.dial_timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid imap.dial_timeout: %w", err)
	}

	window, err := time.ParseDuration(viper.GetString("ratelimit.window"))
	if err != nil {
		return nil, fmt.Errorf("invalid ratelimit.window: %w", err)
	}

	domainList := parseDomains(viper.GetString("mailbox.allowed_domains"))
	if len(domainList) == 0 {
		return nil, fmt.Errorf("mailbox.allowed_domains must not be empty")
	}

	scanMax := viper.GetInt("imap.scan_max")
	if scanMax < 1 {
		scanMax = 1
	}

	requests := viper.GetInt("ratelimit.requests")
	if requests <= 0 {
		requests = 30
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		IMAP: IMAPConfig{
			Host:        strings.TrimSpace(viper.GetString("imap.host")),
			Port:        viper.GetInt("imap.port"),
			Username:    viper.GetString("imap.username"),
			Password:    viper.GetString("imap.password"),
			Folder:      viper.GetString("imap.folder"),
			SSLTrust:    strings.TrimSpace(viper.GetString("imap.ssl_trust")),
			ScanMax:     scanMax,
			DialTimeout: dialTimeout,
			MaxSessions: viper.GetInt("imap.max_sessions"),
		},
		Mailbox: MailboxConfig{
			AllowedDomains: domainList,
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
			File:        viper.GetString("log.file"),
		},
		Auth: AuthConfig{
			APIKeys: parseList(viper.GetString("auth.api_keys")),
		},
		RateLimit: RateLimitConfig{
			Enabled:  viper.GetBool("ratelimit.enabled"),
			Requests: requests,
			Window:   window,
		},
		Redis: RedisConfig{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
	}

	return cfg, nil
}

// IMAPConfigured 判断 IMAP 凭据是否已配置
func (c *Config) IMAPConfigured() bool {
	return strings.TrimSpace(c.IMAP.Username) != "" && strings.TrimSpace(c.IMAP.Password) != ""
}

// parseDomains 将逗号分隔的域名字符串解析为小写域名数组，去掉前导 "@"
func parseDomains(value string) []string {
	out := parseList(value)
	for i := range out {
		out[i] = strings.TrimPrefix(strings.ToLower(out[i]), "@")
	}
	return out
}

// parseList 将逗号分隔的字符串解析为字符串切片
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 加载顺序：
//  1. 当前目录的 .env
//  2. 父目录的 .env
//
// 文件不存在时静默跳过，已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
