package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合服务端与终端客户端的配置项。
type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	AI      AIConfig
	Redis   RedisConfig
	Log     LogConfig
	Client  ClientConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(environ map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	addr, err := normalizeAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	cfg.Storage.DataFolder = strings.TrimSpace(cfg.Storage.DataFolder)
	if cfg.Storage.DataFolder == "" {
		return nil, fmt.Errorf("DATA_FOLDER must not be empty")
	}

	cfg.AI.APIKey = strings.TrimSpace(cfg.AI.APIKey)
	cfg.AI.AccessKey = strings.TrimSpace(cfg.AI.AccessKey)
	cfg.AI.SecretKey = strings.TrimSpace(cfg.AI.SecretKey)
	cfg.AI.Model = strings.TrimSpace(cfg.AI.Model)
	cfg.Redis.Addr = strings.TrimSpace(cfg.Redis.Addr)
	cfg.Client.APIBase = strings.TrimRight(strings.TrimSpace(cfg.Client.APIBase), "/")

	if cfg.Redis.ThreadTTL <= 0 {
		return nil, fmt.Errorf("invalid THREAD_TTL value %q", cfg.Redis.ThreadTTL)
	}
	return &cfg, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port string `env:"PORT" envDefault:"8080"`
	Addr string `env:"-"`
}

// normalizeAddr 解析服务器监听地址。
func normalizeAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

// StorageConfig locates the notes workspace on disk.
type StorageConfig struct {
	DataFolder string `env:"DATA_FOLDER" envDefault:"data"`
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey      string   `env:"ARK_API_KEY"`
	AccessKey   string   `env:"ARK_ACCESS_KEY"`
	SecretKey   string   `env:"ARK_SECRET_KEY"`
	Model       string   `env:"Model"`
	BaseURL     string   `env:"ARK_BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	Region      string   `env:"ARK_REGION" envDefault:"cn-beijing"`
	Temperature *float64 `env:"ARK_TEMPERATURE"`
	TopP        *float64 `env:"ARK_TOP_P"`
	MaxTokens   *int     `env:"ARK_MAX_TOKENS"`

	// IntentLLMEnabled lets the model classify queries; the keyword
	// classifier is used otherwise.
	IntentLLMEnabled bool `env:"AI_INTENT_LLM_ENABLED" envDefault:"true"`
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_API_KEY and Model, or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

// RedisConfig selects the redis-backed consent thread store when Addr is set.
type RedisConfig struct {
	Addr      string        `env:"REDIS_ADDR"`
	Password  string        `env:"REDIS_PASSWORD"`
	DB        int           `env:"REDIS_DB" envDefault:"0"`
	ThreadTTL time.Duration `env:"THREAD_TTL" envDefault:"30m"`
}

// Enabled reports whether a redis address was configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// LogConfig 日志级别与输出格式（json / console）。
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// ClientConfig configures the terminal client.
type ClientConfig struct {
	APIBase string        `env:"NOTES_API_BASE" envDefault:"http://localhost:8080"`
	LogFile string        `env:"NOTES_LOG_FILE" envDefault:"notes.log"`
	Pacing  time.Duration `env:"NOTES_PACING" envDefault:"100ms"`
}
