package internal

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 伺服器配置
//
// 優先級：命令行參數 > 環境變數 > 配置檔 > 預設值。
// 配置檔是可選的；但若透過 -config 明確指定卻讀不到，
// 啟動即失敗——絕不默默綁定一個非預期的端口。
type Config struct {
	Server ServerConfig `yaml:"server"`
	Relay  RelayConfig  `yaml:"relay"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig HTTP 伺服器配置
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// RelayConfig 中繼行為配置
type RelayConfig struct {
	SendBuffer     int           `yaml:"send_buffer"`      // 每連接出站緩衝（訊息數）
	MaxMessageSize int64         `yaml:"max_message_size"` // 入站訊框上限（位元組）
	PingInterval   time.Duration `yaml:"ping_interval"`
	PongTimeout    time.Duration `yaml:"pong_timeout"`
	WriteWait      time.Duration `yaml:"write_wait"`
}

// LogConfig 日誌配置
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// DefaultConfig 預設配置
//
// 心跳時間配置原理：54 秒 Ping 避開常見的 60 秒代理超時，
// 60 秒讀取期限留 6 秒余量。
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Relay: RelayConfig{
			SendBuffer:     256,
			MaxMessageSize: 64 * 1024,
			PingInterval:   54 * time.Second,
			PongTimeout:    60 * time.Second,
			WriteWait:      10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig 載入配置
//
// path 為空時只套用預設值與環境變數。
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("讀取配置檔失敗: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置檔失敗: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv 套用環境變數（覆蓋配置檔）
func (c *Config) applyEnv() {
	if port := os.Getenv("PORT"); port != "" {
		if val, err := strconv.Atoi(port); err == nil {
			c.Server.Port = val
		}
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

// Validate 驗證配置
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("端口必須在 1-65535 之間: %d", c.Server.Port)
	}
	if c.Relay.SendBuffer < 1 {
		return fmt.Errorf("發送緩衝必須大於 0: %d", c.Relay.SendBuffer)
	}
	if c.Relay.MaxMessageSize < 1 {
		return fmt.Errorf("訊框上限必須大於 0: %d", c.Relay.MaxMessageSize)
	}
	return nil
}
