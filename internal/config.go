package internal

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config 服務配置
//
// 載入順序（後者覆蓋前者）：
//
//	DefaultConfig → YAML 檔案 → 環境變數（ARENA_*）→ 命令行參數（main 處理）
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Arena     ArenaConfig     `yaml:"arena"`
	NATS      NATSConfig      `yaml:"nats"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig HTTP 服務配置
type ServerConfig struct {
	Port            int           `yaml:"port" env:"ARENA_PORT"`
	LogLevel        string        `yaml:"log_level" env:"ARENA_LOG_LEVEL"`
	LogFormat       string        `yaml:"log_format" env:"ARENA_LOG_FORMAT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"ARENA_SHUTDOWN_TIMEOUT"`
}

// ArenaConfig 遊戲參數
//
// 場地尺寸由伺服器與渲染端共用，其餘皆為固定的遊戲常數。
type ArenaConfig struct {
	Width           float64       `yaml:"width" env:"ARENA_WIDTH"`
	Height          float64       `yaml:"height" env:"ARENA_HEIGHT"`
	PlayerSize      float64       `yaml:"player_size" env:"ARENA_PLAYER_SIZE"`
	TargetRadius    float64       `yaml:"target_radius" env:"ARENA_TARGET_RADIUS"`
	ShrinkPerTick   float64       `yaml:"shrink_per_tick" env:"ARENA_SHRINK_PER_TICK"`
	MinTargetRadius float64       `yaml:"min_target_radius" env:"ARENA_MIN_TARGET_RADIUS"`
	TargetCount     int           `yaml:"target_count" env:"ARENA_TARGET_COUNT"`
	BasePoints      int           `yaml:"base_points" env:"ARENA_BASE_POINTS"`
	SessionDuration time.Duration `yaml:"session_duration" env:"ARENA_SESSION_DURATION"`
	GraceDelay      time.Duration `yaml:"grace_delay" env:"ARENA_GRACE_DELAY"`
	TickRate        int           `yaml:"tick_rate" env:"ARENA_TICK_RATE"`
	MaxNameLength   int           `yaml:"max_name_length" env:"ARENA_MAX_NAME_LENGTH"`
}

// NATSConfig 內嵌 NATS 配置
type NATSConfig struct {
	Host         string        `yaml:"host" env:"ARENA_NATS_HOST"`
	Port         int           `yaml:"port" env:"ARENA_NATS_PORT"` // -1 表示隨機端口
	StartTimeout time.Duration `yaml:"start_timeout" env:"ARENA_NATS_START_TIMEOUT"`
}

// TelemetryConfig 追蹤配置，Endpoint 為空時不啟用
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint" env:"ARENA_OTEL_ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"ARENA_OTEL_SERVICE_NAME"`
}

// DefaultConfig 預設配置
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			LogLevel:        "info",
			LogFormat:       "text",
			ShutdownTimeout: 30 * time.Second,
		},
		Arena: DefaultArena(),
		NATS: NATSConfig{
			Host:         "127.0.0.1",
			Port:         -1,
			StartTimeout: 10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "target-duel",
		},
	}
}

// DefaultArena 預設遊戲參數
func DefaultArena() ArenaConfig {
	return ArenaConfig{
		Width:           800,
		Height:          600,
		PlayerSize:      30,
		TargetRadius:    20,
		ShrinkPerTick:   0.1,
		MinTargetRadius: 5,
		TargetCount:     1,
		BasePoints:      10,
		SessionDuration: 60 * time.Second,
		GraceDelay:      5 * time.Second,
		TickRate:        60,
		MaxNameLength:   16,
	}
}

// LoadConfig 載入配置，path 為空時略過 YAML 檔案
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 檢查配置，回傳所有問題
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port 超出範圍: %d", c.Server.Port))
	}
	switch c.Server.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("server.log_level 無效: %q", c.Server.LogLevel))
	}
	switch c.Server.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("server.log_format 無效: %q", c.Server.LogFormat))
	}
	if c.NATS.StartTimeout <= 0 {
		errs = append(errs, fmt.Errorf("nats.start_timeout 必須大於 0"))
	}

	if err := c.Arena.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Validate 檢查遊戲參數
func (a ArenaConfig) Validate() error {
	var errs []error

	if a.Width <= 0 || a.Height <= 0 {
		errs = append(errs, fmt.Errorf("arena 尺寸必須大於 0"))
	}
	if a.TargetRadius <= 0 || a.TargetRadius*2 >= a.Width || a.TargetRadius*2 >= a.Height {
		errs = append(errs, fmt.Errorf("arena.target_radius 必須大於 0 且小於場地一半"))
	}
	if a.MinTargetRadius <= 0 || a.MinTargetRadius >= a.TargetRadius {
		errs = append(errs, fmt.Errorf("arena.min_target_radius 必須介於 0 與 target_radius 之間"))
	}
	if a.ShrinkPerTick <= 0 {
		errs = append(errs, fmt.Errorf("arena.shrink_per_tick 必須大於 0"))
	}
	if a.PlayerSize <= 0 || a.PlayerSize >= a.Width || a.PlayerSize >= a.Height {
		errs = append(errs, fmt.Errorf("arena.player_size 必須大於 0 且小於場地"))
	}
	if a.TargetCount < 1 {
		errs = append(errs, fmt.Errorf("arena.target_count 至少為 1"))
	}
	if a.BasePoints < 1 {
		errs = append(errs, fmt.Errorf("arena.base_points 至少為 1"))
	}
	if a.SessionDuration <= 0 {
		errs = append(errs, fmt.Errorf("arena.session_duration 必須大於 0"))
	}
	if a.GraceDelay < 0 {
		errs = append(errs, fmt.Errorf("arena.grace_delay 不能為負數"))
	}
	if a.TickRate < 1 || a.TickRate > 1000 {
		errs = append(errs, fmt.Errorf("arena.tick_rate 必須在 1-1000 之間"))
	}
	if a.MaxNameLength < 1 {
		errs = append(errs, fmt.Errorf("arena.max_name_length 至少為 1"))
	}

	return errors.Join(errs...)
}

// TickInterval 每次模擬的間隔
func (a ArenaConfig) TickInterval() time.Duration {
	return time.Second / time.Duration(a.TickRate)
}
