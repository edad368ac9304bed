package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 网关启动配置，来自 yaml 文件 + 环境变量覆盖
type Config struct {
	Port         int    `yaml:"port"`
	DatabasePath string `yaml:"database_path"`
	LogFile      string `yaml:"log_file"`
	LogMaxSizeMB int    `yaml:"log_max_size_mb"`
	AdminToken   string `yaml:"admin_token"`

	// 上游 provider
	UpstreamBaseURL       string `yaml:"upstream_base_url"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
	MaxAttempts           int    `yaml:"max_attempts"`

	// 凭证池
	Credentials        []string `yaml:"credentials"`
	QuotaLimit         int      `yaml:"quota_limit"`
	RateLimitPerMinute int      `yaml:"rate_limit_per_minute"`
	Strategy           string   `yaml:"strategy"` // "round_robin" 或 "least_used"
	ResetTimezone      string   `yaml:"reset_timezone"`
	ResetHour          int      `yaml:"reset_hour"`

	// 缓存
	CacheCapacity        int `yaml:"cache_capacity"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`

	// 每个操作的配额成本与缓存 TTL（秒）
	OperationCosts map[string]int `yaml:"operation_costs"`
	OperationTTLs  map[string]int `yaml:"operation_ttls"`
}

// DefaultConfig provider 相关默认值参照其配额文档
func DefaultConfig() *Config {
	return &Config{
		Port:                  8000,
		DatabasePath:          "gateway.db",
		LogMaxSizeMB:          20,
		UpstreamBaseURL:       "https://www.googleapis.com/youtube/v3",
		RequestTimeoutSeconds: 15,
		MaxAttempts:           3,
		QuotaLimit:            10000,
		RateLimitPerMinute:    60,
		Strategy:              "round_robin",
		ResetTimezone:         "America/Los_Angeles",
		ResetHour:             0,
		CacheCapacity:         1000,
		SweepIntervalSeconds:  300,
		OperationCosts: map[string]int{
			"search":   100,
			"videos":   1,
			"channels": 1,
		},
		OperationTTLs: map[string]int{
			"search":   1800,
			"videos":   21600,
			"channels": 21600,
		},
	}
}

// LoadConfig 读取配置文件（可选）并套用环境变量覆盖
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 环境变量优先于配置文件，便于容器部署时注入凭证
func (c *Config) applyEnv() {
	if v := os.Getenv("VG_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("VG_API_KEYS"); v != "" {
		keys := make([]string, 0)
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		c.Credentials = keys
	}
	if v := os.Getenv("VG_ADMIN_TOKEN"); v != "" {
		c.AdminToken = v
	}
	if v := os.Getenv("VG_UPSTREAM_URL"); v != "" {
		c.UpstreamBaseURL = v
	}
	if v := os.Getenv("VG_QUOTA_LIMIT"); v != "" {
		if q, err := strconv.Atoi(v); err == nil {
			c.QuotaLimit = q
		}
	}
	if v := os.Getenv("VG_STRATEGY"); v != "" {
		c.Strategy = v
	}
	if v := os.Getenv("VG_DB_PATH"); v != "" {
		c.DatabasePath = v
	}
}

// Validate 校验配置组合是否可用
func (c *Config) Validate() error {
	if c.QuotaLimit <= 0 {
		return fmt.Errorf("quota_limit must be positive, got %d", c.QuotaLimit)
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("rate_limit_per_minute must be positive, got %d", c.RateLimitPerMinute)
	}
	if c.Strategy != StrategyRoundRobin && c.Strategy != StrategyLeastUsed {
		return fmt.Errorf("unknown strategy %q", c.Strategy)
	}
	if c.CacheCapacity <= 0 {
		return fmt.Errorf("cache_capacity must be positive, got %d", c.CacheCapacity)
	}
	if c.ResetHour < 0 || c.ResetHour > 23 {
		return fmt.Errorf("reset_hour must be in [0,23], got %d", c.ResetHour)
	}
	if _, err := time.LoadLocation(c.ResetTimezone); err != nil {
		return fmt.Errorf("invalid reset_timezone %q: %w", c.ResetTimezone, err)
	}
	return nil
}

// ResetLocation 解析后的重置时区，Validate 之后调用不会失败
func (c *Config) ResetLocation() *time.Location {
	loc, err := time.LoadLocation(c.ResetTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CostOf 操作的配额成本，未知操作按最保守的 1 计
func (c *Config) CostOf(operation string) int {
	if cost, ok := c.OperationCosts[operation]; ok {
		return cost
	}
	return 1
}

// TTLOf 操作结果的缓存 TTL
func (c *Config) TTLOf(operation string) time.Duration {
	if ttl, ok := c.OperationTTLs[operation]; ok {
		return time.Duration(ttl) * time.Second
	}
	return time.Hour
}

// RequestTimeout 单次上游调用超时
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// SweepInterval 后台清扫周期
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}
