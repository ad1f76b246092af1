package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config application configuration
type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	CORS      CORSConfig      `yaml:"cors"`
}

type AppConfig struct {
	Env string `yaml:"env"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// SchedulerConfig tuning knobs for the revision scheduler
type SchedulerConfig struct {
	// CronKey guards the manual run-due HTTP endpoint. Empty disables it.
	CronKey string `yaml:"cron_key"`
	// TickInterval between due-scan passes (default 60s)
	TickInterval time.Duration `yaml:"tick_interval"`
	// BatchSize for a single due-scan pass (default 50)
	BatchSize int `yaml:"batch_size"`
	// LockTTL for per-product apply locks (default 120s)
	LockTTL time.Duration `yaml:"lock_ttl"`
	// ProtectedMetaKeys are never deleted by the full-replace apply pass
	ProtectedMetaKeys []string `yaml:"protected_meta_keys"`
}

type CORSConfig struct {
	AllowOrigins string `yaml:"allow_origins"`
}

// Load reads a yaml config file and applies environment overrides.
// Env vars win over file values so containers can override without edits.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("APP_ENV"); v != "" {
		c.App.Env = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Database.Port = port
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.Database.Name = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("SCHEDULER_CRON_KEY"); v != "" {
		c.Scheduler.CronKey = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8082
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}
	if c.Scheduler.TickInterval <= 0 {
		c.Scheduler.TickInterval = 60 * time.Second
	}
	if c.Scheduler.BatchSize <= 0 {
		c.Scheduler.BatchSize = 50
	}
	if c.Scheduler.LockTTL <= 0 {
		c.Scheduler.LockTTL = 120 * time.Second
	}
}

// GetDSN builds the MySQL DSN
func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// IsDevelopment reports whether the app runs in a development environment
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.App.Env)
	return env == "" || env == "development" || env == "dev" || env == "local"
}
