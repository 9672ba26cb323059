package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/bhadresh-123/phicore/internal/alert"
	"github.com/bhadresh-123/phicore/internal/repository/postgres"
)

type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Database postgres.Config `mapstructure:"database"`
	Redis    RedisConfig     `mapstructure:"redis"`
	JWT      JWTConfig       `mapstructure:"jwt"`
	Audit    AuditConfig     `mapstructure:"audit"`
	Alert    alert.Config    `mapstructure:"alert"`
}

type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeoutSeconds"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type AuditConfig struct {
	SweepInterval      time.Duration `mapstructure:"sweep_interval"`
	MembershipCacheTTL time.Duration `mapstructure:"membership_cache_ttl"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	viper.SetDefault("audit.sweep_interval", 24*time.Hour)
	viper.SetDefault("audit.membership_cache_ttl", time.Minute)

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}
