package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "VG"

type Config struct {
	Port           int
	Driver         string
	DBPath         string
	RedisAddr      string
	RedisTTL       time.Duration
	TestsFile      string
	LogLevel       string
	LogDev         bool
	KafkaBrokers   []string
	KafkaTopic     string
	ReportInterval time.Duration
	Token          string
}

// New returns a viper instance with defaults and VG_* environment
// bindings. Callers may bind command-line flags before calling Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("port", 8080)
	v.SetDefault("driver", "sqlite")
	v.SetDefault("db", "./vg.db")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_ttl", "0s")
	v.SetDefault("tests", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_dev", false)
	v.SetDefault("kafka_brokers", []string{})
	v.SetDefault("kafka_topic", "variant-goat.events")
	v.SetDefault("report_interval", "0s")
	v.SetDefault("token", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return v
}

// LoadDotEnv loads .env into the process environment when present.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load reads the optional config file and resolves the final values.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Port:           v.GetInt("port"),
		Driver:         v.GetString("driver"),
		DBPath:         v.GetString("db"),
		RedisAddr:      v.GetString("redis_addr"),
		RedisTTL:       v.GetDuration("redis_ttl"),
		TestsFile:      v.GetString("tests"),
		LogLevel:       v.GetString("log_level"),
		LogDev:         v.GetBool("log_dev"),
		KafkaBrokers:   splitList(v.GetStringSlice("kafka_brokers")),
		KafkaTopic:     v.GetString("kafka_topic"),
		ReportInterval: v.GetDuration("report_interval"),
		Token:          v.GetString("token"),
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.ReportInterval < 0 {
		return nil, fmt.Errorf("invalid report interval: %s", cfg.ReportInterval)
	}

	return cfg, nil
}

// splitList accepts both YAML lists and comma-separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
