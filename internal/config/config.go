package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port"`
	Mode    string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Path          string `mapstructure:"path"`
	LogMode       bool   `mapstructure:"log_mode"`
	BusyTimeoutMS int    `mapstructure:"busy_timeout_ms"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	Issuer      string `mapstructure:"issuer"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type SecurityConfig struct {
	AdminPassword string `mapstructure:"admin_password"`
	BcryptCost    int    `mapstructure:"bcrypt_cost"`
	EncryptionKey string `mapstructure:"encryption_key"`
}

type LogConfig struct {
	File    string `mapstructure:"file"`
	Verbose bool   `mapstructure:"verbose"`
}

type BackupConfig struct {
	Dir string `mapstructure:"dir"`
}

// RaffleConfig selects the ledger variant and the contribution rules.
type RaffleConfig struct {
	Mode                 string `mapstructure:"mode"` // weighted / unique
	UnitSize             int64  `mapstructure:"unit_size"`
	MaxChancesPerRequest int64  `mapstructure:"max_chances_per_request"`
	InsertBatchSize      int    `mapstructure:"insert_batch_size"`
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Security SecurityConfig `mapstructure:"security"`
	Log      LogConfig      `mapstructure:"log"`
	Backup   BackupConfig   `mapstructure:"backup"`
	Raffle   RaffleConfig   `mapstructure:"raffle"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.path", "data/raffle.db")
	v.SetDefault("database.log_mode", false)
	v.SetDefault("database.busy_timeout_ms", 5000)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "raffle-ledger")
	v.SetDefault("jwt.expire_hours", 12)
	v.SetDefault("security.admin_password", "")
	v.SetDefault("security.bcrypt_cost", 12)
	v.SetDefault("security.encryption_key", "")
	v.SetDefault("log.file", "logs/raffle.log")
	v.SetDefault("log.verbose", false)
	v.SetDefault("backup.dir", "data/backups")
	v.SetDefault("raffle.mode", "weighted")
	v.SetDefault("raffle.unit_size", 200)
	v.SetDefault("raffle.max_chances_per_request", 5000)
	v.SetDefault("raffle.insert_batch_size", 500)
}

// Load loads configuration from given file path (e.g. "config.yaml").
// A missing file is not an error: defaults and RAFFLE_* environment
// variables are enough to run, e.g. RAFFLE_SECURITY_ADMIN_PASSWORD=secret.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// environment overrides, e.g. RAFFLE_SERVER_PORT=9000
	v.SetEnvPrefix("RAFFLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = "config.yaml"
	}
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat config: %w", err)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the settings the ledger cannot run without.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Raffle.Mode) {
	case "weighted", "unique":
	default:
		return fmt.Errorf("config: raffle.mode must be weighted or unique, got %q", c.Raffle.Mode)
	}
	if c.Raffle.UnitSize <= 0 {
		return fmt.Errorf("config: raffle.unit_size must be positive, got %d", c.Raffle.UnitSize)
	}
	if c.Raffle.MaxChancesPerRequest < 1 {
		return fmt.Errorf("config: raffle.max_chances_per_request must be at least 1, got %d", c.Raffle.MaxChancesPerRequest)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port out of range: %d", c.Server.Port)
	}
	if c.Security.AdminPassword == "" {
		return errors.New("config: security.admin_password is required")
	}
	return nil
}
