package config

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ServerAddr        string
	DatabaseDSN       string
	SigningKey        []byte
	AllowedOrigins    []string
	CallTimeout       time.Duration
	NotificationLimit int
	LogLevel          string
	RunMigrations     bool
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	return base64.StdEncoding.DecodeString(base64Secret)
}

// Load reads configuration from an optional config file and COMMHUB_*
// environment variables, with env taking precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("commhub")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "localhost:8000")
	v.SetDefault("database.dsn", "")
	v.SetDefault("auth.signing_key", "")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("call.timeout", "45s")
	v.SetDefault("notification.limit", 50)
	v.SetDefault("log.level", "info")
	v.SetDefault("database.migrate", true)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return NewConfig(
		v.GetString("server.addr"),
		v.GetString("database.dsn"),
		v.GetString("auth.signing_key"),
		v.GetStringSlice("server.allowed_origins"),
		v.GetDuration("call.timeout"),
		v.GetInt("notification.limit"),
		v.GetString("log.level"),
		v.GetBool("database.migrate"),
	)
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string,
	callTimeout time.Duration, notificationLimit int, logLevel string, runMigrations bool) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	if callTimeout <= 0 {
		return nil, fmt.Errorf("call timeout must be positive")
	}
	if notificationLimit <= 0 {
		notificationLimit = 50
	}

	return &Config{
		ServerAddr:        serverAddr,
		DatabaseDSN:       databaseDSN,
		SigningKey:        signingKey,
		AllowedOrigins:    allowedOrigins,
		CallTimeout:       callTimeout,
		NotificationLimit: notificationLimit,
		LogLevel:          logLevel,
		RunMigrations:     runMigrations,
	}, nil
}
