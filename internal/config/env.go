package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadWithEnv loads the YAML file, then lets a .env file (optional) and the process
// environment override secrets and endpoints. Priority: ENV > .env > YAML > defaults.
func LoadWithEnv(path, envPath string) (*Config, error) {
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	overrideWithEnv(cfg)
	return cfg, nil
}

func overrideWithEnv(cfg *Config) {
	if v := firstEnv("LEPRECHAUN_POLYGON_API_KEY", "POLYGON_API_KEY"); v != "" {
		cfg.Polygon.APIKey = v
	}
	if v := firstEnv("LEPRECHAUN_BROKER_MODE"); v != "" {
		cfg.Broker.Mode = strings.ToLower(v)
	}
	if v := firstEnv("LEPRECHAUN_BROKER_HOST", "IBKR_GATEWAY_HOST"); v != "" {
		cfg.Broker.Host = v
	}
	if v := firstEnv("LEPRECHAUN_BROKER_PORT", "IBKR_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Broker.Port = port
		}
	}
	if v := firstEnv("LEPRECHAUN_BROKER_CLIENT_ID", "IBKR_ACCOUNT_ID"); v != "" {
		cfg.Broker.ClientID = v
	}
	if v := firstEnv("LEPRECHAUN_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := firstEnv("LEPRECHAUN_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}
