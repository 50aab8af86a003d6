package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/classbook/internal/archive"
	"github.com/dukerupert/classbook/internal/snapshot"
)

const envPrefix = "CLASSBOOK_"

type Config struct {
	Port           string
	DBPath         string
	LogLevel       string
	LogFormat      string
	Env            string
	RestoreTimeout time.Duration
	BcryptCost     int
	OriginPatterns []string
	Archive        archive.Config
}

// Production reports whether internal error details must be hidden.
func (c Config) Production() bool {
	return c.Env == "production"
}

// Load reads CLASSBOOK_* variables through getenv, usually os.Getenv.
func Load(getenv func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(envPrefix + key)); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		Port:      get("PORT", "8080"),
		DBPath:    get("DB_PATH", "classbook.db"),
		LogLevel:  get("LOG_LEVEL", "info"),
		LogFormat: get("LOG_FORMAT", "text"),
		Env:       get("ENV", "development"),
		Archive: archive.Config{
			Endpoint:   get("S3_ENDPOINT", ""),
			Bucket:     get("S3_BUCKET", ""),
			Region:     get("S3_REGION", "us-east-1"),
			AccessKey:  get("S3_ACCESS_KEY", ""),
			SecretKey:  get("S3_SECRET_KEY", ""),
			Passphrase: get("ARCHIVE_PASSPHRASE", ""),
		},
	}

	timeout, err := time.ParseDuration(get("RESTORE_TIMEOUT", snapshot.DefaultRestoreTimeout.String()))
	if err != nil {
		return Config{}, fmt.Errorf("parse %sRESTORE_TIMEOUT: %w", envPrefix, err)
	}
	if timeout <= 0 {
		return Config{}, fmt.Errorf("%sRESTORE_TIMEOUT must be positive", envPrefix)
	}
	cfg.RestoreTimeout = timeout

	if v := get("BCRYPT_COST", ""); v != "" {
		cost, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse %sBCRYPT_COST: %w", envPrefix, err)
		}
		if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
			return Config{}, fmt.Errorf("%sBCRYPT_COST must be between %d and %d, got %d", envPrefix, bcrypt.MinCost, bcrypt.MaxCost, cost)
		}
		cfg.BcryptCost = cost
	}

	if v := get("ORIGIN_PATTERNS", ""); v != "" {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.OriginPatterns = append(cfg.OriginPatterns, p)
			}
		}
	}

	switch cfg.LogFormat {
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("%sLOG_FORMAT must be text or json, got %q", envPrefix, cfg.LogFormat)
	}
	return cfg, nil
}
