// Package config loads service configuration from the environment so main
// stays lean.
package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config captures everything the server needs at startup.
type Config struct {
	Addr     string `env:"SABO_ADDR" env-default:":10000"`
	LogLevel string `env:"SABO_LOG_LEVEL" env-default:"info"`

	MongoURI      string `env:"SABO_MONGO_URI" env-default:"mongodb://localhost:27017"`
	MongoDatabase string `env:"SABO_MONGO_DATABASE" env-default:"sabo"`
	// MemoryStore switches persistence to the in-memory backend for local
	// development and demos.
	MemoryStore bool `env:"SABO_MEMORY_STORE" env-default:"false"`

	// SuperadminEmail is the single hard-coded superadmin identity; role
	// administration endpoints are restricted to it.
	SuperadminEmail string `env:"SABO_SUPERADMIN_EMAIL"`

	// SessionKey signs the session token minted after the upstream identity
	// provider has authenticated the user.
	SessionKey     string `env:"SABO_SESSION_KEY" env-default:"dev-secret-key-change-in-production"`
	SessionMaxAge  int    `env:"SABO_SESSION_MAX_AGE_SECONDS" env-default:"7200"`
	SecureCookies  bool   `env:"SABO_SECURE_COOKIES" env-default:"true"`
	RateLimitsOff  bool   `env:"SABO_DISABLE_RATE_LIMITS" env-default:"false"`
	ShutdownGraceS int    `env:"SABO_SHUTDOWN_GRACE_SECONDS" env-default:"10"`
}

// Load reads configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	return cfg, nil
}
