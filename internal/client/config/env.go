package config

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var envFile = ".env"

// parseEnv loads envFile if present, then overlays set variables onto cfg.
func parseEnv(cfg *Config) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}
	if err := envconfig.Process("", cfg); err != nil {
		panic(err)
	}
}
