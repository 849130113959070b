// Package config reads deployment settings from the environment.
// Flags stay the primary knob for local runs; env vars override for
// containerized deploys.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Env       string `env:"TOWNTRADE_ENV" envDefault:"dev"`
	Addr      string `env:"TOWNTRADE_ADDR"`
	DataDir   string `env:"TOWNTRADE_DATA_DIR"`
	ConfigDir string `env:"TOWNTRADE_CONFIG_DIR"`

	AdminEnabled bool `env:"TOWNTRADE_ADMIN" envDefault:"false"`
}

func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return c, fmt.Errorf("config: %w", err)
	}
	return c, nil
}

func (c Config) IsProd() bool { return c.Env == "prod" }
