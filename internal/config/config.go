package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/copyleftdev/nlpsolver/internal/logging"
	"github.com/copyleftdev/nlpsolver/internal/optimization/solver"
)

// Config is the solve service configuration, read from the environment.
type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging logging.Config `envPrefix:"LOG_"`

	// Solver holds the default options of every solve; requests may
	// override them.
	Solver solver.Options `envPrefix:"SOLVER_"`

	Solve struct {
		// Workers bounds the number of solves running at once.
		Workers int `env:"SOLVE_WORKERS" envDefault:"4"`
		// MaxIterations caps every job regardless of the request.
		MaxIterations int `env:"SOLVE_MAX_ITERATIONS" envDefault:"10000"`
		// Retention is how long finished jobs stay queryable.
		Retention time.Duration `env:"SOLVE_RETENTION" envDefault:"1h"`
	}
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	// Development defaults to debug logging unless a level was set.
	if cfg.Environment == "development" && cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}
	if cfg.Solve.Workers < 1 {
		cfg.Solve.Workers = 1
	}
	if cfg.Solve.MaxIterations < 0 {
		cfg.Solve.MaxIterations = 0
	}

	return cfg, nil
}
