package config

import (
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/copyleftdev/NARVIK/internal/optimization"
)

// Config holds the service configuration, populated from the environment.
type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Solver struct {
		Gtol            float64 `env:"SOLVER_GTOL" envDefault:"1e-8"`
		Xtol            float64 `env:"SOLVER_XTOL" envDefault:"1e-12"`
		MaxIterations   int     `env:"SOLVER_MAXITER" envDefault:"200"`
		CGMaxIterations int     `env:"SOLVER_CG_MAXITER" envDefault:"200"`
		MaxLineSearch   int     `env:"SOLVER_MAX_LINESEARCH" envDefault:"50"`
	}
}

// Load parses the configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if cfg.Environment == "development" && cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}

	return cfg, nil
}

// SolverSettings converts the configured solver section into minimizer
// settings, used as the default for jobs that don't override them.
func (c *Config) SolverSettings() optimization.Settings {
	return optimization.Settings{
		Gtol:            c.Solver.Gtol,
		Xtol:            c.Solver.Xtol,
		MaxIterations:   c.Solver.MaxIterations,
		CGMaxIterations: c.Solver.CGMaxIterations,
		MaxLineSearch:   c.Solver.MaxLineSearch,
	}
}
