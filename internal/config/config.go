// Package config loads service configuration from an optional YAML file with
// environment variable overrides. Environment always wins so deployments can
// patch a baked-in file without editing it.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"depotassign/internal/model"
)

type Solver struct {
	// Backend is "cbc" (subprocess) or "http" (remote solver service).
	Backend      string  `yaml:"backend"`
	CBCPath      string  `yaml:"cbcPath"`
	URL          string  `yaml:"url"`
	TimeLimitSec int     `yaml:"timeLimitSec"`
	Gap          float64 `yaml:"gap"`
}

type Optimizer struct {
	DefaultCapacity int                    `yaml:"defaultCapacity"`
	SpeedKmh        float64                `yaml:"speedKmh"`
	RoundTripFactor float64                `yaml:"roundTripFactor"`
	Strategies      []model.Strategy       `yaml:"strategies"`
	Weights         model.ObjectiveWeights `yaml:"weights"`
}

type RateLimit struct {
	RunsPerSec float64 `yaml:"runsPerSec"`
	Burst      int     `yaml:"burst"`
}

type Config struct {
	Listen      string    `yaml:"listen"`
	DatabaseURL string    `yaml:"databaseUrl"`
	RedisURL    string    `yaml:"redisUrl"`
	AuthMode    string    `yaml:"authMode"` // dev or hmac
	AuthSecret  string    `yaml:"authSecret"`
	Solver      Solver    `yaml:"solver"`
	Optimizer   Optimizer `yaml:"optimizer"`
	RateLimit   RateLimit `yaml:"rateLimit"`
}

// Load reads the YAML file named by CONFIG_FILE (when set and present),
// applies environment overrides, then fills defaults.
func Load() (Config, error) {
	var cfg Config
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setStr(&c.Listen, "ADDR")
	setStr(&c.DatabaseURL, "DATABASE_URL")
	setStr(&c.RedisURL, "REDIS_URL")
	setStr(&c.AuthMode, "AUTH_MODE")
	setStr(&c.AuthSecret, "AUTH_SECRET")
	setStr(&c.Solver.Backend, "SOLVER_BACKEND")
	setStr(&c.Solver.CBCPath, "SOLVER_CBC_PATH")
	setStr(&c.Solver.URL, "SOLVER_URL")
	setInt(&c.Solver.TimeLimitSec, "SOLVER_TIME_LIMIT_SEC")
	setFloat(&c.Solver.Gap, "SOLVER_GAP")
	setInt(&c.Optimizer.DefaultCapacity, "OPT_DEFAULT_CAPACITY")
	setFloat(&c.Optimizer.SpeedKmh, "OPT_SPEED_KMH")
	setFloat(&c.RateLimit.RunsPerSec, "RUNS_PER_SEC")
	setInt(&c.RateLimit.Burst, "RUNS_BURST")
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.AuthMode == "" {
		c.AuthMode = "dev"
	}
	if c.Solver.Backend == "" {
		if c.Solver.URL != "" {
			c.Solver.Backend = "http"
		} else {
			c.Solver.Backend = "cbc"
		}
	}
	if c.Solver.CBCPath == "" {
		c.Solver.CBCPath = "cbc"
	}
	if c.Solver.TimeLimitSec <= 0 {
		c.Solver.TimeLimitSec = 300
	}
	if c.Solver.Gap <= 0 {
		c.Solver.Gap = 0.02
	}
	if c.Optimizer.DefaultCapacity <= 0 {
		c.Optimizer.DefaultCapacity = 15
	}
	if c.Optimizer.SpeedKmh <= 0 {
		c.Optimizer.SpeedKmh = 20
	}
	if c.Optimizer.RoundTripFactor <= 0 {
		c.Optimizer.RoundTripFactor = 2
	}
	if len(c.Optimizer.Strategies) == 0 {
		c.Optimizer.Strategies = []model.Strategy{
			{Name: "baseline", CapacityFactor: 1, Balance: true, BalanceMin: 0.75, BalanceMax: 1.25},
			{Name: "relaxed-capacity", CapacityFactor: 1.5, Balance: true, BalanceMin: 0.3, BalanceMax: 3.0},
			{Name: "no-balance", CapacityFactor: 1.5, Balance: false},
		}
	}
	if c.RateLimit.RunsPerSec <= 0 {
		c.RateLimit.RunsPerSec = 5
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 10
	}
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
