// Package config loads simulator settings from an optional YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr                       string  `yaml:"addr"`
	ControlAddr                string  `yaml:"control_addr"`
	Intersections              int     `yaml:"intersections"`
	SimulationSpeed            float64 `yaml:"simulation_speed"`
	TickIntervalMS             int     `yaml:"tick_interval_ms"`
	SpawnRate                  float64 `yaml:"spawn_rate"`
	PriorityProbability        float64 `yaml:"priority_probability"`
	MaxVehiclesPerIntersection int     `yaml:"max_vehicles_per_intersection"`
	TrafficDataFile            string  `yaml:"traffic_data_file"`
	StatisticsDir              string  `yaml:"statistics_dir"`
	Debug                      bool    `yaml:"debug"`
}

func Default() *Config {
	return &Config{
		Addr:                       ":8080",
		Intersections:              4,
		SimulationSpeed:            1.0,
		TickIntervalMS:             100,
		SpawnRate:                  0.1,
		PriorityProbability:        0.05,
		MaxVehiclesPerIntersection: 50,
		StatisticsDir:              "statistics",
	}
}

// Load builds the config from defaults, the YAML file at path (when not
// empty), and finally environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.Addr = getEnv("TRAFFICSIM_ADDR", cfg.Addr)
	cfg.ControlAddr = getEnv("TRAFFICSIM_CONTROL_ADDR", cfg.ControlAddr)
	cfg.Intersections = getEnvInt("TRAFFICSIM_INTERSECTIONS", cfg.Intersections)
	cfg.SimulationSpeed = getEnvFloat("TRAFFICSIM_SPEED", cfg.SimulationSpeed)
	cfg.TickIntervalMS = getEnvInt("TRAFFICSIM_TICK_MS", cfg.TickIntervalMS)
	cfg.SpawnRate = getEnvFloat("TRAFFICSIM_SPAWN_RATE", cfg.SpawnRate)
	cfg.PriorityProbability = getEnvFloat("TRAFFICSIM_PRIORITY_PROBABILITY", cfg.PriorityProbability)
	cfg.MaxVehiclesPerIntersection = getEnvInt("TRAFFICSIM_MAX_VEHICLES", cfg.MaxVehiclesPerIntersection)
	cfg.TrafficDataFile = getEnv("TRAFFICSIM_DATA_FILE", cfg.TrafficDataFile)
	cfg.StatisticsDir = getEnv("TRAFFICSIM_STATISTICS_DIR", cfg.StatisticsDir)
	cfg.Debug = getEnvBool("TRAFFICSIM_DEBUG", cfg.Debug)

	if cfg.Intersections < 1 {
		return nil, fmt.Errorf("intersections must be at least 1, got %d", cfg.Intersections)
	}
	if cfg.TickIntervalMS < 1 {
		return nil, fmt.Errorf("tick_interval_ms must be at least 1, got %d", cfg.TickIntervalMS)
	}

	return cfg, nil
}

func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMS) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
