// Package config loads scheduler engine configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// SchedulerConfig holds the options recognized by the scheduling engine
// (spec §6): router thresholds, horizon parameters, and CP solver
// parameters.
type SchedulerConfig struct {
	// AppEnv and LogLevel are ambient, not scheduling-specific.
	AppEnv   string
	LogLevel string

	// InitialHorizonDays sets D0, the starting planning horizon.
	InitialHorizonDays int
	// HorizonExtensionFactor is the CP path's per-retry horizon multiplier.
	HorizonExtensionFactor float64
	// MaxHorizonDays is the hard cap on horizon growth.
	MaxHorizonDays int

	// OrtoolsTimeLimit is the per-CP-iteration wall-clock budget.
	OrtoolsTimeLimit time.Duration
	// NumSearchWorkers bounds the CP solver's internal worker pool.
	NumSearchWorkers int

	// Router thresholds: exceeding any one routes to Greedy.
	GreedyThresholdTasks    int
	GreedyThresholdHours    float64
	GreedyThresholdUsers    int
	GreedyThresholdAvgHours float64

	// HybridMode, when false, forces the CP path regardless of instance size.
	HybridMode bool

	// Seed fixes the CP path's randomized-restart search for determinism.
	Seed int64
}

// DefaultSchedulerConfig returns the defaults named in spec §6.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		AppEnv:                  "development",
		LogLevel:                "info",
		InitialHorizonDays:      28,
		HorizonExtensionFactor:  1.25,
		MaxHorizonDays:          3650,
		OrtoolsTimeLimit:        30 * time.Second,
		NumSearchWorkers:        4,
		GreedyThresholdTasks:    50,
		GreedyThresholdHours:    1000,
		GreedyThresholdUsers:    10,
		GreedyThresholdAvgHours: 100,
		HybridMode:              true,
		Seed:                    1,
	}
}

// Load loads configuration from environment variables, falling back to
// DefaultSchedulerConfig for anything unset. A .env file in the working
// directory is read first, if present.
func Load() (*SchedulerConfig, error) {
	_ = godotenv.Load()

	def := DefaultSchedulerConfig()

	cfg := &SchedulerConfig{
		AppEnv:                  getEnv("APP_ENV", def.AppEnv),
		LogLevel:                getEnv("LOG_LEVEL", def.LogLevel),
		InitialHorizonDays:      getIntEnv("TASKSCHED_INITIAL_HORIZON_DAYS", def.InitialHorizonDays),
		HorizonExtensionFactor:  getFloatEnv("TASKSCHED_HORIZON_EXTENSION_FACTOR", def.HorizonExtensionFactor),
		MaxHorizonDays:          getIntEnv("TASKSCHED_MAX_HORIZON_DAYS", def.MaxHorizonDays),
		OrtoolsTimeLimit:        getDurationEnv("TASKSCHED_ORTOOLS_TIME_LIMIT", def.OrtoolsTimeLimit),
		NumSearchWorkers:        getIntEnv("TASKSCHED_NUM_SEARCH_WORKERS", def.NumSearchWorkers),
		GreedyThresholdTasks:    getIntEnv("TASKSCHED_GREEDY_THRESHOLD_TASKS", def.GreedyThresholdTasks),
		GreedyThresholdHours:    getFloatEnv("TASKSCHED_GREEDY_THRESHOLD_HOURS", def.GreedyThresholdHours),
		GreedyThresholdUsers:    getIntEnv("TASKSCHED_GREEDY_THRESHOLD_USERS", def.GreedyThresholdUsers),
		GreedyThresholdAvgHours: getFloatEnv("TASKSCHED_GREEDY_THRESHOLD_AVG_HOURS", def.GreedyThresholdAvgHours),
		HybridMode:              getBoolEnv("TASKSCHED_HYBRID_MODE", def.HybridMode),
		Seed:                    int64(getIntEnv("TASKSCHED_SEED", int(def.Seed))),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configuration that would make scheduling meaningless.
func (c *SchedulerConfig) Validate() error {
	if c.InitialHorizonDays <= 0 {
		return fmt.Errorf("config: initial_horizon_days must be positive, got %d", c.InitialHorizonDays)
	}
	if c.MaxHorizonDays < c.InitialHorizonDays {
		return fmt.Errorf("config: max_horizon_days (%d) must be >= initial_horizon_days (%d)", c.MaxHorizonDays, c.InitialHorizonDays)
	}
	if c.HorizonExtensionFactor <= 1.0 {
		return fmt.Errorf("config: horizon_extension_factor must be > 1.0, got %f", c.HorizonExtensionFactor)
	}
	if c.NumSearchWorkers <= 0 {
		return fmt.Errorf("config: num_search_workers must be positive, got %d", c.NumSearchWorkers)
	}
	if c.OrtoolsTimeLimit <= 0 {
		return fmt.Errorf("config: ortools_time_limit must be positive, got %s", c.OrtoolsTimeLimit)
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *SchedulerConfig) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
