// Package config loads a drill scenario from YAML over compiled defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/firedrill/internal/agents"
	"github.com/talgya/firedrill/internal/engine"
	"github.com/talgya/firedrill/internal/fire"
	"github.com/talgya/firedrill/internal/route"
	"github.com/talgya/firedrill/internal/world"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is a complete scenario.
type Config struct {
	// Seed drives every random draw. Zero asks the entropy source for one.
	Seed int64 `yaml:"seed"`

	Run      Run                   `yaml:"run"`
	Building world.BuildingConfig  `yaml:"building"`
	Behavior agents.BehaviorConfig `yaml:"behavior"`
	Panic    agents.PanicConfig    `yaml:"panic"`
	Spawn    agents.SpawnConfig    `yaml:"spawn"`
	Fire     fire.Config           `yaml:"fire"`
	Route    route.Config          `yaml:"route"`
	Sim      engine.Settings       `yaml:"simulation"`
}

// Run holds the outer loop and service settings.
type Run struct {
	TickMillis   int     `yaml:"tick_ms"`
	Speed        float64 `yaml:"speed"`
	Duration     float64 `yaml:"duration"`      // simulated seconds, 0 runs until empty
	ReportEvery  float64 `yaml:"report_every"`  // simulated seconds between progress logs
	DBPath       string  `yaml:"db_path"`
	Port         int     `yaml:"port"`
	RandomOrgKey string  `yaml:"-"`
	AdminKey     string  `yaml:"-"`
}

// Default returns the stock scenario.
func Default() Config {
	return Config{
		Run: Run{
			TickMillis:  50,
			Speed:       1,
			Duration:    600,
			ReportEvery: 10,
			DBPath:      "data/firedrill.db",
			Port:        8080,
		},
		Building: world.DefaultBuildingConfig(),
		Behavior: agents.DefaultBehaviorConfig(),
		Panic:    agents.DefaultPanicConfig(),
		Spawn:    agents.DefaultSpawnConfig(),
		Fire:     fire.DefaultConfig(),
		Route:    route.DefaultConfig(),
		Sim:      engine.DefaultSettings(),
	}
}

// Load reads a YAML scenario. Keys missing from the file keep their default
// values. Secrets come from FIREDRILL_ADMIN_KEY and RANDOM_ORG_API_KEY.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &c); err != nil {
			return c, fmt.Errorf("%s: %w", path, err)
		}
	}
	c.Run.AdminKey = os.Getenv("FIREDRILL_ADMIN_KEY")
	c.Run.RandomOrgKey = os.Getenv("RANDOM_ORG_API_KEY")
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate reports every out-of-range value at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	if err := c.Building.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("building: %w", err))
	}
	check(c.Run.TickMillis > 0, "run.tick_ms %d must be positive", c.Run.TickMillis)
	check(c.Run.Speed >= 0, "run.speed %.2f must not be negative", c.Run.Speed)
	check(c.Run.Duration >= 0, "run.duration %.1f must not be negative", c.Run.Duration)
	check(c.Run.Port >= 0 && c.Run.Port < 1<<16, "run.port %d out of range", c.Run.Port)

	check(c.Panic.Threshold > 0 && c.Panic.Threshold <= 1, "panic.threshold %.2f not in (0,1]", c.Panic.Threshold)
	check(c.Panic.IncreaseRate >= 0 && c.Panic.DecreaseRate >= 0 && c.Panic.SmokeRate >= 0, "panic rates must not be negative")

	check(c.Behavior.MinTimeInRoom <= c.Behavior.MaxTimeInRoom, "behavior: min_time_in_room above max_time_in_room")
	check(c.Behavior.SearchRadiusMin <= c.Behavior.SearchRadiusMax, "behavior: search_radius_min above search_radius_max")
	check(c.Behavior.SmokeVisionLoss >= 0 && c.Behavior.SmokeVisionLoss <= 1, "behavior.smoke_vision_loss %.2f not in [0,1]", c.Behavior.SmokeVisionLoss)

	check(c.Spawn.Count >= 0, "spawn.count %d must not be negative", c.Spawn.Count)
	check(c.Spawn.Standard.Weight+c.Spawn.Elderly.Weight+c.Spawn.Disabled.Weight > 0, "spawn: category weights sum to zero")

	check(c.Fire.SpreadInterval > 0, "fire.spread_interval %.2f must be positive", c.Fire.SpreadInterval)
	check(c.Fire.SpreadDecrement >= 0, "fire.spread_decrement %.3f must not be negative", c.Fire.SpreadDecrement)
	check(c.Fire.MaxNodes > 0, "fire.max_nodes %d must be positive", c.Fire.MaxNodes)
	check(c.Fire.MinDistance <= c.Fire.SpreadRadius, "fire: min_distance above spread_radius")
	check(c.Fire.ScanInterval > 0, "fire.scan_interval %.2f must be positive", c.Fire.ScanInterval)
	check(c.Fire.ChanceUp >= 0 && c.Fire.ChanceDown >= 0 && c.Fire.ChanceUp+c.Fire.ChanceDown <= 1, "fire: vertical chances not in [0,1]")

	check(c.Route.VisionFactor > 0, "route.vision_factor %.2f must be positive", c.Route.VisionFactor)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Tick returns the simulated time per tick.
func (c Config) Tick() time.Duration {
	return time.Duration(c.Run.TickMillis) * time.Millisecond
}

// Params converts the scenario into simulation parameters.
func (c Config) Params() engine.Params {
	return engine.Params{
		Seed:     c.Seed,
		Building: c.Building,
		Behavior: c.Behavior,
		Panic:    c.Panic,
		Spawn:    c.Spawn,
		Fire:     c.Fire,
		Route:    c.Route,
		Settings: c.Sim,
	}
}
