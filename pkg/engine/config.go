package engine

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// Config holds the tuning knobs for a Cache: sizes for the default
// in-memory collaborators, and thresholds for the fallback pass-through
// path. Grounded on an Open()-time validated config struct, loaded either
// programmatically via DefaultConfig or from a HuJSON file (commented
// JSON) via LoadConfig.
type Config struct {
	// CollisionEntries is N: the number of cache-device slots, and thus the
	// size of the collision table and the free list.
	CollisionEntries int `json:"collisionEntries"`

	// Buckets is the number of hash buckets (and hash-bucket locks).
	Buckets int `json:"buckets"`

	// SectorsPerLine is the number of addressable sectors within one cache
	// line.
	SectorsPerLine uint8 `json:"sectorsPerLine"`

	// Partitions configures the default PartitionTable: capacity budget
	// (in cache lines) per partition ID. A partition with no entry here is
	// disabled.
	Partitions map[PartitionID]int `json:"partitions"`

	// FallbackPTErrorThreshold is how many mapping errors (counted over the
	// cache's lifetime, never reset) trigger the one-shot "fallback
	// pass-through activated" warning log.
	// Grounded on inc_fallback_pt_error_counter's threshold check.
	FallbackPTErrorThreshold int64 `json:"fallbackPtErrorThreshold"`
}

// DefaultConfig returns a small but workable configuration: 1024 cache
// lines, 128 buckets, 8 sectors/line, a single unbounded partition 0.
func DefaultConfig() Config {
	return Config{
		CollisionEntries:        1024,
		Buckets:                 128,
		SectorsPerLine:          8,
		Partitions:              map[PartitionID]int{0: 1024},
		FallbackPTErrorThreshold: 100,
	}
}

// Validate checks Config for internal consistency, using explicit-if
// validation rather than a validation framework.
func (c Config) Validate() error {
	if c.CollisionEntries <= 0 {
		return fmt.Errorf("%w: collisionEntries must be positive, got %d", ErrInvalidInput, c.CollisionEntries)
	}
	if c.Buckets <= 0 {
		return fmt.Errorf("%w: buckets must be positive, got %d", ErrInvalidInput, c.Buckets)
	}
	if c.SectorsPerLine == 0 {
		return fmt.Errorf("%w: sectorsPerLine must be positive", ErrInvalidInput)
	}
	if len(c.Partitions) == 0 {
		return fmt.Errorf("%w: at least one partition must be configured", ErrInvalidInput)
	}

	var budget int
	for part, n := range c.Partitions {
		if n < 0 {
			return fmt.Errorf("%w: partition %d has negative budget %d", ErrInvalidInput, part, n)
		}
		budget += n
	}
	if budget > c.CollisionEntries {
		return fmt.Errorf("%w: partition budgets sum to %d, exceeding collisionEntries %d", ErrInvalidInput, budget, c.CollisionEntries)
	}
	if c.FallbackPTErrorThreshold <= 0 {
		return fmt.Errorf("%w: fallbackPtErrorThreshold must be positive", ErrInvalidInput)
	}
	return nil
}

// LoadConfig reads a HuJSON (commented JSON) config file, standardizes it
// to plain JSON, and unmarshals it into a Config seeded from DefaultConfig
// so omitted fields keep their defaults. Grounded on using tailscale/hujson
// for commented config.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("engine: reading config %s: %w", path, err)
	}

	std, err := hujson.Standardize(raw)
	if err != nil {
		return Config{}, fmt.Errorf("engine: parsing config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(std, &cfg); err != nil {
		return Config{}, fmt.Errorf("engine: decoding config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
