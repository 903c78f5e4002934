// Package config loads server configuration from a TOML file with
// sane defaults for every field, so a missing file or a partial file
// both yield a runnable configuration.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/anihan/payroll-engine/ledger"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Ledger    LedgerConfig    `toml:"ledger"`
	Scheduler SchedulerConfig `toml:"scheduler"`
}

type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LedgerConfig struct {
	// DefaultStrategy is used when a reconciliation request does not
	// name one: equal, proportional or auto.
	DefaultStrategy string `toml:"default_strategy"`
	// RemainderPolicy controls equal-split leftovers: keep or redistribute.
	RemainderPolicy string `toml:"remainder_policy"`
}

type SchedulerConfig struct {
	// OverdueSweepMinutes is the interval of the background sweep that
	// marks past-due open debts overdue. 0 disables the sweep.
	OverdueSweepMinutes int `toml:"overdue_sweep_minutes"`
}

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() Config {
	return Config{
		Server:    ServerConfig{Host: "127.0.0.1", Port: 8080},
		Database:  DatabaseConfig{Path: "payroll.db"},
		Ledger:    LedgerConfig{DefaultStrategy: string(ledger.StrategyAuto), RemainderPolicy: string(ledger.RemainderKeep)},
		Scheduler: SchedulerConfig{OverdueSweepMinutes: 60},
	}
}

// Load reads path over the defaults. A missing file is not an error;
// an unreadable or invalid file is.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if !ledger.ValidStrategy(ledger.Strategy(c.Ledger.DefaultStrategy)) {
		return fmt.Errorf("unknown default strategy %q", c.Ledger.DefaultStrategy)
	}
	switch ledger.RemainderPolicy(c.Ledger.RemainderPolicy) {
	case ledger.RemainderKeep, ledger.RemainderRedistribute:
	default:
		return fmt.Errorf("unknown remainder policy %q", c.Ledger.RemainderPolicy)
	}
	if c.Scheduler.OverdueSweepMinutes < 0 {
		return fmt.Errorf("overdue sweep interval must not be negative")
	}
	return nil
}
