package library

import (
	"fmt"

	"github.com/spf13/viper"
)

// Policy holds the lending rules. The borrow cap and the fine schedule are
// deployment configuration, not storage-format constants.
type Policy struct {
	// MaxActiveBorrows caps how many unreturned loans a user may hold.
	MaxActiveBorrows int `mapstructure:"max_active_borrows"`
	// GraceDays is the fine-free window after issue. A loan returned on
	// day GraceDays exactly still costs nothing.
	GraceDays int `mapstructure:"grace_days"`
	// FinePerDay is charged per day past the grace window.
	FinePerDay float64 `mapstructure:"fine_per_day"`
}

// DefaultPolicy matches the classic schedule: 10 concurrent loans,
// 14 fine-free days, 2.0 currency units per overdue day.
func DefaultPolicy() Policy {
	return Policy{MaxActiveBorrows: 10, GraceDays: 14, FinePerDay: 2.0}
}

// LoadPolicy reads policy settings from an optional config file, with
// LIBRARY_-prefixed environment variables overriding and the defaults
// filling everything else.
func LoadPolicy(configPath string) (Policy, error) {
	v := viper.New()
	def := DefaultPolicy()
	v.SetDefault("max_active_borrows", def.MaxActiveBorrows)
	v.SetDefault("grace_days", def.GraceDays)
	v.SetDefault("fine_per_day", def.FinePerDay)
	v.SetEnvPrefix("LIBRARY")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Policy{}, fmt.Errorf("read config: %w", err)
		}
	}

	var p Policy
	if err := v.Unmarshal(&p); err != nil {
		return Policy{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate rejects nonsensical policy values.
func (p Policy) Validate() error {
	if p.MaxActiveBorrows <= 0 {
		return fmt.Errorf("max_active_borrows must be positive, got %d", p.MaxActiveBorrows)
	}
	if p.GraceDays < 0 {
		return fmt.Errorf("grace_days must not be negative, got %d", p.GraceDays)
	}
	if p.FinePerDay < 0 {
		return fmt.Errorf("fine_per_day must not be negative, got %g", p.FinePerDay)
	}
	return nil
}
