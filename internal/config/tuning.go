package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/lock.defaults.json"

// LockConfig represents the tuning parameters for the lock actuator.
// The schema matches the /api/config endpoint so the same JSON can be
// used for both startup configuration and inspection at runtime.
type LockConfig struct {
	// Motion params
	DwellMs    *int64   `json:"dwell_ms,omitempty"`
	SettleMs   *int64   `json:"settle_ms,omitempty"`
	RestDegree *int     `json:"rest_degree,omitempty"`
	DutyOffset *float64 `json:"duty_offset,omitempty"`

	// Reporting params
	StatusPeriod *string `json:"status_period,omitempty"` // duration string like "60s"
	AuditDays    *int    `json:"audit_days,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// EmptyLockConfig returns a LockConfig with all fields set to nil.
// Use LoadLockConfig to load actual values from the defaults file.
func EmptyLockConfig() *LockConfig {
	return &LockConfig{}
}

// DefaultLockConfig returns a LockConfig populated with the built-in
// defaults. These must stay in agreement with the Get* fallbacks and
// with config/lock.defaults.json.
func DefaultLockConfig() *LockConfig {
	return &LockConfig{
		DwellMs:      ptrInt64(1000),
		SettleMs:     ptrInt64(1000),
		RestDegree:   ptrInt(0),
		DutyOffset:   ptrFloat64(0.025),
		StatusPeriod: ptrString("60s"),
		AuditDays:    ptrInt(7),
	}
}

// LoadLockConfig loads a LockConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadLockConfig(path string) (*LockConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyLockConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Merge returns a copy of c with every field that is set in other
// replacing the corresponding field of c. Neither value is modified;
// nil fields in other leave c's value in place.
func (c *LockConfig) Merge(other *LockConfig) *LockConfig {
	merged := *c
	if other == nil {
		return &merged
	}
	if other.DwellMs != nil {
		merged.DwellMs = other.DwellMs
	}
	if other.SettleMs != nil {
		merged.SettleMs = other.SettleMs
	}
	if other.RestDegree != nil {
		merged.RestDegree = other.RestDegree
	}
	if other.DutyOffset != nil {
		merged.DutyOffset = other.DutyOffset
	}
	if other.StatusPeriod != nil {
		merged.StatusPeriod = other.StatusPeriod
	}
	if other.AuditDays != nil {
		merged.AuditDays = other.AuditDays
	}
	return &merged
}

// Validate checks that the configuration values are valid.
func (c *LockConfig) Validate() error {
	if c.DwellMs != nil && *c.DwellMs < 0 {
		return fmt.Errorf("dwell_ms must be non-negative, got %d", *c.DwellMs)
	}

	if c.SettleMs != nil && *c.SettleMs < 0 {
		return fmt.Errorf("settle_ms must be non-negative, got %d", *c.SettleMs)
	}

	if c.RestDegree != nil {
		if *c.RestDegree < 0 || *c.RestDegree > 180 {
			return fmt.Errorf("rest_degree must be between 0 and 180, got %d", *c.RestDegree)
		}
	}

	// Offsets beyond half the drive period would pin the horn past its
	// travel regardless of the commanded degree.
	if c.DutyOffset != nil {
		if *c.DutyOffset < 0 || *c.DutyOffset > 0.5 {
			return fmt.Errorf("duty_offset must be between 0 and 0.5, got %f", *c.DutyOffset)
		}
	}

	if c.StatusPeriod != nil && *c.StatusPeriod != "" {
		if _, err := time.ParseDuration(*c.StatusPeriod); err != nil {
			return fmt.Errorf("invalid status_period '%s': %w", *c.StatusPeriod, err)
		}
	}

	if c.AuditDays != nil && *c.AuditDays < 0 {
		return fmt.Errorf("audit_days must be non-negative, got %d", *c.AuditDays)
	}

	return nil
}

// GetDwell returns the dwell_ms value as a time.Duration or the default.
func (c *LockConfig) GetDwell() time.Duration {
	if c.DwellMs == nil {
		return 1000 * time.Millisecond // default
	}
	return time.Duration(*c.DwellMs) * time.Millisecond
}

// GetSettle returns the settle_ms value as a time.Duration or the default.
func (c *LockConfig) GetSettle() time.Duration {
	if c.SettleMs == nil {
		return 1000 * time.Millisecond // default
	}
	return time.Duration(*c.SettleMs) * time.Millisecond
}

// GetRestDegree returns the rest_degree value or the default.
func (c *LockConfig) GetRestDegree() uint8 {
	if c.RestDegree == nil || *c.RestDegree < 0 || *c.RestDegree > 180 {
		return 0 // default
	}
	return uint8(*c.RestDegree)
}

// GetDutyOffset returns the duty_offset value or the default.
func (c *LockConfig) GetDutyOffset() float64 {
	if c.DutyOffset == nil {
		return 0.025 // default
	}
	return *c.DutyOffset
}

// GetStatusPeriod parses and returns the StatusPeriod as a time.Duration.
func (c *LockConfig) GetStatusPeriod() time.Duration {
	if c.StatusPeriod == nil || *c.StatusPeriod == "" {
		return 60 * time.Second // default
	}
	d, err := time.ParseDuration(*c.StatusPeriod)
	if err != nil {
		return 60 * time.Second // default on parse error
	}
	return d
}

// GetAuditDays returns the audit_days value or the default.
func (c *LockConfig) GetAuditDays() int {
	if c.AuditDays == nil {
		return 7 // default
	}
	return *c.AuditDays
}
