// Package calconfig holds the calibration run's tunable parameters,
// loaded from an optional JSON file with pointer fields so unset values
// fall back to documented defaults.
package calconfig

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/tessw/photocal/internal/fsutil"
	"github.com/tessw/photocal/internal/security"
)

// DefaultConfigPath is the default location for calibration tuning overrides.
const DefaultConfigPath = "config/calibration.defaults.json"

// CalibrationConfig mirrors the fields a calibration session may override.
// All fields are optional; Get* accessors supply the spec defaults.
type CalibrationConfig struct {
	Window         *int     `json:"window,omitempty"`
	Rounds         *int     `json:"rounds,omitempty"`
	RoundMinMillis *int64   `json:"round_min_millis,omitempty"`
	RoundMaxMillis *int64   `json:"round_max_millis,omitempty"`
	OffsetZP       *float64 `json:"offset_zp,omitempty"`
	ZPFict         *float64 `json:"zp_fict,omitempty"`
	DedupPolicy    *string  `json:"dedup_policy,omitempty"`
}

// Empty returns a CalibrationConfig with every field unset.
func Empty() *CalibrationConfig { return &CalibrationConfig{} }

// Load reads a CalibrationConfig from a JSON file on disk. Fields absent
// from the file retain their zero (unset) value, so partial overrides are
// safe.
func Load(path string) (*CalibrationConfig, error) {
	cleanPath := filepath.Clean(path)
	if err := security.ValidateExportPath(cleanPath); err != nil {
		return nil, fmt.Errorf("calibration config path rejected: %w", err)
	}
	return LoadFS(fsutil.OSFileSystem{}, cleanPath)
}

// LoadFS is Load against an injected fsutil.FileSystem, so config-loading
// logic can be exercised against an in-memory filesystem in tests without
// touching disk. It skips the real-filesystem path-containment check Load
// applies, since a virtual path has no meaningful relationship to the
// process's working or temp directory.
func LoadFS(fs fsutil.FileSystem, path string) (*CalibrationConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("calibration config file must have .json extension, got %q", ext)
	}

	info, err := fs.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat calibration config: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("calibration config too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := fs.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read calibration config: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse calibration config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid calibration config: %w", err)
	}
	return cfg, nil
}

// Validate rejects values that would make a calibration session meaningless.
func (c *CalibrationConfig) Validate() error {
	if c.Window != nil && *c.Window < 1 {
		return fmt.Errorf("window must be positive, got %d", *c.Window)
	}
	if c.Rounds != nil && *c.Rounds < 1 {
		return fmt.Errorf("rounds must be positive, got %d", *c.Rounds)
	}
	if c.RoundMinMillis != nil && *c.RoundMinMillis < 0 {
		return fmt.Errorf("round_min_millis must be non-negative, got %d", *c.RoundMinMillis)
	}
	if c.RoundMaxMillis != nil && *c.RoundMaxMillis < 0 {
		return fmt.Errorf("round_max_millis must be non-negative, got %d", *c.RoundMaxMillis)
	}
	if c.DedupPolicy != nil {
		switch *c.DedupPolicy {
		case "immediate", "delayed":
		default:
			return fmt.Errorf("dedup_policy must be %q or %q, got %q", "immediate", "delayed", *c.DedupPolicy)
		}
	}
	return nil
}

// GetWindow returns the configured window size or the default of 9 samples.
func (c *CalibrationConfig) GetWindow() int {
	if c.Window == nil {
		return 9
	}
	return *c.Window
}

// GetRounds returns the configured round count or the default of 5.
func (c *CalibrationConfig) GetRounds() int {
	if c.Rounds == nil {
		return 5
	}
	return *c.Rounds
}

// GetRoundMinMillis returns the configured minimum round duration or the
// default of 5000ms.
func (c *CalibrationConfig) GetRoundMinMillis() int64 {
	if c.RoundMinMillis == nil {
		return 5000
	}
	return *c.RoundMinMillis
}

// GetRoundMaxMillis returns the configured round timeout, or 0 (unbounded)
// if unset.
func (c *CalibrationConfig) GetRoundMaxMillis() int64 {
	if c.RoundMaxMillis == nil {
		return 0
	}
	return *c.RoundMaxMillis
}

// GetOffsetZP returns the configured aggregation bias or the default of 0.0.
func (c *CalibrationConfig) GetOffsetZP() float64 {
	if c.OffsetZP == nil {
		return 0.0
	}
	return *c.OffsetZP
}

// GetZPFict returns the configured fictitious reference zero-point or the
// device default of 20.50.
func (c *CalibrationConfig) GetZPFict() float64 {
	if c.ZPFict == nil {
		return 20.50
	}
	return *c.ZPFict
}

// GetDedupPolicy returns the configured dedup policy name, defaulting to
// "immediate" per the resolved Open Question on decoder dedup semantics.
func (c *CalibrationConfig) GetDedupPolicy() string {
	if c.DedupPolicy == nil {
		return "immediate"
	}
	return *c.DedupPolicy
}
