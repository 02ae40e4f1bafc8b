package calconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/tessw/photocal/internal/fsutil"
)

func TestEmpty_AllFieldsNil(t *testing.T) {
	cfg := Empty()
	if cfg.Window != nil || cfg.Rounds != nil || cfg.RoundMinMillis != nil ||
		cfg.RoundMaxMillis != nil || cfg.OffsetZP != nil || cfg.ZPFict != nil || cfg.DedupPolicy != nil {
		t.Fatal("Empty() must return a config with every field nil")
	}
}

func TestGetters_Defaults(t *testing.T) {
	cfg := Empty()
	if got := cfg.GetWindow(); got != 9 {
		t.Errorf("GetWindow() = %d, want 9", got)
	}
	if got := cfg.GetRounds(); got != 5 {
		t.Errorf("GetRounds() = %d, want 5", got)
	}
	if got := cfg.GetRoundMinMillis(); got != 5000 {
		t.Errorf("GetRoundMinMillis() = %d, want 5000", got)
	}
	if got := cfg.GetRoundMaxMillis(); got != 0 {
		t.Errorf("GetRoundMaxMillis() = %d, want 0 (unbounded)", got)
	}
	if got := cfg.GetOffsetZP(); got != 0.0 {
		t.Errorf("GetOffsetZP() = %v, want 0.0", got)
	}
	if got := cfg.GetZPFict(); got != 20.50 {
		t.Errorf("GetZPFict() = %v, want 20.50", got)
	}
	if got := cfg.GetDedupPolicy(); got != "immediate" {
		t.Errorf("GetDedupPolicy() = %q, want %q", got, "immediate")
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	zero := 0
	if err := (&CalibrationConfig{Window: &zero}).Validate(); err == nil {
		t.Error("Validate() must reject window <= 0")
	}
	if err := (&CalibrationConfig{Rounds: &zero}).Validate(); err == nil {
		t.Error("Validate() must reject rounds <= 0")
	}
	bad := "sometimes"
	if err := (&CalibrationConfig{DedupPolicy: &bad}).Validate(); err == nil {
		t.Error("Validate() must reject unknown dedup_policy values")
	}
}

func TestLoad_PartialOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "calibration.json")
	body, _ := json.Marshal(map[string]any{"rounds": 3, "offset_zp": 0.2})
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GetRounds() != 3 {
		t.Errorf("GetRounds() = %d, want 3", cfg.GetRounds())
	}
	if cfg.GetOffsetZP() != 0.2 {
		t.Errorf("GetOffsetZP() = %v, want 0.2", cfg.GetOffsetZP())
	}
	// Untouched fields keep their defaults.
	if cfg.GetWindow() != 9 {
		t.Errorf("GetWindow() = %d, want 9 (untouched)", cfg.GetWindow())
	}
}

func TestLoadFS_PartialOverrideAgainstMemoryFilesystem(t *testing.T) {
	mem := fsutil.NewMemoryFileSystem()
	body, _ := json.Marshal(map[string]any{"window": 15, "zp_fict": 21.0})
	if err := mem.WriteFile("/calibration.json", body, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadFS(mem, "/calibration.json")
	if err != nil {
		t.Fatalf("LoadFS: %v", err)
	}
	if cfg.GetWindow() != 15 {
		t.Errorf("GetWindow() = %d, want 15", cfg.GetWindow())
	}
	if cfg.GetZPFict() != 21.0 {
		t.Errorf("GetZPFict() = %v, want 21.0", cfg.GetZPFict())
	}
}

func TestLoad_RejectsPathOutsideWorkingOrTempDir(t *testing.T) {
	if _, err := Load("/etc/calibration.json"); err == nil {
		t.Error("Load() must reject a path outside the working and temp directories")
	}
}

func TestLoad_RejectsNonJSONExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "calibration.txt")
	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() must reject a non-.json extension")
	}
}
