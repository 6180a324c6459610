package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// ---------- ValidateConfigPath ----------

func TestValidateConfigPath_Valid(t *testing.T) {
	// Create a real configs/ directory so filepath.Abs resolves correctly.
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "default.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ValidateConfigPath(path); err != nil {
		t.Errorf("expected valid path, got error: %v", err)
	}
}

func TestValidateConfigPath_PathTraversal(t *testing.T) {
	cases := []string{
		"../../etc/passwd",
		"configs/../../../etc/shadow",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for traversal path %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_WrongExtension(t *testing.T) {
	cases := []string{
		"configs/default.json",
		"configs/default.yml",
		"configs/default.txt",
		"configs/default",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for extension in %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_NotInConfigsDir(t *testing.T) {
	cases := []string{
		"other/default.yaml",
		"default.yaml",
		"/tmp/default.yaml",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for path outside configs/ %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_EmptyPath(t *testing.T) {
	if err := ValidateConfigPath(""); err == nil {
		t.Error("expected error for empty path, got nil")
	}
}

func TestValidateConfigPath_SpecialChars(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		wantErr bool
	}{
		{"two cams.yaml", false},
		{"caméras.yaml", false},
		{"bench.yml", true},
	}
	for _, tc := range cases {
		path := filepath.Join(cfgDir, tc.name)
		err := ValidateConfigPath(path)
		if tc.wantErr && err == nil {
			t.Errorf("expected error for %q, got nil", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("unexpected error for %q: %v", tc.name, err)
		}
	}
}

// ---------- Load ----------

// writeConfig creates a temporary configs/ dir with the given YAML content and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}


const validYAML = `
runtime:
  backend: sim
acquisition:
  frames: 5
  timeout_ms: 250
  output_dir: /tmp/frames
trigger:
  source: line0
  selector: FrameStart
  exposure_us: 1500
  per_camera:
    "19225812": software
gpio:
  enabled: true
  mock: true
  pulse_pin: 22
  pulse_width_us: 500
sim:
  external_trigger: false
  cameras:
    - serial: "19225811"
      model: "Blackfly S"
      max_exposure_us: 30000
    - serial: "19225812"
      incomplete_every: 3
web:
  port: 9090
defaults:
  debug_level: 2
  no_prompt: true
`

func TestLoad_ValidFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Acquisition.Frames != 5 {
		t.Errorf("acquisition.frames = %d, want 5", cfg.Acquisition.Frames)
	}
	if cfg.Acquisition.OutputDir != "/tmp/frames" {
		t.Errorf("acquisition.output_dir = %q", cfg.Acquisition.OutputDir)
	}
	if cfg.Trigger.Source != "line0" || cfg.Trigger.ExposureUs != 1500 {
		t.Errorf("trigger = %+v", cfg.Trigger)
	}
	if cfg.Trigger.PerCamera["19225812"] != "software" {
		t.Errorf("per_camera = %v", cfg.Trigger.PerCamera)
	}
	if !cfg.GPIO.Enabled || cfg.GPIO.PulsePin != 22 {
		t.Errorf("gpio = %+v", cfg.GPIO)
	}
	if len(cfg.Sim.Cameras) != 2 || cfg.Sim.Cameras[1].IncompleteEvery != 3 {
		t.Errorf("sim.cameras = %+v", cfg.Sim.Cameras)
	}
	if cfg.Web.Port != 9090 || cfg.Defaults.DebugLevel != 2 || !cfg.Defaults.NoPrompt {
		t.Errorf("web/defaults = %+v %+v", cfg.Web, cfg.Defaults)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("empty config should load with defaults: %v", err)
	}
	if cfg.Runtime.Backend != "sim" {
		t.Errorf("runtime.backend default = %q, want sim", cfg.Runtime.Backend)
	}
	if cfg.Acquisition.Frames != 10 {
		t.Errorf("frames default = %d, want 10", cfg.Acquisition.Frames)
	}
	if cfg.Acquisition.TimeoutMs != 1000 {
		t.Errorf("timeout_ms default = %d, want 1000", cfg.Acquisition.TimeoutMs)
	}
	if cfg.Trigger.Source != "software" || cfg.Trigger.Selector != "FrameStart" {
		t.Errorf("trigger defaults = %+v", cfg.Trigger)
	}
	if cfg.Trigger.ExposureUs != 3000 {
		t.Errorf("exposure_us default = %v, want 3000", cfg.Trigger.ExposureUs)
	}
	if cfg.GPIO.PulsePin != 17 || cfg.GPIO.PulseWidthUs != 1000 {
		t.Errorf("gpio defaults = %+v", cfg.GPIO)
	}
	if len(cfg.Sim.Cameras) != 2 || cfg.Sim.ExternalTrigger {
		t.Errorf("sim defaults = %+v", cfg.Sim)
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("web.port default = %d, want 8080", cfg.Web.Port)
	}
}

func TestDefault_MatchesEmptyFile(t *testing.T) {
	d := Default()
	cfg, err := Load(writeConfig(t, "{}"))
	if err != nil {
		t.Fatal(err)
	}
	if d.Acquisition != cfg.Acquisition || d.GPIO != cfg.GPIO || d.Web != cfg.Web {
		t.Errorf("Default() = %+v, Load({}) = %+v", d, cfg)
	}
}

func TestLoad_SpinnakerSkipsSimCameras(t *testing.T) {
	cfg, err := Load(writeConfig(t, "runtime:\n  backend: spinnaker\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Sim.Cameras) != 0 {
		t.Errorf("spinnaker backend should not get simulated cameras: %+v", cfg.Sim.Cameras)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"unknown backend", "runtime:\n  backend: gige\n"},
		{"negative frames", "acquisition:\n  frames: -1\n"},
		{"negative timeout", "acquisition:\n  timeout_ms: -5\n"},
		{"bad source", "trigger:\n  source: line3\n"},
		{"bad per-camera source", "trigger:\n  per_camera:\n    A: usb\n"},
		{"negative exposure", "trigger:\n  exposure_us: -1\n"},
		{"missing serial", "sim:\n  cameras:\n    - model: x\n"},
		{"duplicate serial", "sim:\n  cameras:\n    - serial: A\n    - serial: A\n"},
		{"negative sim width", "sim:\n  cameras:\n    - serial: A\n      width: -1\n"},
		{"port out of range", "web:\n  port: 70000\n"},
		{"debug level too high", "defaults:\n  debug_level: 5\n"},
		{"debug level negative", "defaults:\n  debug_level: -1\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.yaml)); err == nil {
				t.Errorf("expected error, got nil")
			}
		})
	}
}

func TestLoad_SourceCaseInsensitive(t *testing.T) {
	if _, err := Load(writeConfig(t, "trigger:\n  source: Line0\n")); err != nil {
		t.Errorf("Line0 should be accepted: %v", err)
	}
}

func TestLoad_FileTooLarge(t *testing.T) {
	data := make([]byte, MaxConfigFileBytes+1)
	for i := range data {
		data[i] = '#'
	}
	if _, err := Load(writeConfig(t, string(data))); err == nil {
		t.Error("expected error for oversized config file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "{{{{invalid yaml!!!!")); err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func TestLoad_UnknownFields(t *testing.T) {
	if _, err := Load(writeConfig(t, "unknown_section:\n  foo: bar\n")); err != nil {
		t.Errorf("unknown fields should be ignored, got error: %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configs", "nonexistent.yaml")
	if _, err := Load(path); err == nil {
		t.Error("expected error for nonexistent file, got nil")
	}
}

// ---------- Helper methods ----------

func TestConfig_Durations(t *testing.T) {
	cfg := &Config{
		Acquisition: AcquisitionConfig{TimeoutMs: 250},
		GPIO:        GPIOConfig{PulseWidthUs: 500},
	}
	if got, want := cfg.Timeout(), 250*time.Millisecond; got != want {
		t.Errorf("Timeout() = %v, want %v", got, want)
	}
	if got, want := cfg.PulseWidth(), 500*time.Microsecond; got != want {
		t.Errorf("PulseWidth() = %v, want %v", got, want)
	}
}
