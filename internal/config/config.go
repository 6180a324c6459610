package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes bounds the size of a config file.
const MaxConfigFileBytes = 1 << 20

// RuntimeConfig selects the camera runtime.
type RuntimeConfig struct {
	Backend string `yaml:"backend"` // "sim" (default) or "spinnaker"
}

// AcquisitionConfig controls the acquisition workers.
type AcquisitionConfig struct {
	Frames    int    `yaml:"frames"`     // free-run attempts per camera
	TimeoutMs int    `yaml:"timeout_ms"` // frame request timeout (ms)
	OutputDir string `yaml:"output_dir"` // where JPEGs are written
}

// TriggerConfig describes how triggered runs arm the cameras.
type TriggerConfig struct {
	Source     string            `yaml:"source"`      // "software" or "line0"
	Selector   string            `yaml:"selector"`    // e.g., "FrameStart"
	ExposureUs float64           `yaml:"exposure_us"` // manual exposure target, clamped to device max
	PerCamera  map[string]string `yaml:"per_camera"`  // serial -> source override
}

// GPIOConfig describes the optional Line0 pulse output.
// When Enabled, hardware-triggered runs fire one pulse once every camera is
// streaming.
type GPIOConfig struct {
	Enabled      bool `yaml:"enabled"`
	Mock         bool `yaml:"mock"`           // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	PulsePin     int  `yaml:"pulse_pin"`      // BCM pin wired to the cameras' Line0
	PulseWidthUs int  `yaml:"pulse_width_us"` // how long the line is held low
}

// SimCameraConfig describes one simulated camera.
type SimCameraConfig struct {
	Serial          string   `yaml:"serial"`
	Model           string   `yaml:"model"`
	Width           int      `yaml:"width"`
	Height          int      `yaml:"height"`
	MaxExposureUs   float64  `yaml:"max_exposure_us"`
	IncompleteEvery int      `yaml:"incomplete_every"` // flag every Nth frame incomplete (0 = never)
	MissingNodes    []string `yaml:"missing_nodes"`
	ReadOnlyNodes   []string `yaml:"readonly_nodes"`
}

// SimConfig configures the simulated runtime.
type SimConfig struct {
	Cameras         []SimCameraConfig `yaml:"cameras"`
	ExternalTrigger bool              `yaml:"external_trigger"` // Line0 frames arrive without a pulse (no barrier needed)
}

// WebConfig configures the web console.
type WebConfig struct {
	Port int `yaml:"port"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	NoPrompt   bool `yaml:"no_prompt"`   // skip Enter prompts, fire software triggers immediately
}

// Config aggregates all application configuration.
type Config struct {
	Runtime     RuntimeConfig     `yaml:"runtime"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Trigger     TriggerConfig     `yaml:"trigger"`
	GPIO        GPIOConfig        `yaml:"gpio"`
	Sim         SimConfig         `yaml:"sim"`
	Web         WebConfig         `yaml:"web"`
	Defaults    DefaultsConfig    `yaml:"defaults"`
}

// ValidateConfigPath accepts only .yaml files located in a "configs"
// directory, without path traversal.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	if strings.Contains(filepath.ToSlash(path), "..") {
		return fmt.Errorf("config path must not contain '..': %s", path)
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config file must have a .yaml extension: %s", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config file must be in a configs/ directory: %s", path)
	}
	return nil
}

// Default returns the built-in configuration: simulated runtime with two
// cameras, software trigger, mock GPIO.
func Default() *Config {
	cfg := &Config{}
	if err := cfg.finish(); err != nil {
		panic(err) // built-in defaults are always valid
	}
	return cfg
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxConfigFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// finish fills defaults, then validates.
func (c *Config) finish() error {
	if c.Runtime.Backend == "" {
		c.Runtime.Backend = "sim"
	}
	switch c.Runtime.Backend {
	case "sim", "spinnaker":
	default:
		return fmt.Errorf("runtime.backend must be sim or spinnaker, got %q", c.Runtime.Backend)
	}

	if c.Acquisition.Frames == 0 {
		c.Acquisition.Frames = 10
	}
	if c.Acquisition.Frames < 0 {
		return fmt.Errorf("acquisition.frames must be > 0, got %d", c.Acquisition.Frames)
	}
	if c.Acquisition.TimeoutMs == 0 {
		c.Acquisition.TimeoutMs = 1000
	}
	if c.Acquisition.TimeoutMs < 0 {
		return fmt.Errorf("acquisition.timeout_ms must be > 0, got %d", c.Acquisition.TimeoutMs)
	}
	if c.Acquisition.OutputDir == "" {
		c.Acquisition.OutputDir = "."
	}

	if c.Trigger.Source == "" {
		c.Trigger.Source = "software"
	}
	if err := validateSource(c.Trigger.Source); err != nil {
		return fmt.Errorf("trigger.source: %w", err)
	}
	for serial, src := range c.Trigger.PerCamera {
		if err := validateSource(src); err != nil {
			return fmt.Errorf("trigger.per_camera[%s]: %w", serial, err)
		}
	}
	if c.Trigger.Selector == "" {
		c.Trigger.Selector = "FrameStart"
	}
	if c.Trigger.ExposureUs == 0 {
		c.Trigger.ExposureUs = 3000 // µs
	}
	if c.Trigger.ExposureUs < 0 {
		return fmt.Errorf("trigger.exposure_us must be > 0, got %.1f", c.Trigger.ExposureUs)
	}

	if c.GPIO.PulsePin == 0 {
		c.GPIO.PulsePin = 17
	}
	if c.GPIO.PulseWidthUs <= 0 {
		c.GPIO.PulseWidthUs = 1000
	}

	if c.Runtime.Backend == "sim" && len(c.Sim.Cameras) == 0 {
		c.Sim.Cameras = []SimCameraConfig{
			{Serial: "19225811", Model: "Blackfly S BFS-U3-16S2M", MaxExposureUs: 30000000},
			{Serial: "19225812", Model: "Blackfly S BFS-U3-16S2M", MaxExposureUs: 2500},
		}
	}
	seen := make(map[string]bool)
	for i, cam := range c.Sim.Cameras {
		if cam.Serial == "" {
			return fmt.Errorf("sim.cameras[%d].serial is required", i)
		}
		if seen[cam.Serial] {
			return fmt.Errorf("sim.cameras[%d]: duplicate serial %s", i, cam.Serial)
		}
		seen[cam.Serial] = true
		if cam.Width < 0 || cam.Height < 0 || cam.MaxExposureUs < 0 || cam.IncompleteEvery < 0 {
			return fmt.Errorf("sim.cameras[%d]: negative values are not allowed", i)
		}
	}

	if c.Web.Port == 0 {
		c.Web.Port = 8080
	}
	if c.Web.Port < 0 || c.Web.Port > 65535 {
		return fmt.Errorf("web.port must be 1-65535, got %d", c.Web.Port)
	}

	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

func validateSource(s string) error {
	switch strings.ToLower(s) {
	case "software", "line0", "hardware":
		return nil
	default:
		return fmt.Errorf("must be software or line0, got %q", s)
	}
}

// Timeout returns the frame request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Acquisition.TimeoutMs) * time.Millisecond
}

// PulseWidth returns how long the Line0 pulse is held.
func (c *Config) PulseWidth() time.Duration {
	return time.Duration(c.GPIO.PulseWidthUs) * time.Microsecond
}
