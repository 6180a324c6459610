// Package configure arms trigger and exposure on one camera before any
// acquisition worker starts, and puts them back afterwards.
package configure

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cjeanneret/spinrec/internal/debug"
	"github.com/cjeanneret/spinrec/internal/hw/spin"
)

// Source is the signal that starts a frame in trigger mode.
type Source string

const (
	SourceSoftware Source = "Software"
	SourceLine0    Source = "Line0"
)

// ParseSource accepts "software", "line0" or "hardware" (an alias for Line0).
func ParseSource(s string) (Source, error) {
	switch strings.ToLower(s) {
	case "software", "":
		return SourceSoftware, nil
	case "line0", "hardware":
		return SourceLine0, nil
	default:
		return "", fmt.Errorf("unknown trigger source: %q (want software or line0)", s)
	}
}

// Hardware reports whether frames are started by an external signal.
func (s Source) Hardware() bool { return s == SourceLine0 }

// DefaultExposureUs is the manual exposure target in microseconds.
const DefaultExposureUs = 3000.0

// DefaultSelector gates the start of each frame exposure.
const DefaultSelector = "FrameStart"

// Params are the capture settings applied to one camera.
type Params struct {
	Source     Source
	Selector   string  // empty means DefaultSelector
	ExposureUs float64 // target, clamped to the device maximum
}

// State is a step of the per-camera configuration.
type State int

const (
	StateUninit State = iota
	StateInitialized
	StateTriggerOff
	StateSourceSelected
	StateTriggerOn
	StateExposureConfigured
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninit:
		return "uninit"
	case StateInitialized:
		return "initialized"
	case StateTriggerOff:
		return "trigger off"
	case StateSourceSelected:
		return "trigger source selected"
	case StateTriggerOn:
		return "trigger on"
	case StateExposureConfigured:
		return "exposure configured"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ConfigError is fatal for the whole run: a required node was missing,
// unavailable or not writable. State is the last state reached.
type ConfigError struct {
	Serial string
	State  State
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("camera %s: configuration failed after %q: %v", e.Serial, e.State, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ClampExposure limits target to the device maximum.
func ClampExposure(target, max float64) float64 {
	if target > max {
		return max
	}
	return target
}

// Machine walks one camera from Uninit to Ready.
type Machine struct {
	cam      spin.Camera
	serial   string
	params   Params
	state    State
	exposure float64
}

// NewMachine prepares the configuration of cam. serial is used for logs and
// errors only.
func NewMachine(cam spin.Camera, serial string, p Params) *Machine {
	if p.Selector == "" {
		p.Selector = DefaultSelector
	}
	if p.ExposureUs <= 0 {
		p.ExposureUs = DefaultExposureUs
	}
	return &Machine{cam: cam, serial: serial, params: p}
}

// State returns the last state reached.
func (m *Machine) State() State { return m.state }

// Exposure returns the exposure time written, in microseconds.
func (m *Machine) Exposure() float64 { return m.exposure }

// Run executes every step in order and stops at the first failure.
func (m *Machine) Run() error {
	steps := []struct {
		next State
		do   func() error
	}{
		{StateInitialized, m.init},
		{StateTriggerOff, m.setEnum(spin.NodeTriggerMode, "Off", "Trigger mode disabled")},
		{StateSourceSelected, m.selectSource},
		{StateTriggerOn, m.setEnum(spin.NodeTriggerMode, "On", "Trigger mode turned back on")},
		{StateExposureConfigured, m.configureExposure},
	}

	debug.Cam(m.serial, "Configuring trigger (source %s)", m.params.Source)
	for _, s := range steps {
		if err := s.do(); err != nil {
			return &ConfigError{Serial: m.serial, State: m.state, Err: err}
		}
		m.state = s.next
		debug.Verbose("[%s] state -> %s", m.serial, m.state)
	}
	m.state = StateReady
	return nil
}

func (m *Machine) init() error {
	if err := m.cam.Init(); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	return nil
}

func (m *Machine) setEnum(node, entry, msg string) func() error {
	return func() error {
		if err := spin.SetEnum(m.cam.NodeMap(), node, entry); err != nil {
			return err
		}
		debug.Cam(m.serial, "%s", msg)
		return nil
	}
}

func (m *Machine) selectSource() error {
	nm := m.cam.NodeMap()
	if err := spin.SetEnum(nm, spin.NodeTriggerSelector, m.params.Selector); err != nil {
		return err
	}
	debug.Cam(m.serial, "Trigger selector set to %s", m.params.Selector)

	if err := spin.SetEnum(nm, spin.NodeTriggerSource, string(m.params.Source)); err != nil {
		return err
	}
	if m.params.Source.Hardware() {
		debug.Cam(m.serial, "Trigger source set to hardware (%s)", m.params.Source)
	} else {
		debug.Cam(m.serial, "Trigger source set to software")
		debug.Verbose("[%s] triggers sent faster than the frame time may be dropped by the camera", m.serial)
	}
	return nil
}

func (m *Machine) configureExposure() error {
	nm := m.cam.NodeMap()
	if err := spin.SetEnum(nm, spin.NodeExposureAuto, "Off"); err != nil {
		return err
	}
	debug.Cam(m.serial, "Automatic exposure disabled")

	f, err := spin.FloatNode(nm, spin.NodeExposureTime)
	if err != nil {
		return err
	}
	max, err := f.Max()
	if err != nil {
		return &spin.NodeError{Node: spin.NodeExposureTime, Step: "read max", Err: err}
	}
	v := ClampExposure(m.params.ExposureUs, max)
	debug.Node("SetValue", spin.NodeExposureTime, v)
	if err := f.SetValue(v); err != nil {
		return &spin.NodeError{Node: spin.NodeExposureTime, Step: "set", Err: err}
	}
	m.exposure = v
	debug.Cam(m.serial, "Exposure time set to %.0f us (device max %.0f us)", v, max)
	return nil
}

// Reset turns trigger mode off and automatic exposure back on. Both steps
// are attempted; failures are logged and returned joined.
func Reset(nm spin.NodeMap, serial string) error {
	var errs []error
	if err := spin.SetEnum(nm, spin.NodeTriggerMode, "Off"); err != nil {
		err = fmt.Errorf("reset trigger: %w", err)
		debug.CamError(serial, err)
		errs = append(errs, err)
	} else {
		debug.Cam(serial, "Trigger mode disabled")
	}
	if err := spin.SetEnum(nm, spin.NodeExposureAuto, "Continuous"); err != nil {
		err = fmt.Errorf("reset exposure: %w", err)
		debug.CamError(serial, err)
		errs = append(errs, err)
	} else {
		debug.Cam(serial, "Automatic exposure enabled")
	}
	return errors.Join(errs...)
}
