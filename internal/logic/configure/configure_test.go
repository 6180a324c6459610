package configure

import (
	"errors"
	"reflect"
	"testing"

	"github.com/cjeanneret/spinrec/internal/hw/spin"
)

func simCamera(cfg spin.SimCameraConfig) *spin.SimCamera {
	sys := spin.NewSimSystem(spin.SimConfig{Cameras: []spin.SimCameraConfig{cfg}})
	return sys.Camera(cfg.Serial)
}

func TestParseSource(t *testing.T) {
	tests := []struct {
		in   string
		want Source
		ok   bool
	}{
		{"software", SourceSoftware, true},
		{"Software", SourceSoftware, true},
		{"", SourceSoftware, true},
		{"line0", SourceLine0, true},
		{"hardware", SourceLine0, true},
		{"line7", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSource(tt.in)
			if (err == nil) != tt.ok {
				t.Fatalf("err = %v, ok = %v", err, tt.ok)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRunWritesInOrder(t *testing.T) {
	cam := simCamera(spin.SimCameraConfig{Serial: "A"})
	m := NewMachine(cam, "A", Params{Source: SourceLine0})
	if err := m.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if m.State() != StateReady {
		t.Errorf("state = %s", m.State())
	}
	want := []string{
		"TriggerMode=Off",
		"TriggerSelector=FrameStart",
		"TriggerSource=Line0",
		"TriggerMode=On",
		"ExposureAuto=Off",
		"ExposureTime=3000.0",
	}
	if got := cam.Writes(); !reflect.DeepEqual(got, want) {
		t.Errorf("writes = %v\nwant %v", got, want)
	}
}

func TestExposureClampedToDeviceMax(t *testing.T) {
	tests := []struct {
		name   string
		max    float64
		target float64
		want   float64
	}{
		{"below max", 30000, 3000, 3000},
		{"above max", 2500, 3000, 2500},
		{"equal", 3000, 3000, 3000},
		{"default target", 1000, 0, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := simCamera(spin.SimCameraConfig{Serial: "A", MaxExposureUs: tt.max})
			m := NewMachine(cam, "A", Params{Source: SourceSoftware, ExposureUs: tt.target})
			if err := m.Run(); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if m.Exposure() != tt.want || cam.Exposure() != tt.want {
				t.Errorf("exposure = %v (device %v), want %v", m.Exposure(), cam.Exposure(), tt.want)
			}
			if cam.Exposure() > tt.max {
				t.Errorf("exposure %v exceeds max %v", cam.Exposure(), tt.max)
			}
		})
	}
}

func TestRunFailures(t *testing.T) {
	tests := []struct {
		name      string
		cfg       spin.SimCameraConfig
		wantState State
	}{
		{"trigger mode missing", spin.SimCameraConfig{Serial: "A", MissingNodes: []string{spin.NodeTriggerMode}}, StateInitialized},
		{"trigger mode read-only", spin.SimCameraConfig{Serial: "A", ReadOnlyNodes: []string{spin.NodeTriggerMode}}, StateInitialized},
		{"selector missing", spin.SimCameraConfig{Serial: "A", MissingNodes: []string{spin.NodeTriggerSelector}}, StateTriggerOff},
		{"exposure auto missing", spin.SimCameraConfig{Serial: "A", MissingNodes: []string{spin.NodeExposureAuto}}, StateTriggerOn},
		{"exposure time read-only", spin.SimCameraConfig{Serial: "A", ReadOnlyNodes: []string{spin.NodeExposureTime}}, StateTriggerOn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := simCamera(tt.cfg)
			err := NewMachine(cam, "A", Params{Source: SourceSoftware}).Run()
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *ConfigError, got %v", err)
			}
			if ce.State != tt.wantState {
				t.Errorf("state = %s, want %s", ce.State, tt.wantState)
			}
			if ce.Serial != "A" {
				t.Errorf("serial = %q", ce.Serial)
			}
			var ne *spin.NodeError
			if !errors.As(err, &ne) {
				t.Errorf("expected wrapped *spin.NodeError, got %v", err)
			}
		})
	}
}

func TestRunInitFailure(t *testing.T) {
	cam := simCamera(spin.SimCameraConfig{Serial: "A"})
	boom := errors.New("usb gone")
	cam.Inject("Init", boom)
	err := NewMachine(cam, "A", Params{}).Run()
	var ce *ConfigError
	if !errors.As(err, &ce) || ce.State != StateUninit {
		t.Fatalf("expected ConfigError at uninit, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Error("init error should be wrapped")
	}
}

func TestReset(t *testing.T) {
	cam := simCamera(spin.SimCameraConfig{Serial: "A"})
	if err := NewMachine(cam, "A", Params{Source: SourceSoftware}).Run(); err != nil {
		t.Fatal(err)
	}
	if err := Reset(cam.NodeMap(), "A"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if cam.Enum(spin.NodeTriggerMode) != "Off" {
		t.Errorf("TriggerMode = %s", cam.Enum(spin.NodeTriggerMode))
	}
	if cam.Enum(spin.NodeExposureAuto) != "Continuous" {
		t.Errorf("ExposureAuto = %s", cam.Enum(spin.NodeExposureAuto))
	}
}

func TestResetAttemptsBothSteps(t *testing.T) {
	cam := simCamera(spin.SimCameraConfig{Serial: "A", MissingNodes: []string{spin.NodeTriggerMode}})
	cam.Init()
	err := Reset(cam.NodeMap(), "A")
	if err == nil {
		t.Fatal("expected an error for the missing trigger mode")
	}
	if cam.Enum(spin.NodeExposureAuto) != "Continuous" {
		t.Error("exposure reset should still run")
	}
	if got := cam.Writes(); len(got) != 1 || got[0] != "ExposureAuto=Continuous" {
		t.Errorf("writes = %v", got)
	}
}
