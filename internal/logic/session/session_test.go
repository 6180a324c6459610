package session

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cjeanneret/spinrec/internal/hw/spin"
)

func simCameras(serials ...string) spin.SimConfig {
	cfg := spin.SimConfig{}
	for _, s := range serials {
		cfg.Cameras = append(cfg.Cameras, spin.SimCameraConfig{Serial: s, Width: 8, Height: 8})
	}
	return cfg
}

func TestProbe(t *testing.T) {
	if err := Probe(t.TempDir()); err != nil {
		t.Errorf("Probe on temp dir: %v", err)
	}
	if err := Probe(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Probe on a missing directory should fail")
	}
}

func TestOpenNoCameras(t *testing.T) {
	sys := spin.NewSimSystem(spin.SimConfig{})
	s, err := Open(sys)
	if !errors.Is(err, ErrNoCameras) {
		t.Fatalf("err = %v, want ErrNoCameras", err)
	}
	if s != nil {
		t.Error("no session expected")
	}
	if !sys.Released() {
		t.Error("system should be released")
	}
}

func TestOpenAndClose(t *testing.T) {
	sys := spin.NewSimSystem(simCameras("A", "B", "C"))
	s, err := Open(sys)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Cameras()) != 3 {
		t.Errorf("cameras = %d, want 3", len(s.Cameras()))
	}
	// the simulated runtime refuses Release while the list holds cameras
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !sys.Released() {
		t.Error("system should be released after Close")
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

// orderSystem records the order of teardown calls.
type orderSystem struct {
	calls []string
}

func (o *orderSystem) LibraryVersion() spin.Version { return spin.Version{Major: 3} }
func (o *orderSystem) Cameras() (spin.CameraList, error) {
	return &orderList{sys: o}, nil
}
func (o *orderSystem) Release() error {
	o.calls = append(o.calls, "release")
	return nil
}

type orderList struct {
	sys *orderSystem
}

func (l *orderList) Len() int                      { return 1 }
func (l *orderList) At(i int) (spin.Camera, error) { return nil, nil }
func (l *orderList) Clear() error {
	l.sys.calls = append(l.sys.calls, "clear")
	return nil
}

func TestCloseOrder(t *testing.T) {
	sys := &orderSystem{}
	s, err := Open(sys)
	if err != nil {
		t.Fatal(err)
	}
	s.Close()
	s.Close()
	if strings.Join(sys.calls, ",") != "clear,release" {
		t.Errorf("teardown = %v, want [clear release]", sys.calls)
	}
}

func TestDescribe(t *testing.T) {
	sys := spin.NewSimSystem(spin.SimConfig{Cameras: []spin.SimCameraConfig{{Serial: "19225811", Model: "BFS-U3"}}})
	s, err := Open(sys)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	info := Describe(0, s.Cameras()[0])
	if info.Serial != "19225811" || !info.Readable {
		t.Fatalf("info = %+v", info)
	}
	var buf bytes.Buffer
	WriteDeviceInfo(&buf, info)
	if !strings.Contains(buf.String(), "DeviceModelName : BFS-U3") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestDescribeNotReadable(t *testing.T) {
	sys := spin.NewSimSystem(spin.SimConfig{Cameras: []spin.SimCameraConfig{{Serial: "A", MissingNodes: []string{spin.NodeDeviceInformation}}}})
	cam := sys.Camera("A")
	var buf bytes.Buffer
	WriteDeviceInfo(&buf, Describe(0, cam))
	if !strings.Contains(buf.String(), "not available") {
		t.Errorf("output = %q", buf.String())
	}
}
