package spin

import (
	"errors"
	"testing"
)

func initSim(t *testing.T, cfg SimCameraConfig) *SimCamera {
	t.Helper()
	sys := NewSimSystem(SimConfig{Cameras: []SimCameraConfig{cfg}})
	cam := sys.Camera(cfg.Serial)
	if err := cam.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return cam
}

func TestSetEnum(t *testing.T) {
	cam := initSim(t, SimCameraConfig{Serial: "A"})
	if err := SetEnum(cam.NodeMap(), NodeTriggerMode, "On"); err != nil {
		t.Fatalf("SetEnum: %v", err)
	}
	if got := cam.Enum(NodeTriggerMode); got != "On" {
		t.Errorf("TriggerMode = %q, want On", got)
	}
}

func TestSetEnumFailures(t *testing.T) {
	tests := []struct {
		name     string
		cfg      SimCameraConfig
		node     string
		entry    string
		wantStep string
	}{
		{"missing node", SimCameraConfig{Serial: "A", MissingNodes: []string{NodeTriggerMode}}, NodeTriggerMode, "Off", "node retrieval"},
		{"read-only node", SimCameraConfig{Serial: "A", ReadOnlyNodes: []string{NodeTriggerMode}}, NodeTriggerMode, "Off", "node retrieval"},
		{"unknown entry", SimCameraConfig{Serial: "A"}, NodeTriggerSource, "Line9", "enum entry retrieval"},
		{"wrong kind", SimCameraConfig{Serial: "A"}, NodeExposureTime, "Off", "node retrieval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := initSim(t, tt.cfg)
			if tt.node == NodeExposureTime {
				if err := SetEnum(cam.NodeMap(), NodeExposureAuto, "Off"); err != nil {
					t.Fatalf("ExposureAuto: %v", err)
				}
			}
			err := SetEnum(cam.NodeMap(), tt.node, tt.entry)
			var ne *NodeError
			if !errors.As(err, &ne) {
				t.Fatalf("expected *NodeError, got %v", err)
			}
			if ne.Step != tt.wantStep {
				t.Errorf("step = %q, want %q", ne.Step, tt.wantStep)
			}
			if ne.Node != tt.node {
				t.Errorf("node = %q, want %q", ne.Node, tt.node)
			}
		})
	}
}

func TestSetEnumBeforeInit(t *testing.T) {
	sys := NewSimSystem(SimConfig{Cameras: []SimCameraConfig{{Serial: "A"}}})
	cam := sys.Camera("A")
	if err := SetEnum(cam.NodeMap(), NodeTriggerMode, "Off"); err == nil {
		t.Fatal("device nodes should be unavailable before Init")
	}
}

func TestFloatNodeNeedsManualExposure(t *testing.T) {
	cam := initSim(t, SimCameraConfig{Serial: "A", MaxExposureUs: 2500})
	if _, err := FloatNode(cam.NodeMap(), NodeExposureTime); err == nil {
		t.Fatal("ExposureTime should not be writable while ExposureAuto is Continuous")
	}
	if err := SetEnum(cam.NodeMap(), NodeExposureAuto, "Off"); err != nil {
		t.Fatal(err)
	}
	f, err := FloatNode(cam.NodeMap(), NodeExposureTime)
	if err != nil {
		t.Fatalf("FloatNode: %v", err)
	}
	limit, _ := f.Max()
	if limit != 2500 {
		t.Errorf("max = %v, want 2500", limit)
	}
	if err := f.SetValue(3000); !errors.Is(err, &Error{Code: CodeOutOfRange}) {
		t.Errorf("expected out of range, got %v", err)
	}
}

func TestExecuteSoftwareTrigger(t *testing.T) {
	cam := initSim(t, SimCameraConfig{Serial: "A"})
	nm := cam.NodeMap()
	if err := Execute(nm, NodeTriggerSoftware); err == nil {
		t.Fatal("TriggerSoftware should be unavailable with trigger mode off")
	}
	if err := SetEnum(nm, NodeTriggerMode, "On"); err != nil {
		t.Fatal(err)
	}
	if err := Execute(nm, NodeTriggerSoftware); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := cam.Calls(NodeTriggerSoftware); got != 1 {
		t.Errorf("TriggerSoftware calls = %d, want 1", got)
	}
}

func TestSerialNumberAndDeviceInfo(t *testing.T) {
	sys := NewSimSystem(SimConfig{Cameras: []SimCameraConfig{{Serial: "19225811", Model: "BFS"}}})
	cam := sys.Camera("19225811")
	if got := SerialNumber(cam); got != "19225811" {
		t.Errorf("serial = %q", got)
	}
	feats, ok := CategoryFeatures(cam.TLDeviceNodeMap(), NodeDeviceInformation)
	if !ok {
		t.Fatal("DeviceInformation should be readable before Init")
	}
	found := map[string]string{}
	for _, f := range feats {
		found[f.Name] = f.Value
	}
	if found[NodeDeviceModelName] != "BFS" {
		t.Errorf("model = %q", found[NodeDeviceModelName])
	}
}

func TestSerialNumberMissing(t *testing.T) {
	sys := NewSimSystem(SimConfig{Cameras: []SimCameraConfig{{Serial: "A", MissingNodes: []string{NodeDeviceSerialNumber}}}})
	if got := SerialNumber(sys.Camera("A")); got != "" {
		t.Errorf("serial = %q, want empty", got)
	}
}
