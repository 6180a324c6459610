package gpio

import "testing"

func TestMockDriver_ReadBack(t *testing.T) {
	m := &MockDriver{}

	got, err := m.ReadPin(17)
	if err != nil {
		t.Fatalf("ReadPin() error = %v", err)
	}
	if got != High {
		t.Errorf("untouched pin = %v, want HIGH", got)
	}

	if err := m.SetupPin(17, Output); err != nil {
		t.Fatalf("SetupPin() error = %v", err)
	}
	if err := m.WritePin(17, Low); err != nil {
		t.Fatalf("WritePin() error = %v", err)
	}
	if got, _ := m.ReadPin(17); got != Low {
		t.Errorf("pin after write = %v, want LOW", got)
	}
	if err := m.WritePin(17, High); err != nil {
		t.Fatalf("WritePin() error = %v", err)
	}
	if got, _ := m.ReadPin(17); got != High {
		t.Errorf("pin after release = %v, want HIGH", got)
	}
	if m.Writes() != 2 {
		t.Errorf("Writes() = %d, want 2", m.Writes())
	}
	if err := m.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestNewDriver_Mock(t *testing.T) {
	d, err := NewDriver(true)
	if err != nil {
		t.Fatalf("NewDriver(true) error = %v", err)
	}
	if _, ok := d.(*MockDriver); !ok {
		t.Errorf("NewDriver(true) = %T, want *MockDriver", d)
	}
}

func TestLevel_String(t *testing.T) {
	if Low.String() != "LOW" || High.String() != "HIGH" {
		t.Errorf("Level strings = %q/%q", Low.String(), High.String())
	}
}
