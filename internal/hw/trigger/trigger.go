package trigger

import (
	"context"
	"fmt"

	"github.com/cjeanneret/spinrec/internal/debug"
	"github.com/cjeanneret/spinrec/internal/hw/spin"
)

// Software executes TriggerSoftware once the operator confirms.
type Software struct {
	Confirm Confirmer
}

func (s *Software) Await(ctx context.Context, nm spin.NodeMap, serial string) error {
	prompt := fmt.Sprintf("[%s] Press the Enter key to initiate software trigger.", serial)
	if err := s.Confirm.Confirm(ctx, prompt); err != nil {
		return err
	}
	if err := spin.Execute(nm, spin.NodeTriggerSoftware); err != nil {
		return fmt.Errorf("software trigger: %w", err)
	}
	debug.Cam(serial, "Software trigger executed")
	return nil
}

// Hardware waits for an external edge on Line0. With a Barrier, the last
// camera to arm fires the pulse itself.
type Hardware struct {
	Barrier *Barrier
}

func (h *Hardware) Await(ctx context.Context, nm spin.NodeMap, serial string) error {
	debug.Cam(serial, "Use the hardware to trigger image acquisition")
	if h.Barrier == nil {
		return nil
	}
	if err := h.Barrier.Arm(); err != nil {
		return fmt.Errorf("hardware trigger pulse: %w", err)
	}
	return nil
}

// Expect sets how many cameras share the barrier.
func (h *Hardware) Expect(n int) {
	if h.Barrier != nil {
		h.Barrier.Expect(n)
	}
}
