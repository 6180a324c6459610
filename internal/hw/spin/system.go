package spin

import (
	"fmt"

	"github.com/cjeanneret/spinrec/internal/debug"
)

// Backend names accepted by NewSystem.
const (
	BackendSim       = "sim"
	BackendSpinnaker = "spinnaker"
)

// NewSystem creates the camera runtime for the chosen backend.
// "sim" returns an in-process simulator (for dev/test), "spinnaker" the real
// Spinnaker runtime, which needs a binary built with -tags spinnaker.
func NewSystem(backend string, sim SimConfig) (System, error) {
	switch backend {
	case BackendSim:
		return NewSimSystem(sim), nil
	case BackendSpinnaker:
		debug.Info("Initializing Spinnaker runtime")
		return newSpinnakerSystem()
	default:
		return nil, fmt.Errorf("unknown camera backend: %q (want %q or %q)", backend, BackendSim, BackendSpinnaker)
	}
}
