package trigger

import (
	"sync"

	"github.com/cjeanneret/spinrec/internal/debug"
)

// Barrier fires one pulse once the expected number of cameras are armed.
// Cameras arm after BeginAcquisition, so none of them misses the edge.
//
// A camera that fails before arming keeps the barrier from firing; the
// cameras already armed then time out on their frame request.
type Barrier struct {
	pulser Pulser

	mu       sync.Mutex
	expected int
	armed    int
	pulses   int
}

// NewBarrier returns a barrier expecting one camera.
func NewBarrier(p Pulser) *Barrier {
	return &Barrier{pulser: p, expected: 1}
}

// Expect starts a new round waiting for n cameras.
func (b *Barrier) Expect(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expected = n
	b.armed = 0
	debug.Verbose("Trigger: barrier expects %d camera(s)", n)
}

// Arm registers one camera. The last camera to arm fires the pulse and gets
// its error; the others return immediately.
func (b *Barrier) Arm() error {
	b.mu.Lock()
	b.armed++
	fire := b.armed == b.expected
	armed, expected := b.armed, b.expected
	if fire {
		b.pulses++
	}
	b.mu.Unlock()

	debug.Verbose("Trigger: %d/%d camera(s) armed", armed, expected)
	if !fire {
		return nil
	}
	return b.pulser.Pulse()
}

// Pulses returns how many pulses the barrier fired.
func (b *Barrier) Pulses() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pulses
}
