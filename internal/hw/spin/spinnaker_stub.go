//go:build !spinnaker

package spin

import "errors"

// ErrNoSpinnaker is returned when the real runtime is requested from a binary
// built without the spinnaker tag.
var ErrNoSpinnaker = errors.New("built without Spinnaker support (rebuild with -tags spinnaker)")

func newSpinnakerSystem() (System, error) {
	return nil, ErrNoSpinnaker
}
