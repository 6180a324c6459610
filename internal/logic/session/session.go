// Package session owns the camera runtime for one program run: it probes the
// output directory, opens the system and camera list, runs one worker per
// camera and releases everything in the right order.
package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/cjeanneret/spinrec/internal/debug"
	"github.com/cjeanneret/spinrec/internal/hw/spin"
)

// ErrNoCameras is returned by Open when the runtime sees no device.
var ErrNoCameras = errors.New("no cameras detected")

// Probe checks that dir is writable by creating and removing a file.
func Probe(dir string) error {
	f, err := os.CreateTemp(dir, ".spinrec-probe-*")
	if err != nil {
		return fmt.Errorf("failed to create file in %q: %w (check write permissions, or run with elevated privileges)", dir, err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close probe file: %w", err)
	}
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("failed to remove probe file: %w", err)
	}
	debug.Verbose("Output directory %q is writable", dir)
	return nil
}

// Session holds the system handle and the camera list.
type Session struct {
	sys  spin.System
	list spin.CameraList
	cams []spin.Camera

	once     sync.Once
	closeErr error
}

// Open lists the attached cameras. With zero cameras the list is cleared,
// the system released and ErrNoCameras returned.
func Open(sys spin.System) (*Session, error) {
	debug.Info("Spinnaker library version: %s", sys.LibraryVersion())

	list, err := sys.Cameras()
	if err != nil {
		if rerr := sys.Release(); rerr != nil {
			debug.Error(fmt.Errorf("release system: %w", rerr))
		}
		return nil, fmt.Errorf("failed to list cameras: %w", err)
	}

	s := &Session{sys: sys, list: list}
	n := list.Len()
	debug.Info("Number of cameras detected: %d", n)
	if n == 0 {
		s.Close()
		return nil, ErrNoCameras
	}

	for i := 0; i < n; i++ {
		cam, err := list.At(i)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("camera %d: %w", i, err)
		}
		s.cams = append(s.cams, cam)
	}
	return s, nil
}

// Cameras returns the cameras in list order.
func (s *Session) Cameras() []spin.Camera { return s.cams }

// Close clears the camera list, then releases the system. Only the first
// call does anything.
func (s *Session) Close() error {
	s.once.Do(func() {
		s.cams = nil
		var errs []error
		if err := s.list.Clear(); err != nil {
			errs = append(errs, fmt.Errorf("clear camera list: %w", err))
		}
		if err := s.sys.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release system: %w", err))
		}
		s.closeErr = errors.Join(errs...)
		if s.closeErr != nil {
			debug.Error(s.closeErr)
		} else {
			debug.Verbose("Camera list cleared, system released")
		}
	})
	return s.closeErr
}

// DeviceInfo is the DeviceInformation category of one camera.
type DeviceInfo struct {
	Index    int
	Serial   string
	Features []spin.Feature
	Readable bool // false when the category itself cannot be read
}

// Describe reads the transport layer node map, which needs no Init.
func Describe(index int, cam spin.Camera) DeviceInfo {
	nm := cam.TLDeviceNodeMap()
	feats, ok := spin.CategoryFeatures(nm, spin.NodeDeviceInformation)
	return DeviceInfo{
		Index:    index,
		Serial:   spin.ReadString(nm, spin.NodeDeviceSerialNumber),
		Features: feats,
		Readable: ok,
	}
}

// WriteDeviceInfo prints info as "name : value" lines.
func WriteDeviceInfo(w io.Writer, info DeviceInfo) {
	fmt.Fprintf(w, "*** DEVICE INFORMATION (camera %d) ***\n", info.Index)
	if !info.Readable {
		fmt.Fprintln(w, "Device control information not available.")
		return
	}
	for _, f := range info.Features {
		if f.Readable {
			fmt.Fprintf(w, "%s : %s\n", f.Name, f.Value)
		} else {
			fmt.Fprintf(w, "%s : Node not readable\n", f.Name)
		}
	}
}

func logDeviceInfo(index int, cam spin.Camera) {
	if !debug.IsEnabled(debug.LevelVerbose) {
		return
	}
	info := Describe(index, cam)
	if !info.Readable {
		debug.Verbose("[%s] Device control information not available", info.Serial)
		return
	}
	for _, f := range info.Features {
		v := f.Value
		if !f.Readable {
			v = "Node not readable"
		}
		debug.Verbose("[%s] %s : %s", info.Serial, f.Name, v)
	}
}
