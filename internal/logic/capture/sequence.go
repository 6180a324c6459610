package capture

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cjeanneret/spinrec/internal/debug"
	"github.com/cjeanneret/spinrec/internal/hw/spin"
	"github.com/cjeanneret/spinrec/internal/logic/configure"
)

const (
	DefaultFrames  = 10
	DefaultTimeout = 1000 * time.Millisecond
)

// Params controls one acquisition worker.
type Params struct {
	Frames      int              // free-run attempts
	Timeout     time.Duration    // per frame request
	OutputDir   string           // where images are written
	PixelFormat spin.PixelFormat // conversion target before saving
	Observer    Observer         // optional, called after every attempt
	Now         func() time.Time // timestamp source for file names
}

func (p Params) withDefaults() Params {
	if p.Frames <= 0 {
		p.Frames = DefaultFrames
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}
	if p.OutputDir == "" {
		p.OutputDir = "."
	}
	if p.PixelFormat == spin.PixelFormatUnknown {
		p.PixelFormat = spin.PixelFormatMono8
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return p
}

// Attempt is one frame request and its outcome.
type Attempt struct {
	Camera int // position in the camera list
	Serial string
	Index  int    // -1 for single-shot captures
	Path   string // saved file, empty when the frame was skipped
	Err    error
}

// Observer is notified after every attempt. It may be called from several
// workers at once.
type Observer func(Attempt)

// ErrIncomplete marks a frame the device flagged as not fully transferred.
var ErrIncomplete = errors.New("image incomplete")

// FrameError is a skippable failure for one frame: the worker logs it and
// moves on to the next attempt.
type FrameError struct {
	Serial string
	Index  int
	Status spin.ImageStatus
	Err    error
}

func (e *FrameError) Error() string {
	if errors.Is(e.Err, ErrIncomplete) {
		return fmt.Sprintf("camera %s frame %d: image incomplete with image status %d (%s)", e.Serial, e.Index, int(e.Status), e.Status)
	}
	return fmt.Sprintf("camera %s frame %d: %v", e.Serial, e.Index, e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }

// Result is what a worker reports to the runner. Only Err == nil counts as
// success; per-frame failures are not errors.
type Result struct {
	Camera   int
	Serial   string
	Attempts int
	Saved    []string
	Err      error
}

// Trigger starts one frame in trigger mode.
type Trigger interface {
	Await(ctx context.Context, nm spin.NodeMap, serial string) error
}

// Filename builds "<unix>-<serial>-<index>.jpg", or "<unix>-<serial>.jpg"
// when index is negative.
func Filename(ts time.Time, serial string, index int) string {
	if index < 0 {
		return fmt.Sprintf("%d-%s.jpg", ts.Unix(), serial)
	}
	return fmt.Sprintf("%d-%s-%d.jpg", ts.Unix(), serial, index)
}

// Sequence streams frames from one camera and writes them to disk.
type Sequence struct {
	cam    spin.Camera
	index  int
	serial string
	params Params
}

// NewSequence binds a worker to the camera at position index in the list.
func NewSequence(cam spin.Camera, index int, p Params) *Sequence {
	serial := spin.SerialNumber(cam)
	debug.Cam(serial, "Device serial number retrieved as %s", serial)
	return &Sequence{
		cam:    cam,
		index:  index,
		serial: serial,
		params: p.withDefaults(),
	}
}

// Serial returns the camera serial number ("" when unreadable).
func (s *Sequence) Serial() string { return s.serial }

// RunFreeRun initializes the camera, makes exactly Params.Frames attempts
// and de-initializes it.
func (s *Sequence) RunFreeRun(ctx context.Context) Result {
	res := Result{Camera: s.index, Serial: s.serial}
	if err := s.cam.Init(); err != nil {
		res.Err = fmt.Errorf("init: %w", err)
		debug.CamError(s.serial, res.Err)
		return res
	}
	defer s.deinit()

	res.Err = s.acquire(ctx, &res, s.params.Frames, nil)
	return res
}

// RunTriggered grabs a single frame from a camera already configured for
// trigger mode. On every exit path the acquisition is ended, trigger and
// exposure are reset exactly once, and the camera is de-initialized.
func (s *Sequence) RunTriggered(ctx context.Context, trig Trigger) Result {
	res := Result{Camera: s.index, Serial: s.serial}
	defer s.deinit()
	defer s.reset()

	res.Err = s.acquire(ctx, &res, 1, trig)
	return res
}

func (s *Sequence) acquire(ctx context.Context, res *Result, n int, trig Trigger) error {
	debug.Cam(s.serial, "*** IMAGE ACQUISITION ***")
	nm := s.cam.NodeMap()
	if err := spin.SetEnum(nm, spin.NodeAcquisitionMode, "Continuous"); err != nil {
		err = fmt.Errorf("set acquisition mode to continuous: %w", err)
		debug.CamError(s.serial, err)
		return err
	}
	debug.Cam(s.serial, "Acquisition mode set to continuous")

	if err := s.cam.BeginAcquisition(); err != nil {
		err = fmt.Errorf("begin acquisition: %w", err)
		debug.CamError(s.serial, err)
		return err
	}
	defer func() {
		if err := s.cam.EndAcquisition(); err != nil {
			debug.CamError(s.serial, fmt.Errorf("end acquisition: %w", err))
		}
	}()
	debug.Cam(s.serial, "Acquiring images")

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		index := i
		if trig != nil {
			index = -1
			if err := trig.Await(ctx, nm, s.serial); err != nil {
				err = fmt.Errorf("trigger: %w", err)
				debug.CamError(s.serial, err)
				return err
			}
		}

		path, err := s.grab(index)
		res.Attempts++
		if err != nil {
			debug.CamError(s.serial, err)
		} else {
			res.Saved = append(res.Saved, path)
		}
		if s.params.Observer != nil {
			s.params.Observer(Attempt{Camera: s.index, Serial: s.serial, Index: index, Path: path, Err: err})
		}
	}
	return nil
}

// grab requests one frame and saves it. Every frame is released before
// grab returns.
func (s *Sequence) grab(index int) (string, error) {
	img, err := s.cam.NextImage(s.params.Timeout)
	if err != nil {
		return "", &FrameError{Serial: s.serial, Index: index, Err: err}
	}
	defer release(s.serial, img)

	if img.Incomplete() {
		return "", &FrameError{Serial: s.serial, Index: index, Status: img.Status(), Err: ErrIncomplete}
	}
	debug.Cam(s.serial, "Grabbed image %d, width = %d, height = %d", index, img.Width(), img.Height())

	conv, err := img.Convert(s.params.PixelFormat)
	if err != nil {
		return "", &FrameError{Serial: s.serial, Index: index, Err: fmt.Errorf("convert: %w", err)}
	}
	defer release(s.serial, conv)

	path := filepath.Join(s.params.OutputDir, Filename(s.params.Now(), s.serial, index))
	if err := conv.Save(path); err != nil {
		return "", &FrameError{Serial: s.serial, Index: index, Err: fmt.Errorf("save: %w", err)}
	}
	debug.Cam(s.serial, "Image saved at %s", path)
	return path, nil
}

func release(serial string, img spin.Image) {
	if err := img.Release(); err != nil {
		debug.CamError(serial, fmt.Errorf("release image: %w", err))
	}
}

// reset is best effort: failures are logged by configure.Reset.
func (s *Sequence) reset() {
	_ = configure.Reset(s.cam.NodeMap(), s.serial)
}

func (s *Sequence) deinit() {
	if err := s.cam.DeInit(); err != nil {
		debug.CamError(s.serial, fmt.Errorf("deinit: %w", err))
	}
}
