package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cjeanneret/spinrec/internal/debug"
	"github.com/cjeanneret/spinrec/internal/hw/spin"
	"github.com/cjeanneret/spinrec/internal/logic/capture"
	"github.com/cjeanneret/spinrec/internal/logic/configure"
)

// JoinError reports a worker that did not return normally.
type JoinError struct {
	Camera int
	Value  interface{} // recovered panic value
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("worker for camera %d did not join cleanly: panic: %v", e.Camera, e.Value)
}

// Work acquires from one camera. It runs on its own goroutine.
type Work func(ctx context.Context, index int, cam spin.Camera) capture.Result

// Summary collects one result per camera, in list order.
type Summary struct {
	Results []capture.Result
	Failed  int
}

// OK reports whether every worker joined cleanly and succeeded.
func (s Summary) OK() bool { return s.Failed == 0 }

// Err joins the failures, or returns nil.
func (s Summary) Err() error {
	var errs []error
	for _, r := range s.Results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("camera %d: %w", r.Camera, r.Err))
		}
	}
	return errors.Join(errs...)
}

// Saved returns the number of images written by all workers.
func (s Summary) Saved() int {
	n := 0
	for _, r := range s.Results {
		n += len(r.Saved)
	}
	return n
}

// Run starts one worker per camera and waits for all of them. There is no
// early cancellation: a failing worker does not stop the others. A panicking
// worker is recovered and reported as a *JoinError.
func Run(ctx context.Context, cams []spin.Camera, work Work) Summary {
	results := make([]capture.Result, len(cams))

	var wg sync.WaitGroup
	for i, cam := range cams {
		i, cam := i, cam
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if v := recover(); v != nil {
					results[i] = capture.Result{Camera: i, Err: &JoinError{Camera: i, Value: v}}
				}
			}()
			results[i] = work(ctx, i, cam)
		}()
	}
	wg.Wait()

	sum := Summary{Results: results}
	for i, r := range results {
		if r.Err != nil {
			sum.Failed++
			debug.Error(fmt.Errorf("grab worker for camera at index %d exited with errors: %w", i, r.Err))
		}
	}
	return sum
}

// FreeRun returns a Work that grabs Params.Frames images per camera.
func FreeRun(p capture.Params) Work {
	return func(ctx context.Context, index int, cam spin.Camera) capture.Result {
		logDeviceInfo(index, cam)
		return capture.NewSequence(cam, index, p).RunFreeRun(ctx)
	}
}

// Triggers are the frame-start providers for each trigger source.
type Triggers struct {
	Software capture.Trigger
	Hardware capture.Trigger
}

// TriggerPlan is everything a triggered run needs.
type TriggerPlan struct {
	Params    configure.Params            // applied to every camera
	PerCamera map[string]configure.Source // trigger source override by serial
	Capture   capture.Params
	Triggers  Triggers
}

func (p TriggerPlan) trigger(src configure.Source) capture.Trigger {
	if src.Hardware() {
		return p.Triggers.Hardware
	}
	return p.Triggers.Software
}

// RunTriggered configures every camera one after the other, then grabs one
// triggered frame per camera. A configuration failure on any camera aborts
// the run before any worker starts: the cameras configured so far are reset
// and de-initialized and the *configure.ConfigError is returned.
func RunTriggered(ctx context.Context, cams []spin.Camera, plan TriggerPlan) (Summary, error) {
	debug.Section("Trigger configuration")
	sources := make([]configure.Source, len(cams))
	hardware := 0
	for i, cam := range cams {
		serial := spin.SerialNumber(cam)
		p := plan.Params
		if src, ok := plan.PerCamera[serial]; ok {
			p.Source = src
		}
		if plan.trigger(p.Source) == nil {
			return Summary{}, fmt.Errorf("camera %s: no trigger provider for source %s", serial, p.Source)
		}
		if err := configure.NewMachine(cam, serial, p).Run(); err != nil {
			debug.Error(err)
			abort(cams[:i+1])
			return Summary{}, err
		}
		sources[i] = p.Source
		if p.Source.Hardware() {
			hardware++
		}
	}

	if e, ok := plan.Triggers.Hardware.(interface{ Expect(int) }); ok && hardware > 0 {
		e.Expect(hardware)
	}

	debug.Section("Acquisition")
	return Run(ctx, cams, func(ctx context.Context, index int, cam spin.Camera) capture.Result {
		logDeviceInfo(index, cam)
		return capture.NewSequence(cam, index, plan.Capture).RunTriggered(ctx, plan.trigger(sources[index]))
	}), nil
}

// abort puts back every camera that got initialized. Failures are logged.
func abort(cams []spin.Camera) {
	for _, cam := range cams {
		if !cam.IsInitialized() {
			continue
		}
		serial := spin.SerialNumber(cam)
		_ = configure.Reset(cam.NodeMap(), serial)
		if err := cam.DeInit(); err != nil {
			debug.CamError(serial, fmt.Errorf("deinit: %w", err))
		}
	}
}
