package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"strings"

	"github.com/cjeanneret/spinrec/internal/config"
	"github.com/cjeanneret/spinrec/internal/debug"
	"github.com/cjeanneret/spinrec/internal/hw/gpio"
	"github.com/cjeanneret/spinrec/internal/hw/spin"
	"github.com/cjeanneret/spinrec/internal/hw/trigger"
	"github.com/cjeanneret/spinrec/internal/logic/capture"
	"github.com/cjeanneret/spinrec/internal/logic/configure"
	"github.com/cjeanneret/spinrec/internal/logic/session"
	"github.com/cjeanneret/spinrec/internal/web"
	"github.com/schollz/progressbar/v3"
)

// runner holds the configuration and the devices shared by every run.
type runner struct {
	cfg      *config.Config
	console  trigger.Confirmer // Enter prompts; Immediate with --no-prompt
	prompt   bool              // wait for Enter before exiting
	stderr   io.Writer         // progress bar output
	progress bool

	gpio   gpio.Driver
	pulser trigger.Pulser // Line0 pulse output, nil when GPIO is disabled

	newSystem func(cfg *config.Config) (spin.System, error)
}

func newRunner(cfg *config.Config, in io.Reader, out, errOut io.Writer, progress bool) (*runner, error) {
	r := &runner{
		cfg:       cfg,
		console:   trigger.Immediate{},
		prompt:    !cfg.Defaults.NoPrompt,
		stderr:    errOut,
		progress:  progress,
		newSystem: newSystemFromConfig,
	}
	if r.prompt {
		r.console = trigger.NewConsole(in, out)
	}

	if cfg.GPIO.Enabled {
		debug.Step(1, "Initializing GPIO driver")
		debug.Value("Mock GPIO", cfg.GPIO.Mock)
		g, err := gpio.NewDriver(cfg.GPIO.Mock)
		if err != nil {
			return nil, fmt.Errorf("init GPIO failed: %w", err)
		}
		r.gpio = g
		r.pulser = trigger.NewGPIOPulser(g, cfg.GPIO.PulsePin, cfg.PulseWidth())
		debug.Value("Pulse pin", cfg.GPIO.PulsePin)
		debug.Value("Pulse width", cfg.PulseWidth())
	}
	return r, nil
}

// Close releases the GPIO driver, if any.
func (r *runner) Close() {
	if r.gpio == nil {
		return
	}
	if err := r.gpio.Close(); err != nil {
		log.Printf("closing GPIO driver failed: %v", err)
	}
	r.gpio = nil
}

// newSystemFromConfig selects the camera runtime based on configuration.
func newSystemFromConfig(cfg *config.Config) (spin.System, error) {
	return spin.NewSystem(cfg.Runtime.Backend, simConfig(cfg.Sim))
}

func simConfig(c config.SimConfig) spin.SimConfig {
	out := spin.SimConfig{ExternalTrigger: c.ExternalTrigger}
	for _, cam := range c.Cameras {
		out.Cameras = append(out.Cameras, spin.SimCameraConfig{
			Serial:          cam.Serial,
			Model:           cam.Model,
			Width:           cam.Width,
			Height:          cam.Height,
			MaxExposureUs:   cam.MaxExposureUs,
			IncompleteEvery: cam.IncompleteEvery,
			MissingNodes:    cam.MissingNodes,
			ReadOnlyNodes:   cam.ReadOnlyNodes,
		})
	}
	return out
}

// pause waits for Enter unless prompts are disabled.
func (r *runner) pause(ctx context.Context, msg string) {
	if !r.prompt {
		return
	}
	_ = r.console.Confirm(ctx, msg)
}

// acquire runs one acquisition: probe the output directory, open the
// runtime, run every camera worker and release the runtime. confirm gates
// software triggers; observe, when set, sees every attempt. Every exit path
// after the probe waits for Enter when prompts are on.
func (r *runner) acquire(ctx context.Context, runID string, req web.RunRequest, confirm trigger.Confirmer, observe capture.Observer) (session.Summary, error) {
	cfg := applyOverridesToCopy(r.cfg, req)

	debug.Summary("Run " + runID)
	debug.Value("Mode", req.Mode)
	debug.Value("Output directory", cfg.Acquisition.OutputDir)

	if err := session.Probe(cfg.Acquisition.OutputDir); err != nil {
		debug.Error(err)
		r.pause(ctx, "Press Enter to exit...")
		return session.Summary{}, err
	}

	sys, err := r.newSystem(cfg)
	if err != nil {
		return session.Summary{}, err
	}
	s, err := session.Open(sys)
	if err != nil {
		if errors.Is(err, session.ErrNoCameras) {
			fmt.Fprintln(r.stderr, "Not enough cameras!")
			r.pause(ctx, "Done! Press Enter to exit...")
		}
		return session.Summary{}, err
	}
	defer s.Close()
	cams := s.Cameras()

	params := capture.Params{
		Frames:    cfg.Acquisition.Frames,
		Timeout:   cfg.Timeout(),
		OutputDir: cfg.Acquisition.OutputDir,
	}

	var sum session.Summary
	switch req.Mode {
	case web.ModeRecord:
		obs, done := r.observer(len(cams)*params.Frames, "Recording", observe)
		params.Observer = obs
		sum = session.Run(ctx, cams, session.FreeRun(params))
		done()

	case web.ModeTrigger:
		plan, err := r.triggerPlan(cfg, sys, confirm)
		if err != nil {
			return session.Summary{}, err
		}
		obs, done := r.observer(len(cams), "Triggering", observe)
		plan.Capture = params
		plan.Capture.Observer = obs
		sum, err = session.RunTriggered(ctx, cams, plan)
		done()
		if err != nil {
			r.pause(ctx, "Done! Press Enter to exit...")
			return sum, err
		}

	default:
		return session.Summary{}, fmt.Errorf("unknown run mode %q", req.Mode)
	}

	debug.Summary("Run complete")
	debug.Value("Cameras", len(sum.Results))
	debug.Value("Images saved", sum.Saved())
	debug.Value("Failed workers", sum.Failed)
	r.pause(ctx, "Done! Press Enter to exit...")
	return sum, sum.Err()
}

// triggerPlan builds the trigger configuration for every camera. Hardware
// triggered cameras share one barrier: the last camera to arm fires the GPIO
// pulse, and the simulated Line0 edge when the runtime is simulated.
func (r *runner) triggerPlan(cfg *config.Config, sys spin.System, confirm trigger.Confirmer) (session.TriggerPlan, error) {
	src, err := configure.ParseSource(cfg.Trigger.Source)
	if err != nil {
		return session.TriggerPlan{}, err
	}
	per := make(map[string]configure.Source, len(cfg.Trigger.PerCamera))
	for serial, s := range cfg.Trigger.PerCamera {
		ps, err := configure.ParseSource(s)
		if err != nil {
			return session.TriggerPlan{}, fmt.Errorf("camera %s: %w", serial, err)
		}
		per[serial] = ps
	}

	var pulsers []trigger.Pulser
	if r.pulser != nil {
		pulsers = append(pulsers, r.pulser)
	}
	if p, ok := sys.(trigger.Pulser); ok {
		pulsers = append(pulsers, p)
	}
	hw := &trigger.Hardware{}
	if len(pulsers) > 0 {
		hw.Barrier = trigger.NewBarrier(trigger.Chain(pulsers...))
	}

	return session.TriggerPlan{
		Params: configure.Params{
			Source:     src,
			Selector:   cfg.Trigger.Selector,
			ExposureUs: cfg.Trigger.ExposureUs,
		},
		PerCamera: per,
		Triggers: session.Triggers{
			Software: &trigger.Software{Confirm: confirm},
			Hardware: hw,
		},
	}, nil
}

// observer combines the progress bar with an optional extra observer. The
// returned func finishes the bar.
func (r *runner) observer(total int, desc string, extra capture.Observer) (capture.Observer, func()) {
	if !r.progress || total <= 0 {
		return extra, func() {}
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(r.stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	observe := func(a capture.Attempt) {
		bar.Add(1)
		if extra != nil {
			extra(a)
		}
	}
	return observe, func() { bar.Finish() }
}

// validateCLIOverrides checks that non-zero CLI overrides are within valid ranges.
// Zero values are ignored (they mean "use config default").
func validateCLIOverrides(exposureUs float64, frames int, source string) error {
	if exposureUs != 0 {
		if math.IsNaN(exposureUs) || math.IsInf(exposureUs, 0) || exposureUs <= 0 || exposureUs > web.MaxExposureUs {
			return fmt.Errorf("exposure-us must be between 1 and %g, got %g", float64(web.MaxExposureUs), exposureUs)
		}
	}
	if frames < 0 || frames > web.MaxFrames {
		return fmt.Errorf("frames must be between 1 and %d, got %d", web.MaxFrames, frames)
	}
	if source != "" {
		if _, err := configure.ParseSource(source); err != nil {
			return err
		}
	}
	return nil
}

// applyOverrides mutates cfg with overrides. Only non-zero override values are applied.
func applyOverrides(cfg *config.Config, o web.RunRequest) {
	if o.Frames > 0 {
		cfg.Acquisition.Frames = o.Frames
	}
	if o.ExposureUs > 0 {
		cfg.Trigger.ExposureUs = o.ExposureUs
	}
	if o.Source != "" {
		cfg.Trigger.Source = strings.ToLower(o.Source)
	}
}

// applyOverridesToCopy returns a new config with overrides applied.
// Zero values in overrides mean "use base config".
func applyOverridesToCopy(baseCfg *config.Config, o web.RunRequest) *config.Config {
	cfg := *baseCfg
	applyOverrides(&cfg, o)
	return &cfg
}
