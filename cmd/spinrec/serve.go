package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cjeanneret/spinrec/internal/config"
	"github.com/cjeanneret/spinrec/internal/debug"
	"github.com/cjeanneret/spinrec/internal/hw/spin"
	"github.com/cjeanneret/spinrec/internal/hw/trigger"
	"github.com/cjeanneret/spinrec/internal/logic/capture"
	"github.com/cjeanneret/spinrec/internal/web"
	"github.com/spf13/cobra"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web console",
	Long: `Serves a page that starts record and trigger runs, fires pending software
triggers and streams the log. Runs never prompt on the terminal: software
triggers wait for POST /trigger.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		port := servePort
		if port == 0 {
			port = app.cfg.Web.Port
		}
		if port < 0 || port > 65535 {
			return fmt.Errorf("port must be 1-65535, got %d", port)
		}

		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
		if debug.Level() < debug.LevelLive {
			debug.Init(debug.LevelLive)
		}

		srv, err := newWebServer(fmt.Sprintf(":%d", port), app, broadcaster)
		if err != nil {
			return err
		}
		return srv.Run(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default: web.port from config)")
	rootCmd.AddCommand(serveCmd)
}

// newWebServer wires a non-interactive copy of r to the web handlers.
func newWebServer(addr string, r *runner, broadcaster *web.StatusBroadcaster) (*web.Server, error) {
	wr := *r
	wr.prompt = false
	wr.progress = false

	gate := trigger.NewGate()
	observe := func(a capture.Attempt) {
		if a.Err != nil {
			broadcaster.Broadcast("error", attemptMessage(a))
			return
		}
		broadcaster.Broadcast("frame", attemptMessage(a))
	}
	run := func(ctx context.Context, runID string, req web.RunRequest) error {
		_, err := wr.acquire(ctx, runID, req, gate, observe)
		return err
	}
	return web.NewServer(addr, broadcaster, run, gate.Fire, formDefaults(r.cfg))
}

func attemptMessage(a capture.Attempt) string {
	frame := "frame"
	if a.Index >= 0 {
		frame = fmt.Sprintf("frame %d", a.Index)
	}
	if a.Err != nil {
		return fmt.Sprintf("camera %d (%s) %s: %v", a.Camera, a.Serial, frame, a.Err)
	}
	return fmt.Sprintf("camera %d (%s) %s saved at %s", a.Camera, a.Serial, frame, a.Path)
}

func formDefaults(cfg *config.Config) web.FormConfig {
	fc := web.FormConfig{
		Mode:       web.ModeRecord,
		Source:     strings.ToLower(cfg.Trigger.Source),
		ExposureUs: cfg.Trigger.ExposureUs,
		Frames:     cfg.Acquisition.Frames,
		Backend:    cfg.Runtime.Backend,
	}
	if cfg.Runtime.Backend == spin.BackendSim {
		for _, c := range cfg.Sim.Cameras {
			fc.Cameras = append(fc.Cameras, c.Serial)
		}
	}
	return fc
}
