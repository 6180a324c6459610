package main

import (
	"github.com/cjeanneret/spinrec/internal/web"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	triggerSource     string
	triggerExposureUs float64
)

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Arm every camera for a triggered exposure and grab one frame each",
	Long: `Configures every camera in turn (trigger off, FrameStart selector, source,
trigger on, manual exposure clamped to the device maximum), then grabs one
triggered frame per camera.

With the software source, each camera waits for Enter before the trigger
command is sent (immediately with --no-prompt). With line0, the frame starts
on an edge of the camera's Line0 input; when gpio.enabled is set, the last
camera to arm pulses the configured pin.

Note: a camera triggered faster than its frame time drops the extra
triggers.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateCLIOverrides(triggerExposureUs, 0, triggerSource); err != nil {
			return err
		}
		_, err := app.acquire(cmd.Context(), uuid.NewString(), web.RunRequest{
			Mode:       web.ModeTrigger,
			Source:     triggerSource,
			ExposureUs: triggerExposureUs,
		}, app.console, nil)
		return err
	},
}

func init() {
	triggerCmd.Flags().StringVar(&triggerSource, "source", "", "trigger source: software or line0 (default: from config)")
	triggerCmd.Flags().Float64Var(&triggerExposureUs, "exposure-us", 0, "exposure time in microseconds (default: from config)")
	rootCmd.AddCommand(triggerCmd)
}
