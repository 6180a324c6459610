package main

import (
	"github.com/cjeanneret/spinrec/internal/web"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var recordFrames int

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Grab a burst of free-running frames from every camera",
	Long: `Starts one acquisition worker per camera. Each worker sets continuous
acquisition, requests the configured number of frames and saves every
complete frame as <timestamp>-<serial>-<index>.jpg.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateCLIOverrides(0, recordFrames, ""); err != nil {
			return err
		}
		_, err := app.acquire(cmd.Context(), uuid.NewString(), web.RunRequest{
			Mode:   web.ModeRecord,
			Frames: recordFrames,
		}, app.console, nil)
		return err
	},
}

func init() {
	recordCmd.Flags().IntVar(&recordFrames, "frames", 0, "frames per camera (default: from config)")
	rootCmd.AddCommand(recordCmd)
}
