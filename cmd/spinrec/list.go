package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/cjeanneret/spinrec/internal/hw/spin"
	"github.com/cjeanneret/spinrec/internal/logic/session"
	"github.com/spf13/cobra"
)

var listDetails bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List attached cameras",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.list(cmd.Context(), cmd.OutOrStdout(), listDetails)
	},
}

func init() {
	listCmd.Flags().BoolVar(&listDetails, "details", false, "dump the DeviceInformation category of every camera")
	rootCmd.AddCommand(listCmd)
}

func (r *runner) list(ctx context.Context, w io.Writer, details bool) error {
	sys, err := r.newSystem(r.cfg)
	if err != nil {
		return err
	}
	s, err := session.Open(sys)
	if err != nil {
		if errors.Is(err, session.ErrNoCameras) {
			fmt.Fprintln(w, "Not enough cameras!")
			r.pause(ctx, "Done! Press Enter to exit...")
		}
		return err
	}
	defer s.Close()

	fmt.Fprintf(w, "Spinnaker library version: %s\n", sys.LibraryVersion())
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tSERIAL\tMODEL\tVENDOR")
	fmt.Fprintln(tw, "-----\t------\t-----\t------")
	for i, cam := range s.Cameras() {
		nm := cam.TLDeviceNodeMap()
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i,
			spin.ReadString(nm, spin.NodeDeviceSerialNumber),
			spin.ReadString(nm, spin.NodeDeviceModelName),
			spin.ReadString(nm, spin.NodeDeviceVendorName))
	}
	tw.Flush()

	if details {
		for i, cam := range s.Cameras() {
			fmt.Fprintln(w)
			session.WriteDeviceInfo(w, session.Describe(i, cam))
		}
	}
	return nil
}
