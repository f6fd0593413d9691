package cmd

import (
	"fmt"

	"camview/processing/capture"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List capture devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := capture.ListDevices(toolsFor(opts.cfg))
			if err != nil {
				return errors.Wrap(err, "list devices")
			}

			out := cmd.OutOrStdout()
			if len(devices) == 0 {
				fmt.Fprintln(out, "no capture devices found")
				return nil
			}
			for _, d := range devices {
				fmt.Fprintln(out, d)
			}
			return nil
		},
	}
}
