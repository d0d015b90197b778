package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"pkt.systems/httptxn/internal/version"
	"pkt.systems/httptxn/wire"
)

func newVersionCommand(app *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the httptxn version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Describe(wire.ProtocolVersion)
			return render(cmd.OutOrStdout(), app.output(), info, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s %s\n", info.Module, info.Version)
				return err
			})
		},
	}
}
