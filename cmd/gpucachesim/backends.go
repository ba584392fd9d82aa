package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gogpu/gpucache/backend"
	_ "github.com/gogpu/gpucache/backend/native"
)

var probeBackends bool

// backendsCmd lists the registered device backends.
var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List device backends",
	Long: `List the registered device backends in selection order.

With --probe each backend is initialized and closed again, showing which
ones can open a device on this machine.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		for _, name := range backend.Available() {
			if !probeBackends {
				fmt.Fprintln(out, name)
				continue
			}
			b := backend.Get(name)
			if err := b.Init(); err != nil {
				fmt.Fprintf(out, "%-10s unavailable: %v\n", name, err)
				continue
			}
			fmt.Fprintf(out, "%-10s ok\n", name)
			b.Close()
		}
		return nil
	},
}

func init() {
	backendsCmd.Flags().BoolVar(&probeBackends, "probe", false, "Initialize each backend to check it can open a device")
	rootCmd.AddCommand(backendsCmd)
}
