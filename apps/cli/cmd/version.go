package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var versionShortFlag bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		if versionShortFlag {
			fmt.Fprintln(out, version)
			return
		}
		fmt.Fprintf(out, "riskproxy %s\n", version)
		fmt.Fprintf(out, "  built:    %s\n", buildTime)
		fmt.Fprintf(out, "  go:       %s\n", runtime.Version())
		fmt.Fprintf(out, "  platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	versionCmd.Flags().BoolVarP(&versionShortFlag, "short", "s", false, "Print only the version number")
}
