package cmd

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"
)

// version is set at build time via ldflags:
//
//	go build -ldflags="-X github.com/jacklau/dispatch/cmd.version=1.0.0"
var version = "dev"

type versionInfo struct {
	Version string `json:"version"`
	Go      string `json:"go"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of dispatch",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := versionInfo{Version: version, Go: runtime.Version()}
		return output(cmd.OutOrStdout(), info, func(w io.Writer) error {
			_, err := fmt.Fprintln(w, "dispatch", info.Version)
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
