package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roboforge/roboforge/internal/server/handlers"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. --extended adds build, dependency and artifact details; --json prints the /version document.",
	RunE: func(cmd *cobra.Command, args []string) error {
		extended, _ := cmd.Flags().GetBool("extended")
		asJSON, _ := cmd.Flags().GetBool("json")
		identity := GetAppIdentity()
		out := cmd.OutOrStdout()

		handlers.SetVersionInfo(versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
		handlers.SetAppIdentity(identity)
		v := handlers.BuildVersion()

		if asJSON {
			return writeJSONTo(out, v)
		}
		_, _ = fmt.Fprintf(out, "%s %s\n", v.App.Name, v.App.Version)
		if !extended {
			return nil
		}
		_, _ = fmt.Fprintf(out, "Commit: %s\n", v.App.Commit)
		_, _ = fmt.Fprintf(out, "Built: %s\n", v.App.BuildDate)
		_, _ = fmt.Fprintf(out, "Go: %s (%s)\n\n", v.App.GoVersion, v.Runtime.Platform)
		_, _ = fmt.Fprintf(out, "Gofulmen: %s\n", v.Dependencies.Gofulmen)
		_, _ = fmt.Fprintf(out, "Crucible: %s\n", v.Dependencies.Crucible)
		_, _ = fmt.Fprintf(out, "Artifacts: %s\n", strings.Join(v.Artifacts, ", "))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolP("extended", "e", false, "Show build, dependency and artifact details")
	versionCmd.Flags().Bool("json", false, "Print version information as JSON")
}
