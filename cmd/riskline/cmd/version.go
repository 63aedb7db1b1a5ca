package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/riskline/pkg/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit, and build time of riskline.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if outputFormat() == outputJSON {
			return writeJSON(os.Stdout, config.GetBuildInfo())
		}
		fmt.Println(config.VersionString())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
