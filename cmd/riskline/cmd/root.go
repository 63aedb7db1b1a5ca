// Package cmd contains the CLI commands for riskline.
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Output formats.
const (
	outputTable = "table"
	outputJSON  = "json"
	outputPlain = "plain"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "riskline",
	Short: "Riskline - project risk alerting and escalation",
	Long: `Riskline scans every tenant's projects, people and timesheets for delivery
risk and raises in-app notifications and emails to the people who can act.

Each rule is a subcommand meant to be run by an external scheduler. The
sweep command follows up on unacknowledged notifications, and serve runs
everything on an internal schedule behind a small HTTP API.

Examples:
  # Run one rule
  riskline overwork --config /etc/riskline.yaml

  # Re-run a rule ignoring deduplication
  riskline rework-trend --force

  # Run every rule and the escalation sweep
  riskline run-all -o json

  # Serve /metrics and the job API
  riskline serve`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch o := viper.GetString("output"); o {
		case outputTable, outputJSON, outputPlain:
			return nil
		default:
			return fmt.Errorf("unknown output format %q (table, json, plain)", o)
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command. It only needs to happen once.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (env RISKLINE_CONFIG)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringP("output", "o", outputTable, "output format (table, json, plain)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
}

func initConfig() {
	viper.SetEnvPrefix("RISKLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func isVerbose() bool { return viper.GetBool("verbose") }

func outputFormat() string { return viper.GetString("output") }
