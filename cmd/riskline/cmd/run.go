package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/riskline/internal/alerting"
	"github.com/good-yellow-bee/riskline/internal/escalation"
	"github.com/good-yellow-bee/riskline/internal/rules"
)

var jobDescriptions = map[string]string{
	rules.NameSubscription:     "Warn about ending trials and lock expired subscriptions",
	rules.NameReworkTrend:      "Alert on rising rework and put runaway projects on hold",
	rules.NameDeadlineRisk:     "Alarm when the backlog cannot be delivered before the deadline",
	rules.NameLowVelocity:      "Alert when sprint completion stays below target",
	rules.NameTeamUtilization:  "Alert on project teams logging too little of their capacity",
	rules.NameOverwork:         "Alarm on people with too much planned work",
	rules.NameMissingTimesheet: "Alarm on missing timesheets and lock timesheet entry",
	rules.NameOverdueTasks:     "Alarm on people with several overdue tasks",
	rules.NameIdleTime:         "Suggest backlog work to people with idle capacity",
	rules.NameUnderUtilization: "Alert on people logging too little over the last 30 working days",
	escalation.Name:            "Remind and escalate unacknowledged notifications",
}

func init() {
	for _, name := range append(rules.Names(), escalation.Name) {
		rootCmd.AddCommand(newJobCmd(name))
	}
	rootCmd.AddCommand(runAllCmd)
}

func newJobCmd(name string) *cobra.Command {
	c := &cobra.Command{
		Use:   name,
		Short: jobDescriptions[name],
		Long: jobDescriptions[name] + `.

Exits 0 when the run completes, even if individual entities failed; the
report counts them. Exits 1 only when the run could not proceed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			force := forceFlag(cmd)
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				snap, err := a.jobs.Run(ctx, name, force)
				a.pushMetrics(ctx, name)
				if rerr := renderReports(os.Stdout, outputFormat(), []alerting.Snapshot{snap}); rerr != nil {
					return rerr
				}
				return err
			})
		},
	}
	addForceFlag(c)
	return c
}

var runAllCmd = &cobra.Command{
	Use:   "run-all",
	Short: "Run every rule, then the escalation sweep",
	Long: `Run every rule in a fixed order and finish with the escalation sweep.

Stops at the first run that cannot proceed and exits 1; the reports of the
runs completed so far are still printed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		force := forceFlag(cmd)
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			snaps, err := a.jobs.RunAll(ctx, force)
			a.pushMetrics(ctx, "run_all")
			if rerr := renderReports(os.Stdout, outputFormat(), snaps); rerr != nil {
				return rerr
			}
			if err != nil {
				return fmt.Errorf("run-all: %w", err)
			}
			return nil
		})
	},
}

func init() {
	addForceFlag(runAllCmd)
}

func addForceFlag(c *cobra.Command) {
	c.Flags().BoolP("force", "f", false, "ignore deduplication and notify again")
}

// forceFlag reads --force from the command line only. It is not bound to
// viper, so no environment variable can switch deduplication off.
func forceFlag(cmd *cobra.Command) bool {
	force, _ := cmd.Flags().GetBool("force")
	return force
}
