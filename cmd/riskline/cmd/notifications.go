package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/riskline/internal/apperrors"
	"github.com/good-yellow-bee/riskline/internal/models"
	"github.com/good-yellow-bee/riskline/internal/storage"
	"github.com/good-yellow-bee/riskline/pkg/logger/slogpretty"
)

var (
	notifTenant    string
	notifRecipient string
	notifStatuses  []string
	notifTypes     []string
	notifLimit     uint64
)

// notificationsCmd represents the notifications command group
var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"notif"},
	Short:   "Inspect and close notifications",
	Long: `Commands for inspecting notifications and moving them through their
lifecycle outside of the product UI.

Examples:
  # Open notifications of one recipient
  riskline notifications list --recipient pm@acme.test --status OPEN

  # Acknowledge a notification so the sweep leaves it alone
  riskline notifications ack 4f0c6a52-...

  # Resolve a notification and release its deduplication key
  riskline notifications resolve 4f0c6a52-...`,
}

var notificationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notifications",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if notifTenant == "" && notifRecipient == "" {
			return errors.New("--tenant or --recipient is required")
		}
		filter := storage.NotificationFilter{
			TenantID:       notifTenant,
			RecipientEmail: notifRecipient,
			Limit:          notifLimit,
		}
		for _, s := range notifStatuses {
			filter.Statuses = append(filter.Statuses, models.NotificationStatus(s))
		}
		for _, t := range notifTypes {
			filter.Types = append(filter.Types, models.NotificationType(t))
		}

		return withStore(cmd.Context(), func(ctx context.Context, store storage.Storage) error {
			list, err := store.Notifications().Find(ctx, filter)
			if err != nil {
				return fmt.Errorf("list notifications: %w", err)
			}
			return renderNotifications(os.Stdout, outputFormat(), list)
		})
	},
}

var notificationsAckCmd = &cobra.Command{
	Use:   "ack <id>",
	Short: "Acknowledge a notification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transitionNotification(cmd.Context(), args[0], "acknowledged", func(ctx context.Context, repo storage.NotificationRepository, id string) error {
			return repo.Acknowledge(ctx, id, time.Now())
		})
	},
}

var notificationsResolveCmd = &cobra.Command{
	Use:   "resolve <id>",
	Short: "Resolve a notification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transitionNotification(cmd.Context(), args[0], "resolved", func(ctx context.Context, repo storage.NotificationRepository, id string) error {
			return repo.Resolve(ctx, id, time.Now())
		})
	},
}

func transitionNotification(ctx context.Context, id, verb string, fn func(context.Context, storage.NotificationRepository, string) error) error {
	return withStore(ctx, func(ctx context.Context, store storage.Storage) error {
		if err := fn(ctx, store.Notifications(), id); err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return fmt.Errorf("notification %s not found", id)
			}
			return err
		}
		if outputFormat() == outputJSON {
			n, err := store.Notifications().GetByID(ctx, id)
			if err != nil {
				return err
			}
			return writeJSON(os.Stdout, n)
		}
		fmt.Printf("Notification %s %s.\n", id, verb)
		return nil
	})
}

// withStore opens the configured database without wiring email or jobs.
func withStore(ctx context.Context, fn func(context.Context, storage.Storage) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg, slogpretty.SetupLogger(cfg.Env))
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(ctx, store)
}

func init() {
	notificationsListCmd.Flags().StringVar(&notifTenant, "tenant", "", "tenant id")
	notificationsListCmd.Flags().StringVar(&notifRecipient, "recipient", "", "recipient email")
	notificationsListCmd.Flags().StringSliceVar(&notifStatuses, "status", nil, "status filter (OPEN, APPEALED, RESOLVED)")
	notificationsListCmd.Flags().StringSliceVar(&notifTypes, "type", nil, "notification type filter")
	notificationsListCmd.Flags().Uint64Var(&notifLimit, "limit", 50, "maximum rows")

	notificationsCmd.AddCommand(notificationsListCmd)
	notificationsCmd.AddCommand(notificationsAckCmd)
	notificationsCmd.AddCommand(notificationsResolveCmd)
	rootCmd.AddCommand(notificationsCmd)
}
