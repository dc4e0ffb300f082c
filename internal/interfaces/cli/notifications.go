package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// NewNotificationsCommand creates the notifications command
func NewNotificationsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notif"},
		Short:   "Unread notifications of the signed-in user",
	}

	cmd.AddCommand(newNotificationsCountCommand(a))
	cmd.AddCommand(newNotificationsWatchCommand(a))
	cmd.AddCommand(newNotificationsReadCommand(a))
	cmd.AddCommand(newNotificationsReadAllCommand(a))

	return cmd
}

func newNotificationsCountCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the unread notification count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.container
			ctx := cmd.Context()
			if err := requireAuth(ctx, c); err != nil {
				return err
			}

			count, err := c.Notifications.FetchUnreadCount(ctx)
			if err != nil {
				return fmt.Errorf("failed to fetch notifications: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), count)
			return nil
		},
	}
}

func newNotificationsWatchCommand(a *app) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the unread count until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.container
			ctx := cmd.Context()
			if err := requireAuth(ctx, c); err != nil {
				return err
			}

			if !cmd.Flags().Changed("interval") {
				interval = time.Duration(c.Config.NotificationInterval) * time.Second
			}

			out := cmd.OutOrStdout()
			last := -1
			return c.Notifications.Poll(ctx, interval, func(count int) {
				if count == last {
					return
				}
				last = count
				fmt.Fprintf(out, "%s  unread: %d\n", time.Now().Format("15:04:05"), count)
			})
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "Polling interval")
	return cmd
}

func newNotificationsReadCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "read <id>",
		Short: "Mark one notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid notification id %q", args[0])
			}

			c := a.container
			ctx := cmd.Context()
			if err := requireAuth(ctx, c); err != nil {
				return err
			}
			if _, err := c.Notifications.FetchUnreadCount(ctx); err != nil {
				return fmt.Errorf("failed to fetch notifications: %w", err)
			}
			if err := c.Notifications.MarkRead(ctx, id); err != nil {
				return fmt.Errorf("failed to mark notification %d as read: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Marked %d as read, %d unread\n", id, c.Notifications.UnreadCount())
			return nil
		},
	}
}

func newNotificationsReadAllCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "read-all",
		Short: "Mark every notification as read",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.container
			ctx := cmd.Context()
			if err := requireAuth(ctx, c); err != nil {
				return err
			}
			if err := c.Notifications.MarkAllRead(ctx); err != nil {
				return fmt.Errorf("failed to mark notifications as read: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All notifications marked as read")
			return nil
		},
	}
}
