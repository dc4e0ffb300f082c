package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"mfl.dev/cli/internal/application/services"
	"mfl.dev/cli/internal/core/plugin"
)

// NewPluginsCommand creates the plugins command
func NewPluginsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Manage marketplace plugins",
		Long: `Install, toggle and remove marketplace plugins.

Installed plugins are recorded locally and their scripts are injected into
the client page while enabled. Disabling or removing a plugin reloads the
page so nothing it did survives.`,
		Example: `  # Browse the marketplace
  mfl plugins market

  # Install a plugin by id
  mfl plugins install 42

  # Turn it off without removing it
  mfl plugins disable 42

  # Remove it without a prompt
  mfl plugins uninstall 42 --yes`,
	}

	cmd.AddCommand(newPluginsListCommand(a))
	cmd.AddCommand(newPluginsMarketCommand(a))
	cmd.AddCommand(newPluginsInstallCommand(a))
	cmd.AddCommand(newPluginsUninstallCommand(a))
	cmd.AddCommand(newPluginsToggleCommand(a))
	cmd.AddCommand(newPluginsSetEnabledCommand(a, true))
	cmd.AddCommand(newPluginsSetEnabledCommand(a, false))
	cmd.AddCommand(newPluginsStatusCommand(a))

	return cmd
}

func newPluginsListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records := a.container.Lifecycle.Installed()
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No plugins installed. Run 'mfl plugins market' to browse.")
				return nil
			}
			printRecords(out, records)
			return nil
		},
	}
}

func newPluginsMarketCommand(a *app) *cobra.Command {
	var tui bool

	cmd := &cobra.Command{
		Use:   "market",
		Short: "Browse the plugin marketplace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := requireAuth(ctx, a.container); err != nil {
				return err
			}

			if tui {
				return runMarketBrowser(ctx, a.container)
			}

			listings, err := a.container.Marketplace.Catalogue(ctx)
			if err != nil {
				return fmt.Errorf("failed to load marketplace: %w", err)
			}
			printListings(cmd.OutOrStdout(), listings)
			return nil
		},
	}

	cmd.Flags().BoolVar(&tui, "tui", false, "Browse interactively")
	return cmd
}

func newPluginsInstallCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "install <id>",
		Short: "Install a marketplace plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := plugin.ParseID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := requireAuth(ctx, a.container); err != nil {
				return err
			}

			rec, err := a.container.Marketplace.Install(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to install plugin %s: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Installed %s (%s)\n", rec.DisplayName(), rec.ID)
			return nil
		},
	}
}

func newPluginsUninstallCommand(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:     "uninstall <id>",
		Aliases: []string{"remove"},
		Short:   "Remove an installed plugin",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := plugin.ParseID(args[0])
			if err != nil {
				return err
			}

			a.container.Confirmer.SetAssumeYes(yes)
			removed, err := a.container.Lifecycle.Uninstall(cmd.Context(), id)
			if err != nil {
				return notInstalledHint(id, err)
			}

			out := cmd.OutOrStdout()
			if !removed {
				fmt.Fprintln(out, "Aborted.")
				return nil
			}
			fmt.Fprintf(out, "Removed plugin %s\n", id)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func newPluginsToggleCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>",
		Short: "Flip a plugin between enabled and disabled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := plugin.ParseID(args[0])
			if err != nil {
				return err
			}

			enabled, err := a.container.Lifecycle.Toggle(cmd.Context(), id)
			if err != nil {
				return notInstalledHint(id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Plugin %s is now %s\n", id, enabledWord(enabled))
			return nil
		},
	}
}

func newPluginsSetEnabledCommand(a *app, enabled bool) *cobra.Command {
	use, short := "enable <id>", "Enable an installed plugin"
	if !enabled {
		use, short = "disable <id>", "Disable an installed plugin"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := plugin.ParseID(args[0])
			if err != nil {
				return err
			}

			changed, err := a.container.Lifecycle.SetEnabled(cmd.Context(), id, enabled)
			if err != nil {
				return notInstalledHint(id, err)
			}

			out := cmd.OutOrStdout()
			if !changed {
				fmt.Fprintf(out, "Plugin %s is already %s\n", id, enabledWord(enabled))
				return nil
			}
			fmt.Fprintf(out, "Plugin %s is now %s\n", id, enabledWord(enabled))
			return nil
		},
	}
}

func newPluginsStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show the local state of a plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := plugin.ParseID(args[0])
			if err != nil {
				return err
			}

			c := a.container
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Plugin:  %s\n", id)
			fmt.Fprintf(out, "State:   %s\n", c.Lifecycle.State(id))
			fmt.Fprintf(out, "Script:  %s\n", presentWord(c.Page.HasScript(id)))
			return nil
		},
	}
}

func printRecords(w io.Writer, records []plugin.Record) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tVERSION\tSTATE\tINSTALLED")
	for _, rec := range records {
		state := plugin.StateDisabled
		if rec.IsEnabled {
			state = plugin.StateEnabled
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			rec.ID,
			rec.DisplayName(),
			orDash(rec.Version),
			state,
			rec.InstalledTime().Local().Format(time.DateTime),
		)
	}
	tw.Flush()
}

func printListings(w io.Writer, listings []services.Listing) {
	if len(listings) == 0 {
		fmt.Fprintln(w, "The marketplace is empty.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tAUTHOR\tDOWNLOADS\tSTATE")
	for _, l := range listings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			l.ID,
			l.Name,
			orDash(l.Type),
			orDash(l.AuthorName),
			l.Downloads,
			l.State,
		)
	}
	tw.Flush()
}

func notInstalledHint(id plugin.ID, err error) error {
	if errors.Is(err, plugin.ErrPluginNotInstalled) {
		return fmt.Errorf("plugin %s is not installed", id)
	}
	return err
}

func enabledWord(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

func presentWord(present bool) string {
	if present {
		return "injected"
	}
	return "not injected"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
