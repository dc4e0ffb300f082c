package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewPageCommand creates the page command
func NewPageCommand(a *app) *cobra.Command {
	var (
		run      bool
		duration time.Duration
		html     bool
	)

	cmd := &cobra.Command{
		Use:   "page",
		Short: "Show the client page with its injected plugin scripts",
		Long: `Show the client page after startup: every enabled plugin has its script
tag in the document.

With --run the page executes the injected scripts for the given duration
(or until interrupted) before printing, so plugin console output appears in
the log.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.container
			out := cmd.OutOrStdout()

			if run {
				ctx := cmd.Context()
				c.Page.Start(ctx)
				select {
				case <-ctx.Done():
				case <-time.After(duration):
				}
				if err := c.Page.Close(); err != nil {
					return fmt.Errorf("failed to stop page: %w", err)
				}
			}

			if html {
				return c.Page.Render(out)
			}

			scripts := c.Page.Scripts()
			if len(scripts) == 0 {
				fmt.Fprintln(out, "No plugin scripts injected.")
				return nil
			}
			for _, s := range scripts {
				fmt.Fprintf(out, "<script id=%q src=%q async>\n", s.ID, s.Src)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&run, "run", false, "Execute the injected scripts")
	cmd.Flags().DurationVar(&duration, "duration", 5*time.Second, "How long to run scripts with --run")
	cmd.Flags().BoolVar(&html, "html", false, "Print the whole document")
	return cmd
}
