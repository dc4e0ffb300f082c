package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewUploadCommand creates the upload command
func NewUploadCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file and print its public URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.container
			ctx := cmd.Context()
			if err := requireAuth(ctx, c); err != nil {
				return err
			}

			url, err := c.Uploads.UploadFile(ctx, args[0])
			if err != nil {
				return fmt.Errorf("upload failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
}
