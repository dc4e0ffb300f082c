package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"mfl.dev/cli/internal/core/session"
)

// NewAuthCommand creates the auth subcommand
func NewAuthCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the signed-in account",
		Long:  `Sign in to the MFL platform, create an account and update account settings.`,
	}

	cmd.AddCommand(newAuthLoginCommand(a))
	cmd.AddCommand(newAuthRegisterCommand(a))
	cmd.AddCommand(newAuthLogoutCommand(a))
	cmd.AddCommand(newAuthWhoamiCommand(a))
	cmd.AddCommand(newAuthSettingsCommand(a))

	return cmd
}

func newAuthLoginCommand(a *app) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:     "login",
		Short:   "Sign in with email and password",
		Example: `  mfl auth login --email ann@example.com`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.container
			if err := askMissing(c, &email, "Email"); err != nil {
				return err
			}
			if err := askMissing(c, &password, "Password"); err != nil {
				return err
			}

			user, err := c.Auth.Login(cmd.Context(), email, password)
			if err != nil {
				return fmt.Errorf("sign in failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", user.Username)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prompted when omitted)")
	return cmd
}

func newAuthRegisterCommand(a *app) *cobra.Command {
	var username, email, password string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.container
			if err := askMissing(c, &username, "Username"); err != nil {
				return err
			}
			if err := askMissing(c, &email, "Email"); err != nil {
				return err
			}
			if err := askMissing(c, &password, "Password"); err != nil {
				return err
			}

			user, err := c.Auth.Register(cmd.Context(), username, email, password)
			if err != nil {
				return fmt.Errorf("registration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Welcome, %s\n", user.Username)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Public username")
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prompted when omitted)")
	return cmd
}

func newAuthLogoutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.container.Auth.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func newAuthWhoamiCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.container
			out := cmd.OutOrStdout()

			if err := c.Auth.CheckAuth(cmd.Context()); err != nil {
				fmt.Fprintf(out, "Stored session is no longer valid: %v\n", err)
			}
			user := c.Auth.User()
			if user == nil {
				fmt.Fprintln(out, "Not signed in")
				fmt.Fprintf(out, "Image:    %s\n", c.Auth.UserImage())
				return nil
			}
			printUser(out, user, c.Auth.UserImage())
			return nil
		},
	}
}

func newAuthSettingsCommand(a *app) *cobra.Command {
	var username, email, password, bio, image, imageFile string

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Update account settings",
		Long: `Update account settings. Only the flags given are changed.

--image-file uploads a local file and uses its URL as the new image.`,
		Example: `  mfl auth settings --bio "Writes about tea"
  mfl auth settings --image-file ./avatar.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.container
			ctx := cmd.Context()
			if err := requireAuth(ctx, c); err != nil {
				return err
			}

			flags := cmd.Flags()
			var patch session.UserPatch
			if flags.Changed("username") {
				patch.Username = &username
			}
			if flags.Changed("email") {
				patch.Email = &email
			}
			if flags.Changed("password") {
				patch.Password = &password
			}
			if flags.Changed("bio") {
				patch.Bio = &bio
			}
			if flags.Changed("image") {
				patch.Image = &image
			}
			if imageFile != "" {
				url, err := c.Uploads.UploadFile(ctx, imageFile)
				if err != nil {
					return fmt.Errorf("failed to upload image: %w", err)
				}
				patch.Image = &url
			}

			if _, err := c.Auth.UpdateSettings(ctx, patch); err != nil {
				return fmt.Errorf("failed to update settings: %w", err)
			}
			printUser(cmd.OutOrStdout(), c.Auth.User(), c.Auth.UserImage())
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "New username")
	cmd.Flags().StringVar(&email, "email", "", "New email")
	cmd.Flags().StringVar(&password, "password", "", "New password")
	cmd.Flags().StringVar(&bio, "bio", "", "New bio")
	cmd.Flags().StringVar(&image, "image", "", "New image URL")
	cmd.Flags().StringVar(&imageFile, "image-file", "", "Upload a file as the new image")
	cmd.MarkFlagsMutuallyExclusive("image", "image-file")
	return cmd
}

func askMissing(c *CLIContainer, value *string, prompt string) error {
	if *value != "" {
		return nil
	}
	answer, err := c.Confirmer.Ask(prompt)
	if err != nil {
		return err
	}
	*value = answer
	return nil
}

func printUser(w io.Writer, user *session.User, image string) {
	if user == nil {
		return
	}
	fmt.Fprintf(w, "Username: %s\n", user.Username)
	fmt.Fprintf(w, "Email:    %s\n", user.Email)
	if user.Bio != nil && *user.Bio != "" {
		fmt.Fprintf(w, "Bio:      %s\n", *user.Bio)
	}
	fmt.Fprintf(w, "Image:    %s\n", image)
}
