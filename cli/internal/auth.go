package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guarzo/studyplan/modules/session"
)

func newLoginCommand() *cobra.Command {
	var printURL bool
	var state string

	cmd := &cobra.Command{
		Use:   "login [callback-url]",
		Short: "Store the tokens from a login callback",
		Long: `Complete a login by pasting the URL the browser was redirected to after
signing in. The tokens it carries are stored and the profile is read from the
ID token.

Use --url to print the provider sign-in URL instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := getCliContext(cmd)
			out := cmd.OutOrStdout()

			if printURL {
				u, err := session.LoginURL(c.Config.Auth, state)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "Open this URL in a browser to sign in:")
				fmt.Fprintln(out, u)
				return nil
			}
			if len(args) == 0 {
				return errors.New("callback URL required (or use --url)")
			}

			user, err := c.Session.CompleteLoginURL(args[0])
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			if user == nil {
				fmt.Fprintln(out, "✓ Logged in")
				return nil
			}
			fmt.Fprintf(out, "✓ Logged in as %s <%s>\n", user.Name, user.Email)
			return nil
		},
	}

	cmd.Flags().BoolVar(&printURL, "url", false, "Print the sign-in URL")
	cmd.Flags().StringVar(&state, "state", "", "OAuth state parameter (random if empty)")
	return cmd
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials and profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := getCliContext(cmd)
			if err := c.Session.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Logged out")
			return nil
		},
	}
}

func newWhoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := getCliContext(cmd)
			out := cmd.OutOrStdout()

			user, err := c.Session.CurrentUser()
			if errors.Is(err, session.ErrNotLoggedIn) {
				if c.Creds.AccessToken() != "" {
					fmt.Fprintln(out, "Logged in (no profile stored)")
					return nil
				}
				return errors.New("not logged in; run 'studyplan login' first")
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Name:  %s\n", user.Name)
			fmt.Fprintf(out, "Email: %s\n", user.Email)
			if id, err := c.Session.GoogleID(); err == nil {
				fmt.Fprintf(out, "ID:    %s\n", id)
			}
			return nil
		},
	}
}
