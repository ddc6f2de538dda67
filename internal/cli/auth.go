package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/docshelf/backend/internal/logging"
)

// readPassword prompts on the terminal without echo, or reads one line when
// stdin is not a terminal.
func readPassword(prompt string, in io.Reader, out io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(out, prompt)
		pw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return string(pw), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLoginCmd() *cobra.Command {
	var email string
	var password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and save the session token",
		Long: `Sign in to a docshelf server. The server URL and the issued token are
saved to the credentials file and used by the other commands.

Example:
  docshelf login --server http://localhost:8080 --email me@example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, creds, err := newClient()
			if err != nil {
				return err
			}

			if password == "" {
				password, err = readPassword("Password: ", cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
			}

			token, err := c.Login(GetContext(cmd), email, password)
			if err != nil {
				return fmt.Errorf("failed to sign in: %w", err)
			}

			creds.Token = token
			if err := creds.Save(); err != nil {
				return fmt.Errorf("failed to save credentials: %w", err)
			}
			logging.Debug("credentials saved", zap.String("path", creds.Path()))

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Signed in as %s\n", email)
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email (required)")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted when omitted)")
	cmd.MarkFlagRequired("email")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session and forget the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, creds, err := newClient()
			if err != nil {
				return err
			}
			if creds.Token != "" {
				if err := c.Logout(GetContext(cmd)); err != nil {
					// The token is dropped locally either way.
					logging.Warn("server logout failed", zap.Error(err))
				}
			}
			creds.Token = ""
			if err := creds.Save(); err != nil {
				return fmt.Errorf("failed to save credentials: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Signed out")
			return nil
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := authedClient()
			if err != nil {
				return err
			}
			u, err := c.Profile(GetContext(cmd))
			if err != nil {
				return fmt.Errorf("failed to get profile: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:    %s\n", u.ID)
			fmt.Fprintf(out, "Email: %s\n", u.Email)
			if u.Name != "" {
				fmt.Fprintf(out, "Name:  %s\n", u.Name)
			}
			return nil
		},
	}
}

func newUsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List all users (admin only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := authedClient()
			if err != nil {
				return err
			}
			users, err := c.Users(GetContext(cmd))
			if err != nil {
				return fmt.Errorf("failed to list users: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tEMAIL\tNAME")
			for _, u := range users {
				fmt.Fprintf(w, "%s\t%s\t%s\n", u.ID, u.Email, u.Name)
			}
			return w.Flush()
		},
	}
}
