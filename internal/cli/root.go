// Package cli provides the docshelf command-line client.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/docshelf/backend/internal/client"
	"github.com/docshelf/backend/internal/logging"
)

var (
	// Global flags
	serverURL       string
	credentialsPath string
	verbose         bool

	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// Version information, set by the main package at startup.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "docshelf",
		Short: "docshelf - command-line client for a docshelf server",
		Long: `docshelf ` + Version + ` - Built: ` + BuildTime + `
Upload PDF and EPUB documents, organise them in folders and download them
again from a docshelf server.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := "warn"
			if verbose {
				level = "debug"
			}
			return logging.Init(logging.Config{Level: level, Format: "console", OutputPath: "stderr"})
		},
	}

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "docshelf server URL (overrides the saved one)")
	rootCmd.PersistentFlags().StringVar(&credentialsPath, "credentials", "", "credentials file (default: user config dir)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.Version = Version + " (" + BuildTime + ")"

	rootCmd.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newWhoamiCmd(),
		newUsersCmd(),
		newListCmd(),
		newGetCmd(),
		newUploadCmd(),
		newMkdirCmd(),
		newRenameCmd(),
		newMoveCmd(),
		newRemoveCmd(),
	)
	return rootCmd
}

// Execute runs the root command with signal handling.
func Execute() error {
	rootContext, cancelFunc = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancelFunc()
	return NewRootCmd().ExecuteContext(rootContext)
}

// GetContext returns the command context.
func GetContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// newClient builds an API client from the saved credentials and flags.
func newClient() (*client.Client, *Credentials, error) {
	creds, err := LoadCredentials(credentialsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	if serverURL != "" {
		creds.Server = serverURL
	}
	if creds.Server == "" {
		return nil, nil, fmt.Errorf("no server configured, use --server or run login first")
	}
	return client.New(client.Options{BaseURL: creds.Server, Token: creds.Token}), creds, nil
}

// authedClient is newClient for commands that need a signed-in user.
func authedClient() (*client.Client, error) {
	c, creds, err := newClient()
	if err != nil {
		return nil, err
	}
	if creds.Token == "" {
		return nil, fmt.Errorf("not signed in, run 'docshelf login' first")
	}
	return c, nil
}
