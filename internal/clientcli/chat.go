package clientcli

import (
	"context"
	"fmt"
	"io"
	"os"

	"log/slog"

	"github.com/spf13/cobra"

	"github.com/chatwire/chatwire/internal/client"
	"github.com/chatwire/chatwire/internal/tui/chat"
	"github.com/chatwire/chatwire/pkg/cli"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Log in and open the chat TUI (default when no subcommand is given)",
		RunE:  runChat,
	}
	cmd.Flags().Bool("insecure", false, "skip TLS certificate verification")
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	serverURL, _ := cmd.Root().PersistentFlags().GetString("server")
	username, _ := cmd.Root().PersistentFlags().GetString("username")
	insecure, _ := cmd.Flags().GetBool("insecure")

	p := cli.DefaultPrompter()
	if username == "" {
		username = p.Ask("Username or email", "")
	}
	if username == "" {
		return fmt.Errorf("username is required")
	}
	password := p.AskPassword("Password")

	// The server returns the canonical username, which may differ from the
	// identifier when logging in by email.
	ctx := context.Background()
	token, username, err := client.Login(ctx, serverURL, username, password)
	if err != nil {
		return err
	}

	// The TUI owns the terminal; route connection logs away from it.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if logPath := os.Getenv("CHATWIRE_LOG"); logPath != "" {
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600); err == nil {
			logger = slog.New(slog.NewTextHandler(f, nil))
		}
	}

	return chat.Run(ctx, client.Options{
		ServerURL:     serverURL,
		Username:      username,
		Token:         token,
		TLSSkipVerify: insecure,
	}, logger)
}
