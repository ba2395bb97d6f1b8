package clientcli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chatwire/chatwire/internal/client"
	"github.com/chatwire/chatwire/pkg/cli"
)

func newRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Create an account on the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			serverURL, _ := cmd.Root().PersistentFlags().GetString("server")
			username, _ := cmd.Root().PersistentFlags().GetString("username")

			p := cli.DefaultPrompter()
			email := p.Ask("Email", "")
			if username == "" {
				username = p.Ask("Username", "")
			}
			password := p.AskPassword("Password")

			if err := client.Register(context.Background(), serverURL, email, username, password); err != nil {
				return err
			}
			fmt.Printf("Account %q created. Log in with: chatwire -u %s\n", username, username)
			return nil
		},
	}
}
