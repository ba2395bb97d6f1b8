// Package clientcli implements the chatwire terminal client command line.
package clientcli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

// NewRootCmd creates the root cobra command for the chatwire client.
// When invoked without a subcommand, it delegates to "chat".
func NewRootCmd(v string) *cobra.Command {
	version = v

	root := &cobra.Command{
		Use:   "chatwire",
		Short: "Chatwire — terminal chat client",
		Long:  "Chatwire connects to a chatwire server for direct and group messaging with live presence and typing indicators.",
		// Bare invocation (no subcommand) behaves as "chat".
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newChatCmd())
	root.AddCommand(newRegisterCmd())
	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringP("server", "s", "http://localhost:8080", "server base URL")
	root.PersistentFlags().StringP("username", "u", "", "username to log in as")

	return root
}
