package chat

import (
	"context"
	"fmt"

	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/chatwire/chatwire/internal/client"
	"github.com/chatwire/chatwire/pkg/protocol"
)

// Run connects to the server and displays the chat TUI. It blocks until the
// user quits or the context is canceled.
func Run(ctx context.Context, opts client.Options, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var p *tea.Program

	opts.OnStateChange = func(connected bool) {
		if p != nil {
			p.Send(ConnStateMsg{Connected: connected})
		}
	}
	c := client.New(opts, func(env protocol.Envelope) {
		if p != nil {
			p.Send(EventMsg{Env: env})
		}
	}, logger)

	m := NewModel(opts.Username, c.Send)
	p = tea.NewProgram(m, tea.WithAltScreen())

	// Run the connection loop; the TUI reflects connect/disconnect via the
	// handler and reconnect logging stays out of the alternate screen.
	go func() {
		_ = c.Run(ctx)
	}()
	defer func() { _ = c.Close() }()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
