// Package chat implements the interactive chat TUI for the chatwire client.
package chat

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/chatwire/chatwire/pkg/protocol"
)

// SendFunc sends an event to the server.
type SendFunc func(eventType string, payload any) error

// target identifies the active conversation.
type target struct {
	group bool
	name  string
}

func (t target) key() string {
	if t.group {
		return "group:" + t.name
	}
	return "user:" + t.name
}

func (t target) label() string {
	if t.name == "" {
		return "no conversation"
	}
	if t.group {
		return "#" + t.name
	}
	return "@" + t.name
}

// chatLine is one rendered line of a conversation.
type chatLine struct {
	sender string
	text   string
	when   time.Time
	system bool
}

// Model is the root chat TUI model.
type Model struct {
	username string
	send     SendFunc

	viewport viewport.Model
	input    textinput.Model

	active        target
	conversations map[string][]chatLine
	online        []string
	typing        map[string]time.Time // username -> last typing signal
	connected     bool
	typingSent    bool
	statusLine    string

	width    int
	height   int
	ready    bool
	quitting bool
}

// EventMsg wraps a server event delivered to the TUI.
type EventMsg struct {
	Env protocol.Envelope
}

// ConnStateMsg reports WebSocket connection state changes.
type ConnStateMsg struct {
	Connected bool
}

type tickMsg time.Time

// NewModel creates the chat model for the given logged-in username.
func NewModel(username string, send SendFunc) Model {
	input := textinput.New()
	input.Placeholder = "message or /msg, /join, /leave, /quit"
	input.CharLimit = 4096
	input.Focus()

	return Model{
		username:      username,
		send:          send,
		input:         input,
		conversations: make(map[string][]chatLine),
		typing:        make(map[string]time.Time),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tick())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport = viewport.New(m.conversationWidth(), m.conversationHeight())
		m.ready = true
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		}

	case EventMsg:
		m.handleEvent(msg.Env)
		m.refreshViewport()
		return m, nil

	case ConnStateMsg:
		m.connected = msg.Connected
		return m, nil

	case tickMsg:
		m.expireTyping()
		return m, tick()
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.signalTyping(before, m.input.Value())

	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(cmd, vpCmd)
}

// submit handles Enter: slash commands or sending to the active conversation.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	m.input.Reset()
	m.stopTyping()

	if strings.HasPrefix(text, "/") {
		return m.runCommand(text)
	}

	if m.active.name == "" {
		m.statusLine = "no conversation selected; use /msg <user> or /join <group>"
		return m, nil
	}

	var err error
	if m.active.group {
		err = m.send(protocol.TypeSendGroupMessage, protocol.SendGroupMessage{
			Group:   m.active.name,
			Message: text,
		})
	} else {
		err = m.send(protocol.TypeSendPrivateMessage, protocol.SendPrivateMessage{
			Receiver: m.active.name,
			Message:  text,
		})
	}
	if err != nil {
		m.statusLine = "send failed: " + err.Error()
	}
	return m, nil
}

func (m Model) runCommand(text string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(text)
	switch fields[0] {
	case "/quit", "/q":
		m.quitting = true
		return m, tea.Quit

	case "/msg", "/m":
		if len(fields) < 2 {
			m.statusLine = "usage: /msg <user>"
			return m, nil
		}
		m.active = target{name: fields[1]}
		m.statusLine = ""
		if err := m.send(protocol.TypeJoinPrivateChat, protocol.JoinPrivateChat{OtherUser: fields[1]}); err != nil {
			m.statusLine = "join failed: " + err.Error()
		}
		m.refreshViewport()
		return m, nil

	case "/join", "/j":
		if len(fields) < 2 {
			m.statusLine = "usage: /join <group>"
			return m, nil
		}
		m.active = target{group: true, name: fields[1]}
		m.statusLine = ""
		if err := m.send(protocol.TypeJoinGroup, protocol.JoinGroup{Group: fields[1]}); err != nil {
			m.statusLine = "join failed: " + err.Error()
		}
		m.refreshViewport()
		return m, nil

	case "/leave":
		if !m.active.group || m.active.name == "" {
			m.statusLine = "not in a group conversation"
			return m, nil
		}
		if err := m.send(protocol.TypeLeaveGroup, protocol.LeaveGroup{Group: m.active.name}); err != nil {
			m.statusLine = "leave failed: " + err.Error()
			return m, nil
		}
		m.statusLine = "left " + m.active.label()
		m.active = target{}
		m.refreshViewport()
		return m, nil

	default:
		m.statusLine = "unknown command " + fields[0]
		return m, nil
	}
}

// signalTyping sends typing/stop_typing when the input transitions between
// empty and non-empty.
func (m *Model) signalTyping(before, after string) {
	if m.active.name == "" || before == after {
		return
	}
	if after != "" && !m.typingSent {
		m.typingSent = true
		if m.active.group {
			_ = m.send(protocol.TypeTypingGroup, protocol.GroupTypingSignal{Group: m.active.name})
		} else {
			_ = m.send(protocol.TypeTyping, protocol.TypingSignal{Receiver: m.active.name})
		}
	}
	if after == "" {
		m.stopTyping()
	}
}

func (m *Model) stopTyping() {
	if !m.typingSent || m.active.name == "" {
		return
	}
	m.typingSent = false
	if m.active.group {
		_ = m.send(protocol.TypeStopTypingGroup, protocol.GroupTypingSignal{Group: m.active.name})
	} else {
		_ = m.send(protocol.TypeStopTyping, protocol.TypingSignal{Receiver: m.active.name})
	}
}

// expireTyping drops typing indicators older than five seconds. A peer that
// disconnects mid-typing never sends the stop signal.
func (m *Model) expireTyping() {
	cutoff := time.Now().Add(-5 * time.Second)
	for user, last := range m.typing {
		if last.Before(cutoff) {
			delete(m.typing, user)
		}
	}
}

// handleEvent applies a server event to the model state.
func (m *Model) handleEvent(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeUsersOnline:
		var p protocol.UsersOnline
		if decodePayload(env.Payload, &p) {
			m.online = p.Users
		}

	case protocol.TypeReceivePrivateMessage:
		var p protocol.ChatMessage
		if !decodePayload(env.Payload, &p) {
			return
		}
		peer := p.Sender
		if peer == m.username {
			peer = p.Receiver
		}
		key := target{name: peer}.key()
		m.conversations[key] = append(m.conversations[key], chatLine{
			sender: p.Sender, text: p.Message, when: p.Timestamp,
		})
		delete(m.typing, p.Sender)

	case protocol.TypeReceiveGroupMessage:
		var p protocol.ChatMessage
		if !decodePayload(env.Payload, &p) {
			return
		}
		key := target{group: true, name: p.Group}.key()
		m.conversations[key] = append(m.conversations[key], chatLine{
			sender: p.Sender, text: p.Message, when: p.Timestamp,
		})
		delete(m.typing, p.Sender)

	case protocol.TypeGroupChatHistory:
		var p protocol.GroupChatHistory
		if !decodePayload(env.Payload, &p) {
			return
		}
		key := target{group: true, name: p.Group}.key()
		lines := make([]chatLine, 0, len(p.Messages))
		for _, msg := range p.Messages {
			lines = append(lines, chatLine{sender: msg.Sender, text: msg.Message, when: msg.Timestamp})
		}
		m.conversations[key] = lines

	case protocol.TypeUserTyping:
		var p protocol.UserTyping
		if decodePayload(env.Payload, &p) {
			m.typing[p.Sender] = time.Now()
		}

	case protocol.TypeUserStoppedTyping:
		var p protocol.UserTyping
		if decodePayload(env.Payload, &p) {
			delete(m.typing, p.Sender)
		}

	case protocol.TypeUserTypingGroup:
		var p protocol.UserTypingGroup
		if decodePayload(env.Payload, &p) && m.active.group && p.Group == m.active.name {
			m.typing[p.Sender] = time.Now()
		}

	case protocol.TypeUserStoppedTypingGroup:
		var p protocol.UserTypingGroup
		if decodePayload(env.Payload, &p) {
			delete(m.typing, p.Sender)
		}

	case protocol.TypeError:
		var p protocol.ErrorResponse
		if decodePayload(env.Payload, &p) {
			m.statusLine = "server error: " + p.Message
		}
	}
}

// Quitting returns true if the user quit.
func (m Model) Quitting() bool { return m.quitting }

func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	m.viewport.Width = m.conversationWidth()
	m.viewport.Height = m.conversationHeight()
	m.viewport.SetContent(m.renderConversation())
	m.viewport.GotoBottom()
}

func decodePayload(payload any, target any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, target) == nil
}

func (m Model) conversationWidth() int {
	w := m.width - sidebarWidth - 4
	if w < 20 {
		w = 20
	}
	return w
}

func (m Model) conversationHeight() int {
	// Reserve space for header, typing line, input and help bar.
	h := m.height - 7
	if h < 5 {
		h = 5
	}
	return h
}
