// Package tui renders the interactive terminal front end: the command
// prompt, the live peer monitor, the inbound-consent prompt and the chat
// window, all as one bubbletea program so a single reader owns stdin.
package tui

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	qrterminal "github.com/mdp/qrterminal/v3"

	"parley/internal/app"
	"parley/internal/handshake"
	"parley/internal/node"
	"parley/internal/peer"
)

// Transport is the session-facing surface of a secure channel. The chat
// screen depends on it rather than on the concrete channel so tests can
// drive the session loop with a stub.
type Transport interface {
	Send(msg string) error
	TryReceive() (string, error)
	Remote() string
	Close() error
}

type mode int

const (
	modeCommand mode = iota
	modePeers
	modeConsent
	modeChat
)

const (
	// recvPollInterval paces TryReceive polling in a chat; key events need
	// no timer of their own, the program delivers them as they happen.
	recvPollInterval = 50 * time.Millisecond

	// peersPollInterval paces registry snapshots in the monitor view.
	peersPollInterval = 500 * time.Millisecond

	// closeGrace keeps a session-ending notice on screen briefly before
	// dropping back to the prompt.
	closeGrace = 1500 * time.Millisecond
)

// Model is the whole UI. Exactly one chat session exists at a time; its
// transport is owned here and closed (wiping the key) when the chat ends.
type Model struct {
	registry *peer.Registry
	inbound  <-chan *net.TCPConn
	port     int

	mode    mode
	input   textinput.Model
	lines   []string
	peers   []peer.Peer
	pending *net.TCPConn
	chat    chatState

	width  int
	height int
}

type (
	inboundMsg    struct{ conn *net.TCPConn }
	sessionMsg    struct{ transport Transport }
	sessionErrMsg struct{ err error }
	recvTickMsg   struct{}
	peersTickMsg  struct{}
	chatDoneMsg   struct{}
)

// New builds the UI over an already-started node.
func New(registry *peer.Registry, inbound <-chan *net.TCPConn, port int) Model {
	ti := textinput.New()
	ti.Prompt = promptStyle.Render("PARLEY >> ")
	ti.CharLimit = 512
	ti.Focus()

	m := Model{
		registry: registry,
		inbound:  inbound,
		port:     port,
		input:    ti,
	}
	m.lines = banner()
	return m
}

// Run drives the terminal UI until the user exits.
func Run(w *app.Wire) error {
	m := New(w.Registry, w.Node.Inbound(), w.Port)
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitInbound())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = msg.Width - 4
		return m, nil

	case inboundMsg:
		return m.handleInbound(msg.conn)

	case sessionMsg:
		// Exactly one session exists at a time: installing this one ends
		// whatever was there, closing its transport so the key is wiped,
		// and resolves a pending consent prompt with a rejection.
		if m.chat.transport != nil {
			m.chat.transport.Close()
		}
		if m.pending != nil {
			handshake.Decline(m.pending)
			m.pending = nil
		}
		m.mode = modeChat
		m.chat = newChatState(msg.transport)
		m.input.Reset()
		return m, recvTick()

	case sessionErrMsg:
		m.mode = modeCommand
		m.println(errorStyle.Render(describeSessionErr(msg.err)))
		return m, nil

	case recvTickMsg:
		return m.pollChat()

	case peersTickMsg:
		if m.mode != modePeers {
			return m, nil
		}
		m.peers = m.registry.Snapshot()
		return m, peersTick()

	case chatDoneMsg:
		return m.leaveChat("")

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeCommand:
		switch key.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			return m.dispatch(line)
		}

	case modePeers:
		switch key.String() {
		case "q", "esc", "ctrl+c":
			m.mode = modeCommand
		}
		return m, nil

	case modeConsent:
		return m.answerConsent(key)

	case modeChat:
		switch key.Type {
		case tea.KeyEsc, tea.KeyCtrlC:
			return m.leaveChat("Session ended.")
		case tea.KeyEnter:
			return m.sendChatLine()
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(key)
	return m, cmd
}

// handleInbound triages a freshly accepted connection. A node that is mid
// chat, mid handshake or already prompting keeps one session at a time by
// declining the newcomer outright.
func (m Model) handleInbound(conn *net.TCPConn) (tea.Model, tea.Cmd) {
	if m.mode != modeCommand {
		handshake.Decline(conn)
		return m, m.waitInbound()
	}
	m.pending = conn
	m.mode = modeConsent
	return m, m.waitInbound()
}

// answerConsent resolves the blocking consent prompt. Only an explicit yes
// accepts; every other key declines.
func (m Model) answerConsent(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	conn := m.pending
	m.pending = nil
	m.mode = modeCommand
	switch key.String() {
	case "y", "Y":
		m.println(systemStyle.Render(fmt.Sprintf("Accepted %s, establishing secure channel...", conn.RemoteAddr())))
		return m, acceptCmd(conn)
	default:
		m.println(errorStyle.Render("Connection rejected."))
		handshake.Decline(conn)
		return m, nil
	}
}

func (m Model) dispatch(line string) (tea.Model, tea.Cmd) {
	if line == "" {
		return m, nil
	}
	switch fields := strings.Fields(line); fields[0] {
	case "help":
		for _, l := range helpLines {
			m.println(l)
		}

	case "peers", "find":
		m.mode = modePeers
		m.peers = m.registry.Snapshot()
		return m, peersTick()

	case "connect":
		if len(fields) != 2 {
			m.println(errorStyle.Render("usage: connect <address | parley:// link>"))
			return m, nil
		}
		target := strings.TrimPrefix(fields[1], "parley://")
		addr := node.NormalizeAddr(target, m.port)
		m.println(titleStyle.Render(fmt.Sprintf("Connecting to %s...", addr)))
		m.println(subtleStyle.Render("Waiting for peer to accept..."))
		return m, connectCmd(addr)

	case "link":
		m.printLink()

	case "clear", "cls":
		m.lines = banner()

	case "exit", "quit":
		return m, tea.Quit

	default:
		m.println(errorStyle.Render("Unknown command. Type 'help'."))
	}
	return m, nil
}

func (m *Model) println(s string) {
	m.lines = append(m.lines, s)
}

func (m *Model) printLink() {
	addr := net.JoinHostPort(node.LocalIPv4(), strconv.Itoa(m.port))
	link := "parley://" + addr
	m.println("Share this link so a peer can reach you:")
	m.println(linkStyle.Render(link))
	var qr bytes.Buffer
	qrterminal.GenerateWithConfig(link, qrterminal.Config{
		Level:     qrterminal.M,
		Writer:    &qr,
		BlackChar: qrterminal.BLACK,
		WhiteChar: qrterminal.WHITE,
		QuietZone: 1,
	})
	m.lines = append(m.lines, strings.Split(strings.TrimRight(qr.String(), "\n"), "\n")...)
}

func describeSessionErr(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, handshake.ErrRejected):
		return "Connection was rejected by peer."
	case errors.Is(err, handshake.ErrTimeout):
		return "Connection timed out or peer disconnected."
	default:
		return fmt.Sprintf("Failed to connect: %v", err)
	}
}

// Commands

func (m Model) waitInbound() tea.Cmd {
	inbound := m.inbound
	return func() tea.Msg {
		conn, ok := <-inbound
		if !ok {
			return nil
		}
		return inboundMsg{conn}
	}
}

func connectCmd(addr string) tea.Cmd {
	return func() tea.Msg {
		ch, err := handshake.Initiate(addr, 0)
		if err != nil {
			return sessionErrMsg{err}
		}
		return sessionMsg{ch}
	}
}

func acceptCmd(conn *net.TCPConn) tea.Cmd {
	return func() tea.Msg {
		ch, err := handshake.Accept(conn)
		if err != nil {
			return sessionErrMsg{err}
		}
		return sessionMsg{ch}
	}
}

func recvTick() tea.Cmd {
	return tea.Tick(recvPollInterval, func(time.Time) tea.Msg { return recvTickMsg{} })
}

func peersTick() tea.Cmd {
	return tea.Tick(peersPollInterval, func(time.Time) tea.Msg { return peersTickMsg{} })
}
