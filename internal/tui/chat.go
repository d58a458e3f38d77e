package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"parley/internal/secure"
)

// chatState is one active session: the keyed transport plus its screen
// lines. The transport is owned here exclusively and closed when the chat
// ends, wiping the session key.
type chatState struct {
	transport Transport
	remote    string
	lines     []string
	closing   bool
}

func newChatState(tr Transport) chatState {
	return chatState{
		transport: tr,
		remote:    tr.Remote(),
		lines: []string{
			systemStyle.Render(fmt.Sprintf("Connected to %s.", tr.Remote())),
			systemStyle.Render("(Press 'esc' to disconnect)"),
			dividerStyle.Render(strings.Repeat("-", 33)),
		},
	}
}

// pollChat runs one iteration of the session loop's receive side. The
// transport never blocks here: a would-block result just re-arms the tick.
func (m Model) pollChat() (tea.Model, tea.Cmd) {
	if m.mode != modeChat || m.chat.closing {
		return m, nil
	}
	msg, err := m.chat.transport.TryReceive()
	switch {
	case err == nil:
		m.chat.lines = append(m.chat.lines, peerStyle.Render(fmt.Sprintf("[%s]", m.chat.remote))+" "+msg)
		return m, recvTick()
	case errors.Is(err, secure.ErrWouldBlock):
		return m, recvTick()
	case errors.Is(err, secure.ErrPeerClosed):
		return m.failChat("Peer disconnected.")
	default:
		// Anything the channel cannot trust ends the session: fail closed.
		return m.failChat("Session error, closing the channel.")
	}
}

// failChat posts a session-ending notice and schedules the drop back to the
// command prompt after a short grace so the user can read it.
func (m Model) failChat(notice string) (tea.Model, tea.Cmd) {
	m.chat.closing = true
	m.chat.lines = append(m.chat.lines, errorStyle.Render(notice))
	return m, tea.Tick(closeGrace, func(time.Time) tea.Msg { return chatDoneMsg{} })
}

// sendChatLine commits the input buffer. A send failure is per-message: it
// is reported and the session continues, so the user may retry.
func (m Model) sendChatLine() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	if line == "" {
		return m, nil
	}
	m.input.Reset()
	if err := m.chat.transport.Send(line); err != nil {
		m.chat.lines = append(m.chat.lines, errorStyle.Render(fmt.Sprintf("send failed: %v", err)))
		return m, nil
	}
	m.chat.lines = append(m.chat.lines, selfStyle.Render("[you]")+" "+line)
	return m, nil
}

// leaveChat tears the session down and returns to the command prompt.
func (m Model) leaveChat(notice string) (tea.Model, tea.Cmd) {
	if m.chat.transport != nil {
		m.chat.transport.Close()
	}
	m.chat = chatState{}
	m.mode = modeCommand
	if notice != "" {
		m.println(systemStyle.Render(notice))
	}
	return m, nil
}
