package tui

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"parley/internal/node"
)

const asciiBanner = `
   ___  ___   ___  __   _____  __
  / _ \/ _ | / _ \/ /  / __/ \/ /
 / ___/ __ |/ , _/ /__/ _/  \  /
/_/   /_/ |_/_/|_/____/___/ /_/
`

var helpLines = []string{
	"  connect <addr>  - request a chat (default port applied if omitted)",
	"  peers           - live monitor of active peers",
	"  link            - show your share link and QR code",
	"  clear           - clear the screen",
	"  exit            - close the application",
}

func banner() []string {
	lines := strings.Split(strings.Trim(asciiBanner, "\n"), "\n")
	out := make([]string, 0, len(lines)+2)
	for _, l := range lines {
		out = append(out, bannerStyle.Render(l))
	}
	out = append(out,
		"",
		"Welcome to "+titleStyle.Render("PARLEY")+". Type '"+promptStyle.Render("help")+"' to start.",
	)
	return out
}

func (m Model) View() string {
	switch m.mode {
	case modePeers:
		return m.viewPeers()
	case modeConsent:
		return m.viewConsent()
	case modeChat:
		return m.viewChat()
	default:
		return m.viewCommand()
	}
}

func (m Model) viewCommand() string {
	return strings.Join(m.tail(m.lines), "\n") + "\n\n" + m.input.View() + "\n"
}

func (m Model) viewConsent() string {
	prompt := fmt.Sprintf("%s %s %s (y/n)? ",
		titleStyle.Render("Incoming connection from"),
		m.pending.RemoteAddr(),
		titleStyle.Render("Accept"))
	return strings.Join(m.tail(m.lines), "\n") + "\n\n" + prompt + "\n"
}

func (m Model) viewPeers() string {
	// Broadcast loops back, so our own beacon shows up in the registry too.
	self := net.JoinHostPort(node.LocalIPv4(), strconv.Itoa(m.port))

	var b strings.Builder
	b.WriteString(subtleStyle.Render("(press 'q' or 'esc' to return)") + "\n")
	b.WriteString(titleStyle.Render("Scanning for peers...") + "\n")
	b.WriteString(dividerStyle.Render(strings.Repeat("-", 33)) + "\n")
	for _, p := range m.peers {
		age := time.Since(p.LastSeen).Round(time.Second)
		tag := fmt.Sprintf("(seen %s ago)", age)
		if p.Addr == self {
			tag = "(you)"
		}
		b.WriteString(fmt.Sprintf("%s %s %s\n",
			promptStyle.Render("+"), p.Addr, subtleStyle.Render(tag)))
	}
	return b.String()
}

func (m Model) viewChat() string {
	return strings.Join(m.tail(m.chat.lines), "\n") + "\n\n" + m.input.View() + "\n"
}

// tail clamps scrollback to the visible window.
func (m Model) tail(lines []string) []string {
	if m.height <= 4 || len(lines) <= m.height-4 {
		return lines
	}
	return lines[len(lines)-(m.height-4):]
}
