// Package node owns the TCP listening side of a parley process.
package node

import (
	"errors"
	"fmt"
	"log/slog"
	"net"

	"parley/internal/handshake"
)

// Node accepts inbound chat connections and hands them to the UI for
// triage. The accept loop never waits on the consumer: the inbound channel
// holds one pending connection, and anything beyond that is declined so the
// extra initiator sees a rejection instead of a dead ten-second wait.
type Node struct {
	ln      *net.TCPListener
	inbound chan *net.TCPConn
	log     *slog.Logger
}

// New returns a node that is not yet listening.
func New(log *slog.Logger) *Node {
	return &Node{inbound: make(chan *net.TCPConn, 1), log: log}
}

// Start binds port and launches the accept loop, which runs for the life of
// the process.
func (n *Node) Start(port int) error {
	ln, err := net.ListenTCP("tcp4", &net.TCPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return fmt.Errorf("bind chat port: %w", err)
	}
	n.ln = ln
	go n.acceptLoop()
	return nil
}

// Inbound delivers accepted connections awaiting a consent decision.
func (n *Node) Inbound() <-chan *net.TCPConn { return n.inbound }

// Addr returns the bound listen address. Only valid after Start.
func (n *Node) Addr() net.Addr { return n.ln.Addr() }

func (n *Node) acceptLoop() {
	for {
		conn, err := n.ln.AcceptTCP()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			n.log.Warn("accept failed", "err", err)
			continue
		}
		select {
		case n.inbound <- conn:
			n.log.Info("inbound connection", "peer", conn.RemoteAddr())
		default:
			n.log.Info("declined connection while busy", "peer", conn.RemoteAddr())
			handshake.Decline(conn)
		}
	}
}

// Close stops the listener. Connections already delivered stay usable.
func (n *Node) Close() error {
	if n.ln != nil {
		return n.ln.Close()
	}
	return nil
}
