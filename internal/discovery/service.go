// Package discovery announces this node on the local subnet and learns
// which other nodes are announcing.
//
// Three goroutines share the work: a broadcaster that sends the beacon
// token every few seconds, a listener that records matching beacons in the
// peer registry, and a janitor that expires peers that have gone silent.
// Discovery is best-effort throughout: I/O errors are logged and never end
// the process.
package discovery

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sys/unix"

	"parley/internal/peer"
)

// Token is the beacon payload. Datagrams that do not match it exactly are
// dropped, which leaves room for future payload formats.
const Token = "HELLO_P2P"

// Config carries the discovery timers. The broadcast interval must stay
// well under the peer timeout so a live peer survives two or three lost
// beacons before the janitor evicts it.
type Config struct {
	Port              int
	BroadcastAddr     string        // defaults to the limited broadcast address
	BroadcastInterval time.Duration // defaults to 5s
	SweepInterval     time.Duration // defaults to 2s
	PeerTimeout       time.Duration // defaults to 15s
}

func (c Config) withDefaults() Config {
	if c.BroadcastAddr == "" {
		c.BroadcastAddr = "255.255.255.255"
	}
	if c.BroadcastInterval <= 0 {
		c.BroadcastInterval = 5 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 2 * time.Second
	}
	if c.PeerTimeout <= 0 {
		c.PeerTimeout = 15 * time.Second
	}
	return c
}

// Service owns one UDP socket shared by the broadcaster and the listener,
// plus the janitor sweeping the registry.
type Service struct {
	cfg      Config
	conn     *net.UDPConn
	registry *peer.Registry
	log      *slog.Logger
}

// New builds a service recording beacons into reg.
func New(cfg Config, reg *peer.Registry, log *slog.Logger) *Service {
	return &Service{cfg: cfg.withDefaults(), registry: reg, log: log}
}

// Start binds the service port and launches the three workers. They run
// until the process exits; Close exists for tests.
func (s *Service) Start() error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: s.cfg.Port})
	if err != nil {
		return fmt.Errorf("bind discovery port: %w", err)
	}
	if err := setBroadcast(conn); err != nil {
		conn.Close()
		return fmt.Errorf("enable broadcast: %w", err)
	}
	s.conn = conn

	go s.broadcast()
	go s.listen()
	go s.sweep()
	return nil
}

// Addr returns the bound UDP address. Only valid after Start.
func (s *Service) Addr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Close releases the socket. The janitor keeps running; it touches only the
// registry.
func (s *Service) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// setBroadcast flips SO_BROADCAST on the socket; sending to a broadcast
// address is refused without it.
func setBroadcast(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	if err := raw.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	}); err != nil {
		return err
	}
	return serr
}

func (s *Service) broadcast() {
	target := &net.UDPAddr{IP: net.ParseIP(s.cfg.BroadcastAddr), Port: s.targetPort()}
	ticker := time.NewTicker(s.cfg.BroadcastInterval)
	defer ticker.Stop()

	for {
		if _, err := s.conn.WriteToUDP([]byte(Token), target); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Debug("beacon send failed", "target", target, "err", err)
		}
		<-ticker.C
	}
}

// targetPort is the beacon destination port: the well-known port, or the
// bound one when the caller asked for an ephemeral port (tests do).
func (s *Service) targetPort() int {
	if s.cfg.Port != 0 {
		return s.cfg.Port
	}
	return s.Addr().Port
}

func (s *Service) listen() {
	buf := make([]byte, 1024)
	for {
		n, src, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Debug("beacon read failed", "err", err)
			continue
		}
		if string(buf[:n]) != Token {
			continue
		}
		s.registry.Record(src.String(), time.Now())
	}
}

func (s *Service) sweep() {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for range ticker.C {
		if n := s.registry.EvictStale(time.Now(), s.cfg.PeerTimeout); n > 0 {
			s.log.Debug("evicted silent peers", "count", n)
		}
	}
}
