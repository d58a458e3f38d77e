// Package handshake negotiates consent and a session key over a fresh TCP
// connection.
//
// The wire sequence is one signal byte ('Y' or 'N') from the receiver,
// then, on accept, both sides write their 32-byte ephemeral public key and
// read the peer's. Write-then-read is the same on both sides; the socket
// buffers the small write, so neither side deadlocks waiting for the other.
// There is no identity layer on top of the exchange.
package handshake

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"parley/internal/crypto"
	"parley/internal/secure"
	"parley/internal/util/memzero"
)

const (
	// SignalAccept and SignalReject are the one-byte consent answers. An
	// initiator treats any byte other than SignalAccept as a rejection.
	SignalAccept = byte('Y')
	SignalReject = byte('N')

	// SignalTimeout bounds how long an initiator waits for the consent
	// byte. One attempt per call; there is no retry.
	SignalTimeout = 10 * time.Second
)

var (
	// ErrRejected reports that the peer declined the connection.
	ErrRejected = errors.New("handshake: peer rejected the connection")

	// ErrTimeout reports that the peer did not answer within the wait.
	ErrTimeout = errors.New("handshake: peer did not answer in time")
)

// Initiate dials addr and runs the initiator side: wait for the consent
// byte under a deadline, then exchange keys. A timeout of zero means
// SignalTimeout. On success the returned channel owns the connection.
func Initiate(addr string, timeout time.Duration) (*secure.Channel, error) {
	if timeout <= 0 {
		timeout = SignalTimeout
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	tcp := conn.(*net.TCPConn)

	if err := tcp.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		tcp.Close()
		return nil, fmt.Errorf("arm handshake deadline: %w", err)
	}
	var signal [1]byte
	if _, err := io.ReadFull(tcp, signal[:]); err != nil {
		tcp.Close()
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("await consent: %w", err)
	}
	if signal[0] != SignalAccept {
		tcp.Close()
		return nil, ErrRejected
	}

	// The chat itself has no read deadline.
	if err := tcp.SetReadDeadline(time.Time{}); err != nil {
		tcp.Close()
		return nil, fmt.Errorf("clear handshake deadline: %w", err)
	}
	return exchangeKeys(tcp)
}

// Accept runs the receiver side once the local user has consented: write
// the accept byte, then exchange keys. On success the returned channel owns
// the connection.
func Accept(conn *net.TCPConn) (*secure.Channel, error) {
	if _, err := conn.Write([]byte{SignalAccept}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send accept signal: %w", err)
	}
	return exchangeKeys(conn)
}

// Decline answers an unwanted connection. The write is best-effort; if the
// peer is already gone the outcome is the same.
func Decline(conn net.Conn) {
	_, _ = conn.Write([]byte{SignalReject})
	_ = conn.Close()
}

// exchangeKeys runs the symmetric ephemeral exchange and keys a channel
// with the raw DH output. Any I/O error is terminal for the attempt.
func exchangeKeys(conn *net.TCPConn) (*secure.Channel, error) {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	defer memzero.Zero(priv[:])

	if _, err := conn.Write(pub[:]); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send public key: %w", err)
	}
	var peerPub crypto.PublicKey
	if _, err := io.ReadFull(conn, peerPub[:]); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read peer public key: %w", err)
	}
	// The exchange carries no identity, so the fingerprint is the only
	// handle users have for comparing keys out of band.
	slog.Info("session established",
		"peer", conn.RemoteAddr(),
		"fingerprint", crypto.Fingerprint(peerPub))

	key, err := crypto.SharedSecret(priv, peerPub)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("derive shared secret: %w", err)
	}
	ch, err := secure.NewChannel(conn, key)
	memzero.Zero(key[:])
	if err != nil {
		return nil, err
	}
	return ch, nil
}
