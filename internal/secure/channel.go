package secure

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"unicode/utf8"

	"golang.org/x/crypto/chacha20poly1305"

	"parley/internal/util/memzero"
)

const (
	// NonceSize is the per-frame nonce length carried on the wire.
	NonceSize = chacha20poly1305.NonceSize

	headerSize = 4

	// MaxFrameSize bounds the length a peer may declare. The wire format
	// itself has no limit; without one a hostile peer could commit us to an
	// enormous allocation with four bytes.
	MaxFrameSize = 1 << 20
)

var (
	// ErrWouldBlock reports that no complete frame header has arrived yet.
	// It is the expected steady state when polling, not a failure.
	ErrWouldBlock = errors.New("secure: no frame ready")

	// ErrPeerClosed reports that the peer shut the stream down.
	ErrPeerClosed = errors.New("secure: peer closed the connection")

	// ErrProtocol reports a malformed, oversized or unauthentic frame. The
	// channel is no longer trustworthy; callers should end the session.
	ErrProtocol = errors.New("secure: protocol violation")
)

// Channel is a message-oriented encrypted view of one TCP connection. It is
// owned by a single session loop and is not safe for concurrent use.
type Channel struct {
	sock   *rawSock
	aead   cipher.AEAD
	key    [chacha20poly1305.KeySize]byte
	remote string
}

// NewChannel takes ownership of conn and keys it with the shared secret.
// The key is the session's only one; it is never rotated and is wiped by
// Close.
func NewChannel(conn *net.TCPConn, key [chacha20poly1305.KeySize]byte) (*Channel, error) {
	remote := conn.RemoteAddr().String()
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	sock, err := newRawSock(conn)
	if err != nil {
		return nil, err
	}
	return &Channel{sock: sock, aead: aead, key: key, remote: remote}, nil
}

// Remote returns the peer's address for display.
func (c *Channel) Remote() string { return c.remote }

// Send seals msg into one frame and writes it. A failure affects this
// message only: the caller may keep the session and retry.
func (c *Channel) Send(msg string) error {
	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return fmt.Errorf("draw nonce: %w", err)
	}

	ct := c.aead.Seal(nil, nonce[:], []byte(msg), nil)
	frame := make([]byte, headerSize+NonceSize+len(ct))
	binary.BigEndian.PutUint32(frame, uint32(NonceSize+len(ct)))
	copy(frame[headerSize:], nonce[:])
	copy(frame[headerSize+NonceSize:], ct)

	restore, err := c.sock.enterBlocking()
	if err != nil {
		return err
	}
	defer restore()

	if err := c.sock.writeFull(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// TryReceive polls for one frame without stalling the caller. It returns
// the decrypted message, or ErrWouldBlock while a frame header is still
// arriving, ErrPeerClosed when the stream has ended, or an error wrapping
// ErrProtocol for anything the channel cannot trust.
func (c *Channel) TryReceive() (string, error) {
	var hdr [headerSize]byte
	n, err := c.sock.peek(hdr[:])
	switch {
	case errors.Is(err, ErrWouldBlock):
		return "", ErrWouldBlock
	case err != nil:
		return "", fmt.Errorf("%w: peek header: %v", ErrProtocol, err)
	case n == 0:
		return "", ErrPeerClosed
	case n < headerSize:
		// Header still trickling in. Peeking consumed nothing, so the next
		// poll starts over from the first byte.
		return "", ErrWouldBlock
	}

	// All four bytes are queued, so this cannot short-read.
	if err := c.sock.readFull(hdr[:]); err != nil {
		return "", fmt.Errorf("%w: consume header: %v", ErrProtocol, err)
	}
	length := binary.BigEndian.Uint32(hdr[:])
	if length < NonceSize {
		return "", fmt.Errorf("%w: frame length %d shorter than nonce", ErrProtocol, length)
	}
	if length > MaxFrameSize {
		return "", fmt.Errorf("%w: frame length %d exceeds limit", ErrProtocol, length)
	}

	// The header committed the peer to a known-size body; block until it is
	// complete rather than keeping resumable partial-read state.
	body := make([]byte, length)
	err = func() error {
		restore, err := c.sock.enterBlocking()
		if err != nil {
			return err
		}
		defer restore()
		return c.sock.readFull(body)
	}()
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return "", ErrPeerClosed
		}
		return "", fmt.Errorf("%w: read body: %v", ErrProtocol, err)
	}

	plaintext, err := c.aead.Open(nil, body[:NonceSize], body[NonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: decryption failed", ErrProtocol)
	}
	if !utf8.Valid(plaintext) {
		return "", fmt.Errorf("%w: message is not valid UTF-8", ErrProtocol)
	}
	return string(plaintext), nil
}

// Close wipes the session key and releases the descriptor.
func (c *Channel) Close() error {
	memzero.Zero(c.key[:])
	return c.sock.Close()
}
