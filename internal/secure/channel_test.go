package secure_test

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"golang.org/x/crypto/chacha20poly1305"

	"parley/internal/secure"
)

// tcpPair returns two connected loopback TCP sockets.
func tcpPair(t *testing.T) (*net.TCPConn, *net.TCPConn) {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	type result struct {
		conn net.Conn
		err  error
	}
	accepted := make(chan result, 1)
	go func() {
		c, err := ln.Accept()
		accepted <- result{c, err}
	}()

	dialed, err := net.Dial("tcp4", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	r := <-accepted
	if r.err != nil {
		t.Fatalf("accept: %v", r.err)
	}
	return dialed.(*net.TCPConn), r.conn.(*net.TCPConn)
}

func testKey(t *testing.T) (key [chacha20poly1305.KeySize]byte) {
	t.Helper()
	if _, err := rand.Read(key[:]); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return key
}

// channelPair keys both ends of a loopback connection with the same secret.
func channelPair(t *testing.T) (*secure.Channel, *secure.Channel) {
	t.Helper()
	key := testKey(t)
	left, right := tcpPair(t)

	a, err := secure.NewChannel(left, key)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	b, err := secure.NewChannel(right, key)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

// receive polls ch until a result other than ErrWouldBlock arrives.
func receive(t *testing.T, ch *secure.Channel) (string, error) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		msg, err := ch.TryReceive()
		if errors.Is(err, secure.ErrWouldBlock) {
			time.Sleep(2 * time.Millisecond)
			continue
		}
		return msg, err
	}
	t.Fatal("no frame within deadline")
	return "", nil
}

func TestSendReceive_RoundTrip(t *testing.T) {
	a, b := channelPair(t)

	for _, msg := range []string{"hello", "", "héllo wörld ✓", "line\nbreak"} {
		if err := a.Send(msg); err != nil {
			t.Fatalf("Send(%q): %v", msg, err)
		}
		got, err := receive(t, b)
		if err != nil {
			t.Fatalf("TryReceive after Send(%q): %v", msg, err)
		}
		if got != msg {
			t.Fatalf("got %q, want %q", got, msg)
		}
	}
}

func TestTryReceive_WouldBlockWhenIdle(t *testing.T) {
	_, b := channelPair(t)

	for i := 0; i < 3; i++ {
		if _, err := b.TryReceive(); !errors.Is(err, secure.ErrWouldBlock) {
			t.Fatalf("idle poll %d: got %v, want ErrWouldBlock", i, err)
		}
	}
}

func TestTryReceive_PartialHeaderWouldBlock(t *testing.T) {
	key := testKey(t)
	left, right := tcpPair(t)
	ch, err := secure.NewChannel(right, key)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	defer ch.Close()
	defer left.Close()

	// Two header bytes only: the header is not complete, so the poll must
	// not consume anything and must report would-block.
	if _, err := left.Write([]byte{0x00, 0x00}); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if _, err := ch.TryReceive(); !errors.Is(err, secure.ErrWouldBlock) {
		t.Fatalf("got %v, want ErrWouldBlock", err)
	}
}

func TestTryReceive_PeerClose(t *testing.T) {
	key := testKey(t)
	left, right := tcpPair(t)
	ch, err := secure.NewChannel(right, key)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	defer ch.Close()

	left.Close()
	if _, err := receive(t, ch); !errors.Is(err, secure.ErrPeerClosed) {
		t.Fatalf("got %v, want ErrPeerClosed", err)
	}
}

func TestTryReceive_LengthBelowNonceIsProtocolError(t *testing.T) {
	key := testKey(t)
	left, right := tcpPair(t)
	ch, err := secure.NewChannel(right, key)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	defer ch.Close()
	defer left.Close()

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], 5)
	if _, err := left.Write(hdr[:]); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := receive(t, ch); !errors.Is(err, secure.ErrProtocol) {
		t.Fatalf("got %v, want ErrProtocol", err)
	}
}

func TestTryReceive_OversizedLengthIsProtocolError(t *testing.T) {
	key := testKey(t)
	left, right := tcpPair(t)
	ch, err := secure.NewChannel(right, key)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	defer ch.Close()
	defer left.Close()

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], secure.MaxFrameSize+1)
	if _, err := left.Write(hdr[:]); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := receive(t, ch); !errors.Is(err, secure.ErrProtocol) {
		t.Fatalf("got %v, want ErrProtocol", err)
	}
}

func TestTryReceive_TruncatedBodyIsDisconnectNotHang(t *testing.T) {
	key := testKey(t)
	left, right := tcpPair(t)
	ch, err := secure.NewChannel(right, key)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	defer ch.Close()

	// Declare 64 body bytes, deliver 10, vanish.
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], 64)
	if _, err := left.Write(hdr[:]); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if _, err := left.Write(make([]byte, 10)); err != nil {
		t.Fatalf("write body: %v", err)
	}
	left.Close()

	done := make(chan error, 1)
	go func() {
		_, err := receive(t, ch)
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, secure.ErrPeerClosed) {
			t.Fatalf("got %v, want ErrPeerClosed", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("truncated frame hung the receive path")
	}
}

func TestTryReceive_TamperedFrameFailsClosed(t *testing.T) {
	key := testKey(t)
	left, right := tcpPair(t)
	ch, err := secure.NewChannel(right, key)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	defer ch.Close()
	defer left.Close()

	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		t.Fatalf("chacha20poly1305.New: %v", err)
	}
	var nonce [chacha20poly1305.NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		t.Fatalf("rand: %v", err)
	}
	ct := aead.Seal(nil, nonce[:], []byte("tamper me"), nil)

	frame := make([]byte, 4+len(nonce)+len(ct))
	binary.BigEndian.PutUint32(frame, uint32(len(nonce)+len(ct)))
	copy(frame[4:], nonce[:])
	copy(frame[4+len(nonce):], ct)
	frame[len(frame)-1] ^= 0x01 // flip one ciphertext bit

	if _, err := left.Write(frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if _, err := receive(t, ch); !errors.Is(err, secure.ErrProtocol) {
		t.Fatalf("got %v, want ErrProtocol", err)
	}
}

func TestSend_NoncesAreFreshAndLengthCoversBody(t *testing.T) {
	key := testKey(t)
	left, right := tcpPair(t)
	ch, err := secure.NewChannel(left, key)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	defer ch.Close()
	defer right.Close()

	const sends = 32
	for i := 0; i < sends; i++ {
		if err := ch.Send("same message every time"); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}

	// Read the raw frames off the peer socket and check every nonce is new.
	right.SetReadDeadline(time.Now().Add(2 * time.Second))
	seen := make(map[[chacha20poly1305.NonceSize]byte]bool, sends)
	for i := 0; i < sends; i++ {
		var hdr [4]byte
		if _, err := io.ReadFull(right, hdr[:]); err != nil {
			t.Fatalf("read header %d: %v", i, err)
		}
		length := binary.BigEndian.Uint32(hdr[:])
		if length < chacha20poly1305.NonceSize {
			t.Fatalf("frame %d: declared length %d", i, length)
		}
		wantLen := chacha20poly1305.NonceSize + len("same message every time") + chacha20poly1305.Overhead
		if int(length) != wantLen {
			t.Fatalf("frame %d: length prefix %d, want %d", i, length, wantLen)
		}
		body := make([]byte, length)
		if _, err := io.ReadFull(right, body); err != nil {
			t.Fatalf("read body %d: %v", i, err)
		}
		var nonce [chacha20poly1305.NonceSize]byte
		copy(nonce[:], body)
		if seen[nonce] {
			t.Fatalf("nonce reused on frame %d", i)
		}
		seen[nonce] = true
	}
}
