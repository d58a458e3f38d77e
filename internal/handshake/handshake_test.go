package handshake_test

import (
	"errors"
	"net"
	"testing"
	"time"

	"parley/internal/handshake"
	"parley/internal/secure"
)

// listen binds a loopback TCP listener the tests drive by hand.
func listen(t *testing.T) *net.TCPListener {
	t.Helper()
	ln, err := net.ListenTCP("tcp4", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	return ln
}

func pollReceive(t *testing.T, ch *secure.Channel) (string, error) {
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

func TestInitiate_AcceptedAndKeyed(t *testing.T) {
	ln := listen(t)

	type accepted struct {
		ch  *secure.Channel
		err error
	}
	receiver := make(chan accepted, 1)
	go func() {
		conn, err := ln.AcceptTCP()
		if err != nil {
			receiver <- accepted{nil, err}
			return
		}
		ch, err := handshake.Accept(conn)
		receiver <- accepted{ch, err}
	}()

	initiatorCh, err := handshake.Initiate(ln.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	defer initiatorCh.Close()

	r := <-receiver
	if r.err != nil {
		t.Fatalf("Accept: %v", r.err)
	}
	defer r.ch.Close()

	// Both sides derived the same key iff frames round-trip both ways.
	if err := initiatorCh.Send("hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got, err := pollReceive(t, r.ch); err != nil || got != "hello" {
		t.Fatalf("receiver got (%q, %v), want (\"hello\", nil)", got, err)
	}
	if err := r.ch.Send("hi back"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got, err := pollReceive(t, initiatorCh); err != nil || got != "hi back" {
		t.Fatalf("initiator got (%q, %v), want (\"hi back\", nil)", got, err)
	}
}

func TestInitiate_Rejected(t *testing.T) {
	ln := listen(t)
	go func() {
		conn, err := ln.AcceptTCP()
		if err != nil {
			return
		}
		handshake.Decline(conn)
	}()

	_, err := handshake.Initiate(ln.Addr().String(), 2*time.Second)
	if !errors.Is(err, handshake.ErrRejected) {
		t.Fatalf("got %v, want ErrRejected", err)
	}
}

func TestInitiate_UnknownSignalByteIsRejection(t *testing.T) {
	ln := listen(t)
	go func() {
		conn, err := ln.AcceptTCP()
		if err != nil {
			return
		}
		conn.Write([]byte{'?'})
		conn.Close()
	}()

	_, err := handshake.Initiate(ln.Addr().String(), 2*time.Second)
	if !errors.Is(err, handshake.ErrRejected) {
		t.Fatalf("got %v, want ErrRejected", err)
	}
}

func TestInitiate_TimeoutWhenPeerStaysSilent(t *testing.T) {
	ln := listen(t)
	silent := make(chan *net.TCPConn, 1)
	go func() {
		conn, err := ln.AcceptTCP()
		if err != nil {
			return
		}
		silent <- conn // hold it open, answer nothing
	}()
	t.Cleanup(func() {
		select {
		case conn := <-silent:
			conn.Close()
		default:
		}
	})

	start := time.Now()
	_, err := handshake.Initiate(ln.Addr().String(), 200*time.Millisecond)
	if !errors.Is(err, handshake.ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Fatalf("returned after %v, before the deadline", elapsed)
	}
}

func TestInitiate_ConnectFailure(t *testing.T) {
	// Bind a port, then free it so nothing is listening there.
	ln := listen(t)
	addr := ln.Addr().String()
	ln.Close()

	_, err := handshake.Initiate(addr, time.Second)
	if err == nil {
		t.Fatal("expected a connect error")
	}
	if errors.Is(err, handshake.ErrRejected) || errors.Is(err, handshake.ErrTimeout) {
		t.Fatalf("connect failure misreported as %v", err)
	}
}

func TestDecline_SurvivesGonePeer(t *testing.T) {
	ln := listen(t)
	go func() {
		conn, err := net.Dial("tcp4", ln.Addr().String())
		if err != nil {
			return
		}
		conn.Close() // initiator vanishes immediately
	}()

	conn, err := ln.AcceptTCP()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	handshake.Decline(conn) // must not panic or block
}
