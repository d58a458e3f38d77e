// Package secure turns a keyed TCP connection into a message channel.
//
// Each frame is a 4-byte big-endian length covering a 12-byte random nonce
// plus ChaCha20-Poly1305 ciphertext, followed by those bytes. Receiving is
// poll-based: TryReceive peeks for a complete header without consuming it,
// so the caller's loop is never stalled by a half-arrived frame. Once a
// header commits the peer to a known-size body, the descriptor briefly
// switches to blocking mode to read the body to completion, then restores
// non-blocking mode on every exit path. A slow peer can therefore stall one
// body read; no resumable partial-read state is kept between polls.
package secure
