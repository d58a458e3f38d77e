// Package crypto implements the ephemeral X25519 key agreement that keys a
// chat session.
//
// The exchange is unauthenticated: public keys are not bound to
// any identity, so it blinds passive observers only; an on-path attacker
// can substitute keys. Callers should treat the derived secret accordingly.
package crypto
