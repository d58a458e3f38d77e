package memzero

import "crypto/subtle"

// Zero overwrites b with zeros in a constant-time friendly way. Session keys
// and ephemeral scalars are wiped with it as soon as they stop being needed.
func Zero(b []byte) {
	if len(b) == 0 {
		return
	}
	zero := make([]byte, len(b))
	subtle.ConstantTimeCopy(1, b, zero)
}
