package crypto

import "runtime"

// Zero wipes b in place. The KeepAlive fence stops the compiler from
// treating the wipe of a dying buffer as dead stores.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(&b)
}
