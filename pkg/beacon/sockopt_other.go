//go:build !unix && !windows

package beacon

// enableBroadcast is a no-op where the runtime does not expose socket options.
func enableBroadcast(uintptr) error { return nil }
