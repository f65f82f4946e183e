package beacon

import (
	"fmt"
	"syscall"
)

// controlBroadcast enables SO_BROADCAST on the socket before it is bound.
func controlBroadcast(_, _ string, c syscall.RawConn) error {
	var serr error
	if err := c.Control(func(fd uintptr) {
		serr = enableBroadcast(fd)
	}); err != nil {
		return err
	}
	if serr != nil {
		return fmt.Errorf("enable broadcast: %w", serr)
	}
	return nil
}
