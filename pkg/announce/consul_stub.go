//go:build !consul

package announce

import "log"

// NewConsul returns a no-op announcer when the consul build tag is not enabled.
func NewConsul(addr, key, prefix string) (Announcer, error) {
	log.Printf("consul announce requested (addr=%s) but consul build tag not enabled; skipping", addr)
	return Nop{}, nil
}
