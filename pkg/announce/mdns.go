package announce

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"sync"

	"github.com/grandcat/zeroconf"

	"fsrewire/pkg/model"
)

const (
	MDNSService = "_simconnect._tcp"
	MDNSDomain  = "local."
)

type registration interface {
	Shutdown()
}

type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (registration, error)

func zeroconfRegister(instance, service, domain string, port int, text []string, ifaces []net.Interface) (registration, error) {
	return zeroconf.Register(instance, service, domain, port, text, ifaces)
}

// MDNS registers the endpoint as a DNS-SD service on the local link.
type MDNS struct {
	Instance string
	Prefix   string

	mu       sync.Mutex
	server   registration
	register registerFunc
}

// NewMDNS returns an announcer for instance; empty means the host name.
func NewMDNS(instance, prefix string) *MDNS {
	if instance == "" {
		instance, _ = os.Hostname()
	}
	if instance == "" {
		instance = "fsrewire"
	}
	return &MDNS{Instance: instance, Prefix: prefix, register: zeroconfRegister}
}

// TXT returns the text records published for ep.
func (m *MDNS) TXT(ep model.Endpoint) []string {
	return []string{
		"prefix=" + m.Prefix,
		"addr=" + ep.Address,
		"port=" + ep.Port,
	}
}

// Announce replaces any previous registration with one for ep.
func (m *MDNS) Announce(_ context.Context, ep model.Endpoint) error {
	port, err := strconv.Atoi(ep.Port)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("mdns: invalid port %q", ep.Port)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.server != nil {
		m.server.Shutdown()
		m.server = nil
	}
	srv, err := m.register(m.Instance, MDNSService, MDNSDomain, port, m.TXT(ep), nil)
	if err != nil {
		return fmt.Errorf("mdns register %s: %w", m.Instance, err)
	}
	m.server = srv
	log.Printf("mdns registered instance=%s service=%s port=%d", m.Instance, MDNSService, port)
	return nil
}

func (m *MDNS) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.server != nil {
		m.server.Shutdown()
		m.server = nil
	}
	return nil
}
