// Package beacon announces the SimConnect endpoint on the local network with a
// periodic UDP broadcast that companion clients listen for.
package beacon

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"fsrewire/pkg/model"
)

const (
	DefaultPrefix   = "FSR_SMC"
	DefaultTarget   = "255.255.255.255:1234"
	DefaultBind     = "0.0.0.0:0"
	DefaultInterval = 5 * time.Second

	statusBuffer = 16
)

// Config controls what is broadcast and where.
type Config struct {
	Prefix   string        // payload tag before the port
	Target   string        // destination host:port
	Bind     string        // local address of the socket
	Interval time.Duration // pause between datagrams
}

// DefaultConfig broadcasts "FSR_SMC:<port>" to 255.255.255.255:1234 every 5s.
func DefaultConfig() Config {
	return Config{
		Prefix:   DefaultPrefix,
		Target:   DefaultTarget,
		Bind:     DefaultBind,
		Interval: DefaultInterval,
	}
}

// Beacon owns one broadcast socket for the lifetime of a run.
type Beacon struct {
	cfg     Config
	localIP func() (net.IP, error)
	listen  func(ctx context.Context, addr string) (net.PacketConn, error)
}

// New returns a Beacon; zero fields of cfg take the defaults.
func New(cfg Config) *Beacon {
	def := DefaultConfig()
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	if cfg.Target == "" {
		cfg.Target = def.Target
	}
	if cfg.Bind == "" {
		cfg.Bind = def.Bind
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	return &Beacon{cfg: cfg, localIP: LocalIP, listen: listenBroadcast}
}

// Config returns the effective configuration.
func (b *Beacon) Config() Config {
	return b.cfg
}

// Payload is the datagram announcing port: "<prefix>:<port>".
func Payload(prefix, port string) []byte {
	return []byte(prefix + ":" + port)
}

// Start runs the beacon in a new goroutine and returns its status channel. Events
// are queued without limit, so a slow consumer still receives every one of them
// and never delays the broadcast. See Run for the events it carries.
func (b *Beacon) Start(ctx context.Context, port string) <-chan model.BeaconStatus {
	in := make(chan model.BeaconStatus, statusBuffer)
	out := make(chan model.BeaconStatus)
	go b.Run(ctx, port, in)
	go relay(ctx, in, out)
	return out
}

// relay copies in to out in order. out is closed once in is closed and every
// queued event was taken, or when ctx is done.
func relay(ctx context.Context, in <-chan model.BeaconStatus, out chan<- model.BeaconStatus) {
	defer close(out)
	var queue []model.BeaconStatus
	for in != nil || len(queue) > 0 {
		var send chan<- model.BeaconStatus
		var head model.BeaconStatus
		if len(queue) > 0 {
			send, head = out, queue[0]
		}
		select {
		case s, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			queue = append(queue, s)
		case send <- head:
			queue = queue[1:]
		case <-ctx.Done():
			return
		}
	}
}

// Run broadcasts the payload for port every Interval. After each successful send
// it reports BeaconOK. Any failure is reported once as BeaconError and ends the
// run. Every event is delivered on ch, so Run waits for a full ch unless ctx is
// done. ch is closed when Run returns, including when ctx is cancelled.
func (b *Beacon) Run(ctx context.Context, port string, ch chan<- model.BeaconStatus) {
	defer close(ch)
	report := func(s model.BeaconStatus) bool {
		select {
		case ch <- s:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(stage string, err error) {
		log.Printf("beacon %s failed: %v", stage, err)
		report(model.BeaconError)
	}

	local, err := b.localAddr()
	if err != nil {
		fail("local address", err)
		return
	}
	dst, err := net.ResolveUDPAddr("udp4", b.cfg.Target)
	if err != nil {
		fail("resolve target", err)
		return
	}
	conn, err := b.listen(ctx, b.cfg.Bind)
	if err != nil {
		fail("socket", err)
		return
	}
	defer conn.Close()

	payload := Payload(b.cfg.Prefix, port)
	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	announced := false
	for {
		if _, err := conn.WriteTo(payload, dst); err != nil {
			fail("send", err)
			return
		}
		if !announced {
			log.Printf("beacon broadcasting payload=%s target=%s local=%s interval=%s", payload, dst, local, b.cfg.Interval)
			announced = true
		}
		if !report(model.BeaconOK) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// localAddr is the host of Bind when it names one address, otherwise the
// address of the outbound interface.
func (b *Beacon) localAddr() (net.IP, error) {
	if host, _, err := net.SplitHostPort(b.cfg.Bind); err == nil {
		if ip := net.ParseIP(host); ip != nil && !ip.IsUnspecified() {
			return ip, nil
		}
	}
	return b.localIP()
}

func listenBroadcast(ctx context.Context, addr string) (net.PacketConn, error) {
	lc := net.ListenConfig{Control: controlBroadcast}
	conn, err := lc.ListenPacket(ctx, "udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return conn, nil
}
