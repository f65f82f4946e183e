package beacon

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"fsrewire/pkg/model"
)

func loopbackIP() (net.IP, error) { return net.IPv4(127, 0, 0, 1), nil }

// collect drains ch until it is closed or the timeout expires.
func collect(t *testing.T, ch <-chan model.BeaconStatus, timeout time.Duration) []model.BeaconStatus {
	t.Helper()
	var out []model.BeaconStatus
	deadline := time.After(timeout)
	for {
		select {
		case s, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, s)
		case <-deadline:
			t.Fatalf("status channel not closed after %s; got %v", timeout, out)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := New(Config{}).Config()
	if cfg.Prefix != "FSR_SMC" || cfg.Target != "255.255.255.255:1234" || cfg.Bind != "0.0.0.0:0" || cfg.Interval != 5*time.Second {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestPayload(t *testing.T) {
	if got := string(Payload(DefaultPrefix, "500")); got != "FSR_SMC:500" {
		t.Fatalf("payload = %q", got)
	}
}

func TestBroadcastsPayloadAndReportsOK(t *testing.T) {
	rx, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer rx.Close()

	b := New(Config{Target: rx.LocalAddr().String(), Bind: "127.0.0.1:0", Interval: 20 * time.Millisecond})
	b.localIP = loopbackIP

	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Start(ctx, "500")

	buf := make([]byte, 64)
	_ = rx.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := rx.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read datagram: %v", err)
	}
	if got := string(buf[:n]); got != "FSR_SMC:500" {
		t.Fatalf("payload = %q, want FSR_SMC:500", got)
	}

	select {
	case s := <-ch:
		if s != model.BeaconOK {
			t.Fatalf("first status = %q, want ok", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no status after a successful send")
	}

	cancel()
	for _, s := range collect(t, ch, 2*time.Second) {
		if s != model.BeaconOK {
			t.Fatalf("unexpected status after cancel: %q", s)
		}
	}
}

func TestLocalAddrFromBind(t *testing.T) {
	b := New(Config{Bind: "127.0.0.1:0"})
	b.localIP = func() (net.IP, error) { return nil, ErrNoLocalAddress }
	ip, err := b.localAddr()
	if err != nil || !ip.Equal(net.IPv4(127, 0, 0, 1)) {
		t.Fatalf("localAddr = %v, %v", ip, err)
	}

	b = New(Config{})
	b.localIP = loopbackIP
	if ip, err := b.localAddr(); err != nil || !ip.IsLoopback() {
		t.Fatalf("unspecified bind: %v, %v", ip, err)
	}
}

func TestBindFailureReportsSingleError(t *testing.T) {
	b := New(Config{})
	b.localIP = loopbackIP
	b.listen = func(context.Context, string) (net.PacketConn, error) {
		return nil, errors.New("address in use")
	}
	got := collect(t, b.Start(context.Background(), "500"), 2*time.Second)
	if len(got) != 1 || got[0] != model.BeaconError {
		t.Fatalf("statuses = %v, want exactly one error", got)
	}
}

func TestLocalAddressFailureReportsError(t *testing.T) {
	b := New(Config{})
	b.localIP = func() (net.IP, error) { return nil, ErrNoLocalAddress }
	listened := false
	b.listen = func(context.Context, string) (net.PacketConn, error) {
		listened = true
		return nil, errors.New("unreachable")
	}
	got := collect(t, b.Start(context.Background(), "500"), 2*time.Second)
	if len(got) != 1 || got[0] != model.BeaconError {
		t.Fatalf("statuses = %v, want exactly one error", got)
	}
	if listened {
		t.Fatal("socket opened without a local address")
	}
}

func TestBadTargetReportsError(t *testing.T) {
	b := New(Config{Target: "not-a-host-port"})
	b.localIP = loopbackIP
	got := collect(t, b.Start(context.Background(), "500"), 2*time.Second)
	if len(got) != 1 || got[0] != model.BeaconError {
		t.Fatalf("statuses = %v, want exactly one error", got)
	}
}

// fakeConn is a PacketConn whose writes fail after okWrites successful ones.
type fakeConn struct {
	net.PacketConn
	okWrites int32
	writes   atomic.Int32
	closed   atomic.Bool
}

func (c *fakeConn) WriteTo(p []byte, _ net.Addr) (int, error) {
	if c.writes.Add(1) > c.okWrites {
		return 0, errors.New("network is unreachable")
	}
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

func TestSendFailureStopsBeacon(t *testing.T) {
	conn := &fakeConn{okWrites: 2}
	b := New(Config{Interval: time.Millisecond})
	b.localIP = loopbackIP
	b.listen = func(context.Context, string) (net.PacketConn, error) { return conn, nil }

	got := collect(t, b.Start(context.Background(), "500"), 2*time.Second)
	want := []model.BeaconStatus{model.BeaconOK, model.BeaconOK, model.BeaconError}
	if len(got) != len(want) {
		t.Fatalf("statuses = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("statuses = %v, want %v", got, want)
		}
	}
	if conn.writes.Load() != 3 || !conn.closed.Load() {
		t.Fatalf("writes=%d closed=%v", conn.writes.Load(), conn.closed.Load())
	}
}

func TestLaggingConsumerReceivesEveryStatus(t *testing.T) {
	conn := &fakeConn{okWrites: statusBuffer * 4}
	b := New(Config{Interval: time.Millisecond})
	b.localIP = loopbackIP
	b.listen = func(context.Context, string) (net.PacketConn, error) { return conn, nil }

	ch := b.Start(context.Background(), "500")
	deadline := time.Now().Add(5 * time.Second)
	for conn.writes.Load() <= conn.okWrites {
		if time.Now().After(deadline) {
			t.Fatalf("beacon stalled after %d writes", conn.writes.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}

	got := collect(t, ch, 2*time.Second)
	if len(got) != int(conn.okWrites)+1 {
		t.Fatalf("statuses = %d, want %d ok plus error", len(got), conn.okWrites+1)
	}
	for _, s := range got[:len(got)-1] {
		if s != model.BeaconOK {
			t.Fatalf("statuses = %v, want ok before the error", got)
		}
	}
	if got[len(got)-1] != model.BeaconError {
		t.Fatalf("last status = %q, want error", got[len(got)-1])
	}
}

func TestStartClosesChannelOnCancel(t *testing.T) {
	conn := &fakeConn{okWrites: 1 << 20}
	b := New(Config{Interval: time.Millisecond})
	b.localIP = loopbackIP
	b.listen = func(context.Context, string) (net.PacketConn, error) { return conn, nil }

	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Start(ctx, "500")
	for conn.writes.Load() < statusBuffer*2 {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	collect(t, ch, 2*time.Second)
	deadline := time.Now().Add(2 * time.Second)
	for !conn.closed.Load() {
		if time.Now().After(deadline) {
			t.Fatal("socket not closed after cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCancelWhileErrorPendingClosesChannel(t *testing.T) {
	conn := &fakeConn{okWrites: statusBuffer}
	b := New(Config{Interval: time.Millisecond})
	b.localIP = loopbackIP
	b.listen = func(context.Context, string) (net.PacketConn, error) { return conn, nil }

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan model.BeaconStatus, statusBuffer)
	done := make(chan struct{})
	go func() {
		b.Run(ctx, "500", ch)
		close(done)
	}()
	for conn.writes.Load() <= conn.okWrites {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
