package beacon

import (
	"errors"
	"net"
)

var ErrNoLocalAddress = errors.New("no network-reachable local IPv4 address")

// LocalIP returns the IPv4 address of the interface that carries the default
// route. The UDP dial sends nothing; it only asks the kernel for a source
// address. Without a default route the first private address of an up,
// non-loopback interface is used.
func LocalIP() (net.IP, error) {
	if conn, err := net.Dial("udp4", "8.8.8.8:80"); err == nil {
		addr, ok := conn.LocalAddr().(*net.UDPAddr)
		_ = conn.Close()
		if ok && addr.IP != nil && !addr.IP.IsUnspecified() && !addr.IP.IsLoopback() {
			return addr.IP, nil
		}
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, _ := iface.Addrs()
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if ip := ipNet.IP.To4(); ip != nil && ip.IsPrivate() {
				return ip, nil
			}
		}
	}
	return nil, ErrNoLocalAddress
}
