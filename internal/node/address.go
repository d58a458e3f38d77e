package node

import (
	"net"
	"strconv"
)

// DefaultPort is the well-known parley service port, shared by UDP
// discovery and the TCP chat listener.
const DefaultPort = 8888

// NormalizeAddr applies defaultPort when target omits a port, so users can
// connect to a bare host or IP.
func NormalizeAddr(target string, defaultPort int) string {
	if _, _, err := net.SplitHostPort(target); err == nil {
		return target
	}
	return net.JoinHostPort(target, strconv.Itoa(defaultPort))
}

// LocalIPv4 returns this host's first non-loopback IPv4 address, used for
// share links. Falls back to the loopback address on a host with none.
func LocalIPv4() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, a := range addrs {
		ipn, ok := a.(*net.IPNet)
		if !ok || ipn.IP.IsLoopback() {
			continue
		}
		if ip4 := ipn.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return "127.0.0.1"
}
