package httpx

import (
	"net"
	"strconv"
	"strings"
)

type Address string

// SplitHostPort splits the address into the host and the numeric port.
func (a Address) SplitHostPort() (string, int) {
	host, p, err := net.SplitHostPort(string(a))
	if err != nil {
		return string(a), 0
	}
	port, _ := strconv.Atoi(p)
	return host, port
}

func withZonePrefix(host string, zone string) string {
	if zone == "" {
		return host
	}
	return zone + "." + host
}

func extractHost(address string) string {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return address
	}
	return host
}

// buildAddress joins the network host from the first param
// with the port value of the listener.
//
// As example, address host.com:8080 and listener 123.123.123.123:8888
// will be transformed to host.com:8888.
func buildAddress(address string, zone string, l Listener) string {
	addr, _, err := net.SplitHostPort(address)
	if err != nil {
		if strings.Contains(address, ":") && !strings.HasPrefix(address, "[") || strings.Contains(address, "//") {
			return address
		}
		addr = address
	}
	if addr == "" {
		addr = "localhost"
	}
	addr = withZonePrefix(addr, zone)

	port := l.GetPort()
	if port > 0 && port != 80 && port != 443 {
		addr += ":" + strconv.Itoa(port)
	}
	return addr
}
