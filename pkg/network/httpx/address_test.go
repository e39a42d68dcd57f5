package httpx

import (
	"net"
	"testing"
)

type fakeListener struct {
	addr net.TCPAddr
}

func (l fakeListener) Accept() (net.Conn, error) { return nil, nil }
func (l fakeListener) Close() error              { return nil }
func (l fakeListener) Addr() net.Addr            { return &l.addr }

func listenerOn(port int) Listener {
	return Listener{fakeListener{addr: net.TCPAddr{Port: port}}}
}

func TestBuildAddress(t *testing.T) {
	tests := []struct {
		addr string
		zone string
		ls   Listener
		want string
	}{
		{addr: "", want: "localhost"},
		{addr: ":", ls: listenerOn(0), want: "localhost"},
		{addr: ":", ls: listenerOn(344), want: "localhost:344"},
		{addr: "", ls: listenerOn(393), want: "localhost:393"},
		{addr: ":8080", ls: listenerOn(8080), want: "localhost:8080"},
		// the listener port wins when the listener rolled to another one
		{addr: ":8080", ls: listenerOn(8081), want: "localhost:8081"},
		{addr: "host:8080", ls: listenerOn(8080), want: "host:8080"},
		{addr: "host:8080", ls: listenerOn(8081), want: "host:8081"},
		{addr: "host:8080", zone: "test", ls: listenerOn(8081), want: "test.host:8081"},
		// default http port is dropped
		{addr: ":80", ls: listenerOn(80), want: "localhost"},
		// unparsable addresses pass through untouched
		{addr: "https://garbage.com:99a9a", want: "https://garbage.com:99a9a"},
		{addr: "[::]", want: "[::]"},
	}

	for _, test := range tests {
		if got := buildAddress(test.addr, test.zone, test.ls); got != test.want {
			t.Errorf("buildAddress(%q, %q) = %v, want %v", test.addr, test.zone, got, test.want)
		}
	}
}
