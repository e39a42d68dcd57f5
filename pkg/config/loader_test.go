package config

import (
	"os"
	"testing"
)

func TestConfigEnv(t *testing.T) {
	var out PeerConfig

	_ = os.Setenv("ROSTRUM_PEER_ROOM", "studio")
	_ = os.Setenv("ROSTRUM_PEER_RELAY", "ws://example.com/ws")
	_ = os.Setenv("ROSTRUM_WEBRTC_SINGLEPORT", "8443")
	defer func() {
		_ = os.Unsetenv("ROSTRUM_PEER_ROOM")
		_ = os.Unsetenv("ROSTRUM_PEER_RELAY")
		_ = os.Unsetenv("ROSTRUM_WEBRTC_SINGLEPORT")
	}()

	if err := LoadConfigEnv(&out); err != nil {
		t.Fatal(err)
	}

	if out.Peer.Room != "studio" {
		t.Errorf("room = %v, want studio", out.Peer.Room)
	}
	if out.Peer.Relay != "ws://example.com/ws" {
		t.Errorf("relay = %v", out.Peer.Relay)
	}
	if out.Webrtc.SinglePort != 8443 {
		t.Errorf("single port = %v, want 8443", out.Webrtc.SinglePort)
	}
	if !out.Webrtc.HasSinglePort() {
		t.Error("single port mode is off")
	}
}

func TestIceServersEnv(t *testing.T) {
	servers := `[{"urls":"stun:stun.example.com:3478"},` +
		`{"urls":"turn:turn.example.com:3478","username":"u","credential":"p"}]`
	_ = os.Setenv(IceServersEnv, servers)
	defer func() { _ = os.Unsetenv(IceServersEnv) }()

	conf := Webrtc{IceServers: []IceServer{{Urls: "stun:overridden"}}}
	conf.AddIceServersEnv()

	if len(conf.IceServers) != 2 {
		t.Fatalf("servers = %v, want 2", len(conf.IceServers))
	}
	if conf.IceServers[0].Urls != "stun:stun.example.com:3478" {
		t.Errorf("urls[0] = %v", conf.IceServers[0].Urls)
	}
	if conf.IceServers[1].Username != "u" || conf.IceServers[1].Credential != "p" {
		t.Errorf("turn credentials were not read: %+v", conf.IceServers[1])
	}
}
