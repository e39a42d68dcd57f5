package config

import "github.com/spf13/pflag"

type PeerConfig struct {
	Peer   Peer
	Webrtc Webrtc
}

type Peer struct {
	Debug      bool
	Monitoring Monitoring
	// Relay is the ws(s):// address of the relay service.
	Relay string
	// Room is the room identifier to join on start.
	Room string
	Tag  string
}

var peerConfigPath string

func NewPeerConfig() (conf PeerConfig) {
	if err := LoadConfig(&conf, peerConfigPath); err != nil {
		panic(err)
	}
	conf.Webrtc.AddIceServersEnv()
	return
}

func (c *PeerConfig) ParseFlags() {
	pflag.StringVar(&c.Peer.Relay, "relay", c.Peer.Relay, "Relay service websocket address")
	pflag.StringVar(&c.Peer.Room, "room", c.Peer.Room, "Room id to join")
	pflag.StringVar(&c.Peer.Tag, "tag", c.Peer.Tag, "Participant tag for logs")
	pflag.StringVar(&peerConfigPath, "conf", peerConfigPath, "Set custom configuration file path")
	pflag.Parse()
}
