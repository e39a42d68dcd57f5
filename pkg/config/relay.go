package config

import "github.com/spf13/pflag"

type RelayConfig struct {
	Relay   Relay
	Webrtc  Webrtc
	Version Version
}

type Relay struct {
	Debug      bool
	Monitoring Monitoring
	// Origins is the allow-list for cross-origin websocket upgrades;
	// empty allows any origin.
	Origins []string
	Server  Server
}

type Version int

// allows custom config path
var relayConfigPath string

func NewRelayConfig() (conf RelayConfig) {
	if err := LoadConfig(&conf, relayConfigPath); err != nil {
		panic(err)
	}
	conf.Webrtc.AddIceServersEnv()
	return
}

func (c *RelayConfig) ParseFlags() {
	c.Relay.Server.AddFlags(pflag.CommandLine)
	pflag.IntVar(&c.Relay.Monitoring.Port, "monitoring.port", c.Relay.Monitoring.Port, "Monitoring server port")
	pflag.StringVar(&relayConfigPath, "conf", relayConfigPath, "Set custom configuration file path")
	pflag.Parse()
}
