package config

import (
	"log"
	"os"
	"strings"

	"github.com/goccy/go-json"
)

type Webrtc struct {
	DisableDefaultInterceptors bool
	IceServers                 []IceServer
	IcePorts                   struct {
		Min uint16
		Max uint16
	}
	IceIpMap   string
	SinglePort int
	LogLevel   int
}

type IceServer struct {
	Urls       string `json:"urls,omitempty"`
	Username   string `json:"username,omitempty"`
	Credential string `json:"credential,omitempty"`
}

func (w *Webrtc) HasPortRange() bool  { return w.IcePorts.Min > 0 && w.IcePorts.Max > 0 }
func (w *Webrtc) HasSinglePort() bool { return w.SinglePort > 0 }
func (w *Webrtc) HasIceIpMap() bool   { return w.IceIpMap != "" }

// IceServersEnv is a JSON array of ICE servers overriding the
// file-configured list, i.e. [{"urls":"turn:x","username":"u","credential":"p"}].
const IceServersEnv = EnvPrefix + "_WEBRTC_ICESERVERS"

func (w *Webrtc) AddIceServersEnv() {
	env := os.Getenv(IceServersEnv)
	if env == "" {
		return
	}
	var servers []IceServer
	if err := json.Unmarshal([]byte(env), &servers); err != nil {
		log.Fatalf("malformed %v: %v", IceServersEnv, err)
	}
	for _, ice := range servers {
		if strings.HasPrefix(ice.Urls, "turn:") || strings.HasPrefix(ice.Urls, "turns:") {
			if ice.Username == "" || ice.Credential == "" {
				log.Fatalf("TURN or TURNS servers should have both username and credential: %+v", ice)
			}
		}
	}
	w.IceServers = servers
}
