package webrtc

import (
	pion "github.com/pion/webrtc/v3"

	"github.com/rostrumapp/rostrum/pkg/logger"
)

// Peer wraps one peer connection of the mesh. Unlike a streaming
// server it negotiates in both directions, so it exposes both the
// offer and the answer sides of the handshake.
type Peer struct {
	api  *ApiFactory
	conn *pion.PeerConnection
	log  *logger.Logger
}

func New(log *logger.Logger, api *ApiFactory) *Peer { return &Peer{api: api, log: log} }

// Start allocates the underlying connection, plugs in the outgoing
// tracks, and registers the signaling callbacks. Must be called once
// before any other method.
func (p *Peer) Start(
	tracks []*pion.TrackLocalStaticSample,
	onICECandidate func(pion.ICECandidateInit),
	onState func(pion.PeerConnectionState),
) (err error) {
	if p.conn, err = p.api.NewPeer(); err != nil {
		return err
	}
	p.conn.OnICECandidate(func(ice *pion.ICECandidate) {
		// nil marks the end of gathering, nothing to send then
		if ice == nil {
			p.log.Debug().Msg("ICE gathering complete")
			return
		}
		candidate := ice.ToJSON()
		p.log.Debug().Str("candidate", candidate.Candidate).Msg("ICE")
		onICECandidate(candidate)
	})
	p.conn.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		p.log.Debug().Str(".state", state.String()).Msg("Peer")
		if onState != nil {
			onState(state)
		}
	})
	for _, track := range tracks {
		sender, err := p.conn.AddTrack(track)
		if err != nil {
			return err
		}
		go drainRTCP(sender)
		p.log.Debug().Msgf("Added [%s] track", track.Codec().MimeType)
	}
	return nil
}

// drainRTCP reads and discards the incoming RTCP packets so that the
// interceptors keep processing them.
func drainRTCP(sender *pion.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// Offer creates a local offer and sets it as the local description.
func (p *Peer) Offer() (pion.SessionDescription, error) {
	offer, err := p.conn.CreateOffer(nil)
	if err != nil {
		return pion.SessionDescription{}, err
	}
	if err = p.conn.SetLocalDescription(offer); err != nil {
		return pion.SessionDescription{}, err
	}
	p.log.Debug().Msg("Created Offer")
	return offer, nil
}

// Answer creates an answer to the previously set remote offer and
// sets it as the local description.
func (p *Peer) Answer() (pion.SessionDescription, error) {
	answer, err := p.conn.CreateAnswer(nil)
	if err != nil {
		return pion.SessionDescription{}, err
	}
	if err = p.conn.SetLocalDescription(answer); err != nil {
		return pion.SessionDescription{}, err
	}
	p.log.Debug().Msg("Created Answer")
	return answer, nil
}

func (p *Peer) SetRemoteDescription(sdp pion.SessionDescription) error {
	if err := p.conn.SetRemoteDescription(sdp); err != nil {
		p.log.Error().Err(err).Msg("Set remote description failed")
		return err
	}
	p.log.Debug().Msgf("Set remote %v", sdp.Type)
	return nil
}

func (p *Peer) AddCandidate(candidate pion.ICECandidateInit) error {
	return p.conn.AddICECandidate(candidate)
}

func (p *Peer) OnTrack(fn func(*pion.TrackRemote, *pion.RTPReceiver)) { p.conn.OnTrack(fn) }

func (p *Peer) Disconnect() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Close(); err != nil {
		p.log.Error().Err(err).Msg("WebRTC close fail")
	}
	p.conn = nil
	p.log.Debug().Msg("WebRTC stop")
}
