package peer

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/goccy/go-json"
	pion "github.com/pion/webrtc/v3"

	"github.com/rostrumapp/rostrum/pkg/api"
	"github.com/rostrumapp/rostrum/pkg/com"
	"github.com/rostrumapp/rostrum/pkg/config"
	"github.com/rostrumapp/rostrum/pkg/logger"
	"github.com/rostrumapp/rostrum/pkg/network"
	"github.com/rostrumapp/rostrum/pkg/network/websocket"
	"github.com/rostrumapp/rostrum/pkg/webrtc"
)

// Manager keeps the mesh of one participant: a signaling socket to
// the relay and one session per every other member of the room.
type Manager struct {
	conf  config.PeerConfig
	conn  *com.Client
	api   *webrtc.ApiFactory
	media *Media
	log   *logger.Logger

	mu     sync.Mutex
	room   string
	closed bool

	sessions com.Map[network.Uid, *Session]
}

func NewManager(conf config.PeerConfig, src Source, log *logger.Logger) (*Manager, error) {
	ap, err := webrtc.NewApiFactory(conf.Webrtc, log, nil)
	if err != nil {
		return nil, err
	}
	return &Manager{
		conf:     conf,
		api:      ap,
		media:    NewMedia(src, log),
		log:      log,
		sessions: com.NewMap[network.Uid, *Session](),
	}, nil
}

// Connect dials the relay and starts listening for its packets.
// The returned channel closes when the socket dies.
func (m *Manager) Connect() (chan struct{}, error) {
	address, err := url.Parse(m.conf.Peer.Relay)
	if err != nil {
		return nil, err
	}
	conn, err := com.NewConnector().NewClient(*address, m.log)
	if err != nil {
		return nil, err
	}
	m.conn = conn
	m.conn.OnPacket(m.handlePacket)
	done := m.conn.Listen()
	m.log.Info().Msgf("Connected to the relay %v", address)
	return done, nil
}

// Join enters the room and waits for the relay acknowledgement.
// Existing members will be announced right after, each spawning an
// initiator session.
func (m *Manager) Join(room string) error {
	// the room is set before the call, so relays triggered by packets
	// racing the join reply already carry it
	m.setRoom(room)
	raw, err := m.conn.Call(api.JoinRoom, api.JoinRoomRequest{RoomId: room})
	if err != nil {
		m.setRoom("")
		return err
	}
	rs := api.Unwrap[api.JoinedResponse](raw)
	if rs == nil {
		m.setRoom("")
		return fmt.Errorf("malformed join response")
	}
	m.log.Info().Msgf("Joined room [%v] of %v", rs.RoomId, rs.MemberCount)
	return nil
}

func (m *Manager) setRoom(room string) { m.mu.Lock(); m.room = room; m.mu.Unlock() }

func (m *Manager) currentRoom() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.room
}

func (m *Manager) handlePacket(in api.In) {
	switch in.T {
	case api.ExistingMembers:
		rs := api.Unwrap[api.ExistingMembersResponse](in.Payload)
		if rs == nil {
			m.log.Error().Msg(api.ExistingMembers.String() + " malformed")
			return
		}
		for _, id := range rs.Members {
			m.openSession(id, Initiator)
		}
	case api.MemberJoined:
		rs := api.Unwrap[api.MemberEvent](in.Payload)
		if rs == nil {
			return
		}
		m.log.Info().Msgf("Member [%v] joined", rs.Id.Short())
		m.openSession(rs.Id, Responder)
	case api.MemberLeft:
		rs := api.Unwrap[api.MemberEvent](in.Payload)
		if rs == nil {
			return
		}
		m.log.Info().Msgf("Member [%v] left", rs.Id.Short())
		if s, ok := m.sessions.Pop(rs.Id); ok {
			s.Close()
		}
	case api.RelayedOffer:
		if from, sdp := unwrapSDP(in.Payload, m.log); sdp != nil {
			s := m.openSession(from, Responder)
			if s == nil {
				return
			}
			if err := s.HandleOffer(*sdp); err != nil {
				m.log.Error().Err(err).Msg("offer fail")
			}
		}
	case api.RelayedAnswer:
		if from, sdp := unwrapSDP(in.Payload, m.log); sdp != nil {
			if s, err := m.sessions.Find(from); err == nil {
				if err := s.HandleAnswer(*sdp); err != nil {
					m.log.Error().Err(err).Msg("answer fail")
				}
			}
		}
	case api.RelayedCandidate:
		rs := api.Unwrap[api.RelayedMessage](in.Payload)
		if rs == nil {
			return
		}
		candidate := api.Unwrap[pion.ICECandidateInit](rs.Payload)
		if candidate == nil {
			m.log.Error().Msg("malformed candidate dropped")
			return
		}
		if s, err := m.sessions.Find(rs.From); err == nil {
			if err := s.HandleCandidate(*candidate); err != nil {
				m.log.Error().Err(err).Msg("candidate fail")
			}
		}
	default:
		m.log.Warn().Msgf("Unknown packet %v", in.T)
	}
}

func unwrapSDP(payload json.RawMessage, log *logger.Logger) (network.Uid, *pion.SessionDescription) {
	rs := api.Unwrap[api.RelayedMessage](payload)
	if rs == nil {
		log.Error().Msg("malformed relayed message dropped")
		return network.EmptyUid, nil
	}
	sdp := api.Unwrap[pion.SessionDescription](rs.Payload)
	if sdp == nil {
		log.Error().Msg("malformed sdp dropped")
		return network.EmptyUid, nil
	}
	return rs.From, sdp
}

// openSession creates a session towards the remote member once; a
// session that already exists is reused whatever its role is.
func (m *Manager) openSession(remote network.Uid, role Role) *Session {
	tracks, err := m.media.Capture()
	if err != nil {
		m.log.Error().Err(err).Msg("capture fail")
		return nil
	}
	t := webrtc.New(m.log, m.api)
	s := newSession(remote, role, t, m, m.log)
	s, created := m.sessions.PutIfAbsent(remote, s)
	if !created {
		return s
	}
	err = t.Start(tracks,
		func(candidate pion.ICECandidateInit) { s.sendLocalCandidate(candidate) },
		func(state pion.PeerConnectionState) {
			switch state {
			case pion.PeerConnectionStateConnected:
				s.connected()
			case pion.PeerConnectionStateFailed:
				// a transport failure kills just this session, the
				// rest of the mesh is unaffected
				m.log.Warn().Msgf("Transport to [%v] failed", remote.Short())
				if dead, ok := m.sessions.Pop(remote); ok {
					dead.Close()
				}
			}
		})
	if err != nil {
		m.log.Error().Err(err).Msgf("session to [%v] fail", remote.Short())
		m.sessions.RemoveByKey(remote)
		return nil
	}
	t.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		m.log.Info().Msgf("Remote [%s] track from [%v]", track.Codec().MimeType, remote.Short())
	})
	if err := s.Negotiate(); err != nil {
		m.log.Error().Err(err).Msg("negotiation fail")
	}
	return s
}

func (m *Manager) relay(t api.PT, to network.Uid, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		m.log.Error().Err(err).Msg("relay marshal fail")
		return
	}
	m.conn.Notify(t, api.RelayRequest{RoomId: m.currentRoom(), To: to, Payload: raw})
}

func (m *Manager) SendOffer(to network.Uid, sdp pion.SessionDescription) {
	m.relay(api.RelayOffer, to, sdp)
}
func (m *Manager) SendAnswer(to network.Uid, sdp pion.SessionDescription) {
	m.relay(api.RelayAnswer, to, sdp)
}
func (m *Manager) SendCandidate(to network.Uid, candidate pion.ICECandidateInit) {
	m.relay(api.RelayCandidate, to, candidate)
}

func (m *Manager) Mute(v bool)        { m.media.Mute(v) }
func (m *Manager) ToggleVideo(v bool) { m.media.ToggleVideo(v) }

// handleDisconnect tears the whole mesh down once the signaling
// socket dies. Without signaling no membership change can reach us,
// so sessions and the capture must not outlive it.
func (m *Manager) handleDisconnect() {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return
	}
	if err := m.conn.Error(); websocket.IsGracefulClose(err) {
		m.log.Warn().Msg("Relay closed the connection, restart to rejoin")
	} else {
		m.log.Warn().Err(err).Msg("Relay connection lost")
	}
	m.Close()
}

// Close leaves the room and tears down every session. Synchronous and
// idempotent, when it returns all transports are released.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	room := m.room
	m.mu.Unlock()
	if m.conn != nil && room != "" {
		m.conn.Notify(api.LeaveRoom, api.LeaveRoomRequest{RoomId: room})
	}
	m.sessions.ForEach(func(s *Session) { s.Close() })
	for _, id := range m.sessions.Keys() {
		m.sessions.RemoveByKey(id)
	}
	m.media.Close()
	if m.conn != nil {
		m.conn.Close()
	}
	m.log.Info().Msg("Manager closed")
}
