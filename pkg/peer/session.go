package peer

import (
	"sync"

	pion "github.com/pion/webrtc/v3"

	"github.com/rostrumapp/rostrum/pkg/logger"
	"github.com/rostrumapp/rostrum/pkg/network"
)

type Role uint8

const (
	// Initiator sends the offer; the newcomer initiates towards every
	// member that was in the room before it.
	Initiator Role = iota
	// Responder waits for an offer from a later joiner.
	Responder
)

func (r Role) String() string {
	if r == Initiator {
		return "initiator"
	}
	return "responder"
}

type sessionState uint8

const (
	stateIdle sessionState = iota
	stateOfferSent
	stateOfferReceived
	stateAnswerExchanged
	stateConnected
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateOfferSent:
		return "offer-sent"
	case stateOfferReceived:
		return "offer-received"
	case stateAnswerExchanged:
		return "answer-exchanged"
	case stateConnected:
		return "connected"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

// transport is the part of the WebRTC connection the negotiation
// drives. Kept narrow so the state machine is testable without
// real network connections.
type transport interface {
	Offer() (pion.SessionDescription, error)
	Answer() (pion.SessionDescription, error)
	SetRemoteDescription(pion.SessionDescription) error
	AddCandidate(pion.ICECandidateInit) error
	Disconnect()
}

// signalSender pushes local descriptions and candidates to the remote
// member through the relay.
type signalSender interface {
	SendOffer(to network.Uid, sdp pion.SessionDescription)
	SendAnswer(to network.Uid, sdp pion.SessionDescription)
	SendCandidate(to network.Uid, candidate pion.ICECandidateInit)
}

// Session negotiates one connection of the mesh. Remote candidates
// arriving before the remote description are buffered and added in
// their arrival order right after it is set. Events that don't fit
// the current state (stale answers, duplicate offers) are dropped.
type Session struct {
	remote network.Uid
	role   Role
	t      transport
	out    signalSender
	log    *logger.Logger

	mu        sync.Mutex
	state     sessionState
	remoteSet bool
	pending   []pion.ICECandidateInit
}

func newSession(remote network.Uid, role Role, t transport, out signalSender, log *logger.Logger) *Session {
	return &Session{
		remote: remote,
		role:   role,
		t:      t,
		out:    out,
		log:    log.Extend(log.With().Str("peer", remote.Short()).Str("role", role.String())),
	}
}

func (s *Session) Remote() network.Uid { return s.remote }
func (s *Session) Role() Role          { return s.role }

func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.String()
}

// Negotiate kicks off the handshake on the initiator side. A no-op
// for responders and for sessions already past idle.
func (s *Session) Negotiate() error {
	s.mu.Lock()
	if s.role != Initiator || s.state != stateIdle {
		s.mu.Unlock()
		return nil
	}
	s.state = stateOfferSent
	s.mu.Unlock()

	offer, err := s.t.Offer()
	if err != nil {
		return err
	}
	s.out.SendOffer(s.remote, offer)
	s.log.Debug().Msg("Sent offer")
	return nil
}

// HandleOffer applies a remote offer and replies with an answer.
// Offers are accepted only by a responder still in idle.
func (s *Session) HandleOffer(sdp pion.SessionDescription) error {
	s.mu.Lock()
	if s.role != Responder || s.state != stateIdle {
		state := s.state
		s.mu.Unlock()
		s.log.Debug().Msgf("Offer dropped in state %v", state)
		return nil
	}
	s.state = stateOfferReceived
	s.mu.Unlock()

	if err := s.applyRemote(sdp); err != nil {
		return err
	}
	answer, err := s.t.Answer()
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.state == stateOfferReceived {
		s.state = stateAnswerExchanged
	}
	s.mu.Unlock()
	s.out.SendAnswer(s.remote, answer)
	s.log.Debug().Msg("Sent answer")
	return nil
}

// HandleAnswer applies a remote answer to a sent offer. Answers in
// any other state are stale and ignored.
func (s *Session) HandleAnswer(sdp pion.SessionDescription) error {
	s.mu.Lock()
	if s.role != Initiator || s.state != stateOfferSent {
		state := s.state
		s.mu.Unlock()
		s.log.Debug().Msgf("Stale answer dropped in state %v", state)
		return nil
	}
	s.state = stateAnswerExchanged
	s.mu.Unlock()

	return s.applyRemote(sdp)
}

// HandleCandidate adds a remote ICE candidate, or queues it when the
// remote description is not set yet.
func (s *Session) HandleCandidate(candidate pion.ICECandidateInit) error {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return nil
	}
	if !s.remoteSet {
		s.pending = append(s.pending, candidate)
		n := len(s.pending)
		s.mu.Unlock()
		s.log.Debug().Msgf("Candidate queued (%v)", n)
		return nil
	}
	s.mu.Unlock()
	return s.t.AddCandidate(candidate)
}

// applyRemote sets the remote description and flushes the queued
// candidates in their arrival order.
func (s *Session) applyRemote(sdp pion.SessionDescription) error {
	if err := s.t.SetRemoteDescription(sdp); err != nil {
		return err
	}
	s.mu.Lock()
	s.remoteSet = true
	queued := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, candidate := range queued {
		if err := s.t.AddCandidate(candidate); err != nil {
			s.log.Error().Err(err).Msg("queued candidate fail")
		}
	}
	if len(queued) > 0 {
		s.log.Debug().Msgf("Flushed %v queued candidates", len(queued))
	}
	return nil
}

// connected marks the media path established. Negotiation-wise the
// session stays terminal-bound, only Close moves it further.
func (s *Session) connected() {
	s.mu.Lock()
	if s.state != stateClosed {
		s.state = stateConnected
	}
	s.mu.Unlock()
}

// sendLocalCandidate relays a locally gathered candidate, unless the
// session is already closed.
func (s *Session) sendLocalCandidate(candidate pion.ICECandidateInit) {
	s.mu.Lock()
	closed := s.state == stateClosed
	s.mu.Unlock()
	if !closed {
		s.out.SendCandidate(s.remote, candidate)
	}
}

// Close tears the session down. Terminal, any event after it is
// ignored. Safe to call multiple times.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return
	}
	s.state = stateClosed
	s.pending = nil
	s.mu.Unlock()
	s.t.Disconnect()
	s.log.Debug().Msg("Session closed")
}
