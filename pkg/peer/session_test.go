package peer

import (
	"testing"

	pion "github.com/pion/webrtc/v3"

	"github.com/rostrumapp/rostrum/pkg/logger"
	"github.com/rostrumapp/rostrum/pkg/network"
)

type fakeTransport struct {
	remote     *pion.SessionDescription
	candidates []pion.ICECandidateInit
	closed     bool
}

func (f *fakeTransport) Offer() (pion.SessionDescription, error) {
	return pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: "local-offer"}, nil
}
func (f *fakeTransport) Answer() (pion.SessionDescription, error) {
	return pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: "local-answer"}, nil
}
func (f *fakeTransport) SetRemoteDescription(sdp pion.SessionDescription) error {
	f.remote = &sdp
	return nil
}
func (f *fakeTransport) AddCandidate(c pion.ICECandidateInit) error {
	f.candidates = append(f.candidates, c)
	return nil
}
func (f *fakeTransport) Disconnect() { f.closed = true }

type fakeSender struct {
	offers     []pion.SessionDescription
	answers    []pion.SessionDescription
	candidates []pion.ICECandidateInit
}

func (f *fakeSender) SendOffer(_ network.Uid, sdp pion.SessionDescription) {
	f.offers = append(f.offers, sdp)
}
func (f *fakeSender) SendAnswer(_ network.Uid, sdp pion.SessionDescription) {
	f.answers = append(f.answers, sdp)
}
func (f *fakeSender) SendCandidate(_ network.Uid, c pion.ICECandidateInit) {
	f.candidates = append(f.candidates, c)
}

func session(role Role) (*Session, *fakeTransport, *fakeSender) {
	t := &fakeTransport{}
	out := &fakeSender{}
	return newSession(network.NewUid(), role, t, out, logger.Default()), t, out
}

func remoteSDP(t pion.SDPType) pion.SessionDescription {
	return pion.SessionDescription{Type: t, SDP: "remote"}
}

func candidate(n string) pion.ICECandidateInit { return pion.ICECandidateInit{Candidate: n} }

func TestSession(t *testing.T) {
	t.Run("InitiatorFlow", testInitiatorFlow)
	t.Run("ResponderFlow", testResponderFlow)
	t.Run("StaleAnswer", testStaleAnswer)
	t.Run("CandidateBuffering", testCandidateBuffering)
	t.Run("ResponderIgnoresDuplicateOffer", testDuplicateOffer)
	t.Run("ClosedIsTerminal", testClosedIsTerminal)
}

func testInitiatorFlow(t *testing.T) {
	t.Parallel()
	s, ft, out := session(Initiator)

	if err := s.Negotiate(); err != nil {
		t.Fatal(err)
	}
	if len(out.offers) != 1 {
		t.Fatalf("sent %v offers, want 1", len(out.offers))
	}
	if s.State() != "offer-sent" {
		t.Errorf("state = %v", s.State())
	}
	// repeated negotiation is a no-op
	if err := s.Negotiate(); err != nil || len(out.offers) != 1 {
		t.Errorf("negotiate is not idempotent: %v offers", len(out.offers))
	}

	if err := s.HandleAnswer(remoteSDP(pion.SDPTypeAnswer)); err != nil {
		t.Fatal(err)
	}
	if ft.remote == nil || ft.remote.Type != pion.SDPTypeAnswer {
		t.Error("remote answer was not applied")
	}
	if s.State() != "answer-exchanged" {
		t.Errorf("state = %v", s.State())
	}

	s.connected()
	if s.State() != "connected" {
		t.Errorf("state = %v", s.State())
	}
}

func testResponderFlow(t *testing.T) {
	t.Parallel()
	s, ft, out := session(Responder)

	// a responder never initiates
	if err := s.Negotiate(); err != nil || len(out.offers) != 0 {
		t.Errorf("responder sent %v offers", len(out.offers))
	}

	if err := s.HandleOffer(remoteSDP(pion.SDPTypeOffer)); err != nil {
		t.Fatal(err)
	}
	if ft.remote == nil || ft.remote.Type != pion.SDPTypeOffer {
		t.Error("remote offer was not applied")
	}
	if len(out.answers) != 1 {
		t.Fatalf("sent %v answers, want 1", len(out.answers))
	}
	if s.State() != "answer-exchanged" {
		t.Errorf("state = %v", s.State())
	}
}

func testStaleAnswer(t *testing.T) {
	t.Parallel()
	s, ft, _ := session(Initiator)

	// an answer before the offer was sent is stale
	if err := s.HandleAnswer(remoteSDP(pion.SDPTypeAnswer)); err != nil {
		t.Fatal(err)
	}
	if ft.remote != nil {
		t.Error("stale answer was applied")
	}

	_ = s.Negotiate()
	_ = s.HandleAnswer(remoteSDP(pion.SDPTypeAnswer))
	ft.remote = nil
	// and so is a second answer after the exchange
	if err := s.HandleAnswer(remoteSDP(pion.SDPTypeAnswer)); err != nil {
		t.Fatal(err)
	}
	if ft.remote != nil {
		t.Error("repeated answer was applied")
	}
}

func testCandidateBuffering(t *testing.T) {
	t.Parallel()
	s, ft, _ := session(Responder)

	// candidates before the remote description are queued
	for _, c := range []string{"c1", "c2", "c3"} {
		if err := s.HandleCandidate(candidate(c)); err != nil {
			t.Fatal(err)
		}
	}
	if len(ft.candidates) != 0 {
		t.Fatalf("%v candidates added before the description", len(ft.candidates))
	}

	if err := s.HandleOffer(remoteSDP(pion.SDPTypeOffer)); err != nil {
		t.Fatal(err)
	}
	// flushed in the arrival order
	if len(ft.candidates) != 3 {
		t.Fatalf("flushed %v candidates, want 3", len(ft.candidates))
	}
	for i, want := range []string{"c1", "c2", "c3"} {
		if ft.candidates[i].Candidate != want {
			t.Errorf("candidates[%v] = %v, want %v", i, ft.candidates[i].Candidate, want)
		}
	}

	// after the description they go straight through
	if err := s.HandleCandidate(candidate("c4")); err != nil {
		t.Fatal(err)
	}
	if len(ft.candidates) != 4 || ft.candidates[3].Candidate != "c4" {
		t.Error("late candidate was not added directly")
	}
}

func testDuplicateOffer(t *testing.T) {
	t.Parallel()
	s, _, out := session(Responder)

	_ = s.HandleOffer(remoteSDP(pion.SDPTypeOffer))
	if err := s.HandleOffer(remoteSDP(pion.SDPTypeOffer)); err != nil {
		t.Fatal(err)
	}
	if len(out.answers) != 1 {
		t.Errorf("sent %v answers after a duplicate offer, want 1", len(out.answers))
	}
}

func testClosedIsTerminal(t *testing.T) {
	t.Parallel()
	s, ft, out := session(Initiator)

	s.Close()
	if !ft.closed {
		t.Error("transport was not released")
	}
	if s.State() != "closed" {
		t.Errorf("state = %v", s.State())
	}

	if err := s.Negotiate(); err != nil || len(out.offers) != 0 {
		t.Error("closed session negotiated")
	}
	if err := s.HandleCandidate(candidate("late")); err != nil || len(ft.candidates) != 0 {
		t.Error("closed session took a candidate")
	}
	s.sendLocalCandidate(candidate("local"))
	if len(out.candidates) != 0 {
		t.Error("closed session sent a local candidate")
	}
	// repeated close is safe
	s.Close()
}
