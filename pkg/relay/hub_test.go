package relay

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rostrumapp/rostrum/pkg/api"
	"github.com/rostrumapp/rostrum/pkg/com"
	"github.com/rostrumapp/rostrum/pkg/config"
	"github.com/rostrumapp/rostrum/pkg/logger"
	"github.com/rostrumapp/rostrum/pkg/network"
)

const waitFor = 3 * time.Second

type testPeer struct {
	conn    *com.Client
	packets chan api.In
	done    chan struct{}
}

func startHub(t *testing.T) url.URL {
	t.Helper()
	hub := NewHub(config.RelayConfig{}, prometheus.NewRegistry(), logger.Default())
	s := httptest.NewServer(http.HandlerFunc(hub.handleMemberConnection))
	t.Cleanup(s.Close)
	return url.URL{Scheme: "ws", Host: strings.TrimPrefix(s.URL, "http://")}
}

func dial(t *testing.T, addr url.URL) *testPeer {
	t.Helper()
	conn, err := com.NewConnector().NewClient(addr, logger.Default())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	p := &testPeer{conn: conn, packets: make(chan api.In, 32)}
	conn.OnPacket(func(in api.In) { p.packets <- in })
	p.done = conn.Listen()
	t.Cleanup(conn.Close)
	return p
}

func (p *testPeer) join(t *testing.T, room string) api.JoinedResponse {
	t.Helper()
	raw, err := p.conn.Call(api.JoinRoom, api.JoinRoomRequest{RoomId: room})
	if err != nil {
		t.Fatalf("join call: %v", err)
	}
	rs := api.Unwrap[api.JoinedResponse](raw)
	if rs == nil {
		t.Fatalf("malformed join response: %s", raw)
	}
	return *rs
}

// next waits for the next packet and requires it to be of the wanted type.
func (p *testPeer) next(t *testing.T, want api.PT) api.In {
	t.Helper()
	select {
	case in := <-p.packets:
		if in.T != want {
			t.Fatalf("got %v, want %v", in.T, want)
		}
		return in
	case <-time.After(waitFor):
		t.Fatalf("no %v packet", want)
	}
	return api.In{}
}

func (p *testPeer) relayed(t *testing.T, want api.PT) api.RelayedMessage {
	t.Helper()
	in := p.next(t, want)
	rs := api.Unwrap[api.RelayedMessage](in.Payload)
	if rs == nil {
		t.Fatalf("malformed %v payload", want)
	}
	return *rs
}

func (p *testPeer) members(t *testing.T) []network.Uid {
	t.Helper()
	in := p.next(t, api.ExistingMembers)
	rs := api.Unwrap[api.ExistingMembersResponse](in.Payload)
	if rs == nil {
		t.Fatal("malformed member list")
	}
	return rs.Members
}

func (p *testPeer) event(t *testing.T, want api.PT) network.Uid {
	t.Helper()
	in := p.next(t, want)
	rs := api.Unwrap[api.MemberEvent](in.Payload)
	if rs == nil {
		t.Fatalf("malformed %v event", want)
	}
	return rs.Id
}

func (p *testPeer) send(room string, t_ api.PT, to network.Uid, payload string) {
	p.conn.Notify(t_, api.RelayRequest{RoomId: room, To: to, Payload: json.RawMessage(payload)})
}

func TestHub(t *testing.T) {
	addr := startHub(t)
	room := "debate"

	// an empty room produces no member list, so a's very next packet
	// is the join event for b
	a := dial(t, addr)
	if rs := a.join(t, room); rs.MemberCount != 1 {
		t.Errorf("first join count = %v, want 1", rs.MemberCount)
	}

	b := dial(t, addr)
	if rs := b.join(t, room); rs.MemberCount != 2 {
		t.Errorf("second join count = %v, want 2", rs.MemberCount)
	}
	members := b.members(t)
	if len(members) != 1 {
		t.Fatalf("second joiner sees %v members, want 1", len(members))
	}
	aId := members[0]
	bId := a.event(t, api.MemberJoined)

	// offer/answer relay goes both ways with the sender stamped
	b.send(room, api.RelayOffer, aId, `"offer-b"`)
	if msg := a.relayed(t, api.RelayedOffer); msg.From != bId || string(msg.Payload) != `"offer-b"` {
		t.Errorf("offer from %v payload %s", msg.From, msg.Payload)
	}
	a.send(room, api.RelayAnswer, bId, `"answer-a"`)
	if msg := b.relayed(t, api.RelayedAnswer); msg.From != aId || string(msg.Payload) != `"answer-a"` {
		t.Errorf("answer from %v payload %s", msg.From, msg.Payload)
	}

	// envelopes to ghosts vanish silently, everything else is routed
	// by the destination id alone, even with a stale room field
	a.send(room, api.RelayCandidate, network.NewUid(), `"to-nowhere"`)
	a.send("stale", api.RelayCandidate, bId, `"cand-1"`)
	if msg := b.relayed(t, api.RelayedCandidate); string(msg.Payload) != `"cand-1"` {
		t.Errorf("candidate payload %s, want the first deliverable one", msg.Payload)
	}

	c := dial(t, addr)
	if rs := c.join(t, room); rs.MemberCount != 3 {
		t.Errorf("third join count = %v, want 3", rs.MemberCount)
	}
	if members := c.members(t); len(members) != 2 {
		t.Errorf("third joiner sees %v members, want 2", len(members))
	}
	cId := a.event(t, api.MemberJoined)
	if got := b.event(t, api.MemberJoined); got != cId {
		t.Errorf("join event ids differ: %v vs %v", got, cId)
	}

	// an abrupt disconnect looks like a leave for everyone else
	b.conn.Close()
	if got := a.event(t, api.MemberLeft); got != bId {
		t.Errorf("left event id = %v, want %v", got, bId)
	}
	if got := c.event(t, api.MemberLeft); got != bId {
		t.Errorf("left event id = %v, want %v", got, bId)
	}

	// the survivors keep relaying
	a.send(room, api.RelayOffer, cId, `"offer-2"`)
	if msg := c.relayed(t, api.RelayedOffer); msg.From != aId {
		t.Errorf("offer from %v, want %v", msg.From, aId)
	}

	// an explicit leave is announced the same way
	c.conn.Notify(api.LeaveRoom, api.LeaveRoomRequest{RoomId: room})
	if got := a.event(t, api.MemberLeft); got != cId {
		t.Errorf("left event id = %v, want %v", got, cId)
	}
}

func TestHubRoomSwitch(t *testing.T) {
	addr := startHub(t)

	a := dial(t, addr)
	b := dial(t, addr)
	a.join(t, "one")
	b.join(t, "one")
	b.members(t)
	a.event(t, api.MemberJoined)

	// joining another room implicitly leaves the previous one
	if rs := b.join(t, "two"); rs.MemberCount != 1 {
		t.Errorf("count in the new room = %v, want 1", rs.MemberCount)
	}
	bId := a.event(t, api.MemberLeft)

	// relaying goes by connection id, so b is still reachable while
	// a's idea of the room is out of date
	a.send("one", api.RelayOffer, bId, `"late"`)
	if msg := b.relayed(t, api.RelayedOffer); string(msg.Payload) != `"late"` {
		t.Errorf("offer payload %s after the switch", msg.Payload)
	}
}

func TestHubManyRooms(t *testing.T) {
	addr := startHub(t)

	// rooms are isolated, a join in one is invisible in the other
	for i := 0; i < 3; i++ {
		room := fmt.Sprintf("room-%d", i)
		p := dial(t, addr)
		if rs := p.join(t, room); rs.MemberCount != 1 {
			t.Errorf("join count in %v = %v, want 1", room, rs.MemberCount)
		}
		select {
		case in := <-p.packets:
			t.Errorf("unexpected %v packet in the fresh %v", in.T, room)
		case <-time.After(100 * time.Millisecond):
		}
	}
}
