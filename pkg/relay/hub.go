package relay

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rostrumapp/rostrum/pkg/api"
	"github.com/rostrumapp/rostrum/pkg/com"
	"github.com/rostrumapp/rostrum/pkg/config"
	"github.com/rostrumapp/rostrum/pkg/logger"
	"github.com/rostrumapp/rostrum/pkg/network"
)

type Hub struct {
	conf      config.RelayConfig
	connector *com.Connector
	rooms     *Registry
	members   com.NetMap[*Member]
	stats     *metrics
	log       *logger.Logger
}

func NewHub(conf config.RelayConfig, promReg prometheus.Registerer, log *logger.Logger) *Hub {
	rooms := NewRegistry()
	return &Hub{
		conf:      conf,
		connector: com.NewConnector(com.WithOrigins(conf.Relay.Origins), com.WithTag("relay")),
		rooms:     rooms,
		members:   com.NewNetMap[*Member](),
		stats:     newMetrics(rooms, promReg),
		log:       log,
	}
}

// handleMemberConnection serves one signaling socket until it dies.
func (h *Hub) handleMemberConnection(w http.ResponseWriter, r *http.Request) {
	client, err := h.connector.NewServer(w, r, h.log)
	if err != nil {
		h.log.Error().Err(err).Msg("peer connection fail")
		return
	}
	member := NewMember(client)
	log := h.log.Extend(h.log.With().Str("cid", member.Id().Short()))
	log.Info().Msg("Peer connected")

	member.OnPacket(func(in api.In) { h.dispatch(member, in, log) })

	h.members.Add(member)
	h.stats.connections.Inc()
	defer func() {
		h.evict(member, log)
		log.Info().Msg("Peer disconnected")
	}()

	<-member.Listen()
}

func (h *Hub) dispatch(member *Member, in api.In, log *logger.Logger) {
	switch in.T {
	case api.JoinRoom:
		rq := api.Unwrap[api.JoinRoomRequest](in.Payload)
		if rq == nil || rq.RoomId == "" {
			h.drop(log, in, "bad_request")
			return
		}
		h.join(member, in, rq.RoomId, log)
	case api.LeaveRoom:
		rq := api.Unwrap[api.LeaveRoomRequest](in.Payload)
		if rq == nil || rq.RoomId == "" {
			h.drop(log, in, "bad_request")
			return
		}
		h.leave(member, rq.RoomId, log)
	case api.RelayOffer, api.RelayAnswer, api.RelayCandidate:
		rq := api.Unwrap[api.RelayRequest](in.Payload)
		if rq == nil || rq.RoomId == "" || rq.To == network.EmptyUid {
			h.drop(log, in, "bad_request")
			return
		}
		h.relay(member, in.T, rq, log)
	default:
		h.drop(log, in, "unknown_type")
	}
}

// join puts the member into a room, leaving its previous room first
// when it was in another one. The caller gets an acknowledgement and
// the list of members already there; those get a join notification.
// Joining the same room twice just repeats the acknowledgement.
func (h *Hub) join(member *Member, in api.In, roomId string, log *logger.Logger) {
	if prev := member.Room(); prev != "" && prev != roomId {
		h.leave(member, prev, log)
	}
	h.rooms.Join(roomId, member, func(others []*Member, n int, again bool) {
		member.SetRoom(roomId)
		member.Route(in, api.Joined, api.JoinedResponse{RoomId: roomId, MemberCount: n})
		if len(others) > 0 {
			ids := make([]network.Uid, len(others))
			for i, o := range others {
				ids[i] = o.Id()
			}
			member.Notify(api.ExistingMembers, api.ExistingMembersResponse{Members: ids})
		}
		if !again {
			for _, o := range others {
				o.Notify(api.MemberJoined, api.MemberEvent{Id: member.Id()})
			}
		}
	})
	h.stats.joins.Inc()
	log.Debug().Str(logger.DirectionField, "←").Msgf("Join room [%v]", roomId)
}

func (h *Hub) leave(member *Member, roomId string, log *logger.Logger) {
	left := h.rooms.Leave(roomId, member, func(rest []*Member) {
		for _, o := range rest {
			o.Notify(api.MemberLeft, api.MemberEvent{Id: member.Id()})
		}
	})
	if left {
		member.SetRoom("")
		log.Debug().Str(logger.DirectionField, "←").Msgf("Leave room [%v]", roomId)
	}
}

// relay stamps the sender id onto the envelope and forwards it to the
// destination member. Envelopes to members that are already gone are
// dropped without an error, the sender will learn about the departure
// from the room events.
// relay addresses the destination by connection id alone, so an envelope
// still lands even when the sender's idea of the room is out of date.
// Only a dead destination makes it a silent no-op.
func (h *Hub) relay(member *Member, t api.PT, rq *api.RelayRequest, log *logger.Logger) {
	relayed, ok := api.Relayed(t)
	if !ok {
		h.stats.dropped.WithLabelValues("unknown_type").Inc()
		return
	}
	to, err := h.members.Find(rq.To)
	if err != nil {
		h.stats.dropped.WithLabelValues("stale_destination").Inc()
		log.Debug().Msgf("Stale %v to [%v]", t, rq.To.Short())
		return
	}
	to.Notify(relayed, api.RelayedMessage{From: member.Id(), Payload: rq.Payload})
	h.stats.relayed.WithLabelValues(t.String()).Inc()
	log.Debug().Str(logger.DirectionField, "→").Msgf("%v to [%v]", t, rq.To.Short())
}

// evict cleans up after a dropped connection, which for the rest of
// the room looks exactly like an explicit leave.
func (h *Hub) evict(member *Member, log *logger.Logger) {
	if room := member.Room(); room != "" {
		h.leave(member, room, log)
	}
	h.members.RemoveDisconnect(member)
	h.stats.connections.Dec()
}

func (h *Hub) drop(log *logger.Logger, in api.In, reason string) {
	h.stats.dropped.WithLabelValues(reason).Inc()
	log.Warn().Msgf("Drop %v (%v)", in.T, reason)
}
