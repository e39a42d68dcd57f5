package api

import (
	"github.com/goccy/go-json"

	"github.com/rostrumapp/rostrum/pkg/network"
)

type (
	// JoinRoomRequest and LeaveRoomRequest carry client-supplied
	// opaque room ids, not validated against any registry.
	JoinRoomRequest struct {
		RoomId string `json:"room_id"`
	}
	LeaveRoomRequest struct {
		RoomId string `json:"room_id"`
	}

	// RelayRequest is a point-to-point signaling envelope. The payload
	// is an opaque session description or an ICE candidate; the relay
	// forwards it verbatim. The sender identity is never read from
	// the payload.
	RelayRequest struct {
		RoomId  string          `json:"room_id"`
		To      network.Uid     `json:"to"`
		Payload json.RawMessage `json:"payload"`
	}

	JoinedResponse struct {
		RoomId      string `json:"room_id"`
		MemberCount int    `json:"member_count"`
	}
	ExistingMembersResponse struct {
		Members []network.Uid `json:"members"`
	}
	MemberEvent struct {
		Id network.Uid `json:"id"`
	}

	// RelayedMessage is a delivered envelope; From is always stamped
	// by the relay from the sending connection.
	RelayedMessage struct {
		From    network.Uid     `json:"from"`
		Payload json.RawMessage `json:"payload"`
	}
)

// Relayed maps a relay request type to its delivery type.
func Relayed(t PT) (PT, bool) {
	switch t {
	case RelayOffer:
		return RelayedOffer, true
	case RelayAnswer:
		return RelayedAnswer, true
	case RelayCandidate:
		return RelayedCandidate, true
	}
	return 0, false
}
