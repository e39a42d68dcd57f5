// Package api defines the signaling protocol between peers and the relay.
//
// Each message (request and response) is a JSON-encoded "packet" of the
// following structure:
//
//	id - (optional) a globally unique packet id;
//	 t - (required) one of the predefined unique packet types;
//	 p - (optional) packet payload with arbitrary data.
//
// The packets differentiate by their predefined types with which it is
// possible to unwrap the payload into distinct request/response data
// structures. The id field is used for tracking request/response pairs
// when a reply is expected.
package api

import (
	"github.com/goccy/go-json"

	"github.com/rostrumapp/rostrum/pkg/network"
)

type PT uint8

type In struct {
	Id      network.Uid     `json:"id,omitempty"`
	T       PT              `json:"t"`
	Payload json.RawMessage `json:"p,omitempty"` // should be json.RawMessage for 2-pass unmarshal
}

type Out struct {
	Id      string `json:"id,omitempty"`
	T       uint8  `json:"t"`
	Payload any    `json:"p,omitempty"`
}

// Packet codes:
//
//	1x - client requests
//	2x - client relay requests
//	3x - server room events
//	4x - server relay deliveries
const (
	JoinRoom  PT = 10
	LeaveRoom PT = 11

	RelayOffer     PT = 20
	RelayAnswer    PT = 21
	RelayCandidate PT = 22

	Joined          PT = 30
	ExistingMembers PT = 31
	MemberJoined    PT = 32
	MemberLeft      PT = 33

	RelayedOffer     PT = 40
	RelayedAnswer    PT = 41
	RelayedCandidate PT = 42
)

func (p PT) String() string {
	switch p {
	case JoinRoom:
		return "JoinRoom"
	case LeaveRoom:
		return "LeaveRoom"
	case RelayOffer:
		return "RelayOffer"
	case RelayAnswer:
		return "RelayAnswer"
	case RelayCandidate:
		return "RelayCandidate"
	case Joined:
		return "Joined"
	case ExistingMembers:
		return "ExistingMembers"
	case MemberJoined:
		return "MemberJoined"
	case MemberLeft:
		return "MemberLeft"
	case RelayedOffer:
		return "RelayedOffer"
	case RelayedAnswer:
		return "RelayedAnswer"
	case RelayedCandidate:
		return "RelayedCandidate"
	default:
		return "Unknown"
	}
}

// Unwrap deserializes a packet payload into the T struct,
// returns nil on malformed input.
func Unwrap[T any](data []byte) *T {
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil
	}
	return out
}
