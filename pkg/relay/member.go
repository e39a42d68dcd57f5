package relay

import (
	"sync"

	"github.com/rostrumapp/rostrum/pkg/com"
	"github.com/rostrumapp/rostrum/pkg/network"
)

// Member is one connected signaling peer. Identity is assigned by the
// relay on connect and kept for the lifetime of the socket.
type Member struct {
	*com.Client

	id network.Uid

	mu   sync.Mutex
	room string
}

func NewMember(client *com.Client) *Member {
	return &Member{Client: client, id: network.NewUid()}
}

func (m *Member) Id() network.Uid { return m.id }

func (m *Member) Disconnect() { m.Close() }

// Room returns the id of the room the member currently sits in,
// "" when it hasn't joined any.
func (m *Member) Room() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.room
}

func (m *Member) SetRoom(id string) {
	m.mu.Lock()
	m.room = id
	m.mu.Unlock()
}
