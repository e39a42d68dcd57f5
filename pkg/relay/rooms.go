package relay

import "sync"

type (
	// Registry tracks active rooms. Rooms are created lazily on the
	// first join and removed when the last member leaves. The registry
	// lock guards only the map; all membership changes and the sends
	// announcing them happen under the room lock, which gives every
	// member one total order of room events.
	Registry struct {
		mu    sync.Mutex
		rooms map[string]*Room
	}
	Room struct {
		id string

		mu      sync.Mutex
		dead    bool
		members []*Member // in join order
	}
)

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room, 10)}
}

func (reg *Registry) room(id string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	room := reg.rooms[id]
	if room == nil {
		room = &Room{id: id}
		reg.rooms[id] = room
	}
	return room
}

func (reg *Registry) find(id string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.rooms[id]
}

// drop removes an emptied room from the map unless it has been
// replaced by a newer room with the same id in the meantime.
func (reg *Registry) drop(room *Room) {
	reg.mu.Lock()
	if reg.rooms[room.id] == room {
		delete(reg.rooms, room.id)
	}
	reg.mu.Unlock()
}

// Join adds m to the room with the given id. announce is called under
// the room lock with the members present before the join, in join
// order, the new member count, and whether m was there already (then
// the membership is unchanged). Joins of dead rooms are retried since
// the room could have been emptied and dropped concurrently.
func (reg *Registry) Join(id string, m *Member, announce func(others []*Member, n int, again bool)) {
	for {
		room := reg.room(id)
		if room.join(m, announce) {
			return
		}
	}
}

func (r *Room) join(m *Member, announce func(others []*Member, n int, again bool)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dead {
		return false
	}
	for _, member := range r.members {
		if member == m {
			announce(r.others(m), len(r.members), true)
			return true
		}
	}
	others := r.others(m)
	r.members = append(r.members, m)
	announce(others, len(r.members), false)
	return true
}

// Leave removes m from the room with the given id, announcing the
// remaining members under the room lock. It is a no-op when the room
// doesn't exist or m is not its member. Emptied rooms are dropped.
func (reg *Registry) Leave(id string, m *Member, announce func(rest []*Member)) bool {
	room := reg.find(id)
	if room == nil {
		return false
	}
	left, empty := room.leave(m, announce)
	if empty {
		reg.drop(room)
	}
	return left
}

func (r *Room) leave(m *Member, announce func(rest []*Member)) (left bool, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, member := range r.members {
		if member == m {
			r.members = append(r.members[:i], r.members[i+1:]...)
			left = true
			break
		}
	}
	if !left {
		return false, false
	}
	if len(r.members) == 0 {
		r.dead = true
		return true, true
	}
	if announce != nil {
		announce(append([]*Member(nil), r.members...))
	}
	return true, false
}

func (r *Room) others(m *Member) []*Member {
	others := make([]*Member, 0, len(r.members))
	for _, member := range r.members {
		if member != m {
			others = append(others, member)
		}
	}
	return others
}

// Counts reports the number of active rooms and members in them.
func (reg *Registry) Counts() (rooms int, members int) {
	reg.mu.Lock()
	list := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		list = append(list, room)
	}
	reg.mu.Unlock()
	for _, room := range list {
		room.mu.Lock()
		if !room.dead {
			rooms++
			members += len(room.members)
		}
		room.mu.Unlock()
	}
	return
}
