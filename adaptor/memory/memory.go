// Package memory is the in-process room store: which sockets of a namespace
// are in which rooms.
//
// Room member sets are copy-on-write. A broadcast takes a snapshot with one
// atomic load and iterates it with no lock held, while joins and leaves
// replace the set under the lock of its stripe.
package memory

import (
	"hash/maphash"
	"sync"
	"sync/atomic"

	siot "github.com/relaymesh/socketio/transport"
)

type (
	SocketID  = siot.SocketID
	Namespace = siot.Namespace
	Room      = siot.Room
)

const stripes = 64

// everyone is the reserved room holding every socket of a namespace.
const everyone Room = ""

type set map[SocketID]struct{}

type members struct{ p atomic.Pointer[set] }

func (m *members) load() set {
	if s := m.p.Load(); s != nil {
		return *s
	}
	return nil
}

type key struct {
	nsp  Namespace
	name string // a room for the forward index, a socket id for the reverse one
}

type stripe struct {
	μ     sync.RWMutex
	rooms map[key]*members
}

type reverseStripe struct {
	μ     sync.Mutex
	rooms map[key]map[Room]struct{}
}

type Store struct {
	seed    maphash.Seed
	forward [stripes]stripe
	reverse [stripes]reverseStripe
}

func New() *Store {
	s := &Store{seed: maphash.MakeSeed()}
	for i := range s.forward {
		s.forward[i].rooms = make(map[key]*members)
		s.reverse[i].rooms = make(map[key]map[Room]struct{})
	}
	return s
}

func (s *Store) hash(k key) uint64 {
	var h maphash.Hash
	h.SetSeed(s.seed)
	h.WriteString(k.nsp)
	h.WriteByte(0)
	h.WriteString(k.name)
	return h.Sum64() % stripes
}

// Add registers a socket with its namespace.
func (s *Store) Add(nsp Namespace, id SocketID) {
	s.update(key{nsp, everyone}, id, true)
}

// Join puts a socket into rooms. Empty room names are rejected.
func (s *Store) Join(nsp Namespace, id SocketID, rooms ...Room) error {
	for _, room := range rooms {
		if room == everyone {
			return ErrInvalidRoom.F(room)
		}
	}

	rk := key{nsp, string(id)}
	rs := &s.reverse[s.hash(rk)]
	rs.μ.Lock()
	joined, ok := rs.rooms[rk]
	if !ok {
		joined = make(map[Room]struct{})
		rs.rooms[rk] = joined
	}
	var added []Room
	for _, room := range rooms {
		if _, ok := joined[room]; !ok {
			joined[room] = struct{}{}
			added = append(added, room)
		}
	}
	rs.μ.Unlock()

	for _, room := range added {
		s.update(key{nsp, room}, id, true)
	}
	return nil
}

// Leave takes a socket out of rooms.
func (s *Store) Leave(nsp Namespace, id SocketID, rooms ...Room) {
	rk := key{nsp, string(id)}
	rs := &s.reverse[s.hash(rk)]
	rs.μ.Lock()
	joined := rs.rooms[rk]
	var left []Room
	for _, room := range rooms {
		if _, ok := joined[room]; ok {
			delete(joined, room)
			left = append(left, room)
		}
	}
	if joined != nil && len(joined) == 0 {
		delete(rs.rooms, rk)
	}
	rs.μ.Unlock()

	for _, room := range left {
		s.update(key{nsp, room}, id, false)
	}
}

// Remove takes a socket out of every room of nsp and out of the namespace.
// It returns the rooms the socket was in.
func (s *Store) Remove(nsp Namespace, id SocketID) []Room {
	rk := key{nsp, string(id)}
	rs := &s.reverse[s.hash(rk)]
	rs.μ.Lock()
	joined := rs.rooms[rk]
	delete(rs.rooms, rk)
	rs.μ.Unlock()

	rooms := make([]Room, 0, len(joined))
	for room := range joined {
		s.update(key{nsp, room}, id, false)
		rooms = append(rooms, room)
	}
	s.update(key{nsp, everyone}, id, false)
	return rooms
}

func (s *Store) update(k key, id SocketID, add bool) {
	st := &s.forward[s.hash(k)]
	st.μ.Lock()
	defer st.μ.Unlock()

	m, ok := st.rooms[k]
	if !ok {
		if !add {
			return
		}
		m = new(members)
		st.rooms[k] = m
	}

	old := m.load()
	if _, in := old[id]; in == add {
		return
	}
	next := make(set, len(old)+1)
	for member := range old {
		next[member] = struct{}{}
	}
	if add {
		next[id] = struct{}{}
	} else {
		delete(next, id)
	}

	if len(next) == 0 {
		delete(st.rooms, k)
		return
	}
	m.p.Store(&next)
}

func (s *Store) snapshot(k key) set {
	st := &s.forward[s.hash(k)]
	st.μ.RLock()
	m := st.rooms[k]
	st.μ.RUnlock()
	if m == nil {
		return nil
	}
	return m.load()
}

// Rooms returns the rooms a socket is in.
func (s *Store) Rooms(nsp Namespace, id SocketID) []Room {
	rk := key{nsp, string(id)}
	rs := &s.reverse[s.hash(rk)]
	rs.μ.Lock()
	defer rs.μ.Unlock()

	rooms := make([]Room, 0, len(rs.rooms[rk]))
	for room := range rs.rooms[rk] {
		rooms = append(rooms, room)
	}
	return rooms
}

// Members returns the sockets in room, or every socket of nsp for the empty
// room name.
func (s *Store) Members(nsp Namespace, room Room) []SocketID {
	snap := s.snapshot(key{nsp, room})
	ids := make([]SocketID, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of sockets in room.
func (s *Store) Len(nsp Namespace, room Room) int { return len(s.snapshot(key{nsp, room})) }

// Select returns each socket that is in any of rooms (every socket of nsp
// when rooms is empty) and in none of except, exactly once.
func (s *Store) Select(nsp Namespace, rooms, except []Room) []SocketID {
	if len(rooms) == 0 {
		rooms = []Room{everyone}
	}

	skip := make(set)
	for _, room := range except {
		for id := range s.snapshot(key{nsp, room}) {
			skip[id] = struct{}{}
		}
	}

	var ids []SocketID
	for _, room := range rooms {
		for id := range s.snapshot(key{nsp, room}) {
			if _, ok := skip[id]; ok {
				continue
			}
			skip[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}
