package memory

import (
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sorted[T ~string](v []T) []T {
	sort.Slice(v, func(i, j int) bool { return v[i] < v[j] })
	return v
}

func TestStore(t *testing.T) {
	s := New()
	for _, id := range []SocketID{"a", "b", "c", "d", "e"} {
		s.Add("/", id)
		require.NoError(t, s.Join("/", id, Room(id), "lobby"))
	}
	require.NoError(t, s.Join("/", "a", "admins"))
	require.NoError(t, s.Join("/chat", "a", "lobby"))

	tests := map[string]func() (rooms, except []Room, want []SocketID){
		"Room": func() ([]Room, []Room, []SocketID) {
			return []Room{"lobby"}, nil, []SocketID{"a", "b", "c", "d", "e"}
		},
		"Room Except One": func() ([]Room, []Room, []SocketID) {
			return []Room{"lobby"}, []Room{"c"}, []SocketID{"a", "b", "d", "e"}
		},
		"Union Once": func() ([]Room, []Room, []SocketID) {
			return []Room{"lobby", "admins", "a"}, nil, []SocketID{"a", "b", "c", "d", "e"}
		},
		"Namespace": func() ([]Room, []Room, []SocketID) {
			return nil, []Room{"admins"}, []SocketID{"b", "c", "d", "e"}
		},
		"Unknown Room": func() ([]Room, []Room, []SocketID) {
			return []Room{"nobody"}, nil, nil
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			rooms, except, want := test()
			assert.Equal(t, want, sorted(s.Select("/", rooms, except)))
		})
	}

	assert.Equal(t, []Room{"a", "admins", "lobby"}, sorted(s.Rooms("/", "a")))
	assert.Equal(t, []SocketID{"a"}, s.Members("/chat", "lobby"))
	assert.Equal(t, 5, s.Len("/", "lobby"))
	assert.ErrorIs(t, s.Join("/", "a", ""), ErrInvalidRoom)

	s.Leave("/", "a", "admins", "never-joined")
	assert.Zero(t, s.Len("/", "admins"))

	assert.Equal(t, []Room{"b", "lobby"}, sorted(s.Remove("/", "b")))
	assert.Empty(t, s.Rooms("/", "b"))
	assert.Equal(t, 4, s.Len("/", "lobby"))
	assert.NotContains(t, s.Select("/", nil, nil), SocketID("b"))
	assert.Equal(t, 1, s.Len("/chat", "lobby"), "other namespaces are untouched")
}

func TestStoreSnapshot(t *testing.T) {
	s := New()
	require.NoError(t, s.Join("/", "a", "r"))

	snap := s.snapshot(key{"/", "r"})
	require.NoError(t, s.Join("/", "b", "r"))
	assert.Len(t, snap, 1, "a snapshot never changes under its reader")
	assert.Equal(t, 2, s.Len("/", "r"))
}

func TestStoreConcurrent(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id SocketID) {
			defer wg.Done()
			s.Add("/", id)
			for j := 0; j < 20; j++ {
				room := Room(fmt.Sprint("room-", j%4))
				assert.NoError(t, s.Join("/", id, room))
				s.Select("/", []Room{room}, nil)
			}
			s.Leave("/", id, "room-0")
		}(SocketID(fmt.Sprint("s", i)))
	}
	wg.Wait()

	assert.Zero(t, s.Len("/", "room-0"))
	assert.Equal(t, 50, s.Len("/", "room-3"))
	assert.Len(t, s.Select("/", nil, nil), 50)
}
