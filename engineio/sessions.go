package engineio

import (
	"hash/maphash"
	"sync"
)

const sessionShards = 32

// sessions is the registry of live sessions, striped so that handshakes and
// lookups of unrelated sessions do not contend.
type sessions struct {
	seed   maphash.Seed
	shards [sessionShards]struct {
		μ sync.RWMutex
		m map[SessionID]*Session
	}
}

func newSessions() *sessions {
	s := &sessions{seed: maphash.MakeSeed()}
	for i := range s.shards {
		s.shards[i].m = make(map[SessionID]*Session)
	}
	return s
}

func (s *sessions) shard(id SessionID) int {
	return int(maphash.String(s.seed, string(id)) % sessionShards)
}

// add stores sess unless its id is taken.
func (s *sessions) add(sess *Session) bool {
	sh := &s.shards[s.shard(sess.ID)]
	sh.μ.Lock()
	defer sh.μ.Unlock()
	if _, ok := sh.m[sess.ID]; ok {
		return false
	}
	sh.m[sess.ID] = sess
	return true
}

func (s *sessions) get(id SessionID) (*Session, bool) {
	sh := &s.shards[s.shard(id)]
	sh.μ.RLock()
	defer sh.μ.RUnlock()
	sess, ok := sh.m[id]
	return sess, ok
}

func (s *sessions) remove(id SessionID) {
	sh := &s.shards[s.shard(id)]
	sh.μ.Lock()
	delete(sh.m, id)
	sh.μ.Unlock()
}

func (s *sessions) len() (n int) {
	for i := range s.shards {
		s.shards[i].μ.RLock()
		n += len(s.shards[i].m)
		s.shards[i].μ.RUnlock()
	}
	return n
}

// all returns a snapshot; sessions may close while the caller iterates.
func (s *sessions) all() []*Session {
	var out []*Session
	for i := range s.shards {
		s.shards[i].μ.RLock()
		for _, sess := range s.shards[i].m {
			out = append(out, sess)
		}
		s.shards[i].μ.RUnlock()
	}
	return out
}
