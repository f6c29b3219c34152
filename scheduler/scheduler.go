// Package scheduler runs keyed, cancellable, single-shot delayed tasks.
//
// Heartbeats, ack timeouts, upgrade probes and first-data deadlines all go
// through one Scheduler. A task is identified by a Key made of an owner (a
// session id) and a name. At most one task is live per key: scheduling an
// existing key cancels the previous task atomically, so at most one action
// ever fires per key. All tasks of an owner can be cancelled at once when the
// owner goes away.
//
// The tasks sit on the runtime timer heap, so resource usage is bounded by
// the number of live keys, that is O(active sessions).
package scheduler

import (
	"hash/maphash"
	"sync"
	"sync/atomic"
	"time"
)

const shardCount = 32

// Key names a task. Owner groups the tasks that are cancelled together.
type Key struct {
	Owner string
	Name  string
}

func (k Key) String() string { return k.Owner + "/" + k.Name }

// Scheduler is safe for concurrent use. The zero value is not usable, use New.
type Scheduler struct {
	seed   maphash.Seed
	shards [shardCount]shard
	closed atomic.Bool
	live   atomic.Int64
}

type shard struct {
	μ     sync.Mutex
	tasks map[string]map[string]*task // owner → name → task
}

type task struct {
	key   Key
	timer *time.Timer
}

// New returns an empty Scheduler.
func New() *Scheduler {
	s := &Scheduler{seed: maphash.MakeSeed()}
	for i := range s.shards {
		s.shards[i].tasks = make(map[string]map[string]*task)
	}
	return s
}

func (s *Scheduler) shard(owner string) *shard {
	return &s.shards[maphash.String(s.seed, owner)%shardCount]
}

// Schedule runs fn once after d unless the key is cancelled or scheduled
// again first. It reports false if the scheduler is closed.
func (s *Scheduler) Schedule(key Key, d time.Duration, fn func()) bool {
	if s.closed.Load() {
		return false
	}

	sh := s.shard(key.Owner)
	sh.μ.Lock()
	defer sh.μ.Unlock()

	names, ok := sh.tasks[key.Owner]
	if !ok {
		names = make(map[string]*task)
		sh.tasks[key.Owner] = names
	}
	if prev, ok := names[key.Name]; ok {
		prev.timer.Stop()
		s.live.Add(-1)
	}

	t := &task{key: key}
	names[key.Name] = t
	s.live.Add(1)
	// fire needs the shard lock, so it cannot observe the map before t is in it.
	t.timer = time.AfterFunc(d, func() { s.fire(t, fn) })
	return true
}

func (s *Scheduler) fire(t *task, fn func()) {
	sh := s.shard(t.key.Owner)
	sh.μ.Lock()
	names := sh.tasks[t.key.Owner]
	if names[t.key.Name] != t {
		sh.μ.Unlock()
		return // cancelled or replaced
	}
	delete(names, t.key.Name)
	if len(names) == 0 {
		delete(sh.tasks, t.key.Owner)
	}
	s.live.Add(-1)
	sh.μ.Unlock()

	fn()
}

// Cancel stops the task for key. It reports whether a live task was removed.
// Once Cancel returns the task's action will not start.
func (s *Scheduler) Cancel(key Key) bool {
	sh := s.shard(key.Owner)
	sh.μ.Lock()
	defer sh.μ.Unlock()

	names, ok := sh.tasks[key.Owner]
	if !ok {
		return false
	}
	t, ok := names[key.Name]
	if !ok {
		return false
	}
	t.timer.Stop()
	delete(names, key.Name)
	if len(names) == 0 {
		delete(sh.tasks, key.Owner)
	}
	s.live.Add(-1)
	return true
}

// CancelOwner stops every task of owner and returns how many were removed.
func (s *Scheduler) CancelOwner(owner string) int {
	sh := s.shard(owner)
	sh.μ.Lock()
	defer sh.μ.Unlock()

	names := sh.tasks[owner]
	for _, t := range names {
		t.timer.Stop()
	}
	delete(sh.tasks, owner)
	s.live.Add(-int64(len(names)))
	return len(names)
}

// Pending reports whether key has a live task.
func (s *Scheduler) Pending(key Key) bool {
	sh := s.shard(key.Owner)
	sh.μ.Lock()
	defer sh.μ.Unlock()
	_, ok := sh.tasks[key.Owner][key.Name]
	return ok
}

// Owned returns the number of live tasks of owner.
func (s *Scheduler) Owned(owner string) int {
	sh := s.shard(owner)
	sh.μ.Lock()
	defer sh.μ.Unlock()
	return len(sh.tasks[owner])
}

// Len returns the number of live tasks.
func (s *Scheduler) Len() int { return int(s.live.Load()) }

// Close cancels every task and refuses new ones.
func (s *Scheduler) Close() {
	s.closed.Store(true)
	for i := range s.shards {
		sh := &s.shards[i]
		sh.μ.Lock()
		for owner, names := range sh.tasks {
			for _, t := range names {
				t.timer.Stop()
			}
			s.live.Add(-int64(len(names)))
			delete(sh.tasks, owner)
		}
		sh.μ.Unlock()
	}
}
