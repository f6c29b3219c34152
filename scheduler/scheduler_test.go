package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler(t *testing.T) {
	type (
		testFn       func(*testing.T)
		testParamsFn func(*testing.T) (s *Scheduler, fired *int32, want int32, live int)
	)

	key := Key{Owner: "sid", Name: "ping"}

	spec := map[string]testParamsFn{
		"Fires once": func(*testing.T) (*Scheduler, *int32, int32, int) {
			s, n := New(), new(int32)
			s.Schedule(key, time.Millisecond, func() { atomic.AddInt32(n, 1) })
			return s, n, 1, 0
		},
		"Reschedule replaces": func(*testing.T) (*Scheduler, *int32, int32, int) {
			s, n := New(), new(int32)
			s.Schedule(key, 5*time.Millisecond, func() { atomic.AddInt32(n, 100) })
			s.Schedule(key, time.Millisecond, func() { atomic.AddInt32(n, 1) })
			return s, n, 1, 0
		},
		"Cancel": func(*testing.T) (*Scheduler, *int32, int32, int) {
			s, n := New(), new(int32)
			s.Schedule(key, 5*time.Millisecond, func() { atomic.AddInt32(n, 1) })
			s.Cancel(key)
			return s, n, 0, 0
		},
		"Cancel owner": func(*testing.T) (*Scheduler, *int32, int32, int) {
			s, n := New(), new(int32)
			s.Schedule(Key{"sid", "ping"}, 5*time.Millisecond, func() { atomic.AddInt32(n, 1) })
			s.Schedule(Key{"sid", "ack:1"}, 5*time.Millisecond, func() { atomic.AddInt32(n, 1) })
			s.Schedule(Key{"other", "ping"}, time.Hour, func() { atomic.AddInt32(n, 1) })
			s.CancelOwner("sid")
			return s, n, 0, 1
		},
		"Closed": func(*testing.T) (*Scheduler, *int32, int32, int) {
			s, n := New(), new(int32)
			s.Schedule(key, 5*time.Millisecond, func() { atomic.AddInt32(n, 1) })
			s.Close()
			assert.False(t, s.Schedule(key, time.Millisecond, func() { atomic.AddInt32(n, 1) }))
			return s, n, 0, 0
		},
	}

	run := func(s *Scheduler, fired *int32, want int32, live int) testFn {
		return func(t *testing.T) {
			defer leaktest.Check(t)()
			time.Sleep(30 * time.Millisecond)
			assert.Equal(t, want, atomic.LoadInt32(fired))
			assert.Equal(t, live, s.Len())
			s.Close()
		}
	}

	for name, testParams := range spec {
		t.Run(name, run(testParams(t)))
	}
}

func TestSchedulerConcurrentReschedule(t *testing.T) {
	s := New()
	defer s.Close()

	var n int32
	var wg sync.WaitGroup
	key := Key{Owner: "sid", Name: "ping"}
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Schedule(key, 2*time.Millisecond, func() { atomic.AddInt32(&n, 1) })
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return !s.Pending(key) }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&n))
}

func TestSchedulerOwned(t *testing.T) {
	s := New()
	defer s.Close()

	s.Schedule(Key{"a", "ping"}, time.Hour, func() {})
	s.Schedule(Key{"a", "upgrade"}, time.Hour, func() {})
	s.Schedule(Key{"b", "ping"}, time.Hour, func() {})

	assert.Equal(t, 2, s.Owned("a"))
	assert.Equal(t, 3, s.Len())
	assert.True(t, s.Cancel(Key{"a", "ping"}))
	assert.False(t, s.Cancel(Key{"a", "ping"}))
	assert.Equal(t, 1, s.CancelOwner("a"))
	assert.Equal(t, 1, s.Len())
}
