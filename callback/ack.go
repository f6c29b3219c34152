package callback

import "time"

// Ack receives the outcome of an emitted packet that asked for an
// acknowledgment. Exactly one of the two methods is called, at most once.
type Ack interface {
	OnSuccess(...interface{})
	OnTimeout()
}

// AckFunc only cares about the reply.
type AckFunc func(...interface{})

func (fn AckFunc) OnSuccess(v ...interface{}) { fn(v...) }
func (AckFunc) OnTimeout()                    {}

// AckWithTimeout handles both outcomes. Either func may be nil. After, when
// set, replaces the server's ack timeout for this one packet.
type AckWithTimeout struct {
	Success func(...interface{})
	Timeout func()
	After   time.Duration
}

func (a AckWithTimeout) AckTimeout() time.Duration { return a.After }

func (a AckWithTimeout) OnSuccess(v ...interface{}) {
	if a.Success != nil {
		a.Success(v...)
	}
}

func (a AckWithTimeout) OnTimeout() {
	if a.Timeout != nil {
		a.Timeout()
	}
}
