// Package transport carries socket packets over an engine session: each
// socket packet becomes one or more engine MESSAGE packets, and inbound
// messages are reassembled, attachments included, into socket packets.
package transport

import (
	"sync"

	eiop "github.com/relaymesh/socketio/engineio/protocol"
	eios "github.com/relaymesh/socketio/engineio/session"
	siop "github.com/relaymesh/socketio/protocol"
	sios "github.com/relaymesh/socketio/session"
)

type (
	SessionID = eios.ID
	SocketID  = sios.ID

	Namespace = string
	Room      = string
)

// Sender queues engine packets in order. An engine session is a Sender.
type Sender interface {
	Send(...eiop.Packet) error
}

type Transport struct {
	out    Sender
	parser siop.Parser

	// an upgrade briefly lets two connections deliver at once
	μ       sync.Mutex
	decoder siop.Decoder
}

func NewTransport(out Sender, parser siop.Parser) *Transport {
	if parser == nil {
		parser = siop.JSONParser{}
	}
	return &Transport{out: out, parser: parser, decoder: parser.NewDecoder()}
}

// Send encodes pac and queues it with its attachments in one call, so no
// other packet of the session lands between them.
func (t *Transport) Send(pac *siop.Packet) error {
	frames, err := t.parser.Encode(pac)
	if err != nil {
		return ErrEncodeFailed.F(pac.Type, err)
	}
	return t.out.Send(Messages(frames)...)
}

// Receive feeds one engine MESSAGE to the decoder. It returns nil without an
// error while a packet is still missing attachments.
func (t *Transport) Receive(msg eiop.Packet) (*siop.Packet, error) {
	var f siop.Frame
	switch d := msg.D.(type) {
	case string:
		f = siop.Frame{Data: []byte(d)}
	case []byte:
		f = siop.Frame{Data: d, Binary: true}
	default:
		return nil, ErrUnexpectedMessage.F(msg.D)
	}

	t.μ.Lock()
	defer t.μ.Unlock()
	return t.decoder.Add(f)
}

// Pending reports whether a packet is waiting for attachments.
func (t *Transport) Pending() bool {
	t.μ.Lock()
	defer t.μ.Unlock()
	return t.decoder.Pending()
}

// Messages wraps encoded frames as engine MESSAGE packets.
func Messages(frames []siop.Frame) []eiop.Packet {
	out := make([]eiop.Packet, len(frames))
	for i, f := range frames {
		if f.Binary {
			out[i] = eiop.Packet{T: eiop.MessagePacket, D: f.Data}
			continue
		}
		out[i] = eiop.Packet{T: eiop.MessagePacket, D: string(f.Data)}
	}
	return out
}
