// Package pubsub carries broadcasts between server nodes. A node publishes
// every broadcast as an Envelope on the topic of its namespace; the other
// nodes deliver it to their own local sockets.
package pubsub

import (
	"context"
	"log/slog"
	"strings"

	"github.com/vmihailenco/msgpack"

	sios "github.com/relaymesh/socketio/session"
)

// TopicPrefix is followed by the namespace, e.g. "socketio#/chat".
const TopicPrefix = "socketio#"

func Topic(nsp string) string { return TopicPrefix + nsp }

type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Subscriber delivers every message whose topic matches pattern until ctx is
// done. A pattern ending in '*' matches by prefix.
type Subscriber interface {
	Subscribe(ctx context.Context, pattern string, fn func(topic string, payload []byte)) error
}

// Message is the part of a socket packet that crosses nodes.
type Message struct {
	Type  byte          `msgpack:"type"`
	Event string        `msgpack:"event,omitempty"`
	Data  []interface{} `msgpack:"data,omitempty"`
}

type Envelope struct {
	UID    string   `msgpack:"uid"`
	Nsp    string   `msgpack:"nsp"`
	Rooms  []string `msgpack:"rooms,omitempty"`
	Except []string `msgpack:"except,omitempty"`
	Packet Message  `msgpack:"packet"`
}

type Adapter struct {
	uid string
	pub Publisher
	sub Subscriber
	log *slog.Logger
}

// New returns an Adapter with a fresh node id.
func New(pub Publisher, sub Subscriber) *Adapter {
	return &Adapter{
		uid: string(sios.GenerateID()),
		pub: pub,
		sub: sub,
		log: slog.Default().With("component", "pubsub"),
	}
}

func (a *Adapter) UID() string { return a.uid }

func (a *Adapter) WithLogger(log *slog.Logger) *Adapter {
	a.log = log.With("component", "pubsub")
	return a
}

// Publish stamps env with this node's id and sends it.
func (a *Adapter) Publish(ctx context.Context, env Envelope) error {
	env.UID = a.uid
	b, err := msgpack.Marshal(&env)
	if err != nil {
		return ErrEncodeEnvelope.F(err)
	}
	return a.pub.Publish(ctx, Topic(env.Nsp), b)
}

// Run hands deliver every envelope published by other nodes until ctx is
// done. Envelopes this node published are skipped.
func (a *Adapter) Run(ctx context.Context, deliver func(Envelope)) error {
	return a.sub.Subscribe(ctx, TopicPrefix+"*", func(topic string, payload []byte) {
		var env Envelope
		if err := msgpack.Unmarshal(payload, &env); err != nil {
			a.log.Warn("dropped envelope", "err", ErrDecodeEnvelope.F(topic, err))
			return
		}
		if env.UID == a.uid {
			return
		}
		env.Packet.Data = normalize(env.Packet.Data)
		deliver(env)
	})
}

// normalize turns the map[interface{}]interface{} values msgpack decodes
// into the map[string]interface{} JSON decoding gives handlers.
func normalize(data []interface{}) []interface{} {
	for i, v := range data {
		data[i] = stringKeys(v)
	}
	return data
}

func stringKeys(v interface{}) interface{} {
	switch v := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(v))
		for k, val := range v {
			if s, ok := k.(string); ok {
				m[s] = stringKeys(val)
			}
		}
		return m
	case []interface{}:
		return normalize(v)
	}
	return v
}

func match(pattern, topic string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(topic, prefix)
	}
	return pattern == topic
}
