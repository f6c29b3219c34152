package transport

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eiop "github.com/relaymesh/socketio/engineio/protocol"
	siop "github.com/relaymesh/socketio/protocol"
)

type capture []eiop.Packet

func (c *capture) Send(packets ...eiop.Packet) error {
	*c = append(*c, packets...)
	return nil
}

func (c capture) wire(t *testing.T, v eiop.Version) (out []string) {
	for _, pac := range c {
		b, err := v.EncodeText(pac)
		require.NoError(t, err)
		out = append(out, string(b))
	}
	return out
}

func TestSend(t *testing.T) {
	tests := map[string]func() (*siop.Packet, []string){
		"Connect Root": func() (*siop.Packet, []string) {
			return new(siop.Packet).WithType(siop.ConnectPacket), []string{"40"}
		},
		"Disconnect Admin": func() (*siop.Packet, []string) {
			return new(siop.Packet).WithType(siop.DisconnectPacket).WithNamespace("/admin"), []string{"41/admin,"}
		},
		"Event": func() (*siop.Packet, []string) {
			return new(siop.Packet).WithType(siop.EventPacket).WithEvent("hello").WithData(1), []string{`42["hello",1]`}
		},
		"Ack": func() (*siop.Packet, []string) {
			return new(siop.Packet).WithType(siop.AckPacket).WithAckID(12).WithData("ok"), []string{`4312["ok"]`}
		},
		"Binary Event": func() (*siop.Packet, []string) {
			pac := new(siop.Packet).WithType(siop.EventPacket).WithEvent("up").WithData([]byte{1, 2})
			return pac, []string{`451-["up",{"_placeholder":true,"num":0}]`, "bAQI="}
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			pac, want := test()
			out := new(capture)
			tr := NewTransport(out, nil)

			require.NoError(t, tr.Send(pac))
			if diff := cmp.Diff(want, out.wire(t, eiop.EIO4)); diff != "" {
				t.Errorf("wire mismatch (-want +have):\n%s", diff)
			}
		})
	}
}

func TestReceive(t *testing.T) {
	tr := NewTransport(new(capture), siop.JSONParser{})

	decode := func(s string) eiop.Packet {
		pac, err := eiop.EIO4.DecodeText([]byte(s))
		require.NoError(t, err)
		return pac
	}

	pac, err := tr.Receive(decode("40"))
	require.NoError(t, err)
	assert.Equal(t, siop.ConnectPacket, pac.Type)
	assert.Equal(t, "/", pac.Nsp())

	pac, err = tr.Receive(decode(`42["hello",1]`))
	require.NoError(t, err)
	assert.Equal(t, "hello", pac.Event)
	assert.Equal(t, []interface{}{1.0}, pac.Data)

	// a binary event is held back until its attachment arrives
	pac, err = tr.Receive(decode(`451-/admin,3["up",{"_placeholder":true,"num":0}]`))
	require.NoError(t, err)
	assert.Nil(t, pac)
	assert.True(t, tr.Pending())

	pac, err = tr.Receive(eiop.Packet{T: eiop.MessagePacket, D: []byte{9}})
	require.NoError(t, err)
	require.NotNil(t, pac)
	assert.False(t, tr.Pending())
	assert.Equal(t, "/admin", pac.Nsp())
	assert.Equal(t, uint64(3), *pac.AckID)
	assert.Equal(t, []interface{}{[]byte{9}}, pac.Data)

	_, err = tr.Receive(eiop.Packet{T: eiop.MessagePacket, D: 42})
	assert.ErrorIs(t, err, ErrUnexpectedMessage)

	_, err = tr.Receive(eiop.Packet{T: eiop.MessagePacket, D: []byte{1}})
	assert.ErrorIs(t, err, siop.ErrUnexpectedAttachment)
}

func TestMsgpackRoundTrip(t *testing.T) {
	out := new(capture)
	tr := NewTransport(out, siop.MsgpackParser{})

	require.NoError(t, tr.Send(new(siop.Packet).WithType(siop.EventPacket).WithNamespace("/chat").WithEvent("msg").WithData("hi", []byte{7})))
	require.Len(t, *out, 1)
	assert.True(t, (*out)[0].IsBinary())

	pac, err := tr.Receive((*out)[0])
	require.NoError(t, err)
	assert.Equal(t, "/chat", pac.Nsp())
	assert.Equal(t, "msg", pac.Event)
	assert.Equal(t, []interface{}{"hi", []byte{7}}, pac.Data)
}
