package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONDecoderDefersUntilLoaded(t *testing.T) {
	var parser Parser = JSONParser{}

	frames, err := parser.Encode(&Packet{
		Type:  EventPacket,
		Event: "file",
		Data:  []interface{}{[]byte("one"), []byte("two")},
	})
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.False(t, frames[0].Binary)
	assert.True(t, frames[1].Binary)
	assert.True(t, frames[2].Binary)

	dec := parser.NewDecoder()

	pac, err := dec.Add(frames[0])
	assert.NoError(t, err)
	assert.Nil(t, pac, "deferred until its attachments arrive")
	assert.True(t, dec.Pending())

	pac, err = dec.Add(frames[1])
	assert.NoError(t, err)
	assert.Nil(t, pac)

	pac, err = dec.Add(frames[2])
	assert.NoError(t, err)
	require.NotNil(t, pac)
	assert.False(t, dec.Pending())
	assert.Equal(t, "file", pac.Event)
	assert.Equal(t, []interface{}{[]byte("one"), []byte("two")}, pac.Data)
}

func TestJSONDecoderErrors(t *testing.T) {
	dec := JSONParser{}.NewDecoder()

	_, err := dec.Add(Frame{Data: []byte{1}, Binary: true})
	assert.ErrorIs(t, err, ErrUnexpectedAttachment)

	pac, err := dec.Add(Frame{Data: []byte(`51-["a",{"_placeholder":true,"num":0}]`)})
	assert.NoError(t, err)
	assert.Nil(t, pac)

	// A text frame while attachments are still owed abandons the pending packet.
	pac, err = dec.Add(Frame{Data: []byte(`2["b"]`)})
	assert.ErrorIs(t, err, ErrMissingAttachments)
	require.NotNil(t, pac)
	assert.Equal(t, "b", pac.Event)
	assert.False(t, dec.Pending())
}

func TestMsgpackParser(t *testing.T) {
	var parser Parser = MsgpackParser{}

	packets := map[string]*Packet{
		"Connect":   {Type: ConnectPacket, Namespace: "/admin", Data: []interface{}{map[string]interface{}{"token": "abc"}}},
		"Event":     {Type: EventPacket, Event: "hello", Data: []interface{}{"world", true, []byte{1, 2}}},
		"Event Ack": {Type: EventPacket, Namespace: "/chat", AckID: ackID(42), Event: "ask", Data: []interface{}{"q"}},
		"Ack":       {Type: AckPacket, AckID: ackID(42), Data: []interface{}{"a"}},
	}

	for name, in := range packets {
		t.Run(name, func(t *testing.T) {
			frames, err := parser.Encode(in)
			require.NoError(t, err)
			require.Len(t, frames, 1)
			assert.True(t, frames[0].Binary)

			out, err := parser.NewDecoder().Add(frames[0])
			require.NoError(t, err)
			assert.Equal(t, in.Type, out.Type)
			assert.Equal(t, in.Namespace, out.Namespace)
			assert.Equal(t, in.AckID, out.AckID)
			assert.Equal(t, in.Event, out.Event)
			assert.Equal(t, in.Data, out.Data)
		})
	}

	_, err := parser.NewDecoder().Add(Frame{Data: []byte("2")})
	assert.ErrorIs(t, err, ErrUnexpectedFrame)
}
