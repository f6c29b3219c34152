package protocol

import (
	"fmt"

	"github.com/vmihailenco/msgpack"
)

// MsgpackParser encodes each packet as one binary msgpack map, the layout of
// the socket.io-msgpack-parser: {type, nsp, data, id}. Binary values stay
// inline, so packets never wait for attachments.
type MsgpackParser struct{}

type msgpackPacket struct {
	Type PacketType  `msgpack:"type"`
	Nsp  string      `msgpack:"nsp"`
	Data interface{} `msgpack:"data,omitempty"`
	ID   *uint64     `msgpack:"id,omitempty"`
}

func (MsgpackParser) Encode(pac *Packet) ([]Frame, error) {
	mp := msgpackPacket{Type: pac.Type, Nsp: pac.Nsp(), ID: pac.AckID}

	switch pac.Type {
	case EventPacket, BinaryEventPacket:
		mp.Type = EventPacket
		mp.Data = append([]interface{}{pac.Event}, pac.Data...)
	case AckPacket, BinaryAckPacket:
		mp.Type = AckPacket
		mp.Data = pac.Data
		if mp.Data == nil {
			mp.Data = []interface{}{}
		}
	case ConnectPacket, ErrorPacket:
		if len(pac.Data) > 0 {
			mp.Data = pac.Data[0]
		}
	}

	b, err := msgpack.Marshal(&mp)
	if err != nil {
		return nil, ErrEncodePayload.F(err)
	}
	return []Frame{{Data: b, Binary: true}}, nil
}

func (MsgpackParser) NewDecoder() Decoder { return msgpackDecoder{} }

type msgpackDecoder struct{}

func (msgpackDecoder) Pending() bool { return false }

func (msgpackDecoder) Add(f Frame) (*Packet, error) {
	if !f.Binary {
		return nil, ErrUnexpectedFrame
	}

	var mp msgpackPacket
	if err := msgpack.Unmarshal(f.Data, &mp); err != nil {
		return nil, ErrDecodeMsgpack.F(err)
	}

	pac := &Packet{Type: mp.Type, Namespace: NormalizeNamespace(mp.Nsp), AckID: mp.ID}
	data := stringKeys(mp.Data)

	switch mp.Type {
	case EventPacket, BinaryEventPacket:
		arr, _ := data.([]interface{})
		if len(arr) == 0 {
			return nil, ErrInvalidEvent
		}
		name, ok := arr[0].(string)
		if !ok {
			return nil, ErrInvalidEvent
		}
		pac.Type, pac.Event, pac.Data = EventPacket, name, arr[1:]
	case AckPacket, BinaryAckPacket:
		arr, _ := data.([]interface{})
		pac.Type, pac.Data = AckPacket, arr
	case ConnectPacket, ErrorPacket:
		if data != nil {
			pac.Data = []interface{}{data}
		}
	}
	return pac, nil
}

// stringKeys converts decoded msgpack maps to map[string]interface{} so that
// handlers see the same shapes as with JSON.
func stringKeys(v interface{}) interface{} {
	switch val := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, x := range val {
			out[fmt.Sprint(k)] = stringKeys(x)
		}
		return out
	case map[string]interface{}:
		for k, x := range val {
			val[k] = stringKeys(x)
		}
	case []interface{}:
		for i, x := range val {
			val[i] = stringKeys(x)
		}
	}
	return v
}
