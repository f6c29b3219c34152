package protocol

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Encode returns the text form of pac and the attachments that must follow it
// as binary frames, in order.
//
// Binary values inside an EVENT or ACK payload turn the packet into a
// BINARY_EVENT or BINARY_ACK. pac itself is not modified.
func Encode(pac *Packet) ([]byte, [][]byte, error) {
	if !pac.Type.Valid() {
		return nil, nil, ErrUnknownPacketType.F(strconv.Itoa(int(pac.Type)))
	}

	var (
		typ         = pac.Type
		payload     interface{}
		attachments [][]byte
	)

	switch typ {
	case EventPacket, BinaryEventPacket:
		arr := make([]interface{}, 0, 1+len(pac.Data))
		arr = append(arr, pac.Event)
		payload = append(arr, pac.Data...)
	case AckPacket, BinaryAckPacket:
		arr := pac.Data
		if arr == nil {
			arr = []interface{}{}
		}
		payload = arr
	case ConnectPacket, ErrorPacket:
		if len(pac.Data) > 0 {
			payload = pac.Data[0]
		}
	}

	switch typ {
	case EventPacket, AckPacket, BinaryEventPacket, BinaryAckPacket:
		if hasBinary(payload) {
			payload = takeBinary(payload, &attachments)
			if typ == EventPacket {
				typ = BinaryEventPacket
			} else if typ == AckPacket {
				typ = BinaryAckPacket
			}
		} else if typ.IsBinary() {
			attachments = pac.Attachments // already placeholders
		}
	}

	buf := []byte{byte(typ) + '0'}
	if typ.IsBinary() {
		buf = strconv.AppendInt(buf, int64(len(attachments)), 10)
		buf = append(buf, '-')
	}
	if ns := NormalizeNamespace(pac.Namespace); ns != "" {
		buf = append(buf, ns...)
		buf = append(buf, ',')
	}
	if pac.AckID != nil {
		buf = strconv.AppendUint(buf, *pac.AckID, 10)
	}
	if payload != nil {
		data, err := marshal(payload)
		if err != nil {
			return nil, nil, ErrEncodePayload.F(err)
		}
		buf = append(buf, data...)
	}
	return buf, attachments, nil
}

func marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// Decode parses the text form of a packet. A packet that declares
// attachments comes back not loaded; feed the binary frames to AddAttachment.
//
// Sub-type digits beyond BINARY_ACK decode to a packet with only its type set
// so that newer packet kinds can be ignored instead of failing.
func Decode(b []byte) (*Packet, error) {
	if len(b) == 0 {
		return nil, ErrEmptyPacket
	}
	if !isDigit(b[0]) {
		return nil, ErrUnknownPacketType.F(string(b[:1]))
	}

	pac := &Packet{Type: PacketType(b[0] - '0')}
	if !pac.Type.Valid() {
		return pac, nil
	}

	c := &cursor{b: b, off: 1}
	if pac.Type.IsBinary() {
		n, err := c.attachmentCount()
		if err != nil {
			return nil, err
		}
		pac.AttachmentCount = n
	}
	if c.peek() == '/' {
		pac.Namespace = NormalizeNamespace(c.namespace())
	}
	if isDigit(c.peek()) {
		id, err := c.ackID()
		if err != nil {
			return nil, err
		}
		pac.AckID = &id
	}

	if err := pac.decodePayload(c.rest()); err != nil {
		return nil, err
	}
	if pac.AttachmentCount == 0 {
		if err := pac.reconstruct(); err != nil {
			return nil, err
		}
	}
	return pac, nil
}

func (pac *Packet) decodePayload(data []byte) error {
	switch pac.Type {
	case EventPacket, BinaryEventPacket:
		var arr []interface{}
		if err := json.Unmarshal(data, &arr); err != nil {
			return ErrInvalidPayload.F(pac.Type, err)
		}
		if len(arr) == 0 {
			return ErrInvalidEvent
		}
		name, ok := arr[0].(string)
		if !ok {
			return ErrInvalidEvent
		}
		pac.Event, pac.Data = name, arr[1:]
	case AckPacket, BinaryAckPacket:
		if len(data) == 0 {
			return nil
		}
		var arr []interface{}
		if err := json.Unmarshal(data, &arr); err != nil {
			return ErrInvalidPayload.F(pac.Type, err)
		}
		pac.Data = arr
	case ConnectPacket, ErrorPacket:
		if len(data) == 0 {
			return nil
		}
		var v interface{}
		if err := json.Unmarshal(data, &v); err != nil {
			return ErrInvalidPayload.F(pac.Type, err)
		}
		pac.Data = []interface{}{v}
	}
	return nil
}

// cursor is the read position of one Decode call.
type cursor struct {
	b   []byte
	off int
}

func (c *cursor) peek() byte {
	if c.off >= len(c.b) {
		return 0
	}
	return c.b[c.off]
}

func (c *cursor) rest() []byte { return c.b[c.off:] }

func (c *cursor) digits() []byte {
	start := c.off
	for c.off < len(c.b) && isDigit(c.b[c.off]) {
		c.off++
	}
	return c.b[start:c.off]
}

// attachmentCount reads "<n>-".
func (c *cursor) attachmentCount() (int, error) {
	d := c.digits()
	if len(d) == 0 || c.peek() != '-' {
		return 0, ErrInvalidAttachmentCount.F(ErrMissingDash).KV("offset", c.off)
	}
	c.off++
	n, err := strconv.Atoi(string(d))
	if err != nil {
		return 0, ErrInvalidAttachmentCount.F(err)
	}
	return n, nil
}

// namespace reads "/name[?query][,]". The query is dropped.
func (c *cursor) namespace() string {
	start := c.off
	for c.off < len(c.b) && c.b[c.off] != ',' {
		c.off++
	}
	ns := string(c.b[start:c.off])
	if c.off < len(c.b) {
		c.off++ // ,
	}
	return ns
}

func (c *cursor) ackID() (uint64, error) {
	id, err := strconv.ParseUint(string(c.digits()), 10, 64)
	if err != nil {
		return 0, ErrInvalidAckID.F(err)
	}
	return id, nil
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
