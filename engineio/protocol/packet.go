// Package protocol is the Engine.IO wire codec: single packets for message
// transports, batched payloads for polling, and the JSONP wrapper. Decoding
// is pure: every function takes a buffer and returns values, nothing reads
// from a shared stream.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
)

// Version is the Engine.IO protocol generation (the EIO query parameter).
type Version int

const (
	EIO3 Version = 3 // legacy: length-prefixed payloads, client sends PING
	EIO4 Version = 4 // current: record separated payloads, server sends PING
)

// ParseVersion reads the EIO query value. Clients that predate the parameter
// speak EIO3.
func ParseVersion(s string) (Version, error) {
	switch s {
	case "", "3":
		return EIO3, nil
	case "4":
		return EIO4, nil
	}
	n, _ := strconv.Atoi(s)
	return 0, ErrUnsupportedVersion.F(n)
}

const (
	OpenPacket PacketType = iota
	ClosePacket
	PingPacket
	PongPacket
	MessagePacket
	UpgradePacket
	NoopPacket
)

// Probe is the PING/PONG payload that drives a transport upgrade.
const Probe = "probe"

type PacketType byte

func (pt PacketType) digit() byte { return byte(pt) + '0' }

func (pt PacketType) Valid() bool { return pt <= NoopPacket }

func (pt PacketType) String() string {
	switch pt {
	case OpenPacket:
		return "open"
	case ClosePacket:
		return "close"
	case PingPacket:
		return "ping"
	case PongPacket:
		return "pong"
	case MessagePacket:
		return "message"
	case UpgradePacket:
		return "upgrade"
	case NoopPacket:
		return "noop"
	}
	return "unknown packet type"
}

// Packet is one Engine.IO packet. D is nil, a string, a []byte (binary data)
// or a *Handshake for OPEN. Higher layers may put a decoded value in D of an
// inbound MESSAGE before passing it on.
type Packet struct {
	T PacketType  `json:"type"`
	D interface{} `json:"data"`
}

// IsBinary reports whether the packet carries binary data.
func (pac Packet) IsBinary() bool {
	_, ok := pac.D.([]byte)
	return ok
}

func (pac Packet) text() ([]byte, error) {
	switch d := pac.D.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(d), nil
	case *Handshake:
		b, err := d.marshal()
		if err != nil {
			return nil, ErrInvalidHandshake.F(err)
		}
		return b, nil
	}
	return nil, ErrInvalidPacketData.F(pac.D)
}

// EncodeText encodes pac as a text record. Binary data is base64 encoded
// behind a 'b' marker; EIO3 keeps the type digit after the marker ("b4...").
func (v Version) EncodeText(pac Packet) ([]byte, error) {
	if !pac.T.Valid() {
		return nil, ErrUnknownPacketType.F(string(pac.T.digit()))
	}

	if d, ok := pac.D.([]byte); ok {
		buf := make([]byte, 0, 2+base64.StdEncoding.EncodedLen(len(d)))
		buf = append(buf, 'b')
		if v < EIO4 {
			buf = append(buf, pac.T.digit())
		}
		return base64.StdEncoding.AppendEncode(buf, d), nil
	}

	data, err := pac.text()
	if err != nil {
		return nil, err
	}
	return append([]byte{pac.T.digit()}, data...), nil
}

// EncodeFrame encodes pac for a message oriented transport. Binary data goes
// out as a binary frame: raw bytes for EIO4, a type byte then the bytes for
// EIO3.
func (v Version) EncodeFrame(pac Packet) (data []byte, binary bool, err error) {
	d, ok := pac.D.([]byte)
	if !ok {
		data, err = v.EncodeText(pac)
		return data, false, err
	}
	if !pac.T.Valid() {
		return nil, false, ErrUnknownPacketType.F(string(pac.T.digit()))
	}
	if v < EIO4 {
		return append([]byte{byte(pac.T)}, d...), true, nil
	}
	return append([]byte(nil), d...), true, nil
}

// DecodeText decodes one text record.
func (v Version) DecodeText(b []byte) (Packet, error) {
	if len(b) == 0 {
		return Packet{}, ErrEmptyPacket
	}

	if b[0] == 'b' {
		pt := MessagePacket
		rest := b[1:]
		if v < EIO4 {
			if len(rest) == 0 {
				return Packet{}, ErrEmptyPacket
			}
			if pt = PacketType(rest[0] - '0'); rest[0] < '0' || !pt.Valid() {
				return Packet{}, ErrUnknownPacketType.F(string(rest[:1]))
			}
			rest = rest[1:]
		}
		data, err := base64.StdEncoding.DecodeString(string(rest))
		if err != nil {
			return Packet{}, ErrInvalidBase64.F(err)
		}
		return Packet{T: pt, D: data}, nil
	}

	pt := PacketType(b[0] - '0')
	if b[0] < '0' || !pt.Valid() {
		return Packet{}, ErrUnknownPacketType.F(string(b[:1]))
	}

	pac := Packet{T: pt}
	if rest := b[1:]; len(rest) > 0 {
		pac.D = string(rest)
		if pt == OpenPacket {
			h := new(Handshake)
			if err := json.Unmarshal(rest, h); err != nil {
				return Packet{}, ErrInvalidHandshake.F(err)
			}
			pac.D = h
		}
	}
	return pac, nil
}

// DecodeFrame decodes one frame of a message oriented transport.
func (v Version) DecodeFrame(b []byte, binary bool) (Packet, error) {
	if !binary {
		return v.DecodeText(b)
	}
	if v >= EIO4 {
		return Packet{T: MessagePacket, D: append([]byte(nil), b...)}, nil
	}
	if len(b) == 0 {
		return Packet{}, ErrEmptyPacket
	}
	pt := PacketType(b[0])
	if !pt.Valid() {
		return Packet{}, ErrUnknownPacketType.F(strconv.Itoa(int(b[0])))
	}
	return Packet{T: pt, D: append([]byte(nil), b[1:]...)}, nil
}
