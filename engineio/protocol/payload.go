package protocol

import (
	"errors"
	"strconv"
	"unicode/utf8"
)

// RecordSeparator splits packets of an EIO4 polling payload.
const RecordSeparator byte = 0x1e

// EncodePayload batches packets for one polling response.
//
// EIO4 joins text records with RecordSeparator. EIO3 prefixes each record
// with its length in characters and a colon: "6:4hello".
func (v Version) EncodePayload(packets []Packet) ([]byte, error) {
	var buf []byte
	for i, pac := range packets {
		rec, err := v.EncodeText(pac)
		if err != nil {
			return nil, err
		}
		if v >= EIO4 {
			if i > 0 {
				buf = append(buf, RecordSeparator)
			}
			buf = append(buf, rec...)
			continue
		}
		buf = strconv.AppendInt(buf, int64(utf8.RuneCount(rec)), 10)
		buf = append(buf, ':')
		buf = append(buf, rec...)
	}
	return buf, nil
}

// DecodePayload splits a polling body into packets.
//
// EIO4 bodies are always record separated. For older generations the framing
// is detected: a leading "<digits>:" selects the length-prefixed form,
// anything else falls back to record separators.
//
// A bad record costs only itself: the other packets are returned along with
// the joined errors. Once the length framing is lost the rest of the body is
// dropped and the returned error is fatal (see IsFatal).
func (v Version) DecodePayload(b []byte) ([]Packet, error) {
	if len(b) == 0 {
		return nil, ErrEmptyPacket
	}
	if v < EIO4 && hasLengthPrefix(b) {
		return v.decodeLengthPrefixed(b)
	}
	return v.decodeSeparated(b)
}

func hasLengthPrefix(b []byte) bool {
	i := 0
	for i < len(b) && b[i] >= '0' && b[i] <= '9' {
		i++
	}
	return i > 0 && i < len(b) && b[i] == ':'
}

func (v Version) decodeSeparated(b []byte) ([]Packet, error) {
	var packets []Packet
	var errs []error
	for start := 0; start <= len(b); {
		end := start
		for end < len(b) && b[end] != RecordSeparator {
			end++
		}
		pac, perr := v.DecodeText(b[start:end])
		if perr != nil {
			errs = append(errs, perr)
		} else {
			packets = append(packets, pac)
		}
		start = end + 1
	}
	return packets, errors.Join(errs...)
}

// cursor is an explicit read position over a length-prefixed payload.
type cursor struct {
	b   []byte
	off int
}

func (c *cursor) done() bool { return c.off >= len(c.b) }

// length reads "<digits>:".
func (c *cursor) length() (int, error) {
	start := c.off
	n := 0
	for c.off < len(c.b) && c.b[c.off] >= '0' && c.b[c.off] <= '9' {
		n = n*10 + int(c.b[c.off]-'0')
		c.off++
	}
	if c.off == start {
		return 0, ErrMissingLength.KV("offset", start)
	}
	if c.off >= len(c.b) || c.b[c.off] != ':' {
		return 0, ErrFramingDesync.F(c.off)
	}
	c.off++
	return n, nil
}

// record returns the next n characters.
func (c *cursor) record(n int) ([]byte, error) {
	start := c.off
	for i := 0; i < n; i++ {
		if c.off >= len(c.b) {
			return nil, ErrFramingDesync.F(start).KV("want", n, "have", i)
		}
		_, size := utf8.DecodeRune(c.b[c.off:])
		c.off += size
	}
	return c.b[start:c.off], nil
}

func (v Version) decodeLengthPrefixed(b []byte) ([]Packet, error) {
	var packets []Packet
	var errs []error
	for c := (&cursor{b: b}); !c.done(); {
		n, err := c.length()
		if err != nil {
			return packets, errors.Join(append(errs, err)...)
		}
		rec, err := c.record(n)
		if err != nil {
			return packets, errors.Join(append(errs, err)...)
		}
		pac, err := v.DecodeText(rec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		packets = append(packets, pac)
	}
	return packets, errors.Join(errs...)
}
