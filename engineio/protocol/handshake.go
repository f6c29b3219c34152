package protocol

import (
	"encoding/json"
	"strconv"
	"time"
)

// Handshake is the body of the OPEN packet.
type Handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval Duration `json:"pingInterval"`
	PingTimeout  Duration `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload,omitempty"`
}

// Handshake returns the handshake body for generation v. maxPayload is only
// advertised from EIO4 on.
func (v Version) Handshake(sid string, upgrades []string, interval, timeout time.Duration, maxPayload int) *Handshake {
	if upgrades == nil {
		upgrades = []string{}
	}
	h := &Handshake{
		SID:          sid,
		Upgrades:     upgrades,
		PingInterval: Duration(interval),
		PingTimeout:  Duration(timeout),
	}
	if v >= EIO4 {
		h.MaxPayload = maxPayload
	}
	return h
}

func (h *Handshake) marshal() ([]byte, error) {
	if h.Upgrades == nil {
		hh := *h
		hh.Upgrades = []string{}
		h = &hh
	}
	return json.Marshal(h)
}

// Duration travels as integer milliseconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	i, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return err
	}
	*d = Duration(time.Duration(i) * time.Millisecond)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, int64(time.Duration(d)/time.Millisecond), 10), nil
}
