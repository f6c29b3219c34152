// Package session generates the identifiers of namespace connections. With
// the current protocol generation every namespace connection receives its own
// socket id, distinct from the engine session id.
package session

import (
	"crypto/rand"
	"encoding/base64"
)

// ID identifies a socket (one engine session bound to one namespace).
type ID string

func (id ID) String() string { return string(id) }

// GenerateID returns a fresh socket id made of 128 random bits.
var GenerateID = func() ID {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("session: crypto/rand failed: " + err.Error())
	}

	return ID(base64.RawURLEncoding.EncodeToString(b))
}
