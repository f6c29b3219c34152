// Package session generates the identifiers of engine sessions.
package session

import (
	"crypto/rand"
	"encoding/base64"
)

// ID identifies one engine session. It is the `sid` query parameter every
// request of the session carries.
type ID string

func (id ID) String() string { return string(id) }

// PrefixID returns id namespaced with prefix. Legacy clients name their
// sockets this way.
func (id ID) PrefixID(prefix string) ID { return ID(prefix + string(id)) }

// GenerateID returns a fresh id made of 128 random bits. It is a variable so
// tests can make ids predictable.
var GenerateID = func() ID {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("session: crypto/rand failed: " + err.Error())
	}

	return ID(base64.RawURLEncoding.EncodeToString(b))
}
