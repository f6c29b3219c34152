package socketio

import (
	"net/http"
	"net/url"

	eio "github.com/relaymesh/socketio/engineio"
)

// Request is what is known of the HTTP request that opened a session, so that
// only the things that are necessary are exposed.
type Request struct {
	Header     http.Header
	Query      url.Values
	RemoteAddr string
}

func (req *Request) Cookie(name string) (*http.Cookie, error) { return req.r().Cookie(name) }
func (req *Request) Cookies() []*http.Cookie                  { return req.r().Cookies() }
func (req *Request) Referer() string                          { return req.Header.Get("Referer") }
func (req *Request) UserAgent() string                        { return req.Header.Get("User-Agent") }

func (req *Request) r() *http.Request { return &http.Request{Header: req.Header} }

func newRequest(sess *eio.Session) *Request {
	return &Request{
		Header:     sess.Header(),
		Query:      sess.Query(),
		RemoteAddr: sess.RemoteAddr(),
	}
}
