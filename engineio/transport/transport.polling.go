package transport

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzip"

	eiop "github.com/relaymesh/socketio/engineio/protocol"
)

const (
	contentTypeText = "text/plain; charset=UTF-8"
	contentTypeJS   = "text/javascript; charset=UTF-8"
	contentTypeHTML = "text/html; charset=UTF-8"
)

// PollingTransport is HTTP long-polling. GET requests wait for queued packets
// and flush them as one payload; POST requests carry a payload from the
// client. At most one GET may be open at a time.
type PollingTransport struct {
	*Transport

	polling atomic.Bool
}

func NewPollingTransport(id SessionID, cfg Config) *PollingTransport {
	return &PollingTransport{Transport: &Transport{id: id, name: Polling, cfg: cfg, queue: NewQueue()}}
}

func (t *PollingTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		t.poll(w, r)
	case http.MethodPost:
		t.post(w, r)
	default:
		http.Error(w, ErrUnsupportedVerb.F(r.Method).Error(), http.StatusMethodNotAllowed)
	}
}

func (t *PollingTransport) Close() { t.queue.Close() }

func (t *PollingTransport) poll(w http.ResponseWriter, r *http.Request) {
	if !t.polling.CompareAndSwap(false, true) {
		err := ErrOverlappingPoll.KV("sid", t.id)
		http.Error(w, err.Error(), http.StatusBadRequest)
		t.cfg.onError(t, err)
		return
	}
	defer t.polling.Store(false)

	timeout := t.cfg.PollTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

wait:
	for t.queue.Len() == 0 {
		select {
		case <-t.queue.Ready():
		case <-t.queue.Done():
			break wait
		case <-timer.C:
			break wait
		case <-r.Context().Done():
			return
		}
	}

	packets := t.queue.Drain()
	if len(packets) == 0 {
		packets = []eiop.Packet{{T: eiop.NoopPacket}}
	}
	if err := t.write(w, r, packets); err != nil {
		t.cfg.onError(t, err)
	}
}

// Flush answers r right away with whatever is queued. It serves the
// handshake request, which never waits.
func (t *PollingTransport) Flush(w http.ResponseWriter, r *http.Request) error {
	return t.write(w, r, t.queue.Drain())
}

func (t *PollingTransport) write(w http.ResponseWriter, r *http.Request, packets []eiop.Packet) error {
	body, err := t.cfg.Version.EncodePayload(packets)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return ErrEncodeFailed.F(t.name, err)
	}

	contentType := contentTypeText
	if j := r.URL.Query().Get("j"); j != "" {
		if body, err = eiop.WrapJSONP(j, body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return ErrEncodeFailed.F(t.name, err)
		}
		contentType = contentTypeJS
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")

	var out io.Writer = w
	if t.cfg.Compress && acceptsGzip(r) {
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		gz := gzip.NewWriter(w)
		defer gz.Close()
		out = gz
	}

	_, err = out.Write(body)
	return err
}

func (t *PollingTransport) post(w http.ResponseWriter, r *http.Request) {
	if t.queue.Closed() {
		http.Error(w, ErrTransportClosed.Error(), http.StatusBadRequest)
		return
	}

	var reader io.Reader = r.Body
	if t.cfg.MaxPayload > 0 {
		reader = http.MaxBytesReader(w, r.Body, t.cfg.MaxPayload)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, ErrPayloadTooLarge.Error(), http.StatusRequestEntityTooLarge)
			t.cfg.onError(t, ErrPayloadTooLarge.KV("limit", tooLarge.Limit))
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		t.cfg.onError(t, ErrTransportFailure.F(err))
		return
	}

	if r.URL.Query().Get("j") != "" {
		if data, err = eiop.UnwrapJSONP(data); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			t.cfg.onError(t, ErrDecodeFailed.F(t.name, err))
			return
		}
	}

	packets, err := t.cfg.Version.DecodePayload(data)
	for _, pac := range packets {
		t.cfg.receive(t, pac)
	}
	if err != nil {
		t.cfg.onError(t, ErrDecodeFailed.F(t.name, err))
	}

	w.Header().Set("Content-Type", contentTypeHTML)
	w.Write([]byte("ok"))
}

func acceptsGzip(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		if strings.TrimSpace(strings.SplitN(enc, ";", 2)[0]) == "gzip" {
			return true
		}
	}
	return false
}
