package transport

import (
	"context"
	"errors"
	"io"
	"net/http"

	"golang.org/x/sync/errgroup"
	ws "nhooyr.io/websocket"
)

// WebsocketTransport carries one packet per websocket message. ServeHTTP
// blocks for the life of the connection.
type WebsocketTransport struct {
	*Transport
}

func NewWebsocketTransport(id SessionID, cfg Config) *WebsocketTransport {
	return &WebsocketTransport{Transport: &Transport{id: id, name: Websocket, cfg: cfg, queue: NewQueue()}}
}

// Close flushes the queue and closes the connection with a normal closure.
func (t *WebsocketTransport) Close() { t.queue.Close() }

func (t *WebsocketTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// the server has already checked the origin
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		t.queue.Close()
		t.cfg.onClose(t, ErrTransportFailure.F(err))
		return
	}
	if t.cfg.MaxPayload > 0 {
		conn.SetReadLimit(t.cfg.MaxPayload)
	}

	grp, ctx := errgroup.WithContext(r.Context())
	grp.Go(func() error { return t.incoming(ctx, conn) })
	grp.Go(func() error { return t.outgoing(ctx, conn) })

	err = grp.Wait()
	t.queue.Close()

	status := ws.StatusNormalClosure
	if errors.Is(err, ErrPayloadTooLarge) {
		status = ws.StatusMessageTooBig
	}
	conn.Close(status, "")

	t.cfg.logger().Debug("websocket closed", "sid", t.id, "err", err)
	t.cfg.onClose(t, err)
}

func (t *WebsocketTransport) incoming(ctx context.Context, conn *ws.Conn) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			switch ws.CloseStatus(err) {
			case ws.StatusNormalClosure, ws.StatusGoingAway:
				return ErrTransportClosed
			case ws.StatusMessageTooBig:
				return ErrPayloadTooLarge
			}
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return ErrTransportClosed
			}
			return ErrTransportFailure.F(err)
		}

		pac, err := t.cfg.Version.DecodeFrame(data, typ == ws.MessageBinary)
		if err != nil {
			t.cfg.onError(t, ErrDecodeFailed.F(t.name, err))
			continue
		}
		t.cfg.receive(t, pac)
	}
}

func (t *WebsocketTransport) outgoing(ctx context.Context, conn *ws.Conn) error {
	for {
		select {
		case <-t.queue.Ready():
			if err := t.flush(ctx, conn); err != nil {
				return err
			}
		case <-t.queue.Done():
			if err := t.flush(ctx, conn); err != nil {
				return err
			}
			return ErrTransportClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (t *WebsocketTransport) flush(ctx context.Context, conn *ws.Conn) error {
	for _, pac := range t.queue.Drain() {
		data, binary, err := t.cfg.Version.EncodeFrame(pac)
		if err != nil {
			t.cfg.onError(t, ErrEncodeFailed.F(t.name, err))
			continue
		}

		typ := ws.MessageText
		if binary {
			typ = ws.MessageBinary
		}
		if err := conn.Write(ctx, typ, data); err != nil {
			return ErrTransportFailure.F(err)
		}
	}
	return nil
}
