package fanout

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/lifeline/internal/triage"
)

// WSListener pushes verdicts as JSON text frames on a WebSocket.
type WSListener struct {
	id   string
	conn *websocket.Conn
}

// NewWSListener wraps conn with a fresh ID.
func NewWSListener(conn *websocket.Conn) *WSListener {
	return &WSListener{id: ulid.Make().String(), conn: conn}
}

// ID implements Listener.
func (l *WSListener) ID() string { return l.id }

// Push implements Listener. A write that misses ctx's deadline closes the
// connection.
func (l *WSListener) Push(ctx context.Context, v *triage.Verdict) error {
	return wsjson.Write(ctx, l.conn, v)
}

// WSHandler upgrades requests to WebSockets and keeps each one registered in
// hub until the client goes away. Clients only receive; inbound frames close
// the connection.
func WSHandler(hub *Hub, logger log.Logger, opts *websocket.AcceptOptions) http.Handler {
	if logger == nil {
		logger = log.Nop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, opts)
		if err != nil {
			logger.Warn(r.Context(), "websocket accept failed", "error", err)
			return
		}
		l := NewWSListener(conn)
		hub.Add(l)
		defer hub.Remove(l.ID())

		logger.Info(r.Context(), "alert listener connected", "listener", l.ID(), "remote", r.RemoteAddr)

		ctx := conn.CloseRead(r.Context())
		<-ctx.Done()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		logger.Info(r.Context(), "alert listener disconnected", "listener", l.ID())
	})
}
