// Package gateway serves the websocket endpoint clients speak to.
//
// Each accepted connection gets a freshly minted session id, an immediate
// "connected" status event, and a read loop that decodes inbound frames and
// hands them to the connection's session one at a time. Outbound envelopes
// from any goroutine (message handlers, the engine's delivery loop) funnel
// through a per-connection writer that serializes frames.
//
// Disconnect tears the session down synchronously: the read loop exits, the
// session is removed from the registry, and its in-flight streaming and
// synthesis are cancelled.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/voxlane/voxlane/internal/observe"
	"github.com/voxlane/voxlane/internal/protocol"
	"github.com/voxlane/voxlane/internal/session"
)

// defaultReadLimit bounds one inbound frame. Base64 audio chunks are the
// largest legitimate frames; anything bigger than this is a hostile or
// broken client.
const defaultReadLimit int64 = 1 << 20 // 1 MiB

// Config carries the gateway's collaborators and transport knobs.
type Config struct {
	// Registry creates and tears down the per-connection sessions.
	// Required.
	Registry *session.Registry

	// Metrics receives connection and message recordings. Nil means
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// ReadLimit caps one inbound frame in bytes. Zero means 1 MiB.
	ReadLimit int64

	// AllowedOrigins lists host patterns permitted on cross-origin
	// upgrades. Empty allows same-origin browsers and non-browser clients
	// only.
	AllowedOrigins []string
}

// Gateway is the websocket transport server. It implements [http.Handler]
// for the websocket endpoint and is safe for concurrent use.
type Gateway struct {
	registry  *session.Registry
	metrics   *observe.Metrics
	readLimit int64
	origins   []string

	connections atomic.Int64
}

// New creates a Gateway over cfg.Registry.
func New(cfg Config) *Gateway {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = defaultReadLimit
	}
	return &Gateway{
		registry:  cfg.Registry,
		metrics:   cfg.Metrics,
		readLimit: cfg.ReadLimit,
		origins:   cfg.AllowedOrigins,
	}
}

// ActiveConnections returns the number of currently open connections.
func (g *Gateway) ActiveConnections() int {
	return int(g.connections.Load())
}

// ServeHTTP upgrades the request to a websocket and runs the connection to
// completion. The handler returns when the client disconnects or the server
// shuts down.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.origins,
	})
	if err != nil {
		slog.Warn("gateway: websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(g.readLimit)

	id := uuid.NewString()
	g.connections.Add(1)
	g.metrics.ActiveConnections.Add(r.Context(), 1)
	slog.Info("gateway: client connected", "session_id", id, "remote", r.RemoteAddr)

	defer func() {
		// Synchronous teardown: in-flight work is cancelled before the
		// handler returns.
		g.registry.Remove(id)
		g.connections.Add(-1)
		g.metrics.ActiveConnections.Add(context.Background(), -1)
		conn.Close(websocket.StatusNormalClosure, "session ended")
		slog.Info("gateway: client disconnected", "session_id", id)
	}()

	client := &client{conn: conn}
	sess := g.registry.GetOrCreate(r.Context(), id, client)

	if err := client.Emit(r.Context(), protocol.NewStatus(id, protocol.StatusConnected)); err != nil {
		slog.Warn("gateway: welcome send failed", "session_id", id, "error", err)
		return
	}

	// Reading on the session context, not the request context: a session
	// closed from elsewhere (server shutdown) releases this connection too.
	g.readLoop(sess.Context(), conn, client, sess)
}

// readLoop decodes inbound frames and feeds them to the session until the
// connection dies. Messages are handled one at a time in arrival order.
func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn, client *client, sess *session.Session) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch status := websocket.CloseStatus(err); {
			case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
				slog.Debug("gateway: connection closed", "session_id", sess.ID(), "status", status)
			case ctx.Err() != nil:
				slog.Debug("gateway: connection context done", "session_id", sess.ID())
			default:
				slog.Warn("gateway: read failed", "session_id", sess.ID(), "error", err)
			}
			return
		}

		env, err := protocol.Decode(data)
		if err != nil {
			slog.Warn("gateway: malformed message",
				"session_id", sess.ID(),
				"frame_bytes", len(data),
				"error", err)
			if err := client.Emit(ctx, protocol.NewError(sess.ID(), err.Error())); err != nil {
				return
			}
			continue
		}

		g.metrics.RecordMessage(ctx, env.Type)
		sess.HandleMessage(env)
	}
}

// client is one connected peer. It implements [session.Emitter]; the mutex
// serializes frames from the handler goroutine and the engine's delivery
// goroutine.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) Emit(ctx context.Context, env protocol.Envelope) error {
	raw, err := env.Encode()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, raw)
}
