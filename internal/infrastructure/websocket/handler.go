package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
	maxCommand = 1024
)

// command is what a connected client sends: watch/unwatch an execution, or
// cancel one.
type command struct {
	Action       string `json:"action"` // "watch" | "unwatch" | "cancel"
	ThreadExecID string `json:"thread_exec_id"`
}

// ack is the reply to a command.
type ack struct {
	OK     bool   `json:"ok"`
	Action string `json:"action"`
	Error  string `json:"error,omitempty"`
}

// Handler upgrades HTTP requests into feed sessions.
type Handler struct {
	feed     *Feed
	auth     Authenticator
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a Handler serving feed behind auth.
func NewHandler(feed *Feed, auth Authenticator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		feed: feed,
		auth: auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	subject, err := h.auth.Authenticate(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	// An execution named up front starts the session watching it, so no
	// events are missed between the upgrade and the first watch command.
	initialWatch := r.URL.Query().Get("thread_exec_id")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket: upgrade failed", "error", err)
		return
	}

	sess := newSession()
	if initialWatch != "" {
		sess.setWatch(initialWatch, true)
	}
	h.feed.attach(sess)
	h.logger.Info("websocket: client connected", "subject", subject)

	go h.writePump(conn, sess)
	h.readPump(r.Context(), conn, sess)

	h.feed.detach(sess)
	_ = conn.Close()
	h.logger.Info("websocket: client disconnected", "subject", subject)
}

// readPump consumes commands until the connection drops.
func (h *Handler) readPump(ctx context.Context, conn *websocket.Conn, sess *session) {
	conn.SetReadLimit(maxCommand)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd command
		if err := json.Unmarshal(payload, &cmd); err != nil {
			sess.deliver(ack{Action: "?", Error: "malformed command"})
			continue
		}
		h.handleCommand(ctx, sess, cmd)
	}
}

// handleCommand acts on one command and queues the ack on the session's
// outbound channel, so the write pump stays the connection's only writer.
func (h *Handler) handleCommand(ctx context.Context, sess *session, cmd command) {
	switch cmd.Action {
	case "watch":
		sess.setWatch(cmd.ThreadExecID, true)
		sess.deliver(ack{OK: true, Action: cmd.Action})
	case "unwatch":
		sess.setWatch(cmd.ThreadExecID, false)
		sess.deliver(ack{OK: true, Action: cmd.Action})
	case "cancel":
		if err := h.feed.CancelExecution(ctx, cmd.ThreadExecID); err != nil {
			sess.deliver(ack{Action: cmd.Action, Error: err.Error()})
			return
		}
		sess.deliver(ack{OK: true, Action: cmd.Action})
	default:
		sess.deliver(ack{Action: cmd.Action, Error: "unknown action"})
	}
}

// writePump streams feed events and pings until the session's queue closes.
func (h *Handler) writePump(conn *websocket.Conn, sess *session) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-sess.out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
