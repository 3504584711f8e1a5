package httpapi

import (
	"chat-relay/auth"
	"chat-relay/errors"
	"chat-relay/runtime"
	goerrors "errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Subscribers only send control frames; anything larger is a protocol abuse.
const maxInboundSize = 512

// subscribe upgrades to a websocket and streams every message posted after
// the upgrade. The session is registered before the handshake completes, so
// a client that saw the upgrade succeed will not miss a later message.
func (h *Handler) subscribe(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	session, err := h.chatService.Subscribe(principal)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.log.Warn("Websocket upgrade failed", "principal", principal, "error", err)
		session.Close()
		return
	}
	h.log.Debug("Websocket subscribed", "principal", principal, "session_id", session.ID())

	go h.readPump(conn, session)
	go h.pingLoop(conn, session)
	h.writePump(r, conn, session)
}

// readPump discards inbound frames and closes the session on disconnect.
func (h *Handler) readPump(conn *websocket.Conn, session *runtime.Session) {
	defer session.Close()

	pongWait := h.options.PingInterval + h.options.WriteTimeout
	conn.SetReadLimit(maxInboundSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("Websocket read failed", "session_id", session.ID(), "error", err)
			}
			return
		}
	}
}

// pingLoop uses WriteControl, which gorilla allows concurrently with the write pump.
func (h *Handler) pingLoop(conn *websocket.Conn, session *runtime.Session) {
	ticker := time.NewTicker(h.options.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-session.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(h.options.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				h.log.Debug("Websocket ping failed", "session_id", session.ID(), "error", err)
				session.Close()
				return
			}
		}
	}
}

func (h *Handler) writePump(r *http.Request, conn *websocket.Conn, session *runtime.Session) {
	defer func() {
		session.Close()
		_ = conn.Close()
	}()

	ctx := r.Context()
	for {
		message, err := session.Next(ctx)
		if err != nil {
			h.writeClose(conn, session)
			return
		}
		if err := conn.SetWriteDeadline(time.Now().Add(h.options.WriteTimeout)); err != nil {
			return
		}
		if err := conn.WriteJSON(toResponse(message)); err != nil {
			h.log.Warn("Failed to push message to websocket",
				"session_id", session.ID(),
				"message_id", message.ID,
				"error", err)
			return
		}
	}
}

// writeClose tells the client why the server ended the session.
func (h *Handler) writeClose(conn *websocket.Conn, session *runtime.Session) {
	code, reason := websocket.CloseNormalClosure, ""
	switch cause := session.Err(); {
	case goerrors.Is(cause, errors.ErrQueueOverflow):
		code, reason = websocket.ClosePolicyViolation, cause.Error()
	case goerrors.Is(cause, errors.ErrBrokerClosed):
		code, reason = websocket.CloseGoingAway, cause.Error()
	}
	deadline := time.Now().Add(h.options.WriteTimeout)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}
