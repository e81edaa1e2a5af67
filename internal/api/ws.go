package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/ianibsm/Synapz/internal/chat"
)

// wsSink writes relay output as websocket text frames, one per fragment,
// followed by the terminal marker frame.
type wsSink struct {
	ctx  context.Context
	conn *websocket.Conn
}

func (s *wsSink) Fragment(text string) error {
	return s.conn.Write(s.ctx, websocket.MessageText, []byte(text))
}

func (s *wsSink) Done() error {
	return s.conn.Write(s.ctx, websocket.MessageText, []byte(streamDoneMarker))
}

// HandleWSChat handles GET /ws/chat: the streaming relay over a websocket.
// The first client frame carries the same JSON payload as /stream-chat;
// fragments come back as individual text frames terminated by the
// [STREAM_DONE] marker frame. On upstream error the socket is closed with an
// abnormal status instead of the marker.
func (h *Handler) HandleWSChat(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Warn("Websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	ctx := r.Context()

	_, payload, err := conn.Read(ctx)
	if err != nil {
		slog.Warn("Websocket request read failed", "error", err)
		return
	}

	var req chatRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		conn.Close(websocket.StatusPolicyViolation, "invalid request payload")
		return
	}
	if req.UserMessage == "" {
		conn.Close(websocket.StatusPolicyViolation, "userMessage is required")
		return
	}

	slog.Info("Websocket chat request",
		"stakeholder", req.StakeholderID,
		"project", req.ProjectID,
		"message_length", len(req.UserMessage),
	)

	err = h.responder.StreamChat(ctx, chat.StreamRequest{
		StakeholderID: req.StakeholderID,
		ProjectID:     req.ProjectID,
		UserMessage:   req.UserMessage,
	}, &wsSink{ctx: ctx, conn: conn})
	if err != nil {
		slog.Error("Websocket chat failed", "stakeholder", req.StakeholderID, "project", req.ProjectID, "error", err)
		return
	}

	conn.Close(websocket.StatusNormalClosure, "")
}
