// Package api provides HTTP handlers for the Synapz proxy.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ianibsm/Synapz/internal/chat"
	"github.com/ianibsm/Synapz/internal/domain"
	"github.com/ianibsm/Synapz/internal/store"
	"github.com/ianibsm/Synapz/internal/tts"
)

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

// streamDoneMarker is the terminal event payload emitted to clients after a
// clean upstream end-of-stream.
const streamDoneMarker = "[STREAM_DONE]"

// Sender label and fixed pair used by the store connectivity probe.
const (
	testSender      = "test-probe"
	testStakeholder = "synapz-test"
	testProject     = "connectivity"
)

// Responder handles one chat turn, streaming or not.
type Responder interface {
	Respond(ctx context.Context, stakeholderID, projectID, userMessage string) (string, error)
	StreamChat(ctx context.Context, req chat.StreamRequest, sink chat.FragmentSink) error
}

// ModelDirectory proxies model metadata from the completion API.
type ModelDirectory interface {
	ModelInfo(ctx context.Context) (json.RawMessage, error)
	ListModels(ctx context.Context) (json.RawMessage, error)
}

// SpeechSynthesizer converts text to audio.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// Handler exposes the chat proxy routes.
type Handler struct {
	responder Responder
	repo      store.Repository
	models    ModelDirectory
	speech    SpeechSynthesizer
}

// NewHandler creates a handler with its long-lived dependencies injected.
func NewHandler(responder Responder, repo store.Repository, models ModelDirectory, speech SpeechSynthesizer) *Handler {
	return &Handler{
		responder: responder,
		repo:      repo,
		models:    models,
		speech:    speech,
	}
}

// RegisterRoutes registers the proxy routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/voice-chat", h.HandleVoiceChat)
	r.Post("/stream-chat", h.HandleStreamChat)
	r.Post("/tts", h.HandleTTS)
	r.Get("/model-info", h.HandleModelInfo)
	r.Get("/list-models", h.HandleListModels)
	r.Post("/test", h.HandleTest)
	r.Get("/ws/chat", h.HandleWSChat)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

type chatRequest struct {
	StakeholderID string `json:"stakeholderID"`
	ProjectID     string `json:"projectID"`
	UserMessage   string `json:"userMessage"`
}

// HandleVoiceChat handles POST /voice-chat: one full chat turn, recorded in
// the transcript, answered in a single response.
func (h *Handler) HandleVoiceChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserMessage == "" {
		Error(w, http.StatusBadRequest, "userMessage is required")
		return
	}

	slog.Info("Voice chat request",
		"stakeholder", req.StakeholderID,
		"project", req.ProjectID,
		"message_length", len(req.UserMessage),
	)

	reply, err := h.responder.Respond(r.Context(), req.StakeholderID, req.ProjectID, req.UserMessage)
	if err != nil {
		slog.Error("Voice chat failed", "stakeholder", req.StakeholderID, "project", req.ProjectID, "error", err)
		Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	JSON(w, http.StatusOK, map[string]string{"aiResponse": reply})
}

// sseSink writes relay output as server-sent event frames.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseSink) Fragment(text string) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", text); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) Done() error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", streamDoneMarker); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// HandleStreamChat handles POST /stream-chat: relays completion fragments as
// an SSE stream, one "data:" frame per fragment, terminated by the
// [STREAM_DONE] marker. On upstream error the stream is closed with no
// marker; validation failures are still plain JSON errors since nothing has
// been streamed yet.
func (h *Handler) HandleStreamChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserMessage == "" {
		Error(w, http.StatusBadRequest, "userMessage is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	slog.Info("Stream chat request",
		"stakeholder", req.StakeholderID,
		"project", req.ProjectID,
		"message_length", len(req.UserMessage),
	)

	err := h.responder.StreamChat(r.Context(), chat.StreamRequest{
		StakeholderID: req.StakeholderID,
		ProjectID:     req.ProjectID,
		UserMessage:   req.UserMessage,
	}, &sseSink{w: w, flusher: flusher})
	if err != nil {
		// Headers are already out; closing the stream without the terminal
		// marker is the failure signal the client sees.
		slog.Error("Stream chat failed", "stakeholder", req.StakeholderID, "project", req.ProjectID, "error", err)
	}
}

type ttsRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// HandleTTS handles POST /tts: synthesizes speech and returns the binary
// audio. Upstream failure statuses are passed through.
func (h *Handler) HandleTTS(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req ttsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		Error(w, http.StatusBadRequest, "text is required")
		return
	}

	audio, err := h.speech.Synthesize(r.Context(), req.Text, req.Voice)
	if err != nil {
		var statusErr *tts.StatusError
		if errors.As(err, &statusErr) {
			slog.Warn("Speech synthesis rejected upstream", "status", statusErr.StatusCode)
			Error(w, statusErr.StatusCode, "speech synthesis failed")
			return
		}
		slog.Error("Speech synthesis failed", "error", err)
		Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	if _, err := w.Write(audio); err != nil {
		slog.Warn("Failed to write audio response", "error", err)
	}
}

// HandleModelInfo handles GET /model-info: passthrough of the configured
// model's metadata from the completion API.
func (h *Handler) HandleModelInfo(w http.ResponseWriter, r *http.Request) {
	raw, err := h.models.ModelInfo(r.Context())
	if err != nil {
		slog.Error("Model info fetch failed", "error", err)
		Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeRawJSON(w, raw)
}

// HandleListModels handles GET /list-models: passthrough of the upstream
// model list.
func (h *Handler) HandleListModels(w http.ResponseWriter, r *http.Request) {
	raw, err := h.models.ListModels(r.Context())
	if err != nil {
		slog.Error("Model list fetch failed", "error", err)
		Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeRawJSON(w, raw)
}

func writeRawJSON(w http.ResponseWriter, raw json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(raw); err != nil {
		slog.Warn("Failed to write passthrough response", "error", err)
	}
}

type testRequest struct {
	Text string `json:"text"`
}

// HandleTest handles POST /test: a record-store round trip using ad hoc test
// labels. It resolves (or creates) the probe session, appends one probe
// message, and reads the session's messages back.
func (h *Handler) HandleTest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req testRequest
	// An empty body is fine for the probe.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		req.Text = "store connectivity check"
	}

	ctx := r.Context()
	sess, err := h.repo.FindSession(ctx, testStakeholder, testProject)
	if err != nil {
		slog.Error("Store probe lookup failed", "error", err)
		Error(w, http.StatusInternalServerError, "record store unavailable")
		return
	}
	if sess == nil {
		sess, err = h.repo.CreateSession(ctx, testStakeholder, testProject, domain.SessionInProgress)
		if err != nil {
			slog.Error("Store probe session create failed", "error", err)
			Error(w, http.StatusInternalServerError, "record store unavailable")
			return
		}
	}

	msg, err := h.repo.CreateMessage(ctx, sess.ID, testSender, req.Text)
	if err != nil {
		slog.Error("Store probe message create failed", "error", err)
		Error(w, http.StatusInternalServerError, "record store unavailable")
		return
	}

	messages, err := h.repo.MessagesBySession(ctx, sess.ID)
	if err != nil {
		slog.Error("Store probe readback failed", "error", err)
		Error(w, http.StatusInternalServerError, "record store unavailable")
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"sessionID":    sess.ID,
		"messageID":    msg.ID,
		"messageCount": len(messages),
	})
}
