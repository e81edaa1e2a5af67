// Package chat orchestrates session resolution, transcript logging, and
// completion calls for a single chat turn.
package chat

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/ianibsm/Synapz/internal/domain"
	"github.com/ianibsm/Synapz/internal/llm"
	"golang.org/x/sync/errgroup"
)

// Completer is the completion API surface the responder depends on.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
	Stream(ctx context.Context, messages []llm.Message) iter.Seq2[string, error]
}

// SessionResolver maps a (stakeholder, project) pair to a session id.
type SessionResolver interface {
	Resolve(ctx context.Context, stakeholderID, projectID string) (string, error)
}

// TranscriptLogger appends one message record linked to a session.
type TranscriptLogger interface {
	Append(ctx context.Context, sessionID, sender, text string) error
}

// FragmentSink receives relayed stream output. Fragment is called once per
// upstream text fragment in arrival order; Done is called exactly once after
// a clean upstream end-of-stream, and not at all on error.
type FragmentSink interface {
	Fragment(text string) error
	Done() error
}

// StreamRequest is one streaming chat turn. Stakeholder and project ids are
// optional; when both are present the turn is recorded in the transcript.
type StreamRequest struct {
	StakeholderID string
	ProjectID     string
	UserMessage   string
}

// Responder wires the session resolver, transcript logger, and completion
// client into the per-request chat flow.
type Responder struct {
	sessions     SessionResolver
	transcript   TranscriptLogger
	completer    Completer
	streamBuffer int
}

// NewResponder creates a responder. streamBuffer bounds the relay channel
// between the upstream stream reader and the outbound writer; <= 0 selects
// the default.
func NewResponder(sessions SessionResolver, transcript TranscriptLogger, completer Completer, streamBuffer int) *Responder {
	return &Responder{
		sessions:     sessions,
		transcript:   transcript,
		completer:    completer,
		streamBuffer: streamBuffer,
	}
}

// prompt builds the two-message prompt: a system message embedding the
// project identifier and the raw user text.
func prompt(projectID, userMessage string) []llm.Message {
	return []llm.Message{
		{Role: "system", Content: fmt.Sprintf("You are the Synapz assistant for project %q. Answer the stakeholder's message helpfully and concisely.", projectID)},
		{Role: "user", Content: userMessage},
	}
}

// Respond handles one non-streaming chat turn: resolve the session, record
// the inbound message, call the completion API, record the outbound message,
// and return the assistant's text verbatim.
//
// Within the turn the inbound write happens before the completion call,
// which happens before the outbound write. Any failure aborts the turn,
// including an outbound-log failure after a successful completion: the
// result favors failing the whole request over returning a possibly
// unlogged success.
func (r *Responder) Respond(ctx context.Context, stakeholderID, projectID, userMessage string) (string, error) {
	sessionID, err := r.sessions.Resolve(ctx, stakeholderID, projectID)
	if err != nil {
		return "", fmt.Errorf("resolve session: %w", err)
	}

	if err := r.transcript.Append(ctx, sessionID, domain.SenderUser, userMessage); err != nil {
		return "", fmt.Errorf("log user message: %w", err)
	}

	reply, err := r.completer.Complete(ctx, prompt(projectID, userMessage))
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}

	if err := r.transcript.Append(ctx, sessionID, domain.SenderAI, reply); err != nil {
		return "", fmt.Errorf("log assistant message: %w", err)
	}

	return reply, nil
}

// StreamChat handles one streaming chat turn. Upstream fragments flow
// through a bounded relay channel to the sink in arrival order, one event
// per fragment, with no reordering. On clean upstream end the sink's
// terminal marker is written; on upstream error the stream ends with no
// marker. Caller disconnect cancels ctx and tears down the upstream read.
//
// When a session is resolved, the inbound message is recorded before
// streaming starts and the accumulated assistant text is recorded after the
// stream best-effort: the fragments have already been delivered, so a late
// transcript failure is logged rather than failing the request.
func (r *Responder) StreamChat(ctx context.Context, req StreamRequest, sink FragmentSink) error {
	var sessionID string
	if req.StakeholderID != "" && req.ProjectID != "" {
		sid, err := r.sessions.Resolve(ctx, req.StakeholderID, req.ProjectID)
		if err != nil {
			return fmt.Errorf("resolve session: %w", err)
		}
		sessionID = sid
		if err := r.transcript.Append(ctx, sessionID, domain.SenderUser, req.UserMessage); err != nil {
			return fmt.Errorf("log user message: %w", err)
		}
	}

	rl := newRelay(r.streamBuffer)
	var assistant strings.Builder

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer rl.closeInput()
		for fragment, err := range r.completer.Stream(gctx, prompt(req.ProjectID, req.UserMessage)) {
			if err != nil {
				rl.fail()
				return err
			}
			if !rl.push(gctx, fragment) {
				return gctx.Err()
			}
		}
		rl.finish()
		return nil
	})
	g.Go(func() error {
		for fragment := range rl.out() {
			assistant.WriteString(fragment)
			if err := sink.Fragment(fragment); err != nil {
				return fmt.Errorf("forward fragment: %w", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	if err := sink.Done(); err != nil {
		return fmt.Errorf("write terminal marker: %w", err)
	}

	if sessionID != "" && assistant.Len() > 0 {
		if err := r.transcript.Append(ctx, sessionID, domain.SenderAI, assistant.String()); err != nil {
			slog.Warn("Failed to log assistant message after stream", "session_id", sessionID, "error", err)
		}
	}
	return nil
}
