package chat

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/ianibsm/Synapz/internal/llm"
)

// callLog records the order of store and completion operations across fakes.
type callLog struct {
	ops []string
}

type fakeResolver struct {
	log       *callLog
	sessionID string
	err       error
	calls     int
}

func (f *fakeResolver) Resolve(ctx context.Context, stakeholderID, projectID string) (string, error) {
	f.calls++
	f.log.ops = append(f.log.ops, "resolve")
	if f.err != nil {
		return "", f.err
	}
	return f.sessionID, nil
}

type appended struct {
	sessionID string
	sender    string
	text      string
}

type fakeTranscript struct {
	log     *callLog
	entries []appended
	failOn  string // sender label whose append fails
}

func (f *fakeTranscript) Append(ctx context.Context, sessionID, sender, text string) error {
	f.log.ops = append(f.log.ops, "append:"+sender)
	if f.failOn != "" && sender == f.failOn {
		return errors.New("transcript write failed")
	}
	f.entries = append(f.entries, appended{sessionID: sessionID, sender: sender, text: text})
	return nil
}

type fakeCompleter struct {
	log       *callLog
	reply     string
	err       error
	fragments []string
	streamErr error
}

func (f *fakeCompleter) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	f.log.ops = append(f.log.ops, "complete")
	return f.reply, f.err
}

func (f *fakeCompleter) Stream(ctx context.Context, messages []llm.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		f.log.ops = append(f.log.ops, "stream")
		for _, fragment := range f.fragments {
			if !yield(fragment, nil) {
				return
			}
		}
		if f.streamErr != nil {
			yield("", f.streamErr)
		}
	}
}

// recordingSink collects relayed output in delivery order.
type recordingSink struct {
	fragments   []string
	done        int
	fragmentErr error
}

func (s *recordingSink) Fragment(text string) error {
	if s.fragmentErr != nil {
		return s.fragmentErr
	}
	s.fragments = append(s.fragments, text)
	return nil
}

func (s *recordingSink) Done() error {
	s.done++
	return nil
}

func newFakes(sessionID string) (*callLog, *fakeResolver, *fakeTranscript, *fakeCompleter) {
	log := &callLog{}
	return log,
		&fakeResolver{log: log, sessionID: sessionID},
		&fakeTranscript{log: log},
		&fakeCompleter{log: log}
}

func TestRespondOrdersWritesAroundCompletion(t *testing.T) {
	log, resolver, transcript, completer := newFakes("sess-1")
	completer.reply = "hello there"
	r := NewResponder(resolver, transcript, completer, 0)

	reply, err := r.Respond(context.Background(), "stk-1", "prj-1", "hi")
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	if reply != "hello there" {
		t.Errorf("reply = %q, want verbatim completion text", reply)
	}

	want := []string{"resolve", "append:user", "complete", "append:ai"}
	if len(log.ops) != len(want) {
		t.Fatalf("ops = %v, want %v", log.ops, want)
	}
	for i := range want {
		if log.ops[i] != want[i] {
			t.Fatalf("ops = %v, want %v", log.ops, want)
		}
	}

	if len(transcript.entries) != 2 {
		t.Fatalf("expected 2 transcript entries, got %d", len(transcript.entries))
	}
	if transcript.entries[0].sessionID != "sess-1" || transcript.entries[1].sessionID != "sess-1" {
		t.Error("expected both messages linked to the resolved session")
	}
	if transcript.entries[1].text != "hello there" {
		t.Errorf("assistant entry text = %q", transcript.entries[1].text)
	}
}

func TestRespondCompletionFailureRecordsNoAssistantMessage(t *testing.T) {
	_, resolver, transcript, completer := newFakes("sess-1")
	completer.err = errors.New("upstream down")
	r := NewResponder(resolver, transcript, completer, 0)

	if _, err := r.Respond(context.Background(), "stk-1", "prj-1", "hi"); err == nil {
		t.Fatal("expected completion failure to surface")
	}

	if len(transcript.entries) != 1 || transcript.entries[0].sender != "user" {
		t.Errorf("expected only the user message recorded, got %+v", transcript.entries)
	}
}

func TestRespondInboundLogFailureAbortsBeforeCompletion(t *testing.T) {
	log, resolver, transcript, completer := newFakes("sess-1")
	transcript.failOn = "user"
	r := NewResponder(resolver, transcript, completer, 0)

	if _, err := r.Respond(context.Background(), "stk-1", "prj-1", "hi"); err == nil {
		t.Fatal("expected inbound log failure to surface")
	}
	for _, op := range log.ops {
		if op == "complete" {
			t.Error("completion must not be called after inbound log failure")
		}
	}
}

func TestRespondOutboundLogFailureFailsRequest(t *testing.T) {
	_, resolver, transcript, completer := newFakes("sess-1")
	completer.reply = "computed anyway"
	transcript.failOn = "ai"
	r := NewResponder(resolver, transcript, completer, 0)

	// The completion succeeded, but the request still fails rather than
	// returning a possibly-unlogged success.
	if _, err := r.Respond(context.Background(), "stk-1", "prj-1", "hi"); err == nil {
		t.Fatal("expected outbound log failure to surface")
	}
}

func TestStreamChatForwardsFragmentsThenMarker(t *testing.T) {
	_, resolver, transcript, completer := newFakes("sess-1")
	completer.fragments = []string{"A", "B"}
	r := NewResponder(resolver, transcript, completer, 0)
	sink := &recordingSink{}

	err := r.StreamChat(context.Background(), StreamRequest{
		StakeholderID: "stk-1",
		ProjectID:     "prj-1",
		UserMessage:   "hi",
	}, sink)
	if err != nil {
		t.Fatalf("StreamChat failed: %v", err)
	}

	if len(sink.fragments) != 2 || sink.fragments[0] != "A" || sink.fragments[1] != "B" {
		t.Errorf("fragments = %v, want [A B] in arrival order", sink.fragments)
	}
	if sink.done != 1 {
		t.Errorf("terminal marker written %d times, want exactly once", sink.done)
	}
}

func TestStreamChatRecordsTranscriptAroundStream(t *testing.T) {
	_, resolver, transcript, completer := newFakes("sess-1")
	completer.fragments = []string{"A", "B"}
	r := NewResponder(resolver, transcript, completer, 0)

	if err := r.StreamChat(context.Background(), StreamRequest{
		StakeholderID: "stk-1",
		ProjectID:     "prj-1",
		UserMessage:   "hi",
	}, &recordingSink{}); err != nil {
		t.Fatalf("StreamChat failed: %v", err)
	}

	if len(transcript.entries) != 2 {
		t.Fatalf("expected user and assistant entries, got %+v", transcript.entries)
	}
	if transcript.entries[0].sender != "user" || transcript.entries[0].text != "hi" {
		t.Errorf("inbound entry = %+v", transcript.entries[0])
	}
	if transcript.entries[1].sender != "ai" || transcript.entries[1].text != "AB" {
		t.Errorf("outbound entry = %+v, want accumulated AB", transcript.entries[1])
	}
}

func TestStreamChatAssistantLogFailureDoesNotFailStream(t *testing.T) {
	_, resolver, transcript, completer := newFakes("sess-1")
	completer.fragments = []string{"A"}
	transcript.failOn = "ai"
	r := NewResponder(resolver, transcript, completer, 0)
	sink := &recordingSink{}

	// The fragments were already delivered; a late transcript failure is
	// logged, not surfaced.
	if err := r.StreamChat(context.Background(), StreamRequest{
		StakeholderID: "stk-1",
		ProjectID:     "prj-1",
		UserMessage:   "hi",
	}, sink); err != nil {
		t.Fatalf("StreamChat failed: %v", err)
	}
	if sink.done != 1 {
		t.Error("expected terminal marker despite transcript failure")
	}
}

func TestStreamChatUpstreamErrorEndsWithoutMarker(t *testing.T) {
	_, resolver, transcript, completer := newFakes("sess-1")
	completer.fragments = []string{"partial"}
	completer.streamErr = errors.New("connection reset")
	r := NewResponder(resolver, transcript, completer, 0)
	sink := &recordingSink{}

	if err := r.StreamChat(context.Background(), StreamRequest{UserMessage: "hi"}, sink); err == nil {
		t.Fatal("expected upstream error to surface")
	}
	if sink.done != 0 {
		t.Error("no terminal marker may be written after an upstream error")
	}
}

func TestStreamChatWithoutSessionSkipsStore(t *testing.T) {
	_, resolver, transcript, completer := newFakes("sess-1")
	completer.fragments = []string{"A"}
	r := NewResponder(resolver, transcript, completer, 0)

	if err := r.StreamChat(context.Background(), StreamRequest{UserMessage: "hi"}, &recordingSink{}); err != nil {
		t.Fatalf("StreamChat failed: %v", err)
	}
	if resolver.calls != 0 {
		t.Errorf("expected no session resolution without ids, got %d calls", resolver.calls)
	}
	if len(transcript.entries) != 0 {
		t.Errorf("expected no transcript writes without a session, got %+v", transcript.entries)
	}
}

func TestStreamChatResolveFailureAbortsBeforeStreaming(t *testing.T) {
	log, resolver, transcript, completer := newFakes("sess-1")
	resolver.err = errors.New("store unreachable")
	r := NewResponder(resolver, transcript, completer, 0)
	sink := &recordingSink{}

	if err := r.StreamChat(context.Background(), StreamRequest{
		StakeholderID: "stk-1",
		ProjectID:     "prj-1",
		UserMessage:   "hi",
	}, sink); err == nil {
		t.Fatal("expected resolve failure to surface")
	}
	for _, op := range log.ops {
		if op == "stream" {
			t.Error("upstream stream must not start after resolve failure")
		}
	}
	if len(sink.fragments) != 0 || sink.done != 0 {
		t.Error("expected no sink output after resolve failure")
	}
}

func TestStreamChatSinkFailureStopsForwarding(t *testing.T) {
	_, resolver, transcript, completer := newFakes("sess-1")
	completer.fragments = []string{"A", "B", "C"}
	r := NewResponder(resolver, transcript, completer, 0)
	sink := &recordingSink{fragmentErr: errors.New("client went away")}

	if err := r.StreamChat(context.Background(), StreamRequest{UserMessage: "hi"}, sink); err == nil {
		t.Fatal("expected sink failure to surface")
	}
	if sink.done != 0 {
		t.Error("no terminal marker may follow a sink failure")
	}
}
