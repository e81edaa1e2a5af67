package session

import (
	"context"
	"errors"
	"testing"

	"github.com/ianibsm/Synapz/internal/domain"
)

// fakeRepo is an in-memory store.Repository recording call counts.
type fakeRepo struct {
	sessions    []*domain.Session
	findErr     error
	createErr   error
	findCalls   int
	createCalls int
}

func (f *fakeRepo) FindSession(ctx context.Context, stakeholderID, projectID string) (*domain.Session, error) {
	f.findCalls++
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, s := range f.sessions {
		if s.Stakeholder == stakeholderID && s.Project == projectID {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) CreateSession(ctx context.Context, stakeholderID, projectID string, status domain.SessionStatus) (*domain.Session, error) {
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	s := &domain.Session{
		ID:          "sess-" + stakeholderID + "-" + projectID,
		Stakeholder: stakeholderID,
		Project:     projectID,
		Status:      status,
	}
	f.sessions = append(f.sessions, s)
	return s, nil
}

func (f *fakeRepo) CreateMessage(ctx context.Context, sessionID, sender, text string) (*domain.Message, error) {
	return &domain.Message{ID: "msg", SessionID: sessionID, Sender: sender, Text: text}, nil
}

func (f *fakeRepo) MessagesBySession(ctx context.Context, sessionID string) ([]*domain.Message, error) {
	return nil, nil
}

func (f *fakeRepo) Ping(ctx context.Context) error { return nil }
func (f *fakeRepo) Close() error                   { return nil }

func TestResolveCreatesSessionOnFirstContact(t *testing.T) {
	repo := &fakeRepo{}
	r := NewResolver(repo)

	id, err := r.Resolve(context.Background(), "stk-1", "prj-1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty session id")
	}
	if repo.createCalls != 1 {
		t.Errorf("expected exactly one session created, got %d", repo.createCalls)
	}
	if len(repo.sessions) != 1 || repo.sessions[0].Status != domain.SessionInProgress {
		t.Errorf("expected one in_progress session, got %+v", repo.sessions)
	}
}

func TestResolveReusesExistingSession(t *testing.T) {
	repo := &fakeRepo{}
	r := NewResolver(repo)
	ctx := context.Background()

	first, err := r.Resolve(ctx, "stk-1", "prj-1")
	if err != nil {
		t.Fatalf("first Resolve failed: %v", err)
	}
	second, err := r.Resolve(ctx, "stk-1", "prj-1")
	if err != nil {
		t.Fatalf("second Resolve failed: %v", err)
	}

	if first != second {
		t.Errorf("expected same session id, got %q and %q", first, second)
	}
	if repo.createCalls != 1 {
		t.Errorf("expected zero new sessions on reuse, got %d creates total", repo.createCalls)
	}
}

func TestResolveDistinctPairsGetDistinctSessions(t *testing.T) {
	repo := &fakeRepo{}
	r := NewResolver(repo)
	ctx := context.Background()

	a, _ := r.Resolve(ctx, "stk-1", "prj-1")
	b, _ := r.Resolve(ctx, "stk-1", "prj-2")
	c, _ := r.Resolve(ctx, "stk-2", "prj-1")

	if a == b || a == c || b == c {
		t.Errorf("expected distinct session ids, got %q %q %q", a, b, c)
	}
}

func TestResolveSurfacesStoreFailures(t *testing.T) {
	storeErr := errors.New("store unreachable")

	repo := &fakeRepo{findErr: storeErr}
	if _, err := NewResolver(repo).Resolve(context.Background(), "a", "b"); !errors.Is(err, storeErr) {
		t.Errorf("expected find error to surface, got %v", err)
	}

	repo = &fakeRepo{createErr: storeErr}
	if _, err := NewResolver(repo).Resolve(context.Background(), "a", "b"); !errors.Is(err, storeErr) {
		t.Errorf("expected create error to surface, got %v", err)
	}
}
