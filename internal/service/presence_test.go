package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mousti0113/class-social-media-sub001/internal/domain"
	apperrors "github.com/mousti0113/class-social-media-sub001/pkg/errors"
	"github.com/mousti0113/class-social-media-sub001/pkg/logger"
)

type upsertCall struct {
	sessionID string
	username  string
	online    bool
	at        time.Time
}

type fakeSessionRepo struct {
	mu      sync.Mutex
	upserts []upsertCall
	fail    bool
}

func (r *fakeSessionRepo) Upsert(_ context.Context, sessionID, username string, online bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("db unavailable")
	}
	r.upserts = append(r.upserts, upsertCall{sessionID, username, online, at})
	return nil
}

func (r *fakeSessionRepo) GetBySessionID(context.Context, string) (*domain.PresenceSession, error) {
	return nil, apperrors.ErrNotFound
}

func (r *fakeSessionRepo) ListActive(context.Context, time.Duration) ([]*domain.PresenceSession, error) {
	return nil, nil
}

func (r *fakeSessionRepo) DeleteInactive(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

func (r *fakeSessionRepo) calls() []upsertCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]upsertCall(nil), r.upserts...)
}

type fakeUserRepo struct {
	users map[string]*domain.User
}

func (r *fakeUserRepo) GetByID(context.Context, uuid.UUID) (*domain.User, error) {
	return nil, apperrors.ErrUserNotFound
}

func (r *fakeUserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	return r.GetActiveByUsername(nil, username)
}

func (r *fakeUserRepo) GetActiveByUsername(_ context.Context, username string) (*domain.User, error) {
	if u, ok := r.users[username]; ok {
		return u, nil
	}
	return nil, apperrors.ErrUserNotFound
}

func (r *fakeUserRepo) UpdateLastLogin(context.Context, uuid.UUID, time.Time) error { return nil }
func (r *fakeUserRepo) CreateToken(context.Context, *domain.UserToken) error        { return nil }
func (r *fakeUserRepo) GetTokenByHash(context.Context, string) (*domain.UserToken, error) {
	return nil, apperrors.ErrNotFound
}
func (r *fakeUserRepo) RevokeToken(context.Context, uuid.UUID, string) error { return nil }

func newPresenceFixture(sessionRepo *fakeSessionRepo, pub *fakePublisher) PresenceService {
	cohort := "cohort-a"
	users := &fakeUserRepo{users: map[string]*domain.User{
		"alice": {ID: uuid.New(), Username: "alice", CohortID: &cohort, IsActive: true},
	}}
	return NewPresenceService(sessionRepo, users, pub, 5*time.Minute, logger.NewNop())
}

func TestPresenceConnectDisconnectVisibility(t *testing.T) {
	svc := newPresenceFixture(&fakeSessionRepo{}, &fakePublisher{})
	ctx := context.Background()

	svc.HandleConnect(ctx, "sess-1", "alice")
	if !svc.IsOnline("alice") {
		t.Fatal("alice connected with sess-1, should be online")
	}

	svc.HandleDisconnect(ctx, "sess-1")
	if svc.IsOnline("alice") {
		t.Fatal("alice has no other sessions, should be offline")
	}
}

func TestPresenceSurvivesMultipleSessions(t *testing.T) {
	svc := newPresenceFixture(&fakeSessionRepo{}, &fakePublisher{})
	ctx := context.Background()

	svc.HandleConnect(ctx, "sess-1", "alice")
	svc.HandleConnect(ctx, "sess-2", "alice")
	svc.HandleDisconnect(ctx, "sess-1")

	if !svc.IsOnline("alice") {
		t.Fatal("alice still has sess-2 open")
	}
	if got := svc.OnlineUsers(); len(got) != 1 || got[0] != "alice" {
		t.Fatalf("online users = %v, want [alice]", got)
	}
}

func TestPresenceMirrorsDurableState(t *testing.T) {
	repo := &fakeSessionRepo{}
	svc := newPresenceFixture(repo, &fakePublisher{})
	ctx := context.Background()

	svc.HandleConnect(ctx, "sess-1", "alice")
	svc.HandleDisconnect(ctx, "sess-1")

	calls := repo.calls()
	if len(calls) != 2 {
		t.Fatalf("upserts = %d, want 2", len(calls))
	}
	if !calls[0].online || calls[0].username != "alice" {
		t.Fatalf("connect upsert = %+v", calls[0])
	}
	if calls[1].online {
		t.Fatalf("disconnect upsert should mark offline, got %+v", calls[1])
	}
	if calls[1].at.Before(calls[0].at) {
		t.Fatal("disconnect must refresh last activity")
	}
}

// Сбой зеркала не должен влиять на realtime-состояние.
func TestPresencePersistenceFailureSwallowed(t *testing.T) {
	repo := &fakeSessionRepo{fail: true}
	svc := newPresenceFixture(repo, &fakePublisher{})
	ctx := context.Background()

	svc.HandleConnect(ctx, "sess-1", "alice")
	if !svc.IsOnline("alice") {
		t.Fatal("in-memory presence must reflect the live connection despite DB failure")
	}

	svc.HandleDisconnect(ctx, "sess-1")
	if svc.IsOnline("alice") {
		t.Fatal("disconnect must clear in-memory state despite DB failure")
	}
}

func TestPresenceBroadcastsCohortAndGlobal(t *testing.T) {
	pub := &fakePublisher{}
	svc := newPresenceFixture(&fakeSessionRepo{}, pub)
	ctx := context.Background()

	svc.HandleConnect(ctx, "sess-1", "alice")

	events := pub.broadcasts()
	if len(events) != 2 {
		t.Fatalf("broadcasts = %d, want 2 (cohort + global)", len(events))
	}
	destinations := map[string]bool{}
	for _, ev := range events {
		destinations[ev.destination] = true
		pe, ok := ev.body.(domain.PresenceEvent)
		if !ok {
			t.Fatalf("body type = %T", ev.body)
		}
		if pe.Type != domain.PresenceOnline || pe.Username != "alice" {
			t.Fatalf("event = %+v", pe)
		}
	}
	if !destinations["/topic/presence/cohort-a"] || !destinations["/topic/presence"] {
		t.Fatalf("destinations = %v", destinations)
	}
}

// Пользователь без записи в БД: lookup падает, но глобальный broadcast
// всё равно уходит и connect не ломается.
func TestPresenceUnknownUserStillBroadcastsGlobally(t *testing.T) {
	pub := &fakePublisher{}
	svc := newPresenceFixture(&fakeSessionRepo{}, pub)
	ctx := context.Background()

	svc.HandleConnect(ctx, "sess-9", "ghost")

	if !svc.IsOnline("ghost") {
		t.Fatal("connect handling must not fail on lookup miss")
	}
	events := pub.broadcasts()
	if len(events) != 1 || events[0].destination != "/topic/presence" {
		t.Fatalf("events = %+v, want single global broadcast", events)
	}
}

func TestPresenceDurableActiveRule(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name    string
		session domain.PresenceSession
		want    bool
	}{
		{"online and fresh", domain.PresenceSession{IsOnline: true, LastActivityAt: now.Add(-time.Minute)}, true},
		{"online but stale", domain.PresenceSession{IsOnline: true, LastActivityAt: now.Add(-6 * time.Minute)}, false},
		{"offline and fresh", domain.PresenceSession{IsOnline: false, LastActivityAt: now.Add(-time.Second)}, false},
	}
	for _, tc := range cases {
		if got := tc.session.IsActive(now, 5*time.Minute); got != tc.want {
			t.Errorf("%s: IsActive = %v, want %v", tc.name, got, tc.want)
		}
	}
}
