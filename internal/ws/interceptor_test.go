package ws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mousti0113/class-social-media-sub001/internal/domain"
	"github.com/mousti0113/class-social-media-sub001/pkg/logger"
)

type fakeVerifier struct {
	user *domain.User
	err  error
	// сколько раз дёрнули проверку
	calls int
}

func (v *fakeVerifier) ValidateToken(_ context.Context, token string) (*domain.User, error) {
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	return v.user, nil
}

type fakeLimiter struct {
	allow bool
	keys  []string
}

func (l *fakeLimiter) Allow(key string, op domain.OperationType) bool {
	l.keys = append(l.keys, key)
	return l.allow
}

func testConn(connectToken string) *Conn {
	return NewConn("sess-1", nil, connectToken, 8, time.Second, logger.NewNop())
}

func activeUser(username string) *domain.User {
	cohort := "cohort-a"
	return &domain.User{Username: username, GlobalRole: domain.GlobalRoleUser, CohortID: &cohort, IsActive: true}
}

func TestAuthInterceptorConnectWithHeaderToken(t *testing.T) {
	verifier := &fakeVerifier{user: activeUser("alice")}
	ic := NewAuthInterceptor(verifier, logger.NewNop())
	conn := testConn("")

	frame := &Frame{
		Command: CommandConnect,
		Headers: map[string]string{"Authorization": "Bearer good-token"},
	}

	if err := ic.Intercept(context.Background(), conn, frame); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !conn.IsAuthenticated() {
		t.Fatal("connection should be authenticated after CONNECT")
	}
	if conn.Username() != "alice" {
		t.Fatalf("username = %q, want alice", conn.Username())
	}
}

func TestAuthInterceptorConnectWithQueryToken(t *testing.T) {
	verifier := &fakeVerifier{user: activeUser("bob")}
	ic := NewAuthInterceptor(verifier, logger.NewNop())
	conn := testConn("query-token")

	frame := &Frame{Command: CommandConnect}

	if err := ic.Intercept(context.Background(), conn, frame); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !conn.IsAuthenticated() {
		t.Fatal("query-param token should authenticate the connection")
	}
}

func TestAuthInterceptorRejectsConnectWithoutToken(t *testing.T) {
	ic := NewAuthInterceptor(&fakeVerifier{}, logger.NewNop())
	conn := testConn("")

	err := ic.Intercept(context.Background(), conn, &Frame{Command: CommandConnect})
	if !errors.Is(err, ErrRejectConnection) {
		t.Fatalf("err = %v, want ErrRejectConnection", err)
	}
	if conn.IsAuthenticated() {
		t.Fatal("connection must not be partially authenticated")
	}
}

func TestAuthInterceptorRejectsInvalidToken(t *testing.T) {
	verifier := &fakeVerifier{err: errors.New("expired")}
	ic := NewAuthInterceptor(verifier, logger.NewNop())
	conn := testConn("bad")

	err := ic.Intercept(context.Background(), conn, &Frame{Command: CommandConnect})
	if !errors.Is(err, ErrRejectConnection) {
		t.Fatalf("err = %v, want ErrRejectConnection", err)
	}
}

func TestAuthInterceptorRejectsSendBeforeConnect(t *testing.T) {
	ic := NewAuthInterceptor(&fakeVerifier{}, logger.NewNop())
	conn := testConn("")

	err := ic.Intercept(context.Background(), conn, &Frame{Command: CommandSend, Destination: DestAppEcho})
	if !errors.Is(err, ErrRejectConnection) {
		t.Fatalf("err = %v, want ErrRejectConnection", err)
	}
}

func TestAuthInterceptorDoesNotReverifyPerFrame(t *testing.T) {
	verifier := &fakeVerifier{user: activeUser("carol")}
	ic := NewAuthInterceptor(verifier, logger.NewNop())
	conn := testConn("tok")

	if err := ic.Intercept(context.Background(), conn, &Frame{Command: CommandConnect}); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := ic.Intercept(context.Background(), conn, &Frame{Command: CommandSend}); err != nil {
			t.Fatalf("send %d failed: %v", i, err)
		}
	}
	if verifier.calls != 1 {
		t.Fatalf("verifier calls = %d, want 1", verifier.calls)
	}
}

func TestRateLimitInterceptorDropsOnDeny(t *testing.T) {
	lim := &fakeLimiter{allow: false}
	ic := NewRateLimitInterceptor(lim, logger.NewNop())
	conn := testConn("")
	conn.SetIdentity("dave", domain.GlobalRoleUser, nil)

	err := ic.Intercept(context.Background(), conn, &Frame{Command: CommandSend, Destination: DestAppTyping})
	if !errors.Is(err, ErrDropFrame) {
		t.Fatalf("err = %v, want ErrDropFrame", err)
	}
	if len(lim.keys) != 1 || lim.keys[0] != "ws-user:dave" {
		t.Fatalf("limiter keys = %v, want [ws-user:dave]", lim.keys)
	}
}

func TestRateLimitInterceptorIgnoresNonSendFrames(t *testing.T) {
	lim := &fakeLimiter{allow: false}
	ic := NewRateLimitInterceptor(lim, logger.NewNop())
	conn := testConn("")
	conn.SetIdentity("dave", domain.GlobalRoleUser, nil)

	for _, cmd := range []Command{CommandSubscribe, CommandUnsubscribe, CommandPing, CommandConnect} {
		if err := ic.Intercept(context.Background(), conn, &Frame{Command: cmd}); err != nil {
			t.Fatalf("%s: unexpected error %v", cmd, err)
		}
	}
	if len(lim.keys) != 0 {
		t.Fatalf("non-SEND frames must not consume tokens, got %v", lim.keys)
	}
}

// Порядок стадий: кадр на неаутентифицированном подключении отклоняется
// аутентификацией и не успевает списать токен.
func TestChainAuthRunsBeforeRateLimit(t *testing.T) {
	verifier := &fakeVerifier{err: errors.New("nope")}
	lim := &fakeLimiter{allow: true}
	chain := NewChain(logger.NewNop(),
		NewAuthInterceptor(verifier, logger.NewNop()),
		NewRateLimitInterceptor(lim, logger.NewNop()),
	)
	conn := testConn("")

	err := chain.Process(context.Background(), conn, &Frame{Command: CommandSend, Destination: DestAppEcho})
	if !errors.Is(err, ErrRejectConnection) {
		t.Fatalf("err = %v, want ErrRejectConnection", err)
	}
	if len(lim.keys) != 0 {
		t.Fatal("unauthenticated frame must never consume a token")
	}
}

func TestChainDeliversAuthenticatedAllowedSend(t *testing.T) {
	verifier := &fakeVerifier{user: activeUser("erin")}
	lim := &fakeLimiter{allow: true}
	chain := NewChain(logger.NewNop(),
		NewAuthInterceptor(verifier, logger.NewNop()),
		NewRateLimitInterceptor(lim, logger.NewNop()),
	)
	conn := testConn("tok")

	if err := chain.Process(context.Background(), conn, &Frame{Command: CommandConnect}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := chain.Process(context.Background(), conn, &Frame{Command: CommandSend, Destination: DestAppEcho}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(lim.keys) != 1 {
		t.Fatalf("limiter consulted %d times, want 1", len(lim.keys))
	}
}
