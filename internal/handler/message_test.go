package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mousti0113/class-social-media-sub001/internal/domain"
	apperrors "github.com/mousti0113/class-social-media-sub001/pkg/errors"
	"github.com/mousti0113/class-social-media-sub001/pkg/logger"
)

type fakeMessageService struct {
	sendErr error
	sent    *domain.DirectMessage
}

func (f *fakeMessageService) Send(ctx context.Context, sender *domain.User, recipientUsername, content string) (*domain.DirectMessage, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = &domain.DirectMessage{
		ID:                uuid.New(),
		SenderUsername:    sender.Username,
		RecipientUsername: recipientUsername,
		Content:           content,
	}
	return f.sent, nil
}

func (f *fakeMessageService) ListConversation(ctx context.Context, userID uuid.UUID, otherUsername string, limit int) ([]*domain.DirectMessage, error) {
	return nil, nil
}

func (f *fakeMessageService) MarkConversationRead(ctx context.Context, recipientID uuid.UUID, senderUsername string) error {
	return nil
}

func (f *fakeMessageService) CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error) {
	return 0, nil
}

func newMessageRouter(svc *fakeMessageService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewMessageHandler(svc, nil, logger.NewNop())

	r := gin.New()
	r.POST("/api/v1/messages", func(c *gin.Context) {
		c.Set("user", &domain.User{ID: uuid.New(), Username: "alice"})
		c.Next()
	}, h.Send)
	return r
}

func postMessage(r *gin.Engine) *httptest.ResponseRecorder {
	body := strings.NewReader(`{"recipient":"bob","content":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSendMessageErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"disabled recipient", apperrors.ErrUserDisabled, http.StatusForbidden},
		{"unknown recipient", apperrors.ErrUserNotFound, http.StatusNotFound},
		{"validation failure", apperrors.ErrBadRequest, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postMessage(newMessageRouter(&fakeMessageService{sendErr: tc.err}))
			if w.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tc.wantStatus)
			}
		})
	}
}

func TestSendMessageInternalErrorNotLeaked(t *testing.T) {
	internal := errors.New("failed to insert message: connection refused")
	w := postMessage(newMessageRouter(&fakeMessageService{sendErr: internal}))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "connection refused") {
		t.Errorf("internal error text leaked to client: %s", w.Body.String())
	}
}

func TestSendMessageSuccess(t *testing.T) {
	svc := &fakeMessageService{}
	w := postMessage(newMessageRouter(svc))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	if svc.sent == nil || svc.sent.RecipientUsername != "bob" {
		t.Errorf("service received %+v", svc.sent)
	}
}
