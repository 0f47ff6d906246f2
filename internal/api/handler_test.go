// Black-box tests for the API package: only exported identifiers are used.
package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"chat-gateway/internal/api"
	"chat-gateway/internal/auth"
	"chat-gateway/internal/model"
	"chat-gateway/internal/ratelimit"
)

type mockChatStreamer struct{ mock.Mock }

func (m *mockChatStreamer) StreamCompletion(ctx context.Context, userID string, req *model.ChatRequest, out chan<- model.StreamEvent) {
	m.Called(ctx, userID, req, out)
}

type mockAuthenticator struct{ mock.Mock }

func (m *mockAuthenticator) CurrentUser(r *http.Request) (*auth.User, error) {
	args := m.Called(r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.User), args.Error(1)
}

type mockLimiter struct{ mock.Mock }

func (m *mockLimiter) Allow(ctx context.Context, userID string) (ratelimit.Result, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(ratelimit.Result), args.Error(1)
}

func setupChatHandler(t *testing.T) (*api.ChatHandler, *mockChatStreamer, *mockAuthenticator, *mockLimiter) {
	svc := &mockChatStreamer{}
	authn := &mockAuthenticator{}
	limiter := &mockLimiter{}
	t.Cleanup(func() {
		svc.AssertExpectations(t)
		authn.AssertExpectations(t)
		limiter.AssertExpectations(t)
	})
	return api.NewChatHandler(svc, authn, limiter), svc, authn, limiter
}

func chatRequest(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
}

const validBody = `{"messages":[{"role":"user","content":"Hi"}]}`

// streamEvents makes the service mock emit the given events and close the
// stream, the way the real service does.
func streamEvents(svc *mockChatStreamer, events ...model.StreamEvent) *mock.Call {
	return svc.On("StreamCompletion", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			out := args.Get(3).(chan<- model.StreamEvent)
			for _, event := range events {
				out <- event
			}
			close(out)
		}).Once()
}

func TestChatHandler_HandleChat(t *testing.T) {
	t.Run("streams the completion for an admitted user", func(t *testing.T) {
		handler, svc, authn, limiter := setupChatHandler(t)
		authn.On("CurrentUser", mock.Anything).Return(&auth.User{ID: "u1"}, nil).Once()
		limiter.On("Allow", mock.Anything, "u1").Return(ratelimit.Result{Allowed: true}, nil).Once()
		streamEvents(svc, model.StreamEvent{Content: "He"}, model.StreamEvent{Content: "llo!"})

		rr := httptest.NewRecorder()
		handler.HandleChat(rr, chatRequest(validBody))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "Hello!", rr.Body.String())
		assert.Equal(t, "text/plain; charset=utf-8", rr.Header().Get("Content-Type"))
	})

	t.Run("unauthenticated request gets 401 and reaches no collaborator", func(t *testing.T) {
		handler, _, authn, _ := setupChatHandler(t)
		authn.On("CurrentUser", mock.Anything).Return(nil, nil).Once()

		rr := httptest.NewRecorder()
		handler.HandleChat(rr, chatRequest(validBody))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "Unauthorized", rr.Body.String())
	})

	t.Run("invalid token gets 401", func(t *testing.T) {
		handler, _, authn, _ := setupChatHandler(t)
		authn.On("CurrentUser", mock.Anything).Return(nil, auth.ErrInvalidToken).Once()

		rr := httptest.NewRecorder()
		handler.HandleChat(rr, chatRequest(validBody))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("rate-limited request gets a plain-text retry message", func(t *testing.T) {
		handler, _, authn, limiter := setupChatHandler(t)
		authn.On("CurrentUser", mock.Anything).Return(&auth.User{ID: "u1"}, nil).Once()
		resetAt := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
		limiter.On("Allow", mock.Anything, "u1").
			Return(ratelimit.Result{Allowed: false, ResetAt: resetAt}, nil).Once()

		rr := httptest.NewRecorder()
		handler.HandleChat(rr, chatRequest(validBody))

		// Status stays 200; the body carries the retry time.
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "Your rate limit has been exceeded")
		assert.Contains(t, rr.Body.String(), "Mar 2, 2024 12:00:00 PM GMT")
	})

	t.Run("limiter store failure fails open", func(t *testing.T) {
		handler, svc, authn, limiter := setupChatHandler(t)
		authn.On("CurrentUser", mock.Anything).Return(&auth.User{ID: "u1"}, nil).Once()
		limiter.On("Allow", mock.Anything, "u1").
			Return(ratelimit.Result{}, errors.New("connection refused")).Once()
		streamEvents(svc, model.StreamEvent{Content: "ok"})

		rr := httptest.NewRecorder()
		handler.HandleChat(rr, chatRequest(validBody))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "ok", rr.Body.String())
	})

	t.Run("malformed JSON from an authenticated user gets 400", func(t *testing.T) {
		handler, _, authn, _ := setupChatHandler(t)
		authn.On("CurrentUser", mock.Anything).Return(&auth.User{ID: "u1"}, nil).Once()

		rr := httptest.NewRecorder()
		handler.HandleChat(rr, chatRequest(`{"messages":`))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("empty messages from an authenticated user get 400", func(t *testing.T) {
		handler, _, authn, _ := setupChatHandler(t)
		authn.On("CurrentUser", mock.Anything).Return(&auth.User{ID: "u1"}, nil).Once()

		rr := httptest.NewRecorder()
		handler.HandleChat(rr, chatRequest(`{"messages":[]}`))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "Messages")
	})

	t.Run("identity is resolved before the body is inspected", func(t *testing.T) {
		handler, _, authn, _ := setupChatHandler(t)
		authn.On("CurrentUser", mock.Anything).Return(nil, nil).Once()

		// A malformed body from an anonymous caller must yield 401, not a
		// validation response that reveals which payloads parse.
		rr := httptest.NewRecorder()
		handler.HandleChat(rr, chatRequest(`{"messages":`))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "Unauthorized", rr.Body.String())
	})

	t.Run("backend failure before first byte maps to 502", func(t *testing.T) {
		handler, svc, authn, limiter := setupChatHandler(t)
		authn.On("CurrentUser", mock.Anything).Return(&auth.User{ID: "u1"}, nil).Once()
		limiter.On("Allow", mock.Anything, "u1").Return(ratelimit.Result{Allowed: true}, nil).Once()
		streamEvents(svc, model.StreamEvent{Error: "backend unreachable"})

		rr := httptest.NewRecorder()
		handler.HandleChat(rr, chatRequest(validBody))

		assert.Equal(t, http.StatusBadGateway, rr.Code)
	})

	t.Run("mid-stream failure aborts the connection", func(t *testing.T) {
		handler, svc, authn, limiter := setupChatHandler(t)
		authn.On("CurrentUser", mock.Anything).Return(&auth.User{ID: "u1"}, nil).Once()
		limiter.On("Allow", mock.Anything, "u1").Return(ratelimit.Result{Allowed: true}, nil).Once()
		streamEvents(svc, model.StreamEvent{Content: "Hel"}, model.StreamEvent{Error: "stream died"})

		rr := httptest.NewRecorder()
		assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
			handler.HandleChat(rr, chatRequest(validBody))
		})
	})
}
