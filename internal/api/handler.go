package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"chat-gateway/internal/auth"
	app_errors "chat-gateway/internal/errors"
	"chat-gateway/internal/model"
	"chat-gateway/internal/ratelimit"
)

// resetTimeLayout renders the rate-limit reset moment for humans.
const resetTimeLayout = "Jan 2, 2006 3:04:05 PM"

// ChatStreamer is the service contract the handler depends on.
type ChatStreamer interface {
	StreamCompletion(ctx context.Context, userID string, req *model.ChatRequest, out chan<- model.StreamEvent)
}

type ChatHandler struct {
	service ChatStreamer
	auth    auth.Authenticator
	limiter ratelimit.Limiter
}

func NewChatHandler(svc ChatStreamer, authenticator auth.Authenticator, limiter ratelimit.Limiter) *ChatHandler {
	return &ChatHandler{service: svc, auth: authenticator, limiter: limiter}
}

// HandleChat accepts a conversation and streams the model's completion back
// as a chunked plain-text body. Admission control happens before the
// inference backend is contacted; once streaming has started, failures
// terminate the connection instead of producing an error status.
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.CurrentUser(r)
	if err != nil || user == nil {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, "Unauthorized")
		return
	}

	var req model.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, fmt.Errorf("%w: invalid request body", app_errors.ErrValidation))
		return
	}
	if err := validateRequest(&req); err != nil {
		respondWithError(w, err)
		return
	}

	admission, err := h.limiter.Allow(r.Context(), user.ID)
	if err != nil {
		// Store unreachable: fail open and keep serving.
		slog.Warn("rate limit check failed, admitting request", "user_id", user.ID, "error", err)
		admission = ratelimit.Result{Allowed: true}
	}
	if !admission.Allowed {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "Your rate limit has been exceeded. You can chat again from %s GMT",
			admission.ResetAt.UTC().Format(resetTimeLayout))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	streamChan := make(chan model.StreamEvent)
	go h.service.StreamCompletion(r.Context(), user.ID, &req, streamChan)

	wrote := false
	for event := range streamChan {
		if event.Error != "" {
			if !wrote {
				respondWithError(w, fmt.Errorf("%w: %s", app_errors.ErrUpstream, event.Error))
				return
			}
			// Mid-stream failure: the only honest signal left is an
			// abnormally terminated body.
			slog.Warn("aborting response after mid-stream failure", "user_id", user.ID, "error", event.Error)
			panic(http.ErrAbortHandler)
		}
		if _, err := io.WriteString(w, event.Content); err != nil {
			slog.Info("client disconnected during stream", "user_id", user.ID)
			break
		}
		wrote = true
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
	}
}
