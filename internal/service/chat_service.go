package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"chat-gateway/internal/config"
	"chat-gateway/internal/llm"
	"chat-gateway/internal/model"
	"chat-gateway/internal/repository"
	"chat-gateway/internal/stream"
)

const titleMaxLen = 100

type ChatService struct {
	repo repository.Repository
	llm  llm.Provider
	cfg  *config.Config
}

func NewChatService(repo repository.Repository, provider llm.Provider, cfg *config.Config) *ChatService {
	return &ChatService{repo: repo, llm: provider, cfg: cfg}
}

// StreamCompletion runs generation for req and forwards text fragments to
// out in arrival order, closing out when the stream ends. On natural
// completion the finished conversation is persisted before out closes; a
// cancelled context or a backend failure skips persistence. A final event
// with a non-empty Error marks abnormal termination.
func (s *ChatService) StreamCompletion(ctx context.Context, userID string, req *model.ChatRequest, out chan<- model.StreamEvent) {
	defer close(out)

	if len(req.Messages) == 0 {
		out <- model.StreamEvent{Error: "conversation has no messages"}
		return
	}

	llmMessages := make([]llm.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		llmMessages = append(llmMessages, llm.Message{Role: m.Role, Content: m.Content})
	}

	genReq := &llm.GenerateRequest{
		Model:  s.cfg.Model,
		Inputs: llm.BuildPrompt(llmMessages),
		Parameters: llm.Parameters{
			MaxNewTokens:      s.cfg.MaxNewTokens,
			TypicalP:          s.cfg.TypicalP,
			RepetitionPenalty: s.cfg.RepetitionPenalty,
			Truncate:          s.cfg.Truncate,
			ReturnFullText:    false,
		},
	}

	src := make(chan llm.StreamChunk)
	go func() {
		if err := s.llm.GenerateStream(ctx, genReq, src); err != nil {
			slog.Warn("generation stream ended with error", "user_id", userID, "error", err)
		}
	}()

	// Sends are guarded by ctx so a consumer that stopped reading cannot
	// strand this goroutine.
	relayed, done := stream.Relay(ctx, src)
	for chunk := range relayed {
		if chunk.Text == "" {
			continue
		}
		select {
		case out <- model.StreamEvent{Content: chunk.Text}:
		case <-ctx.Done():
		}
	}

	completion := <-done
	if completion.Err != nil {
		if errors.Is(completion.Err, context.Canceled) {
			slog.Info("generation cancelled by caller", "user_id", userID)
			return
		}
		select {
		case out <- model.StreamEvent{Error: completion.Err.Error()}:
		case <-ctx.Done():
		}
		return
	}

	// The request context may be torn down the moment the response body
	// finishes, so the write runs on a detached context.
	s.saveCompleted(context.WithoutCancel(ctx), userID, req, completion.Text)
}

// saveCompleted builds the conversation record and upserts it. Failures are
// logged and never surfaced: the response has already been streamed.
func (s *ChatService) saveCompleted(ctx context.Context, userID string, req *model.ChatRequest, completionText string) {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	messages := make([]model.Message, 0, len(req.Messages)+1)
	messages = append(messages, req.Messages...)
	messages = append(messages, model.Message{Role: model.RoleAssistant, Content: completionText})

	chat := &model.Chat{
		ID:        id,
		Title:     truncate(req.Messages[0].Content, titleMaxLen),
		UserID:    userID,
		CreatedAt: time.Now().UnixMilli(),
		Path:      "/chat/" + id,
		Messages:  messages,
	}

	if err := s.repo.SaveChat(ctx, chat); err != nil {
		slog.Error("failed to save completed chat", "chat_id", id, "user_id", userID, "error", err)
		return
	}
	slog.Debug("saved completed chat", "chat_id", id, "user_id", userID)
}

// truncate shortens a string to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
