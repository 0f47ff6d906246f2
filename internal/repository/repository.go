package repository

import (
	"context"
	"errors"

	"chat-gateway/internal/model"
)

// ErrNotFound is returned when a lookup finds no record. The service layer
// translates it into a domain error instead of leaking store details.
var ErrNotFound = errors.New("repository: not found")

// Repository defines the interface for chat record storage.
type Repository interface {
	// SaveChat upserts the full record and its per-user index entry.
	// Calling it twice with the same ID replaces the prior record.
	SaveChat(ctx context.Context, chat *model.Chat) error
	GetChat(ctx context.Context, chatID string) (*model.Chat, error)
}
