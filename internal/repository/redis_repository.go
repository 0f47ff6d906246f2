package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"chat-gateway/internal/model"
)

type redisRepository struct {
	rdb *redis.Client
}

func NewRedisRepository(rdb *redis.Client) Repository {
	return &redisRepository{rdb: rdb}
}

func (r *redisRepository) chatKey(chatID string) string      { return "chat:" + chatID }
func (r *redisRepository) userChatsKey(userID string) string { return "user:chat:" + userID }

// SaveChat writes the record hash and then the per-user index entry. The
// two writes are a best-effort pair: a failure between them leaves the
// record present but unindexed for the user.
func (r *redisRepository) SaveChat(ctx context.Context, chat *model.Chat) error {
	messages, err := json.Marshal(chat.Messages)
	if err != nil {
		return fmt.Errorf("could not encode chat messages: %w", err)
	}

	fields := map[string]interface{}{
		"id":        chat.ID,
		"title":     chat.Title,
		"userId":    chat.UserID,
		"createdAt": chat.CreatedAt,
		"path":      chat.Path,
		"messages":  string(messages),
	}
	if err := r.rdb.HSet(ctx, r.chatKey(chat.ID), fields).Err(); err != nil {
		return fmt.Errorf("could not write chat record: %w", err)
	}

	entry := redis.Z{Score: float64(chat.CreatedAt), Member: r.chatKey(chat.ID)}
	if err := r.rdb.ZAdd(ctx, r.userChatsKey(chat.UserID), entry).Err(); err != nil {
		return fmt.Errorf("could not index chat for user: %w", err)
	}
	return nil
}

func (r *redisRepository) GetChat(ctx context.Context, chatID string) (*model.Chat, error) {
	fields, err := r.rdb.HGetAll(ctx, r.chatKey(chatID)).Result()
	if err != nil {
		return nil, fmt.Errorf("could not read chat record: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	createdAt, err := strconv.ParseInt(fields["createdAt"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt createdAt in chat %s: %w", chatID, err)
	}
	var messages []model.Message
	if raw := fields["messages"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &messages); err != nil {
			return nil, fmt.Errorf("corrupt messages in chat %s: %w", chatID, err)
		}
	}

	return &model.Chat{
		ID:        fields["id"],
		Title:     fields["title"],
		UserID:    fields["userId"],
		CreatedAt: createdAt,
		Path:      fields["path"],
		Messages:  messages,
	}, nil
}
