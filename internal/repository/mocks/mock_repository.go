package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-gateway/internal/model"
)

// MockRepository is a testify mock for repository.Repository.
type MockRepository struct {
	mock.Mock
}

func NewMockRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockRepository {
	m := &MockRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockRepository) SaveChat(ctx context.Context, chat *model.Chat) error {
	args := m.Called(ctx, chat)
	return args.Error(0)
}

func (m *MockRepository) GetChat(ctx context.Context, chatID string) (*model.Chat, error) {
	args := m.Called(ctx, chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Chat), args.Error(1)
}
