package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-gateway/internal/llm"
)

// MockProvider is a testify mock for llm.Provider.
type MockProvider struct {
	mock.Mock
}

func NewMockProvider(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockProvider {
	m := &MockProvider{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockProvider) GenerateStream(ctx context.Context, req *llm.GenerateRequest, ch chan<- llm.StreamChunk) error {
	args := m.Called(ctx, req, ch)
	return args.Error(0)
}
