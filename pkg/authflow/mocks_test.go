package authflow

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockProvider is a mock implementation of Provider. Session events are
// delivered through a buffered channel the test pushes into with Emit.
type MockProvider struct {
	mock.Mock

	events chan SessionEvent
}

func NewMockProvider() *MockProvider {
	return &MockProvider{events: make(chan SessionEvent, 16)}
}

// Emit pushes an event onto the provider's session-change stream.
func (m *MockProvider) Emit(ev SessionEvent) {
	m.events <- ev
}

func (m *MockProvider) CurrentSession(ctx context.Context) (*Session, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Session), args.Error(1)
}

func (m *MockProvider) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Session), args.Error(1)
}

func (m *MockProvider) SendOTP(ctx context.Context, email string, purpose OTPPurpose) error {
	args := m.Called(ctx, email, purpose)
	return args.Error(0)
}

func (m *MockProvider) VerifyOTP(ctx context.Context, email, code string, purpose OTPPurpose) (*Session, error) {
	args := m.Called(ctx, email, code, purpose)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Session), args.Error(1)
}

func (m *MockProvider) UpdatePassword(ctx context.Context, newPassword string) error {
	args := m.Called(ctx, newPassword)
	return args.Error(0)
}

func (m *MockProvider) CreateProfile(ctx context.Context, userID uuid.UUID, username string) error {
	args := m.Called(ctx, userID, username)
	return args.Error(0)
}

func (m *MockProvider) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockProvider) SessionEvents(ctx context.Context) (<-chan SessionEvent, error) {
	args := m.Called(ctx)
	if args.Error(0) != nil {
		return nil, args.Error(0)
	}
	return m.events, nil
}

var _ Provider = (*MockProvider)(nil)
