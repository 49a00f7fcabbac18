package services

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/arcadia/internal/models"
	"github.com/BradenHooton/arcadia/internal/repositories"
)

// MockEmailSender records every message and optionally fails
type MockEmailSender struct {
	SendFunc func(ctx context.Context, msg EmailMessage) error

	mu   sync.Mutex
	sent []EmailMessage
}

func (m *MockEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	if m.SendFunc != nil {
		if err := m.SendFunc(ctx, msg); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns the delivered messages in order
func (m *MockEmailSender) Sent() []EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EmailMessage(nil), m.sent...)
}

// Last returns the most recent message with template, if any
func (m *MockEmailSender) Last(template string) (EmailMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].Template == template {
			return m.sent[i], true
		}
	}
	return EmailMessage{}, false
}

// MockAccountRepository delegates to the wrapped repository unless a Func override is set
type MockAccountRepository struct {
	repositories.AccountRepository

	GetByEmailFunc         func(ctx context.Context, email string) (*models.Account, error)
	GetByIDFunc            func(ctx context.Context, id string) (*models.Account, error)
	RecordLoginOutcomeFunc func(ctx context.Context, id string, outcome models.LoginOutcome) (*models.Account, error)
	SetChallengeFunc       func(ctx context.Context, id string, challenge models.OneTimeChallenge) error
	UpdateMFAFunc          func(ctx context.Context, id string, settings models.MFASettings, at time.Time) error
	UpdatePasswordFunc     func(ctx context.Context, id string, change models.PasswordChange) error
}

// NewMockAccountRepository wraps base, usually a memory repository
func NewMockAccountRepository(base repositories.AccountRepository) *MockAccountRepository {
	return &MockAccountRepository{AccountRepository: base}
}

func (m *MockAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return m.AccountRepository.GetByEmail(ctx, email)
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return m.AccountRepository.GetByID(ctx, id)
}

func (m *MockAccountRepository) RecordLoginOutcome(ctx context.Context, id string, outcome models.LoginOutcome) (*models.Account, error) {
	if m.RecordLoginOutcomeFunc != nil {
		return m.RecordLoginOutcomeFunc(ctx, id, outcome)
	}
	return m.AccountRepository.RecordLoginOutcome(ctx, id, outcome)
}

func (m *MockAccountRepository) SetChallenge(ctx context.Context, id string, challenge models.OneTimeChallenge) error {
	if m.SetChallengeFunc != nil {
		return m.SetChallengeFunc(ctx, id, challenge)
	}
	return m.AccountRepository.SetChallenge(ctx, id, challenge)
}

func (m *MockAccountRepository) UpdateMFA(ctx context.Context, id string, settings models.MFASettings, at time.Time) error {
	if m.UpdateMFAFunc != nil {
		return m.UpdateMFAFunc(ctx, id, settings, at)
	}
	return m.AccountRepository.UpdateMFA(ctx, id, settings, at)
}

func (m *MockAccountRepository) UpdatePassword(ctx context.Context, id string, change models.PasswordChange) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, change)
	}
	return m.AccountRepository.UpdatePassword(ctx, id, change)
}
