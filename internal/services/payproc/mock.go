package payproc

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// MockProcessor is an in-memory Processor for development and tests. Every
// capture succeeds unless an error is injected.
type MockProcessor struct {
	mu      sync.Mutex
	intents map[string]*Intent
	secrets map[string]string // client secret -> intent id

	// error injection points
	CaptureErr  error
	RetrieveErr error
	RefundErr   error

	// CaptureStatus overrides the post-capture intent status when set.
	CaptureStatus string

	CaptureCalls int
}

func NewMockProcessor() *MockProcessor {
	return &MockProcessor{
		intents: make(map[string]*Intent),
		secrets: make(map[string]string),
	}
}

func (m *MockProcessor) GetProvider() Provider {
	return ProviderMock
}

func (m *MockProcessor) CreateIntent(_ context.Context, amount decimal.Decimal, currency, description string) (*Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := "pi_" + randomHex(8)
	secret := fmt.Sprintf("%s%s%s", id, SecretDelimiter, randomHex(12))

	intent := &Intent{
		ID:           id,
		ClientSecret: secret,
		Status:       IntentRequiresConfirmation,
		Amount:       amount,
		Currency:     currency,
		Description:  description,
	}
	m.intents[id] = intent
	m.secrets[secret] = id
	return intent, nil
}

func (m *MockProcessor) Capture(_ context.Context, clientSecret string, _ *CardDetails) (*Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CaptureCalls++
	if m.CaptureErr != nil {
		return nil, m.CaptureErr
	}

	id, ok := m.secrets[clientSecret]
	if !ok {
		return nil, errors.New("unknown client secret")
	}

	intent := m.intents[id]
	intent.Status = IntentSucceeded
	if m.CaptureStatus != "" {
		intent.Status = m.CaptureStatus
	}

	// post-capture view: the secret is never echoed back
	captured := *intent
	captured.ClientSecret = ""
	return &captured, nil
}

func (m *MockProcessor) RetrieveIntent(_ context.Context, intentID string) (*Intent, error) {
	if m.RetrieveErr != nil {
		return nil, m.RetrieveErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	intent, ok := m.intents[intentID]
	if !ok {
		return nil, errors.New("payment intent not found")
	}

	captured := *intent
	captured.ClientSecret = ""
	return &captured, nil
}

func (m *MockProcessor) Refund(_ context.Context, intentID string, _ decimal.Decimal) error {
	if m.RefundErr != nil {
		return m.RefundErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.intents[intentID]; !ok {
		return errors.New("payment intent not found")
	}
	return nil
}

func (m *MockProcessor) SetNotificationChannel(_ chan *Notification) {}

func (m *MockProcessor) Close(_ context.Context) error { return nil }

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "0000"
	}
	return hex.EncodeToString(b)
}
