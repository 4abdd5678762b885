package identity

import (
	"context"
	"strings"
	"sync"
)

// Mail is one message Memory would have sent.
type Mail struct {
	Kind        string
	Email       string
	RedirectURL string
}

// Mail kinds recorded by Memory.
const (
	MailConfirmation = "confirmation"
	MailReset        = "reset"
)

// Memory is an in-process Provider for development and tests. Accounts are
// created unconfirmed and stay that way.
type Memory struct {
	mu     sync.Mutex
	users  map[string]string
	outbox []Mail
}

// NewMemory returns a Memory holding the given existing addresses.
func NewMemory(existing ...string) *Memory {
	m := &Memory{users: make(map[string]string)}
	for _, e := range existing {
		m.users[strings.ToLower(e)] = ""
	}
	return m
}

func (m *Memory) SignUp(_ context.Context, email, password, redirectURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.ToLower(email)
	if _, ok := m.users[key]; ok {
		return ErrAlreadyRegistered
	}
	m.users[key] = password
	m.outbox = append(m.outbox, Mail{Kind: MailConfirmation, Email: key, RedirectURL: redirectURL})
	return nil
}

func (m *Memory) SendPasswordReset(_ context.Context, email, redirectURL string) error {
	return m.send(MailReset, email, redirectURL)
}

func (m *Memory) ResendConfirmation(_ context.Context, email, redirectURL string) error {
	return m.send(MailConfirmation, email, redirectURL)
}

func (m *Memory) send(kind, email, redirectURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.ToLower(email)
	if _, ok := m.users[key]; !ok {
		return ErrUserNotFound
	}
	m.outbox = append(m.outbox, Mail{Kind: kind, Email: key, RedirectURL: redirectURL})
	return nil
}

// Exists reports whether email has an account.
func (m *Memory) Exists(email string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.users[strings.ToLower(email)]
	return ok
}

// Outbox returns a copy of every mail sent so far.
func (m *Memory) Outbox() []Mail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Mail, len(m.outbox))
	copy(out, m.outbox)
	return out
}
