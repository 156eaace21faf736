// Package testutil provides common testing utilities and mock implementations.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nitemap/nitemap/supabase/client"
)

// MockAuthBackend is a test implementation of the session auth backend.
type MockAuthBackend struct {
	mu sync.Mutex

	users    map[string]string // email -> password
	sessions map[string]string // access token -> user ID
	refresh  map[string]string // refresh token -> user ID

	// GetUserErrs is consumed one error per GetUser call, letting tests
	// inject transient failures.
	GetUserErrs []error

	SignOutCalls int
}

// NewMockAuthBackend creates an empty mock backend.
func NewMockAuthBackend() *MockAuthBackend {
	return &MockAuthBackend{
		users:    make(map[string]string),
		sessions: make(map[string]string),
		refresh:  make(map[string]string),
	}
}

// AddUser registers a user. The email doubles as the user ID in tests.
func (m *MockAuthBackend) AddUser(email, password string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[email] = password
	return email
}

// IssueSession mints a session for a user without going through sign-in.
func (m *MockAuthBackend) IssueSession(userID string) *client.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	access := "access-" + uuid.NewString()
	refreshTok := "refresh-" + uuid.NewString()
	m.sessions[access] = userID
	m.refresh[refreshTok] = userID
	return &client.Session{
		AccessToken:  access,
		RefreshToken: refreshTok,
		User:         &client.User{ID: userID, Email: userID},
	}
}

// SignInWithPassword implements session.AuthBackend.
func (m *MockAuthBackend) SignInWithPassword(_ context.Context, email, password string) (*client.Session, error) {
	m.mu.Lock()
	stored, ok := m.users[email]
	m.mu.Unlock()
	if !ok || stored != password {
		return nil, &client.APIError{StatusCode: 400, Message: "invalid credentials"}
	}
	return m.IssueSession(email), nil
}

// SignUp implements session.AuthBackend.
func (m *MockAuthBackend) SignUp(_ context.Context, email, password string, _ map[string]any) (*client.Session, error) {
	m.mu.Lock()
	if _, exists := m.users[email]; exists {
		m.mu.Unlock()
		return nil, &client.APIError{StatusCode: 422, Message: "user already registered"}
	}
	m.users[email] = password
	m.mu.Unlock()
	return m.IssueSession(email), nil
}

// RefreshSession implements session.AuthBackend.
func (m *MockAuthBackend) RefreshSession(_ context.Context, refreshToken string) (*client.Session, error) {
	m.mu.Lock()
	userID, ok := m.refresh[refreshToken]
	m.mu.Unlock()
	if !ok {
		return nil, &client.APIError{StatusCode: 401, Message: "invalid refresh token"}
	}
	return m.IssueSession(userID), nil
}

// GetUser implements session.AuthBackend.
func (m *MockAuthBackend) GetUser(_ context.Context, accessToken string) (*client.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.GetUserErrs) > 0 {
		err := m.GetUserErrs[0]
		m.GetUserErrs = m.GetUserErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	userID, ok := m.sessions[accessToken]
	if !ok {
		return nil, &client.APIError{StatusCode: 401, Message: "invalid JWT"}
	}
	return &client.User{ID: userID, Email: userID}, nil
}

// SignOut implements session.AuthBackend.
func (m *MockAuthBackend) SignOut(_ context.Context, accessToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SignOutCalls++
	if _, ok := m.sessions[accessToken]; !ok {
		return fmt.Errorf("unknown session")
	}
	delete(m.sessions, accessToken)
	return nil
}

// TransientAuthErr builds the not-yet-authorized error class the fetch
// guard retries.
func TransientAuthErr() error {
	return &client.APIError{StatusCode: 401, Code: "PGRST301", Message: "JWT not yet valid"}
}
