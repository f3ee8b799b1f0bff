package registry

import (
	"context"
	"sync"

	"github.com/c360/botapi/errors"
)

// MemStore keeps users and messages in process memory. It is the
// default backend and the one used throughout the test suite.
type MemStore struct {
	mu       sync.RWMutex
	users    map[string]User
	messages map[string][]*Message
	byID     map[string]map[string]*Message
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		users:    make(map[string]User),
		messages: make(map[string][]*Message),
		byID:     make(map[string]map[string]*Message),
	}
}

// Backend names the storage backend.
func (s *MemStore) Backend() string { return "memory" }

// CreateUser stores a new user, rejecting duplicate IDs.
func (s *MemStore) CreateUser(_ context.Context, user *User) error {
	if user == nil || user.ID == "" {
		return errors.WrapInvalid(errors.ErrInvalidUserID, "MemStore", "CreateUser", "user ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return errors.ErrUserExists
	}
	s.users[user.ID] = *user
	s.messages[user.ID] = nil
	s.byID[user.ID] = make(map[string]*Message)
	return nil
}

// GetUser returns a copy of the stored user.
func (s *MemStore) GetUser(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, errors.ErrUserNotFound
	}
	return &u, nil
}

// ListUsers returns a snapshot of all users. Order is unspecified.
func (s *MemStore) ListUsers(_ context.Context) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		u := u
		out = append(out, &u)
	}
	return out, nil
}

// UpdateUser replaces the stored user record.
func (s *MemStore) UpdateUser(_ context.Context, user *User) error {
	if user == nil || user.ID == "" {
		return errors.WrapInvalid(errors.ErrInvalidUserID, "MemStore", "UpdateUser", "user ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; !ok {
		return errors.ErrUserNotFound
	}
	s.users[user.ID] = *user
	return nil
}

// AppendMessage adds a message to the end of a user's history.
func (s *MemStore) AppendMessage(_ context.Context, userID string, msg *Message) error {
	if msg == nil || msg.ID == "" {
		return errors.WrapInvalid(errors.ErrInvalidMessage, "MemStore", "AppendMessage", "message ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return errors.ErrUserNotFound
	}
	stored := *msg
	s.messages[userID] = append(s.messages[userID], &stored)
	s.byID[userID][stored.ID] = &stored
	return nil
}

// ListMessages returns a user's history in append order.
func (s *MemStore) ListMessages(_ context.Context, userID string) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.users[userID]; !ok {
		return nil, errors.ErrUserNotFound
	}
	msgs := s.messages[userID]
	out := make([]*Message, len(msgs))
	for i, m := range msgs {
		m := *m
		out[i] = &m
	}
	return out, nil
}

// GetMessage returns a single message from a user's history. A message
// stored under a different user is not found.
func (s *MemStore) GetMessage(_ context.Context, userID, messageID string) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.users[userID]; !ok {
		return nil, errors.ErrUserNotFound
	}
	m, ok := s.byID[userID][messageID]
	if !ok {
		return nil, errors.ErrMessageNotFound
	}
	cp := *m
	return &cp, nil
}

// Ping always succeeds for the in-memory backend.
func (s *MemStore) Ping(_ context.Context) error { return nil }

// Close releases the store's contents.
func (s *MemStore) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make(map[string]User)
	s.messages = make(map[string][]*Message)
	s.byID = make(map[string]map[string]*Message)
	return nil
}
