package registry

import "context"

// Store persists users and their message history. Implementations must
// be safe for concurrent use. Error contracts: CreateUser returns
// ErrUserExists for a taken ID; user lookups return ErrUserNotFound;
// GetMessage returns ErrMessageNotFound when the user exists but the
// message does not, including a message stored under a different user.
type Store interface {
	// Backend names the storage backend for logging and metrics.
	Backend() string

	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	UpdateUser(ctx context.Context, user *User) error

	AppendMessage(ctx context.Context, userID string, msg *Message) error
	ListMessages(ctx context.Context, userID string) ([]*Message, error)
	GetMessage(ctx context.Context, userID, messageID string) (*Message, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
