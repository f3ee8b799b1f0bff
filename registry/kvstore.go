package registry

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/botapi/errors"
	"github.com/c360/botapi/natsclient"
	"github.com/c360/botapi/pkg/cache"
)

// Default KV bucket names and message cache size.
const (
	DefaultUserBucket    = "botapi_users"
	DefaultMessageBucket = "botapi_messages"
	DefaultCacheSize     = 128
)

// KVConfig configures the NATS-backed store.
type KVConfig struct {
	UserBucket    string
	MessageBucket string
	CacheSize     int
	Logger        *slog.Logger
}

// KVStore persists users and messages in NATS JetStream key-value
// buckets. Each user is one entry in the user bucket; a user's full
// message history is one JSON array in the message bucket, updated with
// CAS retries. Recently read histories are held in an LRU cache.
type KVStore struct {
	client   *natsclient.Client
	users    *natsclient.KVStore
	messages *natsclient.KVStore
	cache    *cache.LRU[[]*Message]
	logger   *slog.Logger
}

// NewKVStore creates the buckets (or opens existing ones) and returns a
// ready store. The client must already be connected.
func NewKVStore(ctx context.Context, client *natsclient.Client, cfg KVConfig) (*KVStore, error) {
	if client == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "KVStore", "NewKVStore", "nats client cannot be nil")
	}
	if cfg.UserBucket == "" {
		cfg.UserBucket = DefaultUserBucket
	}
	if cfg.MessageBucket == "" {
		cfg.MessageBucket = DefaultMessageBucket
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	userBucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.UserBucket,
		Description: "Registered bot users",
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "KVStore", "NewKVStore", "create user bucket")
	}

	msgBucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.MessageBucket,
		Description: "Per-user message histories",
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "KVStore", "NewKVStore", "create message bucket")
	}

	msgCache, err := cache.NewLRU[[]*Message](cfg.CacheSize, nil)
	if err != nil {
		return nil, err
	}

	return &KVStore{
		client:   client,
		users:    client.NewKVStore(userBucket),
		messages: client.NewKVStore(msgBucket),
		cache:    msgCache,
		logger:   cfg.Logger,
	}, nil
}

// Backend names the storage backend.
func (s *KVStore) Backend() string { return "kv" }

// CreateUser stores a new user, rejecting duplicate IDs.
func (s *KVStore) CreateUser(ctx context.Context, user *User) error {
	if user == nil || user.ID == "" {
		return errors.WrapInvalid(errors.ErrInvalidUserID, "KVStore", "CreateUser", "user ID cannot be empty")
	}

	data, err := json.Marshal(user)
	if err != nil {
		return errors.WrapFatal(err, "KVStore", "CreateUser", "marshal user")
	}

	if _, err := s.users.Create(ctx, user.ID, data); err != nil {
		if natsclient.IsKVConflictError(err) {
			return errors.ErrUserExists
		}
		return errors.WrapTransient(err, "KVStore", "CreateUser", "create in KV")
	}
	return nil
}

// GetUser fetches a user by ID.
func (s *KVStore) GetUser(ctx context.Context, id string) (*User, error) {
	if id == "" {
		return nil, errors.ErrUserNotFound
	}

	entry, err := s.users.Get(ctx, id)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return nil, errors.WrapNotFound(errors.ErrUserNotFound, "KVStore", "GetUser", "lookup user")
		}
		return nil, errors.WrapTransient(err, "KVStore", "GetUser", "get from KV")
	}

	var user User
	if err := json.Unmarshal(entry.Value, &user); err != nil {
		return nil, errors.WrapFatal(err, "KVStore", "GetUser", "unmarshal user")
	}
	return &user, nil
}

// ListUsers returns all registered users.
func (s *KVStore) ListUsers(ctx context.Context) ([]*User, error) {
	keys, err := s.users.Keys(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "KVStore", "ListUsers", "list keys")
	}

	users := make([]*User, 0, len(keys))
	for _, key := range keys {
		user, err := s.GetUser(ctx, key)
		if err != nil {
			// Deleted between listing and fetch.
			if errors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

// UpdateUser replaces the stored user record.
func (s *KVStore) UpdateUser(ctx context.Context, user *User) error {
	if user == nil || user.ID == "" {
		return errors.WrapInvalid(errors.ErrInvalidUserID, "KVStore", "UpdateUser", "user ID cannot be empty")
	}

	if _, err := s.GetUser(ctx, user.ID); err != nil {
		return err
	}

	data, err := json.Marshal(user)
	if err != nil {
		return errors.WrapFatal(err, "KVStore", "UpdateUser", "marshal user")
	}
	if _, err := s.users.Put(ctx, user.ID, data); err != nil {
		return errors.WrapTransient(err, "KVStore", "UpdateUser", "put in KV")
	}
	return nil
}

// AppendMessage adds a message to the end of a user's history with a
// CAS read-modify-write.
func (s *KVStore) AppendMessage(ctx context.Context, userID string, msg *Message) error {
	if msg == nil || msg.ID == "" {
		return errors.WrapInvalid(errors.ErrInvalidMessage, "KVStore", "AppendMessage", "message ID cannot be empty")
	}
	if _, err := s.GetUser(ctx, userID); err != nil {
		return err
	}

	err := s.messages.UpdateWithRetry(ctx, userID, func(current []byte) ([]byte, error) {
		var msgs []*Message
		if len(current) > 0 {
			if err := json.Unmarshal(current, &msgs); err != nil {
				return nil, err
			}
		}
		msgs = append(msgs, msg)
		return json.Marshal(msgs)
	})
	if err != nil {
		return errors.WrapTransient(err, "KVStore", "AppendMessage", "append in KV")
	}

	// The cached history is stale now.
	s.cache.Remove(userID)
	return nil
}

// ListMessages returns a user's history in append order.
func (s *KVStore) ListMessages(ctx context.Context, userID string) ([]*Message, error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	if msgs, ok := s.cache.Get(userID); ok {
		return msgs, nil
	}

	entry, err := s.messages.Get(ctx, userID)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return []*Message{}, nil
		}
		return nil, errors.WrapTransient(err, "KVStore", "ListMessages", "get from KV")
	}

	var msgs []*Message
	if err := json.Unmarshal(entry.Value, &msgs); err != nil {
		return nil, errors.WrapFatal(err, "KVStore", "ListMessages", "unmarshal history")
	}

	s.cache.Put(userID, msgs)
	return msgs, nil
}

// GetMessage returns a single message from a user's history.
func (s *KVStore) GetMessage(ctx context.Context, userID, messageID string) (*Message, error) {
	msgs, err := s.ListMessages(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		if m.ID == messageID {
			return m, nil
		}
	}
	return nil, errors.WrapNotFound(errors.ErrMessageNotFound, "KVStore", "GetMessage", "lookup message")
}

// Ping checks the NATS connection.
func (s *KVStore) Ping(_ context.Context) error {
	if _, err := s.client.RTT(); err != nil {
		return errors.WrapTransient(err, "KVStore", "Ping", "measure RTT")
	}
	return nil
}

// Close drops the cache. The NATS client is owned by the caller and is
// closed separately.
func (s *KVStore) Close(_ context.Context) error {
	stats := s.cache.Stats()
	s.logger.Debug("closing kv store",
		"cache_hits", stats.Hits(),
		"cache_misses", stats.Misses(),
		"cache_evictions", stats.Evictions())
	return nil
}
