package registry

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/botapi/bot"
	"github.com/c360/botapi/errors"
	"github.com/c360/botapi/metric"
)

// Registry mediates all user and message access and is the only
// component that talks to the bot engine. Engine invocation is
// serialized per user outside the store's locks.
type Registry struct {
	store   Store
	engine  bot.Engine
	metrics *metric.Metrics
	logger  *slog.Logger
	hub     *hub

	botMu sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics attaches metrics collection.
func WithMetrics(m *metric.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// New creates a registry over the given store and engine.
func New(store Store, engine bot.Engine, opts ...Option) (*Registry, error) {
	if store == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "New", "store cannot be nil")
	}
	if engine == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "New", "engine cannot be nil")
	}

	r := &Registry{
		store:  store,
		engine: engine,
		logger: slog.Default(),
		hub:    newHub(),
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// observeStore records one store call outcome when metrics are attached.
func (r *Registry) observeStore(operation string, err error) {
	if r.metrics != nil {
		r.metrics.ObserveStoreOp(r.store.Backend(), operation, err)
	}
}

// CreateUser registers a new user. A fresh UUID is allocated when id is
// empty. Returns ErrUserExists when the ID is already taken.
func (r *Registry) CreateUser(ctx context.Context, id, name string) (*User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}

	user := &User{
		ID:      id,
		Name:    strings.TrimSpace(name),
		Created: time.Now().UTC(),
	}
	err := r.store.CreateUser(ctx, user)
	r.observeStore("create_user", err)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateUser", "store user")
	}

	r.logger.Info("user created", "user_id", user.ID, "name", user.Name)
	return user, nil
}

// GetUser fetches a user by ID.
func (r *Registry) GetUser(ctx context.Context, id string) (*User, error) {
	user, err := r.store.GetUser(ctx, id)
	r.observeStore("get_user", err)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "GetUser", "fetch user")
	}
	return user, nil
}

// ListUsers returns a snapshot of all registered users.
func (r *Registry) ListUsers(ctx context.Context) ([]*User, error) {
	users, err := r.store.ListUsers(ctx)
	r.observeStore("list_users", err)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "ListUsers", "list users")
	}
	return users, nil
}

// SetUserName renames an existing user.
func (r *Registry) SetUserName(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.WrapInvalid(errors.ErrEmptyName, "Registry", "SetUserName", "validate name")
	}

	user, err := r.store.GetUser(ctx, id)
	r.observeStore("get_user", err)
	if err != nil {
		return errors.Wrap(err, "Registry", "SetUserName", "fetch user")
	}
	user.Name = name
	err = r.store.UpdateUser(ctx, user)
	r.observeStore("update_user", err)
	if err != nil {
		return errors.Wrap(err, "Registry", "SetUserName", "update user")
	}

	r.logger.Info("user renamed", "user_id", id, "name", name)
	return nil
}

// ListMessages returns a user's full history, chronological, both
// origins interleaved.
func (r *Registry) ListMessages(ctx context.Context, userID string) ([]*Message, error) {
	msgs, err := r.store.ListMessages(ctx, userID)
	r.observeStore("list_messages", err)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "ListMessages", "list messages")
	}
	return msgs, nil
}

// GetMessage fetches a single message from a user's history.
func (r *Registry) GetMessage(ctx context.Context, userID, messageID string) (*Message, error) {
	msg, err := r.store.GetMessage(ctx, userID, messageID)
	r.observeStore("get_message", err)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "GetMessage", "fetch message")
	}
	return msg, nil
}

// SendMessage stores the user's message, invokes the bot engine, and
// stores its reply. The returned response is nil when the engine stays
// silent. The stored user message survives an engine failure.
func (r *Registry) SendMessage(ctx context.Context, userID, content string) (*Message, *Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil, errors.WrapInvalid(errors.ErrEmptyContent, "Registry", "SendMessage", "validate content")
	}

	_, err := r.store.GetUser(ctx, userID)
	r.observeStore("get_user", err)
	if err != nil {
		return nil, nil, errors.Wrap(err, "Registry", "SendMessage", "fetch user")
	}

	msg := NewMessage(OriginClient, content, time.Now())
	err = r.store.AppendMessage(ctx, userID, msg)
	r.observeStore("append_message", err)
	if err != nil {
		return nil, nil, errors.Wrap(err, "Registry", "SendMessage", "store message")
	}
	r.hub.publish(userID, *msg)

	reply, err := r.respond(ctx, userID, content)
	if err != nil {
		r.logger.Error("bot engine failed", "user_id", userID, "engine", r.engine.Name(), "error", err)
		return msg, nil, errors.Wrap(err, "Registry", "SendMessage", "generate response")
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return msg, nil, nil
	}

	response := NewMessage(OriginServer, reply, time.Now())
	err = r.store.AppendMessage(ctx, userID, response)
	r.observeStore("append_message", err)
	if err != nil {
		return msg, nil, errors.Wrap(err, "Registry", "SendMessage", "store response")
	}
	r.hub.publish(userID, *response)

	return msg, response, nil
}

// respond calls the engine while holding the user's lock so that a
// user's conversation never interleaves concurrent engine calls.
func (r *Registry) respond(ctx context.Context, userID, content string) (string, error) {
	lock := r.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	reply, err := r.engine.Respond(ctx, userID, content)
	elapsed := time.Since(start)

	if r.metrics != nil {
		outcome := "reply"
		switch {
		case err != nil:
			outcome = "error"
		case strings.TrimSpace(reply) == "":
			outcome = "silent"
		}
		r.metrics.ObserveBotReply(r.engine.Name(), outcome, elapsed)
	}
	return reply, err
}

func (r *Registry) userLock(userID string) *sync.Mutex {
	r.botMu.Lock()
	defer r.botMu.Unlock()

	lock, ok := r.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[userID] = lock
	}
	return lock
}

// Watch returns a live feed of messages appended for a user. The cancel
// func must be called to release the watcher.
func (r *Registry) Watch(userID string) (<-chan Message, func()) {
	return r.hub.subscribe(userID)
}

// Watchers reports the number of active watch subscriptions.
func (r *Registry) Watchers() int {
	return r.hub.count()
}

// EngineName reports the configured bot engine's name.
func (r *Registry) EngineName() string {
	return r.engine.Name()
}

// Ping checks the storage backend.
func (r *Registry) Ping(ctx context.Context) error {
	err := r.store.Ping(ctx)
	r.observeStore("ping", err)
	return err
}

// Backend names the storage backend in use.
func (r *Registry) Backend() string {
	return r.store.Backend()
}
