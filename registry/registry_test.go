package registry

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/botapi/errors"
	"github.com/c360/botapi/metric"
)

type stubEngine struct {
	name  string
	reply func(userID, content string) (string, error)
}

func (e *stubEngine) Name() string { return e.name }

func (e *stubEngine) Respond(_ context.Context, userID, content string) (string, error) {
	return e.reply(userID, content)
}

func echoEngine() *stubEngine {
	return &stubEngine{name: "echo", reply: func(_, content string) (string, error) {
		return "echo: " + content, nil
	}}
}

func silentEngine() *stubEngine {
	return &stubEngine{name: "silent", reply: func(_, _ string) (string, error) {
		return "", nil
	}}
}

func newTestRegistry(t *testing.T, engine *stubEngine) *Registry {
	t.Helper()
	r, err := New(NewMemStore(), engine)
	require.NoError(t, err)
	return r
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, echoEngine())
	assert.Error(t, err)

	_, err = New(NewMemStore(), nil)
	assert.Error(t, err)
}

func TestCreateUserRoundTrip(t *testing.T) {
	r := newTestRegistry(t, echoEngine())
	ctx := context.Background()

	user, err := r.CreateUser(ctx, "alice", "Alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.ID)
	assert.Equal(t, "Alice", user.Name)
	assert.False(t, user.Created.IsZero())

	got, err := r.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, user.Name, got.Name)
}

func TestCreateUserGeneratesID(t *testing.T) {
	r := newTestRegistry(t, echoEngine())
	ctx := context.Background()

	user, err := r.CreateUser(ctx, "", "Anon")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)

	got, err := r.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Anon", got.Name)
}

func TestCreateUserDuplicate(t *testing.T) {
	r := newTestRegistry(t, echoEngine())
	ctx := context.Background()

	_, err := r.CreateUser(ctx, "alice", "Alice")
	require.NoError(t, err)

	_, err = r.CreateUser(ctx, "alice", "Other")
	assert.True(t, stderrors.Is(err, errors.ErrUserExists))
	assert.True(t, errors.IsConflict(err))
}

func TestListUsers(t *testing.T) {
	r := newTestRegistry(t, echoEngine())
	ctx := context.Background()

	ids := []string{"a", "b", "c"}
	for _, id := range ids {
		_, err := r.CreateUser(ctx, id, "user "+id)
		require.NoError(t, err)
	}

	users, err := r.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, len(ids))

	// Every ID returned by a create resolves through a fetch.
	for _, id := range ids {
		_, err := r.GetUser(ctx, id)
		assert.NoError(t, err)
	}
}

func TestGetUserNotFound(t *testing.T) {
	r := newTestRegistry(t, echoEngine())

	_, err := r.GetUser(context.Background(), "ghost")
	assert.True(t, errors.IsNotFound(err))
}

func TestSetUserName(t *testing.T) {
	r := newTestRegistry(t, echoEngine())
	ctx := context.Background()

	_, err := r.CreateUser(ctx, "alice", "Alice")
	require.NoError(t, err)

	require.NoError(t, r.SetUserName(ctx, "alice", "Alicia"))

	got, err := r.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alicia", got.Name)

	err = r.SetUserName(ctx, "ghost", "Nobody")
	assert.True(t, errors.IsNotFound(err))

	err = r.SetUserName(ctx, "alice", "  ")
	assert.True(t, errors.IsInvalid(err))
}

func TestSendMessageAppendsBothOrigins(t *testing.T) {
	r := newTestRegistry(t, echoEngine())
	ctx := context.Background()

	_, err := r.CreateUser(ctx, "alice", "Alice")
	require.NoError(t, err)

	msg, response, err := r.SendMessage(ctx, "alice", "hello")
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.NotNil(t, response)

	assert.Equal(t, OriginClient, msg.Origin)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, OriginServer, response.Origin)
	assert.Equal(t, "echo: hello", response.Content)

	msgs, err := r.ListMessages(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, msg.ID, msgs[0].ID)
	assert.Equal(t, response.ID, msgs[1].ID)
	assert.LessOrEqual(t, msgs[0].Time, msgs[1].Time)
}

func TestSendMessageSilentEngine(t *testing.T) {
	r := newTestRegistry(t, silentEngine())
	ctx := context.Background()

	_, err := r.CreateUser(ctx, "alice", "Alice")
	require.NoError(t, err)

	msg, response, err := r.SendMessage(ctx, "alice", "hello")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Nil(t, response)

	msgs, err := r.ListMessages(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestSendMessageEngineFailureKeepsUserMessage(t *testing.T) {
	engine := &stubEngine{name: "broken", reply: func(_, _ string) (string, error) {
		return "", stderrors.New("model offline")
	}}
	r := newTestRegistry(t, engine)
	ctx := context.Background()

	_, err := r.CreateUser(ctx, "alice", "Alice")
	require.NoError(t, err)

	msg, response, err := r.SendMessage(ctx, "alice", "hello")
	assert.Error(t, err)
	require.NotNil(t, msg)
	assert.Nil(t, response)

	msgs, err := r.ListMessages(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestSendMessageValidation(t *testing.T) {
	r := newTestRegistry(t, echoEngine())
	ctx := context.Background()

	_, err := r.CreateUser(ctx, "alice", "Alice")
	require.NoError(t, err)

	_, _, err = r.SendMessage(ctx, "alice", "  \n\t ")
	assert.True(t, stderrors.Is(err, errors.ErrEmptyContent))
	assert.True(t, errors.IsInvalid(err))

	_, _, err = r.SendMessage(ctx, "ghost", "hello")
	assert.True(t, errors.IsNotFound(err))
}

func TestGetMessage(t *testing.T) {
	r := newTestRegistry(t, echoEngine())
	ctx := context.Background()

	_, err := r.CreateUser(ctx, "alice", "Alice")
	require.NoError(t, err)
	_, err = r.CreateUser(ctx, "bob", "Bob")
	require.NoError(t, err)

	msg, _, err := r.SendMessage(ctx, "alice", "hi there")
	require.NoError(t, err)

	got, err := r.GetMessage(ctx, "alice", msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi there", got.Content)

	// Another user's message is not visible.
	_, err = r.GetMessage(ctx, "bob", msg.ID)
	assert.True(t, errors.IsNotFound(err))

	_, err = r.GetMessage(ctx, "alice", "c0000000000000000000000000000000000000000000000000000000000000000")
	assert.True(t, errors.IsNotFound(err))

	_, err = r.GetMessage(ctx, "ghost", msg.ID)
	assert.True(t, errors.IsNotFound(err))
}

func TestMessageIDFormat(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 30, 45, 123456000, time.UTC)

	msg := NewMessage(OriginClient, "hello", now)
	assert.Equal(t, "20240501123045.123456", msg.Time)
	assert.True(t, strings.HasPrefix(msg.ID, "c"))
	assert.Len(t, msg.ID, 65)

	reply := NewMessage(OriginServer, "hi", now)
	assert.True(t, strings.HasPrefix(reply.ID, "s"))
	// Same timestamp, different origin letter.
	assert.Equal(t, msg.ID[1:], reply.ID[1:])
}

func TestWatchDeliversAppendedMessages(t *testing.T) {
	r := newTestRegistry(t, echoEngine())
	ctx := context.Background()

	_, err := r.CreateUser(ctx, "alice", "Alice")
	require.NoError(t, err)

	feed, cancel := r.Watch("alice")
	defer cancel()
	assert.Equal(t, 1, r.Watchers())

	msg, response, err := r.SendMessage(ctx, "alice", "hello")
	require.NoError(t, err)

	first := <-feed
	second := <-feed
	assert.Equal(t, msg.ID, first.ID)
	assert.Equal(t, response.ID, second.ID)

	cancel()
	assert.Equal(t, 0, r.Watchers())
}

func TestWatchCancelIdempotent(t *testing.T) {
	r := newTestRegistry(t, echoEngine())

	_, cancel := r.Watch("alice")
	cancel()
	cancel()
	assert.Equal(t, 0, r.Watchers())
}

func TestStoreOpsCounted(t *testing.T) {
	metrics := metric.NewMetricsRegistry().CoreMetrics()
	r, err := New(NewMemStore(), echoEngine(), WithMetrics(metrics))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = r.CreateUser(ctx, "alice", "Alice")
	require.NoError(t, err)
	_, err = r.GetUser(ctx, "alice")
	require.NoError(t, err)
	_, _, err = r.SendMessage(ctx, "alice", "hello")
	require.NoError(t, err)
	require.NoError(t, r.Ping(ctx))

	_, err = r.GetUser(ctx, "ghost")
	require.Error(t, err)

	ops := func(operation, status string) float64 {
		return testutil.ToFloat64(
			metrics.StoreOpsTotal.WithLabelValues("memory", operation, status))
	}
	assert.Equal(t, float64(1), ops("create_user", "ok"))
	// GetUser plus the existence check inside SendMessage.
	assert.Equal(t, float64(2), ops("get_user", "ok"))
	assert.Equal(t, float64(1), ops("get_user", "error"))
	// The client message and the bot reply.
	assert.Equal(t, float64(2), ops("append_message", "ok"))
	assert.Equal(t, float64(1), ops("ping", "ok"))
}
