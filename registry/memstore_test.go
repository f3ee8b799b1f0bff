package registry

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/botapi/errors"
)

func TestMemStoreUserRoundTrip(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	want := &User{ID: "alice", Name: "Alice", Created: created}
	require.NoError(t, s.CreateUser(ctx, want))

	got, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("user mismatch (-want +got):\n%s", diff)
	}

	// Stored copies are isolated from caller mutation.
	want.Name = "changed"
	got, err = s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)
}

func TestMemStoreMessageHistory(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, &User{ID: "alice"}))

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	first := NewMessage(OriginClient, "hi", now)
	second := NewMessage(OriginServer, "hello", now.Add(time.Second))
	require.NoError(t, s.AppendMessage(ctx, "alice", first))
	require.NoError(t, s.AppendMessage(ctx, "alice", second))

	got, err := s.ListMessages(ctx, "alice")
	require.NoError(t, err)
	if diff := cmp.Diff([]*Message{first, second}, got); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}

	msg, err := s.GetMessage(ctx, "alice", second.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)
}

func TestNewMessageIDCollapsesWithinMicrosecond(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 123456000, time.UTC)

	a := NewMessage(OriginClient, "first", now)
	b := NewMessage(OriginClient, "second", now.Add(500*time.Nanosecond))
	assert.Equal(t, a.ID, b.ID)

	c := NewMessage(OriginServer, "third", now)
	assert.NotEqual(t, a.ID, c.ID)

	d := NewMessage(OriginClient, "fourth", now.Add(time.Microsecond))
	assert.NotEqual(t, a.ID, d.ID)
}

func TestMemStoreErrorContract(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, &User{ID: "alice"}))

	err := s.CreateUser(ctx, &User{ID: "alice"})
	assert.ErrorIs(t, err, errors.ErrUserExists)

	_, err = s.GetUser(ctx, "ghost")
	assert.ErrorIs(t, err, errors.ErrUserNotFound)

	err = s.UpdateUser(ctx, &User{ID: "ghost"})
	assert.ErrorIs(t, err, errors.ErrUserNotFound)

	err = s.AppendMessage(ctx, "ghost", NewMessage(OriginClient, "x", time.Now()))
	assert.ErrorIs(t, err, errors.ErrUserNotFound)

	_, err = s.ListMessages(ctx, "ghost")
	assert.ErrorIs(t, err, errors.ErrUserNotFound)

	_, err = s.GetMessage(ctx, "alice", "nope")
	assert.ErrorIs(t, err, errors.ErrMessageNotFound)
}

func TestMemStoreClose(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, &User{ID: "alice"}))
	require.NoError(t, s.Close(ctx))

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.Equal(t, "memory", s.Backend())
	assert.NoError(t, s.Ping(ctx))
}
