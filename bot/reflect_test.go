package bot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReflectEngineGreeting(t *testing.T) {
	e := NewReflectEngine()

	reply, err := e.Respond(context.Background(), "u1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello! How can I help you today?", reply)
}

func TestReflectEngineEmptyInputStaysSilent(t *testing.T) {
	e := NewReflectEngine()

	reply, err := e.Respond(context.Background(), "u1", "   ")
	require.NoError(t, err)
	assert.Empty(t, reply)
}

func TestReflectEngineRemembersNamePerUser(t *testing.T) {
	e := NewReflectEngine()
	ctx := context.Background()

	reply, err := e.Respond(ctx, "u1", "My name is Alice")
	require.NoError(t, err)
	assert.Equal(t, "Nice to meet you, Alice.", reply)

	reply, err = e.Respond(ctx, "u1", "what is my name?")
	require.NoError(t, err)
	assert.Equal(t, "Your name is Alice.", reply)

	// Sessions are isolated per user
	reply, err = e.Respond(ctx, "u2", "what is my name?")
	require.NoError(t, err)
	assert.Equal(t, "You haven't told me your name yet.", reply)
}

func TestReflectEngineMirrorsStatements(t *testing.T) {
	e := NewReflectEngine()

	reply, err := e.Respond(context.Background(), "u1", "I am tired")
	require.NoError(t, err)
	assert.Equal(t, "Why do you say you are tired?", reply)
}

func TestReflectEngineDeterministic(t *testing.T) {
	e := NewReflectEngine()
	ctx := context.Background()

	first, err := e.Respond(ctx, "u1", "the weather is nice")
	require.NoError(t, err)
	second, err := e.Respond(ctx, "u1", "the weather is nice")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
