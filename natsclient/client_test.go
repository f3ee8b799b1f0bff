package natsclient

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient("")
	assert.Error(t, err)

	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.Equal(t, "nats://localhost:4222", c.URL())
	assert.False(t, c.IsHealthy())
}

func TestClientOptions(t *testing.T) {
	c, err := NewClient("nats://localhost:4222",
		WithMaxReconnects(3),
		WithReconnectWait(time.Second),
		WithFailureThreshold(2),
		WithCooldown(time.Minute),
	)
	require.NoError(t, err)
	assert.Equal(t, 3, c.maxReconnects)
	assert.Equal(t, time.Second, c.reconnectWait)

	_, err = NewClient("nats://localhost:4222", WithReconnectWait(0))
	assert.Error(t, err)

	_, err = NewClient("nats://localhost:4222", WithFailureThreshold(0))
	assert.Error(t, err)
}

func TestCircuitOpensAfterThreshold(t *testing.T) {
	c, err := NewClient("nats://localhost:4222", WithFailureThreshold(2))
	require.NoError(t, err)

	c.recordFailure()
	assert.NotEqual(t, StatusCircuitOpen, c.Status())

	c.recordFailure()
	assert.Equal(t, StatusCircuitOpen, c.Status())

	c.resetCircuit()
	assert.Equal(t, int32(0), c.failures.Load())
}

func TestConnectionStatusString(t *testing.T) {
	tests := []struct {
		status ConnectionStatus
		want   string
	}{
		{StatusDisconnected, "disconnected"},
		{StatusConnecting, "connecting"},
		{StatusConnected, "connected"},
		{StatusReconnecting, "reconnecting"},
		{StatusCircuitOpen, "circuit_open"},
		{ConnectionStatus(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestKVErrorHelpers(t *testing.T) {
	assert.False(t, IsKVNotFoundError(nil))
	assert.True(t, IsKVNotFoundError(ErrKVKeyNotFound))
	assert.True(t, IsKVNotFoundError(stderrors.New("nats: key not found")))
	assert.True(t, IsKVNotFoundError(stderrors.New("API error 10037")))
	assert.False(t, IsKVNotFoundError(stderrors.New("timeout")))

	assert.False(t, IsKVConflictError(nil))
	assert.True(t, IsKVConflictError(ErrKVKeyExists))
	assert.True(t, IsKVConflictError(ErrKVRevisionMismatch))
	assert.True(t, IsKVConflictError(stderrors.New("wrong last sequence: 42")))
	assert.False(t, IsKVConflictError(stderrors.New("key not found")))
}
