// Package natsclient manages NATS connections and JetStream key-value
// access with basic circuit breaking.
package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/botapi/errors"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// Error messages
var (
	ErrNotConnected = stderrors.New("not connected to NATS")
	ErrCircuitOpen  = stderrors.New("circuit breaker is open")
)

// Client manages a NATS connection with a failure-count circuit breaker.
type Client struct {
	url      string
	status   atomic.Value // stores ConnectionStatus
	failures atomic.Int32
	logger   Logger

	mu   sync.RWMutex
	conn *nats.Conn
	js   jetstream.JetStream

	closeMu sync.Mutex
	closed  atomic.Bool

	maxReconnects    int
	reconnectWait    time.Duration
	failureThreshold int32
	cooldown         time.Duration
	lastFailure      atomic.Int64 // unix nanos
}

// NewClient creates a client for the given NATS URL. The connection is
// established by Connect.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	if url == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Client", "NewClient", "url cannot be empty")
	}

	c := &Client{
		url:              url,
		logger:           &defaultLogger{},
		maxReconnects:    -1,
		reconnectWait:    2 * time.Second,
		failureThreshold: 5,
		cooldown:         30 * time.Second,
	}
	c.status.Store(StatusDisconnected)

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// URL returns the configured NATS URL.
func (m *Client) URL() string { return m.url }

// Status returns the current connection status.
func (m *Client) Status() ConnectionStatus {
	if s, ok := m.status.Load().(ConnectionStatus); ok {
		return s
	}
	return StatusDisconnected
}

func (m *Client) setStatus(status ConnectionStatus) {
	m.status.Store(status)
}

// IsHealthy reports whether the client is currently connected.
func (m *Client) IsHealthy() bool {
	return m.Status() == StatusConnected
}

func (m *Client) recordFailure() {
	m.lastFailure.Store(time.Now().UnixNano())
	if m.failures.Add(1) >= m.failureThreshold {
		m.setStatus(StatusCircuitOpen)
		m.logger.Errorf("Circuit breaker opened after %d failures", m.failures.Load())
	}
}

func (m *Client) resetCircuit() {
	m.failures.Store(0)
}

// circuitCooledDown reports whether the open circuit may be retried.
func (m *Client) circuitCooledDown() bool {
	last := m.lastFailure.Load()
	return last == 0 || time.Since(time.Unix(0, last)) >= m.cooldown
}

// Connect establishes the NATS connection and initializes JetStream.
func (m *Client) Connect(ctx context.Context) error {
	if m.Status() == StatusCircuitOpen {
		if !m.circuitCooledDown() {
			return ErrCircuitOpen
		}
		m.setStatus(StatusDisconnected)
	}

	m.setStatus(StatusConnecting)
	m.logger.Printf("Connecting to NATS at %s", m.url)

	connectDone := make(chan error, 1)
	go func() {
		conn, err := nats.Connect(m.url,
			nats.MaxReconnects(m.maxReconnects),
			nats.ReconnectWait(m.reconnectWait),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					m.logger.Errorf("NATS disconnected: %v", err)
				}
				m.setStatus(StatusReconnecting)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				m.logger.Printf("NATS reconnected to %s", m.url)
				m.setStatus(StatusConnected)
			}),
		)
		if err != nil {
			connectDone <- err
			return
		}

		js, err := jetstream.New(conn)
		if err != nil {
			conn.Close()
			connectDone <- err
			return
		}

		m.mu.Lock()
		m.conn = conn
		m.js = js
		m.mu.Unlock()

		connectDone <- nil
	}()

	select {
	case err := <-connectDone:
		if err != nil {
			m.recordFailure()
			if m.Status() != StatusCircuitOpen {
				m.setStatus(StatusDisconnected)
			}
			if m.Status() == StatusCircuitOpen {
				return ErrCircuitOpen
			}
			return errors.WrapTransient(err, "Client", "Connect", "establish connection")
		}
	case <-ctx.Done():
		m.recordFailure()
		if m.Status() != StatusCircuitOpen {
			m.setStatus(StatusDisconnected)
		}
		return errors.WrapTransient(ctx.Err(), "Client", "Connect", "connection cancelled")
	}

	m.setStatus(StatusConnected)
	m.resetCircuit()
	m.logger.Printf("Successfully connected to NATS at %s", m.url)
	return nil
}

// Close drains and closes the NATS connection. Safe to call more than
// once.
func (m *Client) Close(_ context.Context) error {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()

	if m.closed.Load() {
		return nil
	}
	m.closed.Store(true)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil && !m.conn.IsClosed() {
		if err := m.conn.Drain(); err != nil {
			m.logger.Errorf("Drain failed: %v", err)
			m.conn.Close()
		}
		m.conn = nil
	}
	m.setStatus(StatusDisconnected)
	return nil
}

// JetStream returns the JetStream handle.
func (m *Client) JetStream() (jetstream.JetStream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.js == nil {
		return nil, ErrNotConnected
	}
	return m.js, nil
}

// CreateKeyValueBucket creates a KV bucket, or returns the existing
// bucket when one with the same name is already there.
func (m *Client) CreateKeyValueBucket(ctx context.Context, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	if m.Status() == StatusCircuitOpen {
		return nil, ErrCircuitOpen
	}
	if m.Status() != StatusConnected {
		return nil, ErrNotConnected
	}

	js, err := m.JetStream()
	if err != nil {
		m.recordFailure()
		return nil, err
	}

	bucket, err := js.KeyValue(ctx, cfg.Bucket)
	if err == nil {
		m.logger.Printf("Using existing KV bucket: %s", cfg.Bucket)
		m.resetCircuit()
		return bucket, nil
	}

	bucket, err = js.CreateKeyValue(ctx, cfg)
	if err != nil {
		if isAlreadyExistsError(err) {
			// Lost a creation race, the bucket is usable anyway.
			bucket, err = js.KeyValue(ctx, cfg.Bucket)
			if err != nil {
				m.recordFailure()
				return nil, errors.Wrap(err, "Client", "CreateKeyValueBucket",
					fmt.Sprintf("access existing bucket %s", cfg.Bucket))
			}
			m.resetCircuit()
			return bucket, nil
		}
		m.recordFailure()
		return nil, err
	}

	m.logger.Printf("Created new KV bucket: %s", cfg.Bucket)
	m.resetCircuit()
	return bucket, nil
}

// RTT measures the round-trip time to the server.
func (m *Client) RTT() (time.Duration, error) {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return 0, ErrNotConnected
	}
	return conn.RTT()
}

func isAlreadyExistsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "already in use")
}
