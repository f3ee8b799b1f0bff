package natsclient

import (
	"log"
	"time"

	"github.com/c360/botapi/errors"
)

// Logger interface for injecting custom loggers
type Logger interface {
	Printf(format string, v ...any)
	Errorf(format string, v ...any)
	Debugf(format string, v ...any)
}

// defaultLogger implements Logger using standard log package
type defaultLogger struct{}

func (l *defaultLogger) Printf(format string, v ...any) {
	log.Printf("[NATS] "+format, v...)
}

func (l *defaultLogger) Errorf(format string, v ...any) {
	log.Printf("[NATS ERROR] "+format, v...)
}

func (l *defaultLogger) Debugf(_ string, _ ...any) {
	// Silent by default
}

// ClientOption is a functional option for configuring the Client
type ClientOption func(*Client) error

// WithLogger sets a custom logger for the client
func WithLogger(logger Logger) ClientOption {
	return func(c *Client) error {
		if logger == nil {
			logger = &defaultLogger{}
		}
		c.logger = logger
		return nil
	}
}

// WithMaxReconnects sets the maximum number of reconnection attempts (-1 for infinite)
func WithMaxReconnects(max int) ClientOption {
	return func(c *Client) error {
		c.maxReconnects = max
		return nil
	}
}

// WithReconnectWait sets the wait time between reconnection attempts
func WithReconnectWait(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Client", "WithReconnectWait", "wait must be positive")
		}
		c.reconnectWait = d
		return nil
	}
}

// WithFailureThreshold sets how many consecutive failures open the circuit
func WithFailureThreshold(n int32) ClientOption {
	return func(c *Client) error {
		if n <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Client", "WithFailureThreshold", "threshold must be positive")
		}
		c.failureThreshold = n
		return nil
	}
}

// WithCooldown sets how long the circuit stays open before a retry is allowed
func WithCooldown(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Client", "WithCooldown", "cooldown must be positive")
		}
		c.cooldown = d
		return nil
	}
}
