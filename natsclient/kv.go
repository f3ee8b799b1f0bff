package natsclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/botapi/pkg/retry"
)

// KVEntry wraps a KV entry with its revision for CAS operations
type KVEntry struct {
	Key      string
	Value    []byte
	Revision uint64
}

// KVOptions configures KV operations behavior
type KVOptions struct {
	MaxRetries    int           // Maximum CAS retry attempts
	RetryDelay    time.Duration // Initial delay between retries
	Timeout       time.Duration // Operation timeout
	MaxValueSize  int           // Maximum size for values
	MaxRetryDelay time.Duration // Maximum delay between retries
}

// DefaultKVOptions returns sensible defaults
func DefaultKVOptions() KVOptions {
	return KVOptions{
		MaxRetries:    10,
		RetryDelay:    10 * time.Millisecond,
		Timeout:       5 * time.Second,
		MaxValueSize:  1024 * 1024,
		MaxRetryDelay: time.Second,
	}
}

// KVStore provides high-level KV operations with built-in CAS support
type KVStore struct {
	bucket  jetstream.KeyValue
	options KVOptions
	logger  Logger
}

// NewKVStore creates a new KV store over the given bucket
func (c *Client) NewKVStore(bucket jetstream.KeyValue, opts ...func(*KVOptions)) *KVStore {
	options := DefaultKVOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &KVStore{
		bucket:  bucket,
		options: options,
		logger:  c.logger,
	}
}

// applyTimeout applies the configured timeout to the context if set
func (kv *KVStore) applyTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if kv.options.Timeout > 0 {
		return context.WithTimeout(ctx, kv.options.Timeout)
	}
	return ctx, func() {}
}

// Get retrieves a value with its revision for CAS operations
func (kv *KVStore) Get(ctx context.Context, key string) (*KVEntry, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	entry, err := kv.bucket.Get(ctx, key)
	if err != nil {
		if IsKVNotFoundError(err) {
			return nil, ErrKVKeyNotFound
		}
		return nil, fmt.Errorf("kv get %s: %w", key, err)
	}

	return &KVEntry{
		Key:      key,
		Value:    entry.Value(),
		Revision: entry.Revision(),
	}, nil
}

// Put creates or updates a key without revision check (last writer wins)
func (kv *KVStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	rev, err := kv.bucket.Put(ctx, key, value)
	if err != nil {
		return 0, fmt.Errorf("kv put %s: %w", key, err)
	}

	kv.logger.Debugf("KV Put: key=%s, revision=%d", key, rev)
	return rev, nil
}

// Create only creates if key doesn't exist (returns error if exists)
func (kv *KVStore) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	rev, err := kv.bucket.Create(ctx, key, value)
	if err != nil {
		if IsKVConflictError(err) {
			return 0, ErrKVKeyExists
		}
		return 0, fmt.Errorf("kv create %s: %w", key, err)
	}

	kv.logger.Debugf("KV Create: key=%s, revision=%d", key, rev)
	return rev, nil
}

// Update performs CAS update with explicit revision
func (kv *KVStore) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	rev, err := kv.bucket.Update(ctx, key, value, revision)
	if err != nil {
		if IsKVConflictError(err) {
			return 0, ErrKVRevisionMismatch
		}
		return 0, fmt.Errorf("kv update %s: %w", key, err)
	}

	kv.logger.Debugf("KV Update: key=%s, oldRev=%d, newRev=%d", key, revision, rev)
	return rev, nil
}

// Keys lists all keys in the bucket. An empty bucket returns an empty
// slice rather than an error.
func (kv *KVStore) Keys(ctx context.Context) ([]string, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	lister, err := kv.bucket.ListKeys(ctx)
	if err != nil {
		if IsKVNotFoundError(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("kv list keys: %w", err)
	}

	var keys []string
	for key := range lister.Keys() {
		keys = append(keys, key)
	}
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}

// getRetryConfig returns the retry configuration for this KV store
func (kv *KVStore) getRetryConfig() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = kv.options.MaxRetries + 1
	cfg.InitialDelay = kv.options.RetryDelay
	cfg.MaxDelay = kv.options.MaxRetryDelay
	return cfg
}

// UpdateWithRetry performs a CAS read-modify-write with automatic retry
// on conflicts. If the key doesn't exist, it creates it.
func (kv *KVStore) UpdateWithRetry(ctx context.Context, key string,
	updateFn func(current []byte) ([]byte, error)) error {

	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	err := retry.Do(ctx, kv.getRetryConfig(), func() error {
		var currentValue []byte
		var revision uint64

		entry, err := kv.Get(ctx, key)
		switch {
		case err == nil:
			currentValue = entry.Value
			revision = entry.Revision
		case IsKVNotFoundError(err):
			// Missing key is treated as an empty value at revision 0.
		default:
			return fmt.Errorf("kv get failed during update: %w", err)
		}

		newValue, err := updateFn(currentValue)
		if err != nil {
			return retry.NonRetryable(fmt.Errorf("update function error: %w", err))
		}

		if kv.options.MaxValueSize > 0 && len(newValue) > kv.options.MaxValueSize {
			return retry.NonRetryable(fmt.Errorf("value size %d exceeds maximum %d",
				len(newValue), kv.options.MaxValueSize))
		}

		if revision == 0 {
			_, err = kv.bucket.Create(ctx, key, newValue)
		} else {
			_, err = kv.Update(ctx, key, newValue, revision)
		}
		if err == nil {
			return nil
		}
		if IsKVConflictError(err) {
			kv.logger.Debugf("KV conflict (retrying): key=%s", key)
			return err
		}
		return fmt.Errorf("kv write failed: %w", err)
	})

	if err != nil && IsKVConflictError(err) {
		return ErrKVMaxRetriesExceeded
	}
	return err
}

// IsKVNotFoundError checks if error indicates key not found
func IsKVNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrKVKeyNotFound) {
		return true
	}
	errMsg := err.Error()
	return strings.Contains(errMsg, "key not found") ||
		strings.Contains(errMsg, "10037")
}

// IsKVConflictError checks if error indicates a conflict (key exists or wrong revision)
func IsKVConflictError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrKVRevisionMismatch) || errors.Is(err, ErrKVKeyExists) {
		return true
	}
	errMsg := err.Error()
	return strings.Contains(errMsg, "wrong last sequence") ||
		strings.Contains(errMsg, "10071") ||
		strings.Contains(errMsg, "key exists") ||
		strings.Contains(errMsg, "10058")
}

// Well-known KV errors
var (
	ErrKVKeyNotFound        = errors.New("kv: key not found")
	ErrKVKeyExists          = errors.New("kv: key already exists")
	ErrKVRevisionMismatch   = errors.New("kv: revision mismatch (concurrent update)")
	ErrKVMaxRetriesExceeded = errors.New("kv: max retries exceeded")
)
