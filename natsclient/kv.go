package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/sentinel/pkg/retry"
)

var (
	// ErrKeyNotFound is returned by Get for missing keys.
	ErrKeyNotFound = stderrors.New("kv key not found")
	// ErrConflict indicates a revision mismatch or create race.
	ErrConflict = stderrors.New("kv conflict")
)

// IsKVNotFoundError reports whether the error indicates a missing key,
// matching both the wrapped sentinel and raw server error text.
func IsKVNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, ErrKeyNotFound) || stderrors.Is(err, jetstream.ErrKeyNotFound) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "key not found") || strings.Contains(msg, "10037")
}

// IsKVConflictError reports whether the error indicates a CAS conflict or a
// create on an existing key.
func IsKVConflictError(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, ErrConflict) || stderrors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "wrong last sequence") ||
		strings.Contains(msg, "10071") ||
		strings.Contains(msg, "key exists") ||
		strings.Contains(msg, "10058")
}

// KVOptions configures KV operation behavior.
type KVOptions struct {
	MaxRetries int
	RetryDelay time.Duration
	MaxDelay   time.Duration
	Timeout    time.Duration
}

// DefaultKVOptions returns defaults tuned for low-contention state writes.
func DefaultKVOptions() KVOptions {
	return KVOptions{
		MaxRetries: 5,
		RetryDelay: 10 * time.Millisecond,
		MaxDelay:   time.Second,
		Timeout:    5 * time.Second,
	}
}

// KVStore wraps a JetStream KV bucket with timeouts and CAS retry.
type KVStore struct {
	bucket  jetstream.KeyValue
	options KVOptions
}

// NewKVStore wraps the given bucket.
func NewKVStore(bucket jetstream.KeyValue, opts ...func(*KVOptions)) *KVStore {
	options := DefaultKVOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &KVStore{bucket: bucket, options: options}
}

func (kv *KVStore) applyTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if kv.options.Timeout > 0 {
		return context.WithTimeout(ctx, kv.options.Timeout)
	}
	return ctx, func() {}
}

// Get retrieves a value with its revision.
func (kv *KVStore) Get(ctx context.Context, key string) ([]byte, uint64, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	entry, err := kv.bucket.Get(ctx, key)
	if err != nil {
		if IsKVNotFoundError(err) {
			return nil, 0, ErrKeyNotFound
		}
		return nil, 0, fmt.Errorf("kv get %s: %w", key, err)
	}
	return entry.Value(), entry.Revision(), nil
}

// Put writes a key without a revision check, last writer wins.
func (kv *KVStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	rev, err := kv.bucket.Put(ctx, key, value)
	if err != nil {
		return 0, fmt.Errorf("kv put %s: %w", key, err)
	}
	return rev, nil
}

// UpdateWithRetry applies updateFn under compare-and-swap, retrying revision
// conflicts with backoff. A missing key is created from updateFn(nil).
func (kv *KVStore) UpdateWithRetry(ctx context.Context, key string,
	updateFn func(current []byte) ([]byte, error)) error {

	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	cfg := retry.Config{
		MaxAttempts:  kv.options.MaxRetries + 1,
		InitialDelay: kv.options.RetryDelay,
		MaxDelay:     kv.options.MaxDelay,
		Multiplier:   2.0,
		AddJitter:    true,
	}

	return retry.Do(ctx, cfg, func() error {
		current, revision, err := kv.Get(ctx, key)
		missing := stderrors.Is(err, ErrKeyNotFound)
		if err != nil && !missing {
			return retry.NonRetryable(err)
		}

		next, err := updateFn(current)
		if err != nil {
			return retry.NonRetryable(fmt.Errorf("kv update fn %s: %w", key, err))
		}

		if missing {
			if _, err := kv.bucket.Create(ctx, key, next); err != nil {
				if IsKVConflictError(err) {
					return err // raced with another creator, retry
				}
				return retry.NonRetryable(fmt.Errorf("kv create %s: %w", key, err))
			}
			return nil
		}

		if _, err := kv.bucket.Update(ctx, key, next, revision); err != nil {
			if IsKVConflictError(err) {
				return err // revision conflict, retry
			}
			return retry.NonRetryable(fmt.Errorf("kv cas %s: %w", key, err))
		}
		return nil
	})
}

// Delete removes a key.
func (kv *KVStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	if err := kv.bucket.Delete(ctx, key); err != nil {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}
