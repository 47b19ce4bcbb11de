package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/poiesic/scribe/core"
	"github.com/poiesic/scribe/retry"
	"github.com/poiesic/scribe/storage"
	"golang.org/x/sync/singleflight"
)

// Dialer opens a vector index. It is called once per connection attempt.
type Dialer func(ctx context.Context) (storage.VectorIndex, error)

// Connector owns the lifecycle of the shared retrieval store.
// The first successful Store call dials the index; later calls reuse it.
// Concurrent callers share one dial, and each waits only as long as its own
// context allows. Close cancels a dial in flight.
type Connector struct {
	dial      Dialer
	policy    retry.Policy
	storeOpts []Option
	logger    *slog.Logger

	connecting singleflight.Group
	closing    context.Context
	stop       context.CancelFunc

	mu       sync.Mutex
	store    *Store
	attempts int
	closed   bool
}

// ConnectorOption configures a Connector.
type ConnectorOption func(*Connector) error

// WithRetryPolicy overrides the connection retry policy.
// Default is retry.DefaultPolicy().
func WithRetryPolicy(p retry.Policy) ConnectorOption {
	return func(c *Connector) error {
		if p.MaxAttempts <= 0 {
			return retry.ErrInvalidMaxAttempts
		}
		c.policy = p
		return nil
	}
}

// WithStoreOptions sets the options applied to the Store once connected.
func WithStoreOptions(opts ...Option) ConnectorOption {
	return func(c *Connector) error {
		c.storeOpts = append(c.storeOpts, opts...)
		return nil
	}
}

// WithConnectorLogger sets a custom logger.
// Default is slog.Default().
func WithConnectorLogger(logger *slog.Logger) ConnectorOption {
	return func(c *Connector) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// NewConnector creates a connector. No connection is made until Store is called.
func NewConnector(dial Dialer, opts ...ConnectorOption) (*Connector, error) {
	if dial == nil {
		return nil, ErrDialerRequired
	}
	c := &Connector{
		dial:   dial,
		policy: retry.DefaultPolicy(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "retrieval-connector")
	c.closing, c.stop = context.WithCancel(context.Background())
	return c, nil
}

// Store returns the shared store, connecting first if needed.
// When every attempt in the retry budget fails, or ctx ends before the
// store is ready, the returned error wraps core.ErrStoreUnavailable.
func (c *Connector) Store(ctx context.Context) (*Store, error) {
	if store, err := c.cached(); store != nil || err != nil {
		return store, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrStoreUnavailable, context.Cause(ctx))
	}

	ch := c.connecting.DoChan("connect", func() (any, error) {
		return c.connect()
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Store), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", core.ErrStoreUnavailable, context.Cause(ctx))
	}
}

func (c *Connector) cached() (*Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrConnectorClosed
	}
	return c.store, nil
}

// connect dials under the connector's own context so that one caller giving
// up does not abort the dial for the others.
func (c *Connector) connect() (*Store, error) {
	if store, err := c.cached(); store != nil || err != nil {
		return store, err
	}

	var index storage.VectorIndex
	attempts, err := retry.Do(c.closing, c.policy, func(ctx context.Context, attempt int) error {
		c.mu.Lock()
		c.attempts++
		c.mu.Unlock()

		idx, err := c.dial(ctx)
		if err != nil {
			c.logger.Warn("vector store connection failed",
				"attempt", attempt,
				"maxAttempts", c.policy.MaxAttempts,
				"err", err)
			return err
		}
		index = idx
		return nil
	})
	if err != nil {
		if c.closing.Err() != nil {
			return nil, ErrConnectorClosed
		}
		return nil, fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}

	store, err := NewStore(index, c.storeOpts...)
	if err != nil {
		index.Close()
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		index.Close()
		return nil, ErrConnectorClosed
	}
	c.logger.Info("connected to vector store", "attempts", attempts)
	c.store = store
	return store, nil
}

// Attempts returns the total number of dial attempts made so far.
func (c *Connector) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Close releases the shared store. Subsequent Store calls fail.
func (c *Connector) Close() error {
	c.stop()

	c.mu.Lock()
	store := c.store
	c.store = nil
	c.closed = true
	c.mu.Unlock()

	if store == nil {
		return nil
	}
	return store.index.Close()
}
