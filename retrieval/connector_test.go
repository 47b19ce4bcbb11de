package retrieval

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/scribe/ai/mock"
	"github.com/poiesic/scribe/core"
	"github.com/poiesic/scribe/retry"
	"github.com/poiesic/scribe/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		Backoff:     retry.Exponential,
	}
}

// flakyDialer fails the first failures dials.
func flakyDialer(failures int) (Dialer, *int) {
	calls := 0
	return func(ctx context.Context) (storage.VectorIndex, error) {
		calls++
		if calls <= failures {
			return nil, errors.New("connection refused")
		}
		return newFakeIndex(), nil
	}, &calls
}

func TestNewConnector_Validation(t *testing.T) {
	_, err := NewConnector(nil)
	assert.ErrorIs(t, err, ErrDialerRequired)

	dial, _ := flakyDialer(0)
	_, err = NewConnector(dial, WithRetryPolicy(retry.Policy{}))
	assert.ErrorIs(t, err, retry.ErrInvalidMaxAttempts)
}

func TestConnector_SucceedsOnLastAttempt(t *testing.T) {
	dial, calls := flakyDialer(4)
	conn, err := NewConnector(dial, WithRetryPolicy(fastPolicy(5)))
	require.NoError(t, err)
	defer conn.Close()

	store, err := conn.Store(context.Background())
	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Equal(t, 5, conn.Attempts())
	assert.Equal(t, 5, *calls)
}

func TestConnector_ExhaustsBudget(t *testing.T) {
	dial, calls := flakyDialer(5)
	conn, err := NewConnector(dial, WithRetryPolicy(fastPolicy(5)))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Store(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)

	var exhausted *retry.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 5, exhausted.Attempts)
	assert.Equal(t, 5, conn.Attempts())
	assert.Equal(t, 5, *calls)
}

func TestConnector_CachesStore(t *testing.T) {
	dial, calls := flakyDialer(0)
	conn, err := NewConnector(dial, WithRetryPolicy(fastPolicy(5)))
	require.NoError(t, err)

	first, err := conn.Store(context.Background())
	require.NoError(t, err)
	second, err := conn.Store(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, *calls)

	require.NoError(t, conn.Close())
	_, err = conn.Store(context.Background())
	assert.ErrorIs(t, err, ErrConnectorClosed)
}

func TestConnector_ContextCancelled(t *testing.T) {
	dial, _ := flakyDialer(10)
	conn, err := NewConnector(dial, WithRetryPolicy(fastPolicy(5)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = conn.Store(ctx)
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}

// gatedDialer blocks every dial until release is closed or the dial
// context ends.
func gatedDialer() (Dialer, chan struct{}, *atomic.Int32) {
	release := make(chan struct{})
	calls := &atomic.Int32{}
	return func(ctx context.Context) (storage.VectorIndex, error) {
		calls.Add(1)
		select {
		case <-release:
			return newFakeIndex(), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}, release, calls
}

func TestConnector_ConcurrentCallersShareDial(t *testing.T) {
	dial, release, calls := gatedDialer()
	conn, err := NewConnector(dial, WithRetryPolicy(fastPolicy(5)))
	require.NoError(t, err)
	defer conn.Close()

	const callers = 5
	stores := make([]*Store, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stores[i], _ = conn.Store(context.Background())
		}()
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, s := range stores {
		require.NotNil(t, s)
		assert.Same(t, stores[0], s)
	}
}

func TestConnector_WaiterHonoursOwnContext(t *testing.T) {
	dial, release, calls := gatedDialer()
	conn, err := NewConnector(dial, WithRetryPolicy(fastPolicy(5)))
	require.NoError(t, err)
	defer conn.Close()

	first := make(chan error, 1)
	go func() {
		_, err := conn.Store(context.Background())
		first <- err
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = conn.Store(ctx)
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	close(release)
	require.NoError(t, <-first)
	assert.Equal(t, int32(1), calls.Load(), "the waiter giving up does not restart the dial")
}

func TestConnector_CloseCancelsDial(t *testing.T) {
	dial, _, calls := gatedDialer()
	conn, err := NewConnector(dial, WithRetryPolicy(fastPolicy(5)))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := conn.Store(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	closed := make(chan struct{})
	go func() {
		conn.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked behind an in-flight dial")
	}

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrConnectorClosed)
	case <-time.After(time.Second):
		t.Fatal("Store did not return after Close")
	}
}

func TestNewMemoryConnector(t *testing.T) {
	conn, err := NewMemoryConnector(mock.NewMockEmbedder())
	require.NoError(t, err)
	defer conn.Close()

	store, err := conn.Store(context.Background())
	require.NoError(t, err)

	_, err = store.Index(context.Background(), &core.IndexedRecord{TenantID: "t1", Text: "hello"})
	require.NoError(t, err)
	results, err := store.Search(context.Background(), "t1", "hello", 3)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}
