package outbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dahamkakooza/agrogram-gateway/internal/config"
)

// fakeTransport fails the first failures sends, then succeeds.
type fakeTransport struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *fakeTransport) Send(ctx context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("carrier timeout")
	}
	return nil
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testConfig() config.OutboxConfig {
	return config.OutboxConfig{
		MaxAttempts:      5,
		BackoffBase:      config.Duration(2 * time.Second),
		BackoffCap:       config.Duration(time.Minute),
		DispatchInterval: config.Duration(time.Second),
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "outbox.json"))
}

func TestEnqueueThenSuccessfulSend(t *testing.T) {
	store := newTestStore(t)
	tr := &fakeTransport{}
	d := NewDispatcher(store, tr, testConfig())

	m := store.Enqueue("+256700000001", "hello")
	assert.Equal(t, StatusPending, m.Status)

	d.tick(context.Background())
	d.wg.Wait()

	after, ok := store.Get(m.ID)
	require.True(t, ok)
	assert.Equal(t, StatusSent, after.Status)
	assert.Equal(t, 1, after.Attempts)
	assert.Equal(t, 1, tr.callCount())
}

func TestRetriesUntilPermanentFailure(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	store.now = func() time.Time { return now }

	tr := &fakeTransport{failures: 100} // never succeeds
	d := NewDispatcher(store, tr, testConfig())

	m := store.Enqueue("+256700000001", "hello")

	for i := 0; i < 5; i++ {
		d.tick(context.Background())
		d.wg.Wait()
		after, _ := store.Get(m.ID)
		now = after.NextAttemptAt.Add(time.Millisecond) // fast-forward past backoff
	}

	after, _ := store.Get(m.ID)
	assert.Equal(t, StatusFailedPermanent, after.Status)
	assert.Equal(t, 5, after.Attempts)

	// No further attempts once permanently failed.
	d.tick(context.Background())
	d.wg.Wait()
	assert.Equal(t, 5, tr.callCount())

	final, _ := store.Get(m.ID)
	assert.Equal(t, 5, final.Attempts, "attempt count stays put after exhaustion")
}

func TestBackoffGrowsAndIsCapped(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	store.now = func() time.Time { return now }

	m := store.Enqueue("x", "y")

	store.ClaimDue(1)
	store.MarkFailed(m.ID, "boom", 10, 2*time.Second, 5*time.Second)
	first, _ := store.Get(m.ID)
	assert.Equal(t, now.Add(2*time.Second), first.NextAttemptAt)

	now = first.NextAttemptAt.Add(time.Millisecond)
	store.ClaimDue(1)
	store.MarkFailed(m.ID, "boom", 10, 2*time.Second, 5*time.Second)
	second, _ := store.Get(m.ID)
	assert.Equal(t, now.Add(4*time.Second), second.NextAttemptAt)

	now = second.NextAttemptAt.Add(time.Millisecond)
	store.ClaimDue(1)
	store.MarkFailed(m.ID, "boom", 10, 2*time.Second, 5*time.Second)
	third, _ := store.Get(m.ID)
	assert.Equal(t, now.Add(5*time.Second), third.NextAttemptAt, "backoff capped")
}

func TestClaimDueSkipsInflightAndFuture(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	store.now = func() time.Time { return now }

	m1 := store.Enqueue("a", "1")
	m2 := store.Enqueue("b", "2")

	claimed := store.ClaimDue(10)
	assert.Len(t, claimed, 2)

	// Both in flight: a second claim gets nothing.
	assert.Empty(t, store.ClaimDue(10))

	store.MarkSent(m1.ID)
	store.MarkFailed(m2.ID, "boom", 5, 2*time.Second, time.Minute)

	// m2's next attempt is in the future, m1 is sent: nothing due.
	assert.Empty(t, store.ClaimDue(10))
}

func TestSpoolSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outbox.json")
	store := NewStore(path)
	m := store.Enqueue("+256700000001", "pending message")

	reloaded := NewStore(path)
	require.NoError(t, reloaded.Load())

	after, ok := reloaded.Get(m.ID)
	require.True(t, ok)
	assert.Equal(t, StatusPending, after.Status)
	assert.Equal(t, "pending message", after.Body)

	// The reloaded store can claim and deliver it.
	assert.Len(t, reloaded.ClaimDue(10), 1)
}

func TestLoadToleratesNullSpool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outbox.json")
	require.NoError(t, os.WriteFile(path, []byte("null"), 0644))

	store := NewStore(path)
	require.NoError(t, store.Load())

	m := store.Enqueue("+256700000001", "hello")
	_, ok := store.Get(m.ID)
	assert.True(t, ok)
}

// blockingTransport holds a send open until released, reporting the
// context error it observed at release time.
type blockingTransport struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingTransport) Send(ctx context.Context, to, body string) error {
	close(b.started)
	<-b.release
	return ctx.Err()
}

func TestShutdownDoesNotAbortInflightSend(t *testing.T) {
	store := newTestStore(t)
	tr := &blockingTransport{started: make(chan struct{}), release: make(chan struct{})}
	d := NewDispatcher(store, tr, testConfig())

	m := store.Enqueue("+256700000001", "hello")

	ctx, cancel := context.WithCancel(context.Background())
	d.tick(ctx)
	<-tr.started

	// Cancelling the run context mid-send must not fail the delivery and
	// burn a retry attempt.
	cancel()
	close(tr.release)
	d.wg.Wait()

	after, ok := store.Get(m.ID)
	require.True(t, ok)
	assert.Equal(t, StatusSent, after.Status)
	assert.Equal(t, 1, after.Attempts)
}

func TestDispatcherEmitsEvents(t *testing.T) {
	store := newTestStore(t)
	tr := &fakeTransport{}
	d := NewDispatcher(store, tr, testConfig())

	var mu sync.Mutex
	var kinds []string
	d.OnEvent = func(kind string, m Message) {
		mu.Lock()
		kinds = append(kinds, kind)
		mu.Unlock()
	}

	store.Enqueue("a", "1")
	d.tick(context.Background())
	d.wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"sent"}, kinds)
}
