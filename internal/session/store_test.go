package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreate(t *testing.T) {
	store := NewStore(time.Minute)

	sess, created := store.GetOrCreate("s1", "+256700000001", "main")
	require.True(t, created)
	assert.Equal(t, "main", sess.NodeID)
	assert.Equal(t, "+256700000001", sess.Phone)

	again, created := store.GetOrCreate("s1", "+256700000001", "main")
	assert.False(t, created)
	assert.Equal(t, sess.NodeID, again.NodeID)
	assert.NotSame(t, sess, again, "callers get detached copies, never the stored snapshot")
}

func TestExpiredSessionIsAbsent(t *testing.T) {
	store := NewStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }

	first, created := store.GetOrCreate("s1", "p", "main")
	require.True(t, created)
	first.NodeID = "deep.node"
	store.Save(first)

	// One second past the TTL: the old session must not be resumed.
	now = now.Add(time.Minute + time.Second)
	fresh, created := store.GetOrCreate("s1", "p", "main")
	assert.True(t, created)
	assert.Equal(t, "main", fresh.NodeID)
	assert.Empty(t, fresh.Inputs)
}

func TestSaveRefreshesDeadline(t *testing.T) {
	store := NewStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }

	sess, _ := store.GetOrCreate("s1", "p", "main")

	now = now.Add(50 * time.Second)
	store.Save(sess)

	// 70s after creation but only 20s after the save: still live.
	now = now.Add(20 * time.Second)
	_, created := store.GetOrCreate("s1", "p", "main")
	assert.False(t, created)
}

func TestExpire(t *testing.T) {
	store := NewStore(time.Minute)
	store.GetOrCreate("s1", "p", "main")
	store.Expire("s1")
	assert.Equal(t, 0, store.Len())
}

func TestSweep(t *testing.T) {
	store := NewStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }

	store.GetOrCreate("old", "p", "main")
	now = now.Add(45 * time.Second)
	store.GetOrCreate("young", "p", "main")

	now = now.Add(30 * time.Second) // old is 75s stale, young 30s
	removed := store.Sweep()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())
	_, created := store.GetOrCreate("young", "p", "main")
	assert.False(t, created)
}

func TestLockSerializesPerSession(t *testing.T) {
	store := NewStore(time.Minute)
	const workers = 50
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := store.Lock("s1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()
	assert.Equal(t, workers, counter)
}

func TestLockEntriesAreReleased(t *testing.T) {
	store := NewStore(time.Minute)
	unlock := store.Lock("s1")
	unlock()

	store.lockMu.Lock()
	defer store.lockMu.Unlock()
	assert.Empty(t, store.locks, "unused lock entries must not accumulate")
}

func TestSaveAndSweepDoNotRace(t *testing.T) {
	store := NewStore(time.Minute)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			store.Sweep()
			store.List()
		}
	}()

	// A callback's usual write path, concurrent with the sweeper above.
	// The race detector flags any unsynchronized access to stored state.
	for i := 0; i < 200; i++ {
		unlock := store.Lock("s1")
		sess, _ := store.GetOrCreate("s1", "p", "main")
		sess.Inputs = append(sess.Inputs, "MAIZE")
		sess.Handled++
		store.Save(sess)
		unlock()
	}
	<-done
}

func TestListSnapshotsAreDetached(t *testing.T) {
	store := NewStore(time.Minute)
	sess, _ := store.GetOrCreate("s1", "p", "main")
	sess.Inputs = append(sess.Inputs, "MAIZE")
	store.Save(sess)

	snap := store.List()
	require.Len(t, snap, 1)

	sess.NodeID = "price.crop"
	sess.Inputs[0] = "BEANS"
	store.Save(sess)

	assert.Equal(t, "main", snap[0].NodeID)
	assert.Equal(t, []string{"MAIZE"}, snap[0].Inputs)
}

func TestGoBackTruncatesInputs(t *testing.T) {
	sess := &Session{ID: "s1", NodeID: "main"}

	sess.Enter("crop")
	sess.Enter("result")
	sess.Inputs = append(sess.Inputs, "MAIZE")

	sess.GoBack("crop")
	assert.Equal(t, "crop", sess.NodeID)
	assert.Empty(t, sess.Inputs, "input captured after leaving crop must be dropped")
}
