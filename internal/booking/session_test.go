package booking

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestSessionStore(t *testing.T) {
	store := NewSessionStore(time.Minute)
	current := testNow
	store.now = func() time.Time { return current }

	assert.Nil(t, store.Get("missing"))

	s := &Session{ID: "s1", UserID: "u1", Step: StepSelectingDate, UpdatedAt: current}
	store.Put(s)
	assert.Same(t, s, store.Get("s1"))

	current = current.Add(2 * time.Minute)
	assert.Nil(t, store.Get("s1"), "expired session is hidden")
	assert.Equal(t, 1, store.Len())

	fresh := &Session{ID: "s2", UpdatedAt: current}
	store.Put(fresh)
	assert.Equal(t, 1, store.Cleanup())
	assert.Equal(t, 1, store.Len())
	assert.Same(t, fresh, store.Get("s2"))

	store.Delete("s2")
	assert.Nil(t, store.Get("s2"))
}

func TestSessionStore_DefaultTimeout(t *testing.T) {
	store := NewSessionStore(0)
	assert.Equal(t, defaultSessionTimeout, store.timeout)
}

func TestSessionStore_RunCleanup(t *testing.T) {
	store := NewSessionStore(time.Millisecond)
	store.Put(&Session{ID: "old", UpdatedAt: time.Now().Add(-time.Hour)})
	logger := zerolog.New(io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.RunCleanup(ctx, 5*time.Millisecond, &logger)
		close(done)
	}()

	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
