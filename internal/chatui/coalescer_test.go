// ABOUTME: Tests for the chunk coalescer
// ABOUTME: Covers debounced flushing, finalization and full turn rollback

package chatui

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// updateRecorder captures onUpdate snapshots for assertions
type updateRecorder struct {
	mu      sync.Mutex
	updates [][]Message
}

func (r *updateRecorder) record(msgs []Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, msgs)
}

func (r *updateRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

func newTestCoalescer(rec *updateRecorder, notify func(string)) *Coalescer {
	var onUpdate func([]Message)
	if rec != nil {
		onUpdate = rec.record
	}
	return New(onUpdate, notify, WithFlushInterval(5*time.Millisecond))
}

func TestBegin_InsertsUserAndPlaceholder(t *testing.T) {
	rec := &updateRecorder{}
	c := newTestCoalescer(rec, nil)

	c.Begin("hello", nil)

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Empty(t, msgs[1].Content)
	assert.True(t, msgs[1].Streaming)

	assert.Equal(t, StateStreaming, c.State())
	assert.True(t, c.Streaming())
	assert.Equal(t, 1, rec.count())
}

func TestOnChunk_DoesNotUpdateImmediately(t *testing.T) {
	rec := &updateRecorder{}
	c := newTestCoalescer(rec, nil)

	c.Begin("hello", nil)
	c.OnChunk("Hel")

	// Content stays in the pending buffer until a flush fires
	msgs := c.Messages()
	assert.Empty(t, msgs[1].Content)
	assert.Equal(t, 1, rec.count())
}

func TestOnChunk_DebouncedFlushBatchesChunks(t *testing.T) {
	rec := &updateRecorder{}
	c := newTestCoalescer(rec, nil)

	c.Begin("hello", nil)
	c.OnChunk("Hel")
	c.OnChunk("lo ")
	c.OnChunk("world")

	assert.Eventually(t, func() bool {
		msgs := c.Messages()
		return msgs[1].Content == "Hello world"
	}, time.Second, time.Millisecond)

	// One Begin update plus one batched flush update
	assert.Equal(t, 2, rec.count())
}

func TestFlush_AppliesPendingImmediately(t *testing.T) {
	c := newTestCoalescer(nil, nil)

	c.Begin("hello", nil)
	c.OnChunk("Hi")
	c.Flush()

	assert.Equal(t, "Hi", c.Messages()[1].Content)
}

func TestFlush_EmptyBufferIsNoOp(t *testing.T) {
	rec := &updateRecorder{}
	c := newTestCoalescer(rec, nil)

	c.Begin("hello", nil)
	before := rec.count()
	c.Flush()
	c.Flush()

	assert.Equal(t, before, rec.count())
}

func TestOnComplete_PromotesPlaceholder(t *testing.T) {
	c := newTestCoalescer(nil, nil)

	c.Begin("hello", nil)
	c.OnChunk("Hel")
	c.OnChunk("lo")
	c.OnComplete("msg-persisted")

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	// Trailing pending content is flushed before finalization
	assert.Equal(t, "Hello", msgs[1].Content)
	assert.Equal(t, "msg-persisted", msgs[1].ID)
	assert.False(t, msgs[1].Streaming)
	assert.Equal(t, StateFinalized, c.State())
	assert.False(t, c.Streaming())
}

func TestOnError_RollsBackAndNotifies(t *testing.T) {
	var notified string
	aborted := false
	c := newTestCoalescer(nil, func(msg string) { notified = msg })

	c.Begin("hello", func() { aborted = true })
	c.OnChunk("partial reply")
	c.OnError("model backend unavailable")

	// Placeholder gone, user message kept, transport aborted
	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].Role)
	assert.True(t, aborted)
	assert.Equal(t, "model backend unavailable", notified)
	assert.Equal(t, StateRolledBack, c.State())
}

func TestCancel_SilentRollback(t *testing.T) {
	notifyCalls := 0
	c := newTestCoalescer(nil, func(string) { notifyCalls++ })

	c.Begin("hello", nil)
	c.OnChunk("partial")
	c.Cancel()

	assert.Len(t, c.Messages(), 1)
	assert.Zero(t, notifyCalls)
	assert.Equal(t, StateRolledBack, c.State())
}

func TestBegin_SupersedesActiveTurn(t *testing.T) {
	firstAborted := false
	c := newTestCoalescer(nil, nil)

	c.Begin("first question", func() { firstAborted = true })
	c.OnChunk("partial first answer")
	c.Begin("second question", nil)

	// First turn's placeholder removed and its transport aborted; the new
	// turn starts clean
	msgs := c.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "first question", msgs[0].Content)
	assert.Equal(t, "second question", msgs[1].Content)
	assert.True(t, msgs[2].Streaming)
	assert.Empty(t, msgs[2].Content)
	assert.True(t, firstAborted)
	assert.Equal(t, StateStreaming, c.State())
}

func TestChunkAfterTurnEndDropped(t *testing.T) {
	c := newTestCoalescer(nil, nil)

	c.Begin("hello", nil)
	c.OnComplete("msg-1")
	c.OnChunk("stale")
	c.Flush()

	assert.Equal(t, "", c.Messages()[1].Content)
	assert.Equal(t, StateFinalized, c.State())
}

func TestPendingDiscardedOnRollback(t *testing.T) {
	c := newTestCoalescer(nil, nil)

	c.Begin("hello", nil)
	c.OnChunk("doomed")
	c.Cancel()

	c.Begin("again", nil)
	c.Flush()

	// Nothing from the cancelled turn leaks into the new placeholder
	msgs := c.Messages()
	assert.Empty(t, msgs[len(msgs)-1].Content)
}

func TestFinalizedHistorySurvivesNextTurn(t *testing.T) {
	c := newTestCoalescer(nil, nil)

	c.Begin("first", nil)
	c.OnChunk("answer one")
	c.OnComplete("msg-1")

	c.Begin("second", nil)
	c.OnError("boom")

	// The finalized first turn is untouched by the second turn's rollback
	msgs := c.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "answer one", msgs[1].Content)
	assert.Equal(t, "msg-1", msgs[1].ID)
	assert.Equal(t, "second", msgs[2].Content)
}
