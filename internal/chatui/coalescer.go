// ABOUTME: Coalescer turns bursts of chunk events into throttled message updates
// ABOUTME: Enforces the one-active-turn invariant with full rollback on failure

package chatui

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FlushInterval bounds UI update frequency regardless of token arrival rate
const FlushInterval = 50 * time.Millisecond

// TurnState tracks the lifecycle of the current turn
type TurnState int

const (
	StateIdle TurnState = iota
	StateStreaming
	StateFinalized
	StateRolledBack
)

// Message is the client-side representation of one chat message. A message
// with Streaming=true is the placeholder for an in-progress assistant reply.
type Message struct {
	ID        string
	Role      string
	Content   string
	CreatedAt time.Time
	Streaming bool
}

// activeTurn holds the state owned by one in-flight turn: the placeholder,
// the pending buffer and the debounce timer. It is discarded on turn end so
// timers never leak across turns.
type activeTurn struct {
	placeholderID  string
	pending        strings.Builder
	timer          *time.Timer
	flushScheduled bool
	abort          context.CancelFunc
}

// Coalescer accumulates chunk events and applies them to the visible message
// list in throttled batches. At most one turn is active at a time; starting
// a new turn cancels the previous one.
type Coalescer struct {
	mu            sync.Mutex
	messages      []Message
	active        *activeTurn
	state         TurnState
	flushInterval time.Duration
	onUpdate      func([]Message)
	onNotify      func(string)
}

// Option configures a Coalescer
type Option func(*Coalescer)

// WithFlushInterval overrides the debounce interval
func WithFlushInterval(d time.Duration) Option {
	return func(c *Coalescer) {
		c.flushInterval = d
	}
}

// New creates a coalescer. onUpdate receives a snapshot of the message list
// after every applied mutation; onNotify receives user-visible error text.
// Both callbacks may be nil and are invoked while no internal lock is needed
// by the caller, but must not call back into the coalescer synchronously.
func New(onUpdate func([]Message), onNotify func(string), opts ...Option) *Coalescer {
	c := &Coalescer{
		state:         StateIdle,
		flushInterval: FlushInterval,
		onUpdate:      onUpdate,
		onNotify:      onNotify,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Begin starts a new turn: a prior streaming turn is cancelled first (newest
// wins), then the user message and an empty streaming placeholder are
// inserted synchronously. abort is invoked if this turn is later cancelled
// or superseded, propagating cancellation to the transport.
func (c *Coalescer) Begin(userText string, abort context.CancelFunc) {
	c.mu.Lock()

	if c.active != nil {
		c.rollbackLocked()
	}

	now := time.Now()
	placeholderID := uuid.New().String()
	c.messages = append(c.messages,
		Message{
			ID:        uuid.New().String(),
			Role:      "user",
			Content:   userText,
			CreatedAt: now,
		},
		Message{
			ID:        placeholderID,
			Role:      "assistant",
			CreatedAt: now,
			Streaming: true,
		},
	)

	c.active = &activeTurn{
		placeholderID: placeholderID,
		abort:         abort,
	}
	c.state = StateStreaming

	c.notifyUpdateLocked()
	c.mu.Unlock()
}

// OnChunk appends content to the pending buffer and schedules a flush if
// none is pending. Chunks arriving after the turn ended are dropped.
func (c *Coalescer) OnChunk(content string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return
	}

	c.active.pending.WriteString(content)
	if !c.active.flushScheduled {
		c.active.flushScheduled = true
		c.active.timer = time.AfterFunc(c.flushInterval, c.flushTimer)
	}
}

// flushTimer is the debounce callback
func (c *Coalescer) flushTimer() {
	c.mu.Lock()
	c.flushLocked()
	c.mu.Unlock()
}

// Flush applies any pending content immediately. Flushing an empty buffer
// is a no-op.
func (c *Coalescer) Flush() {
	c.mu.Lock()
	c.flushLocked()
	c.mu.Unlock()
}

// flushLocked moves the entire pending buffer into the placeholder's content
// in one update. Must be called with mu held.
func (c *Coalescer) flushLocked() {
	if c.active == nil {
		return
	}

	c.active.flushScheduled = false
	if c.active.timer != nil {
		c.active.timer.Stop()
		c.active.timer = nil
	}

	if c.active.pending.Len() == 0 {
		return
	}

	content := c.active.pending.String()
	c.active.pending.Reset()

	for i := range c.messages {
		if c.messages[i].ID == c.active.placeholderID {
			c.messages[i].Content += content
			break
		}
	}

	c.notifyUpdateLocked()
}

// OnComplete finalizes the turn: pending content is flushed synchronously so
// no trailing bytes are lost, then the placeholder is promoted to the
// persisted message ID and the streaming flag cleared.
func (c *Coalescer) OnComplete(messageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return
	}

	c.flushLocked()

	for i := range c.messages {
		if c.messages[i].ID == c.active.placeholderID {
			c.messages[i].ID = messageID
			c.messages[i].Streaming = false
			break
		}
	}

	c.active = nil
	c.state = StateFinalized
	c.notifyUpdateLocked()
}

// OnError rolls the turn back and surfaces a user-visible notification
func (c *Coalescer) OnError(message string) {
	c.mu.Lock()
	c.rollbackLocked()
	c.mu.Unlock()

	if c.onNotify != nil {
		c.onNotify(message)
	}
}

// Cancel aborts the current turn, either user-initiated or because a new
// turn superseded it. Cleanup is identical to the error path but silent.
func (c *Coalescer) Cancel() {
	c.mu.Lock()
	c.rollbackLocked()
	c.mu.Unlock()
}

// rollbackLocked discards the pending buffer, cancels any scheduled flush,
// removes the placeholder message and aborts the transport. The user never
// sees a partial assistant turn. Must be called with mu held.
func (c *Coalescer) rollbackLocked() {
	if c.active == nil {
		return
	}

	if c.active.timer != nil {
		c.active.timer.Stop()
		c.active.timer = nil
	}
	c.active.pending.Reset()

	for i := range c.messages {
		if c.messages[i].ID == c.active.placeholderID {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			break
		}
	}

	if c.active.abort != nil {
		c.active.abort()
	}

	c.active = nil
	c.state = StateRolledBack
	c.notifyUpdateLocked()
}

// notifyUpdateLocked hands a snapshot to the update callback
func (c *Coalescer) notifyUpdateLocked() {
	if c.onUpdate == nil {
		return
	}
	snapshot := make([]Message, len(c.messages))
	copy(snapshot, c.messages)
	c.onUpdate(snapshot)
}

// Messages returns a snapshot of the visible message list
func (c *Coalescer) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := make([]Message, len(c.messages))
	copy(snapshot, c.messages)
	return snapshot
}

// State returns the lifecycle state of the most recent turn
func (c *Coalescer) State() TurnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Streaming reports whether a turn is currently active
func (c *Coalescer) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}
