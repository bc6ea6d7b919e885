// Package batch coalesces inbound chat messages into per-conversation
// batches released on a rolling time window.
//
// The first message for an idle conversation opens a window; messages that
// land close to the deadline push it out so a burst straddling the boundary
// stays in one batch. A size cap forces release regardless of the timer.
package batch

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Message is one inbound chat message held in a window. SequenceKey is the
// platform's stable message identifier, used for in-place text updates
// (e.g. a photo caption replacing its placeholder) before release.
type Message struct {
	Speaker        string
	Text           string
	ConversationID string
	SequenceKey    string
	Timestamp      time.Time
}

// ReleaseFunc receives a released batch. Messages are sorted by timestamp.
// It runs on the batcher's timer goroutine; the window state is already
// gone by the time it is called, so a message arriving mid-callback opens
// a fresh window.
type ReleaseFunc func(conversationID string, messages []Message)

// Config controls window timing and sizing.
type Config struct {
	BaseWindow   time.Duration // window length opened by the first message
	ExtendWithin time.Duration // remaining time at or under which a message extends
	Extension    time.Duration // new remaining time after an extension
	MaxMessages  int           // size cap forcing immediate release
}

// DefaultConfig returns production window timings.
func DefaultConfig() Config {
	return Config{
		BaseWindow:   2 * time.Minute,
		ExtendWithin: 1 * time.Minute,
		Extension:    2 * time.Minute,
		MaxMessages:  100,
	}
}

type window struct {
	messages []Message
	deadline time.Time
	timer    *time.Timer
}

// Batcher owns all conversation windows. Create one at process start and
// Close it on shutdown to flush whatever is pending.
type Batcher struct {
	cfg     Config
	release ReleaseFunc
	logger  *slog.Logger

	mu      sync.Mutex
	windows map[string]*window
	closed  bool
}

// New creates a batcher that hands released batches to release.
func New(cfg Config, release ReleaseFunc, logger *slog.Logger) *Batcher {
	if cfg.BaseWindow <= 0 {
		cfg = DefaultConfig()
	}
	return &Batcher{
		cfg:     cfg,
		release: release,
		logger:  logger,
		windows: make(map[string]*window),
	}
}

// Add records a message for a conversation, opening or extending its window.
func (b *Batcher) Add(conversationID, speaker, text, sequenceKey string, timestamp time.Time) {
	msg := Message{
		Speaker:        speaker,
		Text:           text,
		ConversationID: conversationID,
		SequenceKey:    sequenceKey,
		Timestamp:      timestamp,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}

	w, ok := b.windows[conversationID]
	if !ok {
		w = &window{deadline: time.Now().Add(b.cfg.BaseWindow)}
		w.timer = time.AfterFunc(b.cfg.BaseWindow, func() { b.fire(conversationID) })
		b.windows[conversationID] = w
		w.messages = append(w.messages, msg)
		b.mu.Unlock()
		b.logger.Debug("window opened", "conversation", conversationID)
		return
	}

	w.messages = append(w.messages, msg)

	// Size cap releases immediately regardless of timer state.
	if len(w.messages) >= b.cfg.MaxMessages {
		w.timer.Stop()
		msgs := b.takeLocked(conversationID, w)
		b.mu.Unlock()
		b.logger.Info("window released on size cap",
			"conversation", conversationID, "messages", len(msgs))
		b.release(conversationID, msgs)
		return
	}

	// A message close to the boundary pushes the deadline out so the rest
	// of its burst lands in the same batch.
	if remaining := time.Until(w.deadline); remaining <= b.cfg.ExtendWithin {
		w.deadline = time.Now().Add(b.cfg.Extension)
		w.timer.Stop()
		w.timer = time.AfterFunc(b.cfg.Extension, func() { b.fire(conversationID) })
		b.logger.Debug("window extended", "conversation", conversationID)
	}
	b.mu.Unlock()
}

// Update overwrites the text of a not-yet-released message identified by its
// sequence key. Returns false when the batch already released or the key is
// unknown; the caller's update is then dropped.
func (b *Batcher) Update(conversationID, sequenceKey, newText string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	w, ok := b.windows[conversationID]
	if !ok {
		return false
	}
	for i := range w.messages {
		if w.messages[i].SequenceKey == sequenceKey {
			w.messages[i].Text = newText
			return true
		}
	}
	return false
}

// Pending reports how many messages are held for a conversation.
func (b *Batcher) Pending(conversationID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if w, ok := b.windows[conversationID]; ok {
		return len(w.messages)
	}
	return 0
}

// Close cancels all outstanding timers and flushes every pending window
// through the release callback. Add calls after Close are dropped.
func (b *Batcher) Close() {
	b.mu.Lock()
	b.closed = true
	type flush struct {
		id   string
		msgs []Message
	}
	var flushes []flush
	for id, w := range b.windows {
		w.timer.Stop()
		flushes = append(flushes, flush{id: id, msgs: b.takeLocked(id, w)})
	}
	b.mu.Unlock()

	for _, f := range flushes {
		b.release(f.id, f.msgs)
	}
}

// fire is the timer callback for one conversation's window.
func (b *Batcher) fire(conversationID string) {
	b.mu.Lock()
	w, ok := b.windows[conversationID]
	if !ok {
		// Already released via the size cap or Close.
		b.mu.Unlock()
		return
	}
	// A stale timer from before an extension can fire early; the live
	// deadline decides.
	if time.Now().Before(w.deadline) {
		b.mu.Unlock()
		return
	}
	msgs := b.takeLocked(conversationID, w)
	b.mu.Unlock()

	b.logger.Info("window released", "conversation", conversationID, "messages", len(msgs))
	b.release(conversationID, msgs)
}

// takeLocked removes the window and returns its messages sorted by
// timestamp. Callers hold b.mu.
func (b *Batcher) takeLocked(conversationID string, w *window) []Message {
	delete(b.windows, conversationID)
	msgs := w.messages
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
	return msgs
}
