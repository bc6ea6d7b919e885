package batch

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// collector records released batches for assertions.
type collector struct {
	mu       sync.Mutex
	releases [][]Message
	times    []time.Time
}

func (c *collector) release(_ string, msgs []Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releases = append(c.releases, msgs)
	c.times = append(c.times, time.Now())
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.releases)
}

func (c *collector) batch(i int) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releases[i]
}

func shortConfig() Config {
	return Config{
		BaseWindow:   200 * time.Millisecond,
		ExtendWithin: 100 * time.Millisecond,
		Extension:    200 * time.Millisecond,
		MaxMessages:  100,
	}
}

func waitFor(t *testing.T, cond func() bool, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestRelease_SingleWindow(t *testing.T) {
	c := &collector{}
	b := New(shortConfig(), c.release, testLogger())
	defer b.Close()

	b.Add("c1", "Jan", "ABC123 now at Workshop", "m1", time.Now())

	waitFor(t, func() bool { return c.count() == 1 }, time.Second)

	got := c.batch(0)
	if len(got) != 1 || got[0].Text != "ABC123 now at Workshop" {
		t.Fatalf("unexpected batch contents: %+v", got)
	}
	if b.Pending("c1") != 0 {
		t.Error("window state should be gone after release")
	}
}

func TestRelease_ExtensionKeepsBurstTogether(t *testing.T) {
	cfg := shortConfig()
	c := &collector{}
	b := New(cfg, c.release, testLogger())
	defer b.Close()

	start := time.Now()
	b.Add("c1", "Jan", "first", "m1", start)

	// Land inside the extension threshold: remaining time is under
	// ExtendWithin, so the deadline must move to now+Extension.
	time.Sleep(cfg.BaseWindow - 70*time.Millisecond)
	b.Add("c1", "Jan", "second", "m2", time.Now())

	waitFor(t, func() bool { return c.count() == 1 }, 2*time.Second)

	got := c.batch(0)
	if len(got) != 2 {
		t.Fatalf("expected one release with both messages, got %d messages", len(got))
	}

	c.mu.Lock()
	releasedAt := c.times[0]
	c.mu.Unlock()
	// Release must come after the extended deadline, not the original one.
	if elapsed := releasedAt.Sub(start); elapsed < cfg.BaseWindow+50*time.Millisecond {
		t.Errorf("released after %v, want at least the extended window", elapsed)
	}
}

func TestRelease_NoExtensionOutsideThreshold(t *testing.T) {
	cfg := Config{
		BaseWindow:   120 * time.Millisecond,
		ExtendWithin: 30 * time.Millisecond,
		Extension:    200 * time.Millisecond,
		MaxMessages:  100,
	}
	c := &collector{}
	b := New(cfg, c.release, testLogger())
	defer b.Close()

	b.Add("c1", "Jan", "first", "m1", time.Now())
	time.Sleep(20 * time.Millisecond)
	// Plenty of time left — this must not push the deadline.
	b.Add("c1", "Jan", "second", "m2", time.Now())

	waitFor(t, func() bool { return c.count() == 1 }, time.Second)
	if got := c.batch(0); len(got) != 2 {
		t.Fatalf("expected both messages in one batch, got %d", len(got))
	}
}

func TestRelease_SizeCap(t *testing.T) {
	cfg := shortConfig()
	cfg.BaseWindow = 10 * time.Second // timer must not be the trigger
	cfg.MaxMessages = 3
	c := &collector{}
	b := New(cfg, c.release, testLogger())
	defer b.Close()

	now := time.Now()
	b.Add("c1", "Jan", "one", "m1", now)
	b.Add("c1", "Jan", "two", "m2", now.Add(time.Millisecond))
	b.Add("c1", "Jan", "three", "m3", now.Add(2*time.Millisecond))

	if c.count() != 1 {
		t.Fatalf("size cap should release synchronously, got %d releases", c.count())
	}
	if got := c.batch(0); len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}

	// A new message after cap release opens a fresh window.
	b.Add("c1", "Jan", "four", "m4", now.Add(3*time.Millisecond))
	if b.Pending("c1") != 1 {
		t.Errorf("expected fresh window with 1 pending message, got %d", b.Pending("c1"))
	}
}

func TestRelease_SortedByTimestamp(t *testing.T) {
	cfg := shortConfig()
	c := &collector{}
	b := New(cfg, c.release, testLogger())
	defer b.Close()

	now := time.Now()
	b.Add("c1", "Jan", "later", "m1", now.Add(50*time.Millisecond))
	b.Add("c1", "Pete", "earlier", "m2", now)

	waitFor(t, func() bool { return c.count() == 1 }, time.Second)
	got := c.batch(0)
	if got[0].Text != "earlier" || got[1].Text != "later" {
		t.Errorf("batch not sorted by timestamp: %+v", got)
	}
}

func TestUpdate_RewritesPendingMessage(t *testing.T) {
	cfg := shortConfig()
	cfg.BaseWindow = 10 * time.Second
	c := &collector{}
	b := New(cfg, c.release, testLogger())
	defer b.Close()

	b.Add("c1", "Jan", "[photo]", "m1", time.Now())

	if !b.Update("c1", "m1", "White Corolla ABC123, scratched rear bumper") {
		t.Fatal("expected update to succeed for pending message")
	}
	if b.Update("c1", "nope", "x") {
		t.Error("unknown sequence key must be a no-op")
	}
	if b.Update("other", "m1", "x") {
		t.Error("unknown conversation must be a no-op")
	}

	b.Close()
	if c.count() != 1 {
		t.Fatalf("expected flush on close, got %d releases", c.count())
	}
	if got := c.batch(0); got[0].Text != "White Corolla ABC123, scratched rear bumper" {
		t.Errorf("update not applied: %q", got[0].Text)
	}
}

func TestUpdate_AfterReleaseIsNoOp(t *testing.T) {
	c := &collector{}
	b := New(shortConfig(), c.release, testLogger())
	defer b.Close()

	b.Add("c1", "Jan", "[photo]", "m1", time.Now())
	waitFor(t, func() bool { return c.count() == 1 }, time.Second)

	if b.Update("c1", "m1", "too late") {
		t.Error("update after release must report false")
	}
}

func TestConversationsAreIndependent(t *testing.T) {
	cfg := shortConfig()
	c := &collector{}
	b := New(cfg, c.release, testLogger())
	defer b.Close()

	b.Add("c1", "Jan", "a", "m1", time.Now())
	b.Add("c2", "Pete", "b", "m2", time.Now())

	waitFor(t, func() bool { return c.count() == 2 }, time.Second)
}

func TestClose_FlushesAndDropsLaterAdds(t *testing.T) {
	cfg := shortConfig()
	cfg.BaseWindow = 10 * time.Second
	c := &collector{}
	b := New(cfg, c.release, testLogger())

	b.Add("c1", "Jan", "pending", "m1", time.Now())
	b.Close()

	if c.count() != 1 {
		t.Fatalf("expected 1 flushed batch, got %d", c.count())
	}

	b.Add("c1", "Jan", "after close", "m2", time.Now())
	if b.Pending("c1") != 0 {
		t.Error("adds after close must be dropped")
	}
}
