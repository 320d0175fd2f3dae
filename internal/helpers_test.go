package internal_test

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/koopa0/system-design/14-target-duel/internal"
	"github.com/stretchr/testify/require"
)

// testLogger 創建測試用的 logger
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError, // 測試時只顯示錯誤
	}))
}

var errSendFailed = errors.New("send failed")

// recorder 記錄每位玩家收到的事件
type recorder struct {
	mu     sync.Mutex
	events map[string][]internal.Event
	fail   map[string]bool
}

func newRecorder() *recorder {
	return &recorder{
		events: make(map[string][]internal.Event),
		fail:   make(map[string]bool),
	}
}

func (r *recorder) Send(playerID string, event internal.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[playerID] {
		return errSendFailed
	}
	r.events[playerID] = append(r.events[playerID], event)
	return nil
}

func (r *recorder) failFor(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[playerID] = true
}

func (r *recorder) of(playerID string) []internal.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]internal.Event(nil), r.events[playerID]...)
}

func (r *recorder) types(playerID string) []string {
	var out []string
	for _, e := range r.of(playerID) {
		out = append(out, e.Type)
	}
	return out
}

func (r *recorder) count(playerID, eventType string) int {
	n := 0
	for _, e := range r.of(playerID) {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func (r *recorder) last(playerID, eventType string) (internal.Event, bool) {
	events := r.of(playerID)
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == eventType {
			return events[i], true
		}
	}
	return internal.Event{}, false
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = make(map[string][]internal.Event)
}

// fakeClock 可手動推進的時鐘
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func seededFactory(arena internal.ArenaConfig) *internal.TargetFactory {
	return internal.NewTargetFactory(arena, rand.New(rand.NewPCG(1, 2)))
}

func newTestRegistry(clock *fakeClock) *internal.Registry {
	arena := internal.DefaultArena()
	return internal.NewRegistry(arena, testLogger(),
		internal.WithClock(clock.Now),
		internal.WithTargetFactory(seededFactory(arena)),
	)
}

func entry(id string) internal.QueueEntry {
	return internal.QueueEntry{
		PlayerID: id,
		Name:     id,
		Mode:     internal.ModeDuel,
	}
}

// newTestSession 建立 alice 與 bob 的對局並開始模擬
func newTestSession(t *testing.T) (*internal.Registry, *internal.Session, *fakeClock) {
	t.Helper()

	clock := newFakeClock()
	registry := newTestRegistry(clock)
	t.Cleanup(registry.Stop)

	session, err := registry.Create(entry("alice"), entry("bob"))
	require.NoError(t, err)
	session.Start()
	return registry, session, clock
}
