package internal_test

import (
	"sync"
	"testing"
	"time"

	"github.com/koopa0/system-design/14-target-duel/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventTypes(events []internal.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func findEvent(events []internal.Event, eventType string) (internal.Event, bool) {
	for _, e := range events {
		if e.Type == eventType {
			return e, true
		}
	}
	return internal.Event{}, false
}

// TestNewSession 測試建立對局
func TestNewSession(t *testing.T) {
	_, session, clock := newTestSession(t)
	arena := internal.DefaultArena()

	assert.Equal(t, "game_1", session.ID)
	assert.Equal(t, internal.ModeDuel, session.Mode)
	assert.Equal(t, internal.StatusActive, session.Status())
	assert.Equal(t, clock.Now().Add(arena.SessionDuration), session.EndsAt)
	assert.Equal(t, []string{"alice", "bob"}, session.Members())

	players := session.Players()
	require.Len(t, players, 2)
	for _, p := range players {
		assert.Zero(t, p.Score)
		assert.Equal(t, arena.PlayerSize, p.Size)
		assert.Regexp(t, `^#[0-9A-F]{6}$`, p.Color)
		assert.GreaterOrEqual(t, p.X, 0.0)
		assert.Less(t, p.X, arena.Width-arena.PlayerSize)
	}

	targets := session.Targets()
	require.Len(t, targets, arena.TargetCount)
	assert.Equal(t, arena.TargetRadius, targets[0].Radius)
	assert.Equal(t, arena.BasePoints, targets[0].Points)
}

// TestSession_TickEvents 測試每個 tick 的推送內容
func TestSession_TickEvents(t *testing.T) {
	_, session, clock := newTestSession(t)

	result := session.Tick(clock.Now().Add(500 * time.Millisecond))

	assert.False(t, result.Ended)
	assert.Equal(t, []string{"alice", "bob"}, result.Members)
	assert.Equal(t, []string{
		internal.EventTargetsUpdated,
		internal.EventPlayersUpdated,
		internal.EventTimeUpdated,
	}, eventTypes(result.Events))

	timeEvent, _ := findEvent(result.Events, internal.EventTimeUpdated)
	assert.Equal(t, 59, timeEvent.Data)

	targetsEvent, _ := findEvent(result.Events, internal.EventTargetsUpdated)
	targets := targetsEvent.Data.([]internal.Target)
	require.Len(t, targets, 1)
	assert.InDelta(t, 19.9, targets[0].Radius, 1e-9)
}

// TestSession_Scoring 測試命中計分
func TestSession_Scoring(t *testing.T) {
	tests := []struct {
		name     string
		radius   float64 // 縮小前的半徑
		expected int
	}{
		{name: "half radius doubles points", radius: 10.1, expected: 20},
		{name: "almost full radius", radius: 20, expected: 10},
		{name: "near minimum radius", radius: 5.2, expected: 39},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, session, clock := newTestSession(t)
			internal.SetTargets(session, []internal.Target{
				{X: 400, Y: 300, Radius: tt.radius, Points: 10, Color: "#FFFFFF"},
			})

			require.NoError(t, session.Click("alice", 401, 301))
			result := session.Tick(clock.Now().Add(time.Second))

			hitEvent, ok := findEvent(result.Events, internal.EventTargetHit)
			require.True(t, ok)
			hit := hitEvent.Data.(internal.TargetHit)
			assert.Equal(t, tt.expected, hit.Points)
			assert.Equal(t, "alice", hit.PlayerID)
			assert.Equal(t, 400.0, hit.X)
			assert.Equal(t, 300.0, hit.Y)

			scoresEvent, ok := findEvent(result.Events, internal.EventScoresUpdated)
			require.True(t, ok)
			scores := scoresEvent.Data.([]internal.ScoreEntry)
			assert.Equal(t, tt.expected, scores[0].Score)
			assert.Zero(t, scores[1].Score)

			// 命中的目標被替換為全新目標
			targets := session.Targets()
			require.Len(t, targets, 1)
			assert.Equal(t, internal.DefaultArena().TargetRadius, targets[0].Radius)
		})
	}
}

// TestSession_HitEventOrder 測試命中事件在狀態事件之前
func TestSession_HitEventOrder(t *testing.T) {
	_, session, clock := newTestSession(t)
	internal.SetTargets(session, []internal.Target{
		{X: 400, Y: 300, Radius: 20, Points: 10},
	})

	require.NoError(t, session.Click("bob", 400, 300))
	result := session.Tick(clock.Now())

	assert.Equal(t, []string{
		internal.EventTargetHit,
		internal.EventScoresUpdated,
		internal.EventTargetsUpdated,
		internal.EventPlayersUpdated,
		internal.EventTimeUpdated,
	}, eventTypes(result.Events))
}

// TestSession_FirstMatchingTarget 測試重疊目標只命中第一個
func TestSession_FirstMatchingTarget(t *testing.T) {
	_, session, clock := newTestSession(t)
	internal.SetTargets(session, []internal.Target{
		{X: 100, Y: 100, Radius: 15, Points: 10},
		{X: 105, Y: 100, Radius: 15, Points: 10},
	})

	require.NoError(t, session.Click("alice", 103, 100))
	result := session.Tick(clock.Now())

	assert.Len(t, filterEvents(result.Events, internal.EventTargetHit), 1)
	hitEvent, _ := findEvent(result.Events, internal.EventTargetHit)
	assert.Equal(t, 100.0, hitEvent.Data.(internal.TargetHit).X)

	targets := session.Targets()
	require.Len(t, targets, 2)
	assert.Equal(t, 105.0, targets[1].X)
	assert.InDelta(t, 14.9, targets[1].Radius, 1e-9)
}

func filterEvents(events []internal.Event, eventType string) []internal.Event {
	var out []internal.Event
	for _, e := range events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// TestSession_ClickConsumed 測試點擊只在下一個 tick 判定一次
func TestSession_ClickConsumed(t *testing.T) {
	_, session, clock := newTestSession(t)
	internal.SetTargets(session, []internal.Target{
		{X: 400, Y: 300, Radius: 20, Points: 10},
	})

	// 未命中
	require.NoError(t, session.Click("alice", 10, 10))
	result := session.Tick(clock.Now())
	_, hit := findEvent(result.Events, internal.EventTargetHit)
	assert.False(t, hit)

	// 目標移到舊點擊位置，已消耗的點擊不再判定
	internal.SetTargets(session, []internal.Target{
		{X: 10, Y: 10, Radius: 20, Points: 10},
	})
	result = session.Tick(clock.Now())
	_, hit = findEvent(result.Events, internal.EventTargetHit)
	assert.False(t, hit)

	for _, p := range session.Players() {
		assert.Zero(t, p.Score)
	}
}

// TestSession_LatestClickWins 測試同一 tick 內後到的點擊覆蓋先到的
func TestSession_LatestClickWins(t *testing.T) {
	_, session, clock := newTestSession(t)
	internal.SetTargets(session, []internal.Target{
		{X: 400, Y: 300, Radius: 20, Points: 10},
	})

	require.NoError(t, session.Click("alice", 400, 300))
	require.NoError(t, session.Click("alice", 10, 10))
	result := session.Tick(clock.Now())

	_, hit := findEvent(result.Events, internal.EventTargetHit)
	assert.False(t, hit)
}

// TestSession_ClickOnBoundary 測試距離等於半徑不算命中
func TestSession_ClickOnBoundary(t *testing.T) {
	_, session, clock := newTestSession(t)
	internal.SetTargets(session, []internal.Target{
		{X: 400, Y: 300, Radius: 10.1, Points: 10},
	})

	// 縮小後半徑為 10
	require.NoError(t, session.Click("alice", 410, 300))
	result := session.Tick(clock.Now())

	_, hit := findEvent(result.Events, internal.EventTargetHit)
	assert.False(t, hit)
}

// TestSession_TargetExpiry 測試目標縮到下限時替換
func TestSession_TargetExpiry(t *testing.T) {
	_, session, clock := newTestSession(t)
	arena := internal.DefaultArena()
	internal.SetTargets(session, []internal.Target{
		{X: 400, Y: 300, Radius: arena.MinTargetRadius + 0.05, Points: 10},
	})

	session.Tick(clock.Now())

	targets := session.Targets()
	require.Len(t, targets, 1)
	assert.Equal(t, arena.TargetRadius, targets[0].Radius)

	// 長時間模擬後半徑始終高於下限
	for i := 0; i < 1000; i++ {
		session.Tick(clock.Now())
		for _, target := range session.Targets() {
			require.Greater(t, target.Radius, arena.MinTargetRadius)
			require.LessOrEqual(t, target.Radius, arena.TargetRadius)
		}
	}
}

// TestSession_ScoresNeverDecrease 測試分數只增不減
func TestSession_ScoresNeverDecrease(t *testing.T) {
	_, session, clock := newTestSession(t)

	previous := map[string]int{}
	for i := 0; i < 300; i++ {
		targets := session.Targets()
		require.NoError(t, session.Click("alice", targets[0].X, targets[0].Y))
		if i%3 == 0 {
			require.NoError(t, session.Click("bob", targets[0].X, targets[0].Y))
		}
		session.Tick(clock.Now())

		for _, p := range session.Players() {
			require.GreaterOrEqual(t, p.Score, previous[p.ID])
			previous[p.ID] = p.Score
		}
	}
	assert.Positive(t, previous["alice"])
}

// TestSession_Expiry 測試時間到時送出最終排名
func TestSession_Expiry(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T, s *internal.Session, now time.Time)
		expected []string
	}{
		{
			name:     "tie keeps join order",
			setup:    func(t *testing.T, s *internal.Session, now time.Time) {},
			expected: []string{"alice", "bob"},
		},
		{
			name: "higher score first",
			setup: func(t *testing.T, s *internal.Session, now time.Time) {
				internal.SetTargets(s, []internal.Target{{X: 400, Y: 300, Radius: 20, Points: 10}})
				require.NoError(t, s.Click("bob", 400, 300))
				s.Tick(now)
			},
			expected: []string{"bob", "alice"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, session, clock := newTestSession(t)
			tt.setup(t, session, clock.Now())

			result := session.Tick(session.EndsAt)

			assert.True(t, result.Ended)
			require.Len(t, result.Events, 1)
			assert.Equal(t, internal.EventSessionEnded, result.Events[0].Type)

			final := result.Events[0].Data.(internal.SessionResult)
			assert.Zero(t, final.TimeLeft)
			ids := make([]string, len(final.Players))
			for i, p := range final.Players {
				ids[i] = p.ID
			}
			assert.Equal(t, tt.expected, ids)
			assert.True(t, session.Closing())
		})
	}
}

// TestSession_Closing 測試結束後不再有任何狀態變化
func TestSession_Closing(t *testing.T) {
	_, session, clock := newTestSession(t)

	first := session.Tick(session.EndsAt.Add(time.Second))
	require.True(t, first.Ended)

	for i := 0; i < 5; i++ {
		result := session.Tick(clock.Now().Add(2 * time.Minute))
		assert.False(t, result.Ended)
		assert.Empty(t, result.Events)
	}

	err := session.Move("alice", 10, 10)
	assert.ErrorIs(t, err, internal.ErrSessionClosed)
	assert.True(t, internal.IsNotFound(err))

	err = session.Click("bob", 10, 10)
	assert.ErrorIs(t, err, internal.ErrSessionClosed)
}

// TestSession_Move 測試移動
func TestSession_Move(t *testing.T) {
	_, session, _ := newTestSession(t)

	require.NoError(t, session.Move("bob", 123.5, 456))

	players := session.Players()
	assert.Equal(t, 123.5, players[1].X)
	assert.Equal(t, 456.0, players[1].Y)

	err := session.Move("mallory", 1, 1)
	assert.ErrorIs(t, err, internal.ErrPlayerNotFound)
}

// TestSession_Leave 測試玩家離開
func TestSession_Leave(t *testing.T) {
	t.Run("active session", func(t *testing.T) {
		_, session, _ := newTestSession(t)

		remaining, active, err := session.Leave("alice")
		require.NoError(t, err)
		assert.True(t, active)
		assert.Equal(t, []string{"bob"}, remaining)

		_, active, err = session.Leave("alice")
		assert.ErrorIs(t, err, internal.ErrPlayerNotFound)
		assert.True(t, active)

		assert.Equal(t, []string{"bob"}, session.Members())
	})

	t.Run("closing session", func(t *testing.T) {
		_, session, _ := newTestSession(t)
		session.Tick(session.EndsAt)

		remaining, active, err := session.Leave("alice")
		require.NoError(t, err)
		assert.False(t, active, "已結束的對局不通知對手")
		assert.Nil(t, remaining)
		assert.Equal(t, []string{"alice", "bob"}, session.Members())
	})

	t.Run("concurrent with expiry", func(t *testing.T) {
		// 離開與到期同時發生時，只有其中一方生效
		for i := 0; i < 50; i++ {
			_, session, _ := newTestSession(t)

			var (
				wg     sync.WaitGroup
				active bool
				result internal.TickResult
			)
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, active, _ = session.Leave("alice")
			}()
			go func() {
				defer wg.Done()
				result = session.Tick(session.EndsAt)
			}()
			wg.Wait()

			require.True(t, session.Closing())
			if active {
				assert.Equal(t, []string{"bob"}, session.Members())
			} else {
				assert.Equal(t, []string{"alice", "bob"}, session.Members())
				assert.True(t, result.Ended)
			}
		}
	})
}

// TestSession_StartGate 測試開始前不推進模擬
func TestSession_StartGate(t *testing.T) {
	registry := newTestRegistry(newFakeClock())
	defer registry.Stop()

	session, err := registry.Create(entry("alice"), entry("bob"))
	require.NoError(t, err)
	radius := session.Targets()[0].Radius

	result := session.Tick(session.StartedAt.Add(time.Second))
	assert.Empty(t, result.Events)
	assert.False(t, result.Ended)
	assert.Equal(t, radius, session.Targets()[0].Radius, "開始前目標不縮小")

	session.Start()
	result = session.Tick(session.StartedAt.Add(time.Second))
	assert.NotEmpty(t, result.Events)
	assert.Less(t, session.Targets()[0].Radius, radius)
}

// TestSession_Snapshot 測試對局快照
func TestSession_Snapshot(t *testing.T) {
	_, session, clock := newTestSession(t)

	snap := session.Snapshot(clock.Now().Add(30*time.Second + 400*time.Millisecond))

	assert.Equal(t, session.ID, snap.ID)
	assert.Equal(t, internal.StatusActive, snap.Status)
	assert.Equal(t, 29, snap.TimeLeft)
	assert.Len(t, snap.Players, 2)
	assert.Len(t, snap.Targets, 1)

	snap = session.Snapshot(session.EndsAt.Add(time.Hour))
	assert.Zero(t, snap.TimeLeft)
}
