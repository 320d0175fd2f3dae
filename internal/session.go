package internal

import (
	"math"
	"sort"
	"sync"
	"time"
)

// 系統設計問題：
//   兩位玩家共享同一份世界狀態（位置、縮小中的目標、分數、倒數），
//   如何在固定頻率下推進狀態，同時接受隨時到達的移動、點擊與斷線？
//
// 核心挑戰：
//   1. 並發控制：模擬 tick 與玩家事件來自不同 goroutine
//   2. 公平判定：同一個 tick 內兩人點中同一目標時只能有一人得分
//   3. 結束時機：到期只能被觀察一次，最終排名不能重複推送
//   4. 推送順序：事件在鎖內產生、鎖外發送，不能拖慢其他操作
//
// 設計方案：
//   ✅ 每局一把 Mutex - tick 與玩家事件互斥
//   ✅ 點擊意圖暫存 - 下一個 tick 依玩家順序、目標順序判定
//   ✅ 兩態生命週期 - active → closing，closing 後不再產生事件
//   ✅ 值快照輸出 - Tick 回傳 TickResult，由呼叫端在鎖外推送
//
// 每個 tick 依序執行：到期檢查 → 目標縮小 → 點擊判定 → 狀態推送。
//
// 不變量：
//   1. closing 後不再產生任何狀態事件
//   2. 每個 tick 結束時所有目標半徑都大於最小值
//   3. 點擊意圖每個 tick 最多消耗一次，命中與否都清除
//   4. 分數只增不減

// SessionStatus 對局狀態
type SessionStatus string

const (
	StatusActive  SessionStatus = "active"  // 進行中
	StatusClosing SessionStatus = "closing" // 已送出結果，等待刪除
)

// Player 對局中的玩家
type Player struct {
	ID    string
	Name  string
	X     float64
	Y     float64
	Size  float64
	Color string
	Score int

	clicked bool
	clickX  float64
	clickY  float64
}

func (p *Player) state() PlayerState {
	return PlayerState{
		ID:    p.ID,
		Name:  p.Name,
		X:     p.X,
		Y:     p.Y,
		Size:  p.Size,
		Color: p.Color,
		Score: p.Score,
	}
}

func (p *Player) scoreEntry() ScoreEntry {
	return ScoreEntry{
		ID:    p.ID,
		Name:  p.Name,
		Score: p.Score,
		Color: p.Color,
	}
}

// Session 一場雙人對局
//
// 所有欄位由 mu 保護；模擬 tick 與玩家事件都必須持有鎖。
type Session struct {
	ID        string
	Mode      GameMode
	StartedAt time.Time
	EndsAt    time.Time

	mu      sync.Mutex
	status  SessionStatus
	started bool // 開局通知送出前 tick 不推進
	players []*Player // 先等待的玩家在前
	targets []Target

	arena   ArenaConfig
	factory *TargetFactory
}

// TickResult 一次模擬的輸出，發送給 Members
type TickResult struct {
	Members []string
	Events  []Event
	Ended   bool
}

// newSession 建立對局並產生玩家與目標
func newSession(id string, a, b QueueEntry, arena ArenaConfig, factory *TargetFactory, now time.Time) *Session {
	s := &Session{
		ID:        id,
		Mode:      b.Mode,
		StartedAt: now,
		EndsAt:    now.Add(arena.SessionDuration),
		status:    StatusActive,
		arena:     arena,
		factory:   factory,
	}

	for _, e := range []QueueEntry{a, b} {
		x, y := factory.SpawnPoint()
		s.players = append(s.players, &Player{
			ID:    e.PlayerID,
			Name:  e.Name,
			X:     x,
			Y:     y,
			Size:  arena.PlayerSize,
			Color: factory.Color(),
		})
	}
	s.targets = factory.NewTargets(arena.TargetCount)

	return s
}

// Tick 執行一次模擬
func (s *Session) Tick(now time.Time) TickResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.status == StatusClosing {
		return TickResult{}
	}

	result := TickResult{Members: s.memberIDs()}

	// 1. 到期：送出最終排名，之後不再處理
	if !now.Before(s.EndsAt) {
		s.status = StatusClosing
		result.Events = append(result.Events, Event{
			Type: EventSessionEnded,
			Data: SessionResult{Players: s.standings(), TimeLeft: 0},
		})
		result.Ended = true
		return result
	}

	// 2. 目標縮小，到達最小半徑時原位替換
	for i := range s.targets {
		s.targets[i].Radius -= s.arena.ShrinkPerTick
		if s.targets[i].Radius <= s.arena.MinTargetRadius {
			s.targets[i] = s.factory.NewTarget()
		}
	}

	// 3. 點擊判定：依目標順序，第一個命中者生效
	for _, p := range s.players {
		if !p.clicked {
			continue
		}
		p.clicked = false

		for i, t := range s.targets {
			if !t.Contains(p.clickX, p.clickY) {
				continue
			}

			points := s.pointsFor(t)
			p.Score += points
			s.targets[i] = s.factory.NewTarget()

			result.Events = append(result.Events,
				Event{
					Type: EventTargetHit,
					Data: TargetHit{X: t.X, Y: t.Y, Points: points, PlayerID: p.ID},
				},
				Event{
					Type: EventScoresUpdated,
					Data: s.scores(),
				},
			)
			break
		}
	}

	// 4. 每個 tick 都推送完整狀態
	result.Events = append(result.Events,
		Event{Type: EventTargetsUpdated, Data: s.targetsSnapshot()},
		Event{Type: EventPlayersUpdated, Data: s.playersSnapshot()},
		Event{Type: EventTimeUpdated, Data: s.timeLeft(now)},
	)

	return result
}

// pointsFor 目標越小分數越高：round(base × 初始半徑 / 目前半徑)
func (s *Session) pointsFor(t Target) int {
	return int(math.Round(float64(t.Points) * s.arena.TargetRadius / t.Radius))
}

// Move 更新玩家位置
func (s *Session) Move(playerID string, x, y float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.activePlayer(playerID)
	if err != nil {
		return err
	}
	p.X = x
	p.Y = y
	return nil
}

// Click 記錄點擊意圖，下一個 tick 消耗，後到的覆蓋先到的
func (s *Session) Click(playerID string, x, y float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.activePlayer(playerID)
	if err != nil {
		return err
	}
	p.clicked = true
	p.clickX = x
	p.clickY = y
	return nil
}

// Start 開始接受模擬
//
// 建局後先送出開局通知再呼叫，玩家不會在 session_started 之前收到狀態事件。
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
}

// Leave 玩家離開對局
//
// 對局進行中時移除玩家並回傳剩下的成員，active 為 true；
// 已結束的對局保持不變，active 為 false。判斷與移除在同一把鎖內完成。
func (s *Session) Leave(playerID string) (remaining []string, active bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusClosing {
		return nil, false, nil
	}
	for i, p := range s.players {
		if p.ID == playerID {
			s.players = append(s.players[:i], s.players[i+1:]...)
			return s.memberIDs(), true, nil
		}
	}
	return nil, true, ErrPlayerNotFound
}

// activePlayer 需持有鎖
func (s *Session) activePlayer(playerID string) (*Player, error) {
	if s.status == StatusClosing {
		return nil, ErrSessionClosed
	}
	for _, p := range s.players {
		if p.ID == playerID {
			return p, nil
		}
	}
	return nil, ErrPlayerNotFound
}

// Status 對局狀態
func (s *Session) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Closing 是否已結束
func (s *Session) Closing() bool {
	return s.Status() == StatusClosing
}

// Members 目前成員 ID
func (s *Session) Members() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memberIDs()
}

// Players 玩家快照，依加入順序
func (s *Session) Players() []PlayerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playersSnapshot()
}

// Targets 目標快照
func (s *Session) Targets() []Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.targetsSnapshot()
}

// SessionSnapshot 對局完整狀態（HTTP 查詢用）
type SessionSnapshot struct {
	ID        string        `json:"session_id"`
	Mode      GameMode      `json:"mode"`
	Status    SessionStatus `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	EndsAt    time.Time     `json:"ends_at"`
	TimeLeft  int           `json:"time_left"`
	Players   []PlayerState `json:"players"`
	Targets   []Target      `json:"targets"`
}

// Snapshot 對局完整狀態
func (s *Session) Snapshot(now time.Time) SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SessionSnapshot{
		ID:        s.ID,
		Mode:      s.Mode,
		Status:    s.status,
		StartedAt: s.StartedAt,
		EndsAt:    s.EndsAt,
		TimeLeft:  s.timeLeft(now),
		Players:   s.playersSnapshot(),
		Targets:   s.targetsSnapshot(),
	}
}

func (s *Session) memberIDs() []string {
	ids := make([]string, len(s.players))
	for i, p := range s.players {
		ids[i] = p.ID
	}
	return ids
}

func (s *Session) playersSnapshot() []PlayerState {
	out := make([]PlayerState, len(s.players))
	for i, p := range s.players {
		out[i] = p.state()
	}
	return out
}

func (s *Session) targetsSnapshot() []Target {
	out := make([]Target, len(s.targets))
	copy(out, s.targets)
	return out
}

func (s *Session) scores() []ScoreEntry {
	out := make([]ScoreEntry, len(s.players))
	for i, p := range s.players {
		out[i] = p.scoreEntry()
	}
	return out
}

// standings 分數由高到低，同分保持原順序
func (s *Session) standings() []ScoreEntry {
	out := s.scores()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// timeLeft 剩餘整秒數，不小於 0
func (s *Session) timeLeft(now time.Time) int {
	left := s.EndsAt.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(left / time.Second)
}
