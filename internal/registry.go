package internal

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// 系統設計問題：
//   對局由配對建立、由模擬或斷線結束，兩條結束路徑可能同時發生，
//   如何保證對局只被移除一次，且不會移除到之後建立的新對局？
//
// 核心挑戰：
//   1. 雙重索引：對局 ID → 對局、玩家 → 對局，兩者必須一起更新
//   2. 延遲刪除：結束後保留寬限期讓客戶端讀取結果
//   3. 競態路徑：寬限期內斷線與計時器觸發會重複刪除
//   4. 遍歷安全：模擬遍歷所有對局時不能長時間持有全域鎖
//
// 設計方案：
//   ✅ RWMutex - 查詢多、建立與刪除少
//   ✅ time.AfterFunc - 每局一個計時器，Destroy 時一併停止
//   ✅ 冪等刪除 - 重複 Destroy 與遲到的計時器都是空操作
//   ✅ 快照遍歷 - ForEachActive 先複製列表再在鎖外執行
//
// 已結束的對局不再佔用玩家：寬限期內玩家可以重新配對，
// 新對局覆蓋玩家索引，舊對局刪除時只清除仍指向自己的索引。

// Registry 對局管理器
//
// 唯一持有所有對局的結構，只能透過以下操作修改：
// Create、Destroy、ScheduleDestroy。
type Registry struct {
	sessions      map[string]*Session    // sessionID -> Session
	playerSession map[string]string      // playerID -> sessionID
	pending       map[string]*time.Timer // sessionID -> 延遲刪除計時器
	mu            sync.RWMutex

	arena   ArenaConfig
	factory *TargetFactory
	clock   func() time.Time
	nextID  atomic.Uint64
	logger  *slog.Logger
}

// RegistryOption 管理器選項
type RegistryOption func(*Registry)

// WithClock 設定時鐘（測試用）
func WithClock(clock func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.clock = clock
	}
}

// WithTargetFactory 設定目標工廠
func WithTargetFactory(f *TargetFactory) RegistryOption {
	return func(r *Registry) {
		r.factory = f
	}
}

// NewRegistry 創建對局管理器
func NewRegistry(arena ArenaConfig, logger *slog.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		sessions:      make(map[string]*Session),
		playerSession: make(map[string]string),
		pending:       make(map[string]*time.Timer),
		arena:         arena,
		clock:         time.Now,
		logger:        logger,
	}

	for _, opt := range opts {
		opt(r)
	}
	if r.factory == nil {
		r.factory = NewTargetFactory(arena, nil)
	}

	return r
}

// Now 管理器時鐘
func (r *Registry) Now() time.Time {
	return r.clock()
}

// Create 為配對成功的兩位玩家建立對局
func (r *Registry) Create(a, b QueueEntry) (*Session, error) {
	if a.PlayerID == b.PlayerID {
		return nil, &ValidationError{Field: "player_id", Err: ErrAlreadyInSession}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// 已結束（等待刪除）的對局不再佔用玩家，新對局直接覆蓋對應
	for _, id := range []string{a.PlayerID, b.PlayerID} {
		existing, ok := r.playerSession[id]
		if !ok {
			continue
		}
		if s, live := r.sessions[existing]; live && !s.Closing() {
			return nil, &ValidationError{
				Field: "player_id",
				Err:   fmt.Errorf("%w: %s", ErrAlreadyInSession, existing),
			}
		}
	}

	id := fmt.Sprintf("game_%d", r.nextID.Add(1))
	session := newSession(id, a, b, r.arena, r.factory, r.clock())

	r.sessions[id] = session
	r.playerSession[a.PlayerID] = id
	r.playerSession[b.PlayerID] = id

	r.logger.Info("對局已建立",
		"session_id", id,
		"mode", session.Mode,
		"players", []string{a.PlayerID, b.PlayerID},
		"ends_at", session.EndsAt)

	return session, nil
}

// Get 獲取對局
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	session, exists := r.sessions[id]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return session, nil
}

// SessionOf 獲取玩家所在對局
func (r *Registry) SessionOf(playerID string) (*Session, error) {
	r.mu.RLock()
	id, exists := r.playerSession[playerID]
	var session *Session
	if exists {
		session = r.sessions[id]
	}
	r.mu.RUnlock()

	if session == nil {
		return nil, fmt.Errorf("%w: player %s", ErrSessionNotFound, playerID)
	}
	return session, nil
}

// Destroy 移除對局（冪等），回傳是否真的移除
func (r *Registry) Destroy(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if timer, ok := r.pending[id]; ok {
		timer.Stop()
		delete(r.pending, id)
	}

	session, exists := r.sessions[id]
	if !exists {
		return false
	}

	for playerID, sessionID := range r.playerSession {
		if sessionID == id {
			delete(r.playerSession, playerID)
		}
	}
	delete(r.sessions, id)

	r.logger.Info("對局已移除", "session_id", id, "status", session.Status())
	return true
}

// ScheduleDestroy 延遲移除對局
//
// 重複排程不會產生第二個計時器；計時器觸發前若已被 Destroy，觸發時為空操作。
func (r *Registry) ScheduleDestroy(id string, delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; !exists {
		return
	}
	if _, scheduled := r.pending[id]; scheduled {
		return
	}

	r.pending[id] = time.AfterFunc(delay, func() {
		r.Destroy(id)
	})

	r.logger.Debug("對局排程移除", "session_id", id, "delay", delay)
}

// ForEachActive 對每個已註冊的對局執行 fn
//
// 先在讀鎖下複製列表，fn 執行時不持有管理器的鎖，順序不固定。
func (r *Registry) ForEachActive(fn func(*Session)) {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		fn(s)
	}
}

// SessionSummary 對局摘要
type SessionSummary struct {
	ID       string        `json:"session_id"`
	Mode     GameMode      `json:"mode"`
	Status   SessionStatus `json:"status"`
	Players  []string      `json:"players"`
	EndsAt   time.Time     `json:"ends_at"`
	TimeLeft int           `json:"time_left"`
}

// List 列出對局，依 ID 排序
func (r *Registry) List() []SessionSummary {
	now := r.clock()
	result := make([]SessionSummary, 0)

	r.ForEachActive(func(s *Session) {
		snap := s.Snapshot(now)
		ids := make([]string, len(snap.Players))
		for i, p := range snap.Players {
			ids[i] = p.ID
		}
		result = append(result, SessionSummary{
			ID:       snap.ID,
			Mode:     snap.Mode,
			Status:   snap.Status,
			Players:  ids,
			EndsAt:   snap.EndsAt,
			TimeLeft: snap.TimeLeft,
		})
	})

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}

// Stats 統計資訊
func (r *Registry) Stats() map[string]any {
	statusCount := make(map[SessionStatus]int)
	totalPlayers := 0

	r.ForEachActive(func(s *Session) {
		statusCount[s.Status()]++
		totalPlayers += len(s.Members())
	})

	r.mu.RLock()
	total := len(r.sessions)
	pending := len(r.pending)
	r.mu.RUnlock()

	return map[string]any{
		"total_sessions":  total,
		"total_players":   totalPlayers,
		"pending_removal": pending,
		"by_status":       statusCount,
	}
}

// Stop 停止所有延遲刪除計時器並清空對局
func (r *Registry) Stop() {
	r.mu.Lock()
	for id, timer := range r.pending {
		timer.Stop()
		delete(r.pending, id)
	}
	r.sessions = make(map[string]*Session)
	r.playerSession = make(map[string]string)
	r.mu.Unlock()

	r.logger.Info("對局管理器已停止")
}
