package internal

import (
	"log/slog"
	"sync"
	"time"
)

// 系統設計問題：
//   玩家隨時加入、取消或斷線，如何公平地兩兩配對，且每位玩家只被配對一次？
//
// 核心挑戰：
//   1. 公平性：等最久的玩家優先配對
//   2. 互斥終結：同一條目只能以配對、取消、斷線其中一種方式離開佇列
//   3. 重複請求：連點加入不能讓玩家和自己配對
//   4. 無效輸入：不支援的模式不能改變佇列
//
// 設計方案：
//   ✅ 每個模式一條 FIFO 列表 - 取最早的條目配對
//   ✅ 單一 Mutex - 加入、取消、配對在同一把鎖內完成
//   ✅ 鎖外驗證 - 模式檢查在取鎖之前，失敗時不碰佇列
//   ✅ 冪等取消 - 取消與斷線重複呼叫都安全

// GameMode 遊戲模式
type GameMode string

const (
	ModeDuel GameMode = "1v1" // 目前唯一支援的模式
)

// supportedModes 可配對的模式
var supportedModes = map[GameMode]bool{
	ModeDuel: true,
}

// IsSupported 模式是否可配對
func (m GameMode) IsSupported() bool {
	return supportedModes[m]
}

// QueueEntry 配對佇列中的玩家
type QueueEntry struct {
	PlayerID string    `json:"player_id"`
	Name     string    `json:"player_name"`
	Mode     GameMode  `json:"mode"`
	Seq      uint64    `json:"seq"`
	JoinedAt time.Time `json:"joined_at"`
}

// JoinStatus 加入佇列的結果
type JoinStatus int

const (
	JoinWaiting JoinStatus = iota // 進入等待
	JoinPaired                    // 配對成功
)

// JoinResult 加入佇列的結果
//
// Paired 時 Opponent 是等最久的玩家，Entry 是剛加入的玩家。
type JoinResult struct {
	Status   JoinStatus
	Entry    QueueEntry
	Opponent QueueEntry
}

// Queue 配對佇列
//
// 每個模式一條先進先出的等待列表。
// 條目的三種終結方式（配對、取消、斷線）互斥，先發生者生效。
type Queue struct {
	mu      sync.Mutex
	waiting map[GameMode][]QueueEntry
	nextSeq uint64
	logger  *slog.Logger
}

// NewQueue 創建配對佇列
func NewQueue(logger *slog.Logger) *Queue {
	return &Queue{
		waiting: make(map[GameMode][]QueueEntry),
		logger:  logger,
	}
}

// Join 加入佇列
//
// 該模式已有人等待時取出最早的條目並回傳配對結果，否則排入等待。
// 模式不支援或玩家已在佇列中時回傳 ValidationError，佇列不變。
func (q *Queue) Join(mode GameMode, entry QueueEntry) (JoinResult, error) {
	if !mode.IsSupported() {
		return JoinResult{}, &ValidationError{Field: "mode", Err: ErrUnsupportedMode}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.contains(entry.PlayerID) {
		return JoinResult{}, &ValidationError{Field: "player_id", Err: ErrAlreadyQueued}
	}

	q.nextSeq++
	entry.Mode = mode
	entry.Seq = q.nextSeq
	if entry.JoinedAt.IsZero() {
		entry.JoinedAt = time.Now()
	}

	if list := q.waiting[mode]; len(list) > 0 {
		opponent := list[0]
		q.waiting[mode] = list[1:]
		if len(q.waiting[mode]) == 0 {
			delete(q.waiting, mode)
		}

		q.logger.Info("配對成功",
			"mode", mode,
			"player_id", entry.PlayerID,
			"opponent_id", opponent.PlayerID)

		return JoinResult{Status: JoinPaired, Entry: entry, Opponent: opponent}, nil
	}

	q.waiting[mode] = append(q.waiting[mode], entry)

	q.logger.Info("進入配對等待",
		"mode", mode,
		"player_id", entry.PlayerID,
		"player_name", entry.Name)

	return JoinResult{Status: JoinWaiting, Entry: entry}, nil
}

// Cancel 從所有模式的佇列移除玩家（冪等）
//
// 回傳是否真的移除了條目，僅供記錄。
func (q *Queue) Cancel(playerID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := false
	for mode, list := range q.waiting {
		kept := list[:0:0]
		for _, e := range list {
			if e.PlayerID == playerID {
				removed = true
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(q.waiting, mode)
		} else {
			q.waiting[mode] = kept
		}
	}

	if removed {
		q.logger.Info("離開配對佇列", "player_id", playerID)
	}
	return removed
}

// RemoveOnDisconnect 斷線時移除，語義與 Cancel 相同
func (q *Queue) RemoveOnDisconnect(playerID string) bool {
	return q.Cancel(playerID)
}

// Contains 玩家是否在任何佇列中
func (q *Queue) Contains(playerID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.contains(playerID)
}

// contains 需持有鎖
func (q *Queue) contains(playerID string) bool {
	for _, list := range q.waiting {
		for _, e := range list {
			if e.PlayerID == playerID {
				return true
			}
		}
	}
	return false
}

// Waiting 各模式等待人數
func (q *Queue) Waiting() map[GameMode]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	result := make(map[GameMode]int, len(q.waiting))
	for mode, list := range q.waiting {
		result[mode] = len(list)
	}
	return result
}
