package internal

import "encoding/json"

// Event 推送給客戶端的事件
type Event struct {
	Type string `json:"event"`
	Data any    `json:"data"`
}

// 推送事件類型
const (
	EventWaitingForOpponent   = "waiting_for_opponent"
	EventMatchmakingError     = "matchmaking_error"
	EventQueueCancelled       = "queue_cancelled"
	EventSessionStarted       = "session_started"
	EventIdentityAssigned     = "identity_assigned"
	EventOpponentDisconnected = "opponent_disconnected"
	EventTargetHit            = "target_hit"
	EventScoresUpdated        = "scores_updated"
	EventTargetsUpdated       = "targets_updated"
	EventPlayersUpdated       = "players_updated"
	EventTimeUpdated          = "time_updated"
	EventSessionEnded         = "session_ended"
)

// 客戶端訊息類型
const (
	MsgJoinQueue   = "join_queue"
	MsgCancelQueue = "cancel_queue"
	MsgPlayerMove  = "player_move"
	MsgPlayerClick = "player_click"
	MsgPing        = "ping"
	MsgPong        = "pong"
)

// PlayerState 玩家快照
type PlayerState struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Size  float64 `json:"size"`
	Color string  `json:"color"`
	Score int     `json:"score"`
}

// ScoreEntry 計分板項目
type ScoreEntry struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
	Color string `json:"color"`
}

// SessionStarted 對局開始
type SessionStarted struct {
	SessionID string        `json:"session_id"`
	Players   []PlayerState `json:"players"`
}

// TargetHit 擊中目標
type TargetHit struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Points   int     `json:"points"`
	PlayerID string  `json:"player_id"`
}

// SessionResult 最終排名，依分數由高到低
type SessionResult struct {
	Players  []ScoreEntry `json:"players"`
	TimeLeft int          `json:"time_left"`
}

// Inbound 客戶端訊息
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// JoinRequest 加入佇列請求
type JoinRequest struct {
	Name string   `json:"name"`
	Mode GameMode `json:"mode"`
}

// Position 移動或點擊座標
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}
