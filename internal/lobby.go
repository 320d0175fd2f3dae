package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Lobby 將連接事件轉換為佇列與對局操作
//
// 加入、取消、斷線由 lifecycle 鎖串行化，配對建局與斷線不會交錯；
// 移動與點擊只鎖對局本身。
type Lobby struct {
	queue       *Queue
	registry    *Registry
	broadcaster Broadcaster
	maxName     int
	guestSeq    atomic.Uint64
	lifecycle   sync.Mutex
	tracer      trace.Tracer
	logger      *slog.Logger
}

// NewLobby 創建大廳
func NewLobby(queue *Queue, registry *Registry, broadcaster Broadcaster, arena ArenaConfig, logger *slog.Logger) *Lobby {
	return &Lobby{
		queue:       queue,
		registry:    registry,
		broadcaster: broadcaster,
		maxName:     arena.MaxNameLength,
		tracer:      otel.Tracer(tracerName),
		logger:      logger,
	}
}

// Connect 新連接，加入佇列前沒有任何副作用
func (l *Lobby) Connect(ctx context.Context, playerID string) {
	l.logger.DebugContext(ctx, "玩家已連線", "player_id", playerID)
}

// HandleMessage 解析並分派客戶端訊息
func (l *Lobby) HandleMessage(ctx context.Context, playerID string, raw []byte) error {
	var msg Inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	switch msg.Type {
	case MsgJoinQueue:
		var req JoinRequest
		if len(msg.Data) == 0 || json.Unmarshal(msg.Data, &req) != nil {
			err := &ValidationError{Field: "data", Err: ErrInvalidPayload}
			l.reject(ctx, playerID, err)
			return err
		}
		return l.JoinQueue(ctx, playerID, req)

	case MsgCancelQueue:
		l.CancelQueue(ctx, playerID)
		return nil

	case MsgPlayerMove, MsgPlayerClick:
		var pos Position
		if err := json.Unmarshal(msg.Data, &pos); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		var err error
		if msg.Type == MsgPlayerMove {
			err = l.Move(playerID, pos)
		} else {
			err = l.Click(playerID, pos)
		}
		if IsNotFound(err) {
			return nil
		}
		return err

	default:
		return fmt.Errorf("%w: 未知訊息類型 %q", ErrInvalidPayload, msg.Type)
	}
}

// JoinQueue 加入配對佇列
//
// 驗證失敗只通知該玩家；配對成功時建立對局並通知雙方。
func (l *Lobby) JoinQueue(ctx context.Context, playerID string, req JoinRequest) error {
	ctx, span := l.tracer.Start(ctx, "lobby.join", trace.WithAttributes(
		attribute.String("player_id", playerID),
		attribute.String("mode", string(req.Mode)),
	))
	defer span.End()

	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()

	if session, err := l.registry.SessionOf(playerID); err == nil && !session.Closing() {
		err := &ValidationError{Field: "player_id", Err: ErrAlreadyInSession}
		l.reject(ctx, playerID, err)
		return err
	}

	result, err := l.queue.Join(req.Mode, QueueEntry{
		PlayerID: playerID,
		Name:     l.normalizeName(req.Name),
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		l.reject(ctx, playerID, err)
		return err
	}

	if result.Status == JoinWaiting {
		l.send(ctx, playerID, Event{
			Type: EventWaitingForOpponent,
			Data: map[string]any{"mode": result.Entry.Mode},
		})
		return nil
	}

	session, err := l.registry.Create(result.Opponent, result.Entry)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.logger.ErrorContext(ctx, "建立對局失敗",
			"player_id", playerID,
			"opponent_id", result.Opponent.PlayerID,
			"error", err)
		l.reject(ctx, result.Opponent.PlayerID, err)
		l.reject(ctx, playerID, err)
		return err
	}
	span.SetAttributes(attribute.String("session_id", session.ID))

	members := session.Members()
	if err := broadcast(l.broadcaster, members, Event{
		Type: EventSessionStarted,
		Data: SessionStarted{SessionID: session.ID, Players: session.Players()},
	}); err != nil {
		l.logger.WarnContext(ctx, "推送對局開始失敗", "session_id", session.ID, "error", err)
	}
	for _, id := range members {
		l.send(ctx, id, Event{
			Type: EventIdentityAssigned,
			Data: map[string]string{"player_id": id},
		})
	}

	// 開局通知已送出，之後的 tick 才開始推送狀態
	session.Start()

	return nil
}

// CancelQueue 取消配對並回覆
func (l *Lobby) CancelQueue(ctx context.Context, playerID string) {
	l.lifecycle.Lock()
	l.queue.Cancel(playerID)
	l.lifecycle.Unlock()

	l.send(ctx, playerID, Event{
		Type: EventQueueCancelled,
		Data: map[string]any{},
	})
}

// Move 更新玩家位置，不在進行中的對局時回傳查無資料錯誤
func (l *Lobby) Move(playerID string, pos Position) error {
	session, err := l.registry.SessionOf(playerID)
	if err != nil {
		return err
	}
	return session.Move(playerID, pos.X, pos.Y)
}

// Click 記錄點擊意圖
func (l *Lobby) Click(playerID string, pos Position) error {
	session, err := l.registry.SessionOf(playerID)
	if err != nil {
		return err
	}
	return session.Click(playerID, pos.X, pos.Y)
}

// Disconnect 玩家斷線
//
// 一律移出佇列；若在進行中的對局，通知對手並立即移除對局；
// 已結束（寬限期內）的對局直接移除，不通知。
func (l *Lobby) Disconnect(ctx context.Context, playerID string) {
	ctx, span := l.tracer.Start(ctx, "lobby.disconnect", trace.WithAttributes(
		attribute.String("player_id", playerID),
	))
	defer span.End()

	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()

	l.queue.RemoveOnDisconnect(playerID)

	session, err := l.registry.SessionOf(playerID)
	if err != nil {
		l.logger.DebugContext(ctx, "玩家已斷線", "player_id", playerID)
		return
	}
	span.SetAttributes(attribute.String("session_id", session.ID))

	remaining, active, err := session.Leave(playerID)
	if err != nil && !errors.Is(err, ErrPlayerNotFound) {
		l.logger.WarnContext(ctx, "移除玩家失敗", "session_id", session.ID, "error", err)
	}
	if active {
		if err := broadcast(l.broadcaster, remaining, Event{
			Type: EventOpponentDisconnected,
			Data: map[string]string{"player_id": playerID},
		}); err != nil {
			l.logger.WarnContext(ctx, "推送對手斷線失敗", "session_id", session.ID, "error", err)
		}
	}

	l.registry.Destroy(session.ID)

	l.logger.InfoContext(ctx, "玩家斷線，對局已結束",
		"player_id", playerID,
		"session_id", session.ID)
}

// normalizeName 去除空白、預設名稱、截斷長度
func (l *Lobby) normalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Sprintf("玩家 %d", l.guestSeq.Add(1))
	}
	if runes := []rune(name); len(runes) > l.maxName {
		name = string(runes[:l.maxName])
	}
	return name
}

// reject 回報配對錯誤
func (l *Lobby) reject(ctx context.Context, playerID string, err error) {
	l.logger.InfoContext(ctx, "配對請求被拒絕", "player_id", playerID, "error", err)
	l.send(ctx, playerID, Event{
		Type: EventMatchmakingError,
		Data: map[string]string{"reason": err.Error()},
	})
}

func (l *Lobby) send(ctx context.Context, playerID string, event Event) {
	if err := l.broadcaster.Send(playerID, event); err != nil {
		l.logger.WarnContext(ctx, "推送事件失敗",
			"player_id", playerID,
			"event", event.Type,
			"error", err)
	}
}
