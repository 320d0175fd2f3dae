package internal

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Broadcaster 將事件送達單一玩家的連接
type Broadcaster interface {
	Send(playerID string, event Event) error
}

// broadcast 送給多位玩家，回傳所有失敗
func broadcast(b Broadcaster, playerIDs []string, event Event) error {
	var errs []error
	for _, id := range playerIDs {
		if err := b.Send(id, event); err != nil {
			errs = append(errs, fmt.Errorf("send %s to %s: %w", event.Type, id, err))
		}
	}
	return errors.Join(errs...)
}

// PlayerSubject 玩家的 NATS 主題
func PlayerSubject(playerID string) string {
	return "arena.player." + playerID
}

// NatsGateway 透過 NATS 主題發送事件
type NatsGateway struct {
	server *NatsServer
}

// NewNatsGateway 創建 NATS 推送閘道
func NewNatsGateway(server *NatsServer) *NatsGateway {
	return &NatsGateway{server: server}
}

// Send 編碼事件並發布到玩家主題
func (g *NatsGateway) Send(playerID string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失敗: %w", err)
	}
	return g.server.Publish(PlayerSubject(playerID), data)
}

// Subscribe 訂閱玩家主題
func (g *NatsGateway) Subscribe(playerID string, handler func(data []byte)) (func(), error) {
	return g.server.Subscribe(PlayerSubject(playerID), handler)
}
