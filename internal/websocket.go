package internal

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// 連接參數
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
	sendBufferSize = 256
)

// WebSocketHub WebSocket 連接中心
//
// 每個連接在升級時分配一個 UUID 作為玩家身份，並訂閱該身份的 NATS 主題；
// 推送事件經由主題送進連接的 Send 緩衝，再由 writePump 寫出。
type WebSocketHub struct {
	lobby       *Lobby
	gateway     *NatsGateway
	logger      *slog.Logger
	upgrader    websocket.Upgrader
	connections map[string]*Connection // playerID -> Connection
	mu          sync.RWMutex
	wg          sync.WaitGroup // 追蹤 readPump，Stop 時等待斷線流程完成
}

// Connection WebSocket 連接
type Connection struct {
	PlayerID    string
	Conn        *websocket.Conn
	Send        chan []byte
	Hub         *WebSocketHub
	LastPing    time.Time
	ctx         context.Context
	mu          sync.Mutex
	closed      bool
	unsubscribe func()
}

// NewWebSocketHub 創建 WebSocket Hub
func NewWebSocketHub(lobby *Lobby, gateway *NatsGateway, logger *slog.Logger) *WebSocketHub {
	return &WebSocketHub{
		lobby:   lobby,
		gateway: gateway,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[string]*Connection),
	}
}

// ServeWS 處理 WebSocket 連接
func (hub *WebSocketHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	connection := &Connection{
		PlayerID: uuid.NewString(),
		Conn:     conn,
		Send:     make(chan []byte, sendBufferSize),
		Hub:      hub,
		LastPing: time.Now(),
		ctx:      context.WithoutCancel(r.Context()),
	}

	// 先訂閱再開始讀取，確保第一個回覆不會遺失
	unsubscribe, err := hub.gateway.Subscribe(connection.PlayerID, func(data []byte) {
		if !connection.enqueue(data) {
			hub.logger.Warn("連接緩衝區滿或已關閉",
				"player_id", connection.PlayerID)
		}
	})
	if err != nil {
		hub.logger.Error("訂閱玩家主題失敗", "error", err)
		conn.Close()
		return
	}
	connection.unsubscribe = unsubscribe

	hub.register(connection)
	hub.lobby.Connect(connection.ctx, connection.PlayerID)

	hub.wg.Add(1)
	go connection.writePump()
	go connection.readPump()

	hub.logger.Info("WebSocket 連接建立", "player_id", connection.PlayerID)
}

// register 註冊連接
func (hub *WebSocketHub) register(conn *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.connections[conn.PlayerID] = conn
}

// unregister 取消註冊連接
func (hub *WebSocketHub) unregister(conn *Connection) {
	hub.mu.Lock()
	if actual, exists := hub.connections[conn.PlayerID]; exists && actual == conn {
		delete(hub.connections, conn.PlayerID)
	}
	hub.mu.Unlock()

	if conn.unsubscribe != nil {
		conn.unsubscribe()
	}
	conn.close()
}

// Stop 關閉所有連接
//
// 各連接的 readPump 會因讀取失敗而退出並照常執行斷線流程；
// Stop 等待所有斷線流程完成後才返回，呼叫端之後才能關閉 NATS。
func (hub *WebSocketHub) Stop() {
	hub.mu.RLock()
	conns := make([]*Connection, 0, len(hub.connections))
	for _, c := range hub.connections {
		conns = append(conns, c)
	}
	hub.mu.RUnlock()

	for _, c := range conns {
		c.close()
		c.Conn.Close()
	}
	hub.wg.Wait()

	hub.logger.Info("WebSocket Hub 已停止", "connections", len(conns))
}

// ConnectionCount 目前連接數
func (hub *WebSocketHub) ConnectionCount() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.connections)
}

// enqueue 非阻塞放入發送緩衝
func (c *Connection) enqueue(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.Send <- message:
		return true
	default:
		return false
	}
}

// close 關閉發送緩衝，只執行一次
func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// readPump 讀取客戶端消息，結束時執行斷線流程
func (c *Connection) readPump() {
	defer func() {
		c.Hub.unregister(c)
		c.Conn.Close()
		c.Hub.lobby.Disconnect(c.ctx, c.PlayerID)
		c.Hub.wg.Done()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	if err := c.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.Hub.logger.Error("設置讀取期限失敗", "error", err)
	}

	c.Conn.SetPongHandler(func(string) error {
		if err := c.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.Hub.logger.Error("設置讀取期限失敗", "error", err)
		}
		c.mu.Lock()
		c.LastPing = time.Now()
		c.mu.Unlock()
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Error("WebSocket 讀取錯誤",
					"error", err,
					"player_id", c.PlayerID)
			}
			break
		}

		if messageType == websocket.TextMessage {
			c.handleMessage(message)
		}
	}
}

// writePump 寫入消息到客戶端，並定期發送 ping
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.Hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量發送隊列中的消息
			n := len(c.Send)
			for i := 0; i < n; i++ {
				next, ok := <-c.Send
				if !ok {
					return
				}
				if err := c.Conn.WriteMessage(websocket.TextMessage, next); err != nil {
					c.Hub.logger.Error("發送消息失敗", "error", err)
					return
				}
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.Hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 處理客戶端消息
func (c *Connection) handleMessage(message []byte) {
	var peek struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &peek); err == nil && peek.Type == MsgPing {
		response, _ := json.Marshal(map[string]string{"type": MsgPong})
		c.enqueue(response)
		return
	}

	if err := c.Hub.lobby.HandleMessage(c.ctx, c.PlayerID, message); err != nil {
		c.Hub.logger.Debug("處理客戶端消息失敗",
			"error", err,
			"player_id", c.PlayerID)
	}
}
