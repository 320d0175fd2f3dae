package internal

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// NatsServer 內嵌的 NATS 服務與內部客戶端連接
//
// 每個玩家一個主題（arena.player.<id>），WebSocket 連接訂閱自己的主題。
type NatsServer struct {
	ns   *server.Server
	conn *nats.Conn

	startupTimeout time.Duration
	host           string
	port           int
	logger         *slog.Logger
}

// NatsServerOpt NATS 選項
type NatsServerOpt func(*NatsServer)

// WithNatsStartTimeout 設定啟動超時
func WithNatsStartTimeout(d time.Duration) NatsServerOpt {
	return func(n *NatsServer) {
		n.startupTimeout = d
	}
}

// WithNatsHost 設定監聽位址
func WithNatsHost(host string) NatsServerOpt {
	return func(n *NatsServer) {
		n.host = host
	}
}

// WithNatsPort 設定監聽端口，-1 為隨機
func WithNatsPort(port int) NatsServerOpt {
	return func(n *NatsServer) {
		n.port = port
	}
}

// NewNatsServer 創建內嵌 NATS 服務
func NewNatsServer(logger *slog.Logger, opts ...NatsServerOpt) (*NatsServer, error) {
	s := &NatsServer{
		startupTimeout: 10 * time.Second,
		host:           "127.0.0.1",
		port:           server.RANDOM_PORT,
		logger:         logger,
	}

	for _, opt := range opts {
		opt(s)
	}

	ns, err := server.NewServer(&server.Options{
		Host:   s.host,
		Port:   s.port,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		return nil, fmt.Errorf("創建 NATS 服務失敗: %w", err)
	}
	s.ns = ns

	return s, nil
}

// Start 啟動服務並建立內部連接
func (n *NatsServer) Start() error {
	go n.ns.Start()

	if !n.ns.ReadyForConnections(n.startupTimeout) {
		n.ns.Shutdown()
		return fmt.Errorf("NATS 服務未就緒")
	}

	conn, err := nats.Connect(n.ns.ClientURL(),
		nats.Name("target-duel"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		n.ns.Shutdown()
		return fmt.Errorf("連接 NATS 失敗: %w", err)
	}
	n.conn = conn

	n.logger.Info("NATS 服務已啟動", "addr", n.ns.ClientURL())
	return nil
}

// Subscribe 訂閱主題，回傳取消訂閱函式
func (n *NatsServer) Subscribe(subject string, handler func(data []byte)) (func(), error) {
	if n.conn == nil {
		return nil, fmt.Errorf("NATS 服務尚未啟動")
	}
	sub, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, err
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

// Publish 發送訊息
func (n *NatsServer) Publish(subject string, data []byte) error {
	if n.conn == nil {
		return fmt.Errorf("NATS 服務尚未啟動")
	}
	return n.conn.Publish(subject, data)
}

// Flush 等待已發送的訊息送達服務端
func (n *NatsServer) Flush() error {
	if n.conn == nil {
		return fmt.Errorf("NATS 服務尚未啟動")
	}
	return n.conn.Flush()
}

// Close 關閉連接與服務
func (n *NatsServer) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
	n.ns.Shutdown()
	n.ns.WaitForShutdown()

	n.logger.Info("NATS 服務已停止")
}
