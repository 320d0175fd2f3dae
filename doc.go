// Package targetduel 提供一個雙人即時點擊對戰服務。
//
// 玩家透過 WebSocket 連線後加入配對佇列，兩人配對成功即建立對局。
// 伺服器以固定頻率（預設 60 Hz）推進所有對局：目標每次縮小，
// 縮到下限就在隨機位置重生；點中目標依目前半徑加權計分，越小越高分。
// 時間到時推送最終排名，並在寬限期後移除對局。
//
// # 元件
//
//   - Queue：依模式分組的 FIFO 配對佇列
//   - Registry：對局與玩家對應表，負責建立、查詢、延遲移除
//   - Session：單一對局狀態，Tick 在鎖內計算、回傳事件
//   - Simulator / Scheduler：單一 goroutine 依序推進所有對局
//   - Lobby：把連線事件轉成佇列與對局操作
//   - NatsGateway：經由內嵌 NATS 的玩家主題推送事件
//   - WebSocketHub：每個連線訂閱自己的主題並轉發給客戶端
//
// # 協議
//
// 客戶端送出 {"type": ..., "data": ...}，伺服器推送 {"event": ..., "data": ...}。
//
//	{"type":"join_queue","data":{"name":"alice","mode":"1v1"}}
//	{"type":"player_move","data":{"x":120,"y":80}}
//	{"type":"player_click","data":{"x":130,"y":95}}
//
// # 配置
//
// 載入順序為預設值、YAML 檔、ARENA_* 環境變數、命令行參數：
//   - -config：YAML 配置檔
//   - -port：服務監聽端口（預設 8080）
//   - -log-level：日誌級別（debug/info/warn/error）
//   - -log-format：日誌格式（text/json）
//
// # 端點
//
//   - GET /ws：WebSocket 連線
//   - GET /health：健康檢查
//   - GET /stats：對局、佇列、連線統計
//   - GET /api/v1/sessions：對局列表
//   - GET /api/v1/sessions/{session_id}：對局快照
//   - GET /api/v1/queue：各模式等待人數
package main
