package internal

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// ConnectionCounter 提供目前連接數
type ConnectionCounter interface {
	ConnectionCount() int
}

// Handler HTTP 請求處理器
type Handler struct {
	registry    *Registry
	queue       *Queue
	connections ConnectionCounter
	logger      *slog.Logger
}

// NewHandler 創建 HTTP 處理器，connections 可為 nil
func NewHandler(registry *Registry, queue *Queue, connections ConnectionCounter, logger *slog.Logger) *Handler {
	return &Handler{
		registry:    registry,
		queue:       queue,
		connections: connections,
		logger:      logger,
	}
}

// Routes 設定路由
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	wrap := func(handler http.HandlerFunc) http.HandlerFunc {
		return h.recoverer(h.loggerMiddleware(handler))
	}

	mux.HandleFunc("GET /api/v1/sessions", wrap(h.listSessions))
	mux.HandleFunc("GET /api/v1/sessions/{session_id}", wrap(h.getSession))
	mux.HandleFunc("GET /api/v1/queue", wrap(h.queueStatus))

	mux.HandleFunc("GET /health", wrap(h.health))
	mux.HandleFunc("GET /stats", wrap(h.stats))

	return mux
}

// listSessions 列出對局
func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.registry.List()
	h.jsonResponse(w, map[string]any{
		"sessions": sessions,
		"total":    len(sessions),
	}, http.StatusOK)
}

// getSession 對局詳情
func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.registry.Get(r.PathValue("session_id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		h.errorResponse(w, err.Error(), status)
		return
	}

	h.jsonResponse(w, session.Snapshot(h.registry.Now()), http.StatusOK)
}

// queueStatus 各模式等待人數
func (h *Handler) queueStatus(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, map[string]any{
		"waiting": h.queue.Waiting(),
	}, http.StatusOK)
}

// health 健康檢查
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, map[string]any{
		"status": "healthy",
		"time":   time.Now().Unix(),
	}, http.StatusOK)
}

// stats 統計資訊
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats := h.registry.Stats()
	stats["queue_waiting"] = h.queue.Waiting()
	if h.connections != nil {
		stats["connections"] = h.connections.ConnectionCount()
	}
	h.jsonResponse(w, stats, http.StatusOK)
}

// jsonResponse 返回 JSON 響應
func (h *Handler) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("編碼 JSON 失敗", "error", err)
	}
}

// errorResponse 返回錯誤響應
func (h *Handler) errorResponse(w http.ResponseWriter, message string, status int) {
	h.jsonResponse(w, map[string]any{
		"error": message,
	}, status)
}

// loggerMiddleware 日誌中間件
func (h *Handler) loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next(ww, r)

		h.logger.Info("HTTP 請求",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration", time.Since(start))
	}
}

// recoverer panic 恢復中間件
func (h *Handler) recoverer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.logger.Error("處理請求時發生 panic",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path)

				h.errorResponse(w, "內部伺服器錯誤", http.StatusInternalServerError)
			}
		}()

		next(w, r)
	}
}

// responseWriter 包裝 ResponseWriter 以獲取狀態碼
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
