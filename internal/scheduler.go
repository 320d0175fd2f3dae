package internal

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Ticker 由排程器定期呼叫
type Ticker interface {
	Tick(context.Context) error
}

// Scheduler 全域固定頻率排程器
//
// 單一 goroutine 依序呼叫各 Ticker，前一次 Tick 未完成時不會開始下一次；
// 落後時 time.Ticker 會丟棄多餘的觸發。
type Scheduler struct {
	interval time.Duration
	tickers  []Ticker
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler 創建排程器
func NewScheduler(interval time.Duration, logger *slog.Logger, tickers ...Ticker) *Scheduler {
	return &Scheduler{
		interval: interval,
		tickers:  tickers,
		logger:   logger,
	}
}

// Start 在背景啟動排程
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Run(ctx)
	}()
}

// Run 執行排程直到 ctx 結束
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("排程器已啟動", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick 呼叫所有 Ticker 一次，錯誤只記錄不中斷
func (s *Scheduler) Tick(ctx context.Context) {
	for _, t := range s.tickers {
		if err := t.Tick(ctx); err != nil {
			s.logger.Error("排程執行失敗", "error", err)
		}
	}
}

// Stop 停止排程並等待目前的 Tick 完成
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("排程器已停止")
}
