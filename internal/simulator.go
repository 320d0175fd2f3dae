package internal

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Simulator 驅動所有對局的模擬並推送結果
type Simulator struct {
	registry    *Registry
	broadcaster Broadcaster
	graceDelay  time.Duration
	logger      *slog.Logger
}

// NewSimulator 創建模擬器
func NewSimulator(registry *Registry, broadcaster Broadcaster, graceDelay time.Duration, logger *slog.Logger) *Simulator {
	return &Simulator{
		registry:    registry,
		broadcaster: broadcaster,
		graceDelay:  graceDelay,
		logger:      logger,
	}
}

// Tick 對每個已註冊的對局執行一次模擬
func (sim *Simulator) Tick(ctx context.Context) error {
	sim.registry.ForEachActive(func(s *Session) {
		if ctx.Err() != nil {
			return
		}
		sim.Step(s)
	})
	return nil
}

// Step 模擬單一對局
//
// 任何 panic 都在此攔截，不影響其他對局。
func (sim *Simulator) Step(s *Session) {
	defer func() {
		if r := recover(); r != nil {
			sim.logger.Error("對局模擬發生 panic",
				"session_id", s.ID,
				"error", fmt.Sprint(r))
		}
	}()

	result := s.Tick(sim.registry.Now())

	for _, event := range result.Events {
		if err := broadcast(sim.broadcaster, result.Members, event); err != nil {
			sim.logger.Warn("推送事件失敗",
				"session_id", s.ID,
				"event", event.Type,
				"error", err)
		}
	}

	if result.Ended {
		sim.logger.Info("對局結束",
			"session_id", s.ID,
			"grace_delay", sim.graceDelay)
		sim.registry.ScheduleDestroy(s.ID, sim.graceDelay)
	}
}
