package internal

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

// Target 會隨時間縮小的目標
type Target struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
	Color  string  `json:"color"`
	Points int     `json:"points"`
}

// Contains 點擊是否落在目標內（距離嚴格小於半徑）
func (t Target) Contains(x, y float64) bool {
	dx := x - t.X
	dy := y - t.Y
	return dx*dx+dy*dy < t.Radius*t.Radius
}

// RandomColor 產生 #RRGGBB 顏色
func RandomColor(rng *rand.Rand) string {
	return fmt.Sprintf("#%06X", rng.IntN(1<<24))
}

// TargetFactory 產生目標、顏色與出生點
//
// 對局建立與模擬 tick 可能並發呼叫，隨機源以互斥鎖保護。
type TargetFactory struct {
	arena ArenaConfig
	mu    sync.Mutex
	rng   *rand.Rand
}

// NewTargetFactory 創建目標工廠，rng 為 nil 時使用隨機種子
func NewTargetFactory(arena ArenaConfig, rng *rand.Rand) *TargetFactory {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &TargetFactory{
		arena: arena,
		rng:   rng,
	}
}

// NewTarget 在場地內隨機位置產生新目標，整個圓都在邊界內
func (f *TargetFactory) NewTarget() Target {
	f.mu.Lock()
	defer f.mu.Unlock()

	r := f.arena.TargetRadius
	return Target{
		X:      f.rng.Float64()*(f.arena.Width-r*2) + r,
		Y:      f.rng.Float64()*(f.arena.Height-r*2) + r,
		Radius: r,
		Color:  RandomColor(f.rng),
		Points: f.arena.BasePoints,
	}
}

// NewTargets 產生 n 個目標
func (f *TargetFactory) NewTargets(n int) []Target {
	targets := make([]Target, n)
	for i := range targets {
		targets[i] = f.NewTarget()
	}
	return targets
}

// Color 產生玩家顏色
func (f *TargetFactory) Color() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return RandomColor(f.rng)
}

// SpawnPoint 玩家出生點，不檢查重疊
func (f *TargetFactory) SpawnPoint() (x, y float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	x = f.rng.Float64() * (f.arena.Width - f.arena.PlayerSize)
	y = f.rng.Float64() * (f.arena.Height - f.arena.PlayerSize)
	return x, y
}
