package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/langchou/trackgazer/internal/api/tracking"
)

// 跟踪器状态常量
const (
	StateIdle        = "idle"
	StatePolling     = "polling"
	StateAlertActive = "alert_active"
)

// 事件常量
const (
	EventStart      = "start"
	EventStop       = "stop"
	EventEnterRange = "enter_range"
	EventLeaveRange = "leave_range"
)

// TrackerState 对外只读的跟踪器状态快照
type TrackerState struct {
	CurrentState     string                  `json:"state"`
	Status           *tracking.VehicleStatus `json:"status,omitempty"`
	IsLoading        bool                    `json:"is_loading"`
	Error            string                  `json:"error,omitempty"`
	DistanceToHomeKm *float64                `json:"distance_to_home_km,omitempty"`
	AlertActive      bool                    `json:"alert_active"`
	AlertPlaying     bool                    `json:"alert_playing"`
	LastRefresh      time.Time               `json:"last_refresh"`
}

// Tracker 跟踪器状态机
// alert_active 状态本身就是接近提醒的滞回锁存：
// 进入范围触发一次后停留在 alert_active，离开范围才回到 polling，
// 停在阈值边界上不会反复触发
type Tracker struct {
	mu            sync.RWMutex
	fsm           *fsm.FSM
	state         TrackerState
	onStateChange func(from, to string)
}

// NewTracker 创建状态机
func NewTracker(onStateChange func(from, to string)) *Tracker {
	t := &Tracker{
		onStateChange: onStateChange,
		state: TrackerState{
			CurrentState: StateIdle,
		},
	}

	t.fsm = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: EventStart, Src: []string{StateIdle}, Dst: StatePolling},
			{Name: EventStop, Src: []string{StatePolling, StateAlertActive}, Dst: StateIdle},
			{Name: EventEnterRange, Src: []string{StatePolling}, Dst: StateAlertActive},
			{Name: EventLeaveRange, Src: []string{StateAlertActive}, Dst: StatePolling},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if t.onStateChange != nil && e.Src != e.Dst {
					t.onStateChange(e.Src, e.Dst)
				}
			},
		},
	)

	return t
}

// Current 获取当前状态
func (t *Tracker) Current() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fsm.Current()
}

// Snapshot 获取完整状态快照
func (t *Tracker) Snapshot() TrackerState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	// 返回副本
	snapshot := t.state
	snapshot.CurrentState = t.fsm.Current()
	snapshot.AlertActive = snapshot.CurrentState == StateAlertActive
	return snapshot
}

// Start 启动跟踪
func (t *Tracker) Start() error {
	return t.trigger(EventStart)
}

// Stop 停止跟踪
func (t *Tracker) Stop() error {
	return t.trigger(EventStop)
}

// EnterRange 进入提醒范围；只有真正发生 polling → alert_active
// 转换时返回 true（即提醒应该触发的那一次）
func (t *Tracker) EnterRange() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.fsm.Can(EventEnterRange) {
		return false
	}
	if err := t.fsm.Event(context.Background(), EventEnterRange); err != nil {
		return false
	}
	return true
}

// LeaveRange 离开提醒范围，复位锁存；不在 alert_active 时为空操作
func (t *Tracker) LeaveRange() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.fsm.Can(EventLeaveRange) {
		t.fsm.Event(context.Background(), EventLeaveRange)
	}
}

// IsAlertActive 锁存是否处于置位状态
func (t *Tracker) IsAlertActive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fsm.Current() == StateAlertActive
}

// SetLoading 标记刷新进行中
func (t *Tracker) SetLoading(loading bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.IsLoading = loading
}

// SetError 记录轮询错误；保留上一次的状态数据
func (t *Tracker) SetError(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.IsLoading = false
	t.state.Error = message
}

// SetStatus 记录一次成功轮询的结果
func (t *Tracker) SetStatus(status *tracking.VehicleStatus, distanceKm float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Status = status
	t.state.DistanceToHomeKm = &distanceKm
	t.state.IsLoading = false
	t.state.Error = ""
	t.state.LastRefresh = time.Now()
}

// SetDistance 只更新距离（家位置变更时重算用）
func (t *Tracker) SetDistance(distanceKm float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.DistanceToHomeKm = &distanceKm
}

// SetAlertPlaying 标记提醒音效是否在播放
func (t *Tracker) SetAlertPlaying(playing bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.AlertPlaying = playing
}

func (t *Tracker) trigger(event string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.fsm.Event(context.Background(), event); err != nil {
		return fmt.Errorf("trigger event %s: %w", event, err)
	}
	return nil
}
