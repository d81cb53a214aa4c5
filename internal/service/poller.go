package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/trackgazer/internal/alert"
	"github.com/langchou/trackgazer/internal/geo"
	"github.com/langchou/trackgazer/internal/state"
)

// Poller 轮询/提醒引擎
// 单逻辑轮询循环：同一时刻最多一次在途刷新，定时 tick 在刷新进行中
// 到达时直接被跳过，绝不并发执行
type Poller struct {
	logger  *zap.Logger
	svc     *VehicleService
	tracker *state.Tracker
	player  *alert.Player

	mu          sync.RWMutex
	running     bool
	stopCh      chan struct{}
	refreshCh   chan struct{}
	rearmCh     chan struct{}
	wg          sync.WaitGroup
	subscribers []chan state.TrackerState
}

// NewPoller 创建轮询引擎
func NewPoller(logger *zap.Logger, svc *VehicleService, tracker *state.Tracker, player *alert.Player) *Poller {
	p := &Poller{
		logger:    logger,
		svc:       svc,
		tracker:   tracker,
		player:    player,
		refreshCh: make(chan struct{}, 1),
		rearmCh:   make(chan struct{}, 1),
	}
	player.SetOnChange(func(playing bool) {
		p.tracker.SetAlertPlaying(playing)
		p.publish()
	})
	return p
}

// Start 启动轮询循环
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		p.logger.Info("Poller already running, skipping start")
		return nil
	}
	p.stopCh = make(chan struct{})
	p.running = true
	p.mu.Unlock()

	if err := p.tracker.Start(); err != nil {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		return err
	}

	p.wg.Add(1)
	go p.loop(ctx)

	p.logger.Info("Poller started")
	return nil
}

// Stop 停止轮询循环
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()

	p.player.Stop()
	if err := p.tracker.Stop(); err != nil {
		p.logger.Warn("Failed to stop tracker", zap.Error(err))
	}
	p.logger.Info("Poller stopped")
}

// Refresh 手动触发一次刷新；已有刷新排队时为空操作
func (p *Poller) Refresh() {
	select {
	case p.refreshCh <- struct{}{}:
	default:
	}
}

// Rearm 刷新间隔变更后重新装配定时器
// 循环会先取消当前定时器再按新间隔装配；间隔 0 表示不装配
func (p *Poller) Rearm() {
	select {
	case p.rearmCh <- struct{}{}:
	default:
	}
}

// StopAlert 手动停止提醒播放；幂等
func (p *Poller) StopAlert() {
	p.player.Stop()
}

// OnVehicleSwitched 车辆切换后复位提醒锁存并立即刷新
// 新上下文不应继承旧车辆的"已提醒"标志
func (p *Poller) OnVehicleSwitched() {
	p.player.Stop()
	p.tracker.LeaveRange()
	p.Refresh()
}

// OnHomeChanged 家位置变更后用上次快照重算距离并复位锁存
func (p *Poller) OnHomeChanged(ctx context.Context) {
	p.player.Stop()
	p.tracker.LeaveRange()

	snapshot := p.tracker.Snapshot()
	if snapshot.Status == nil {
		p.publish()
		return
	}

	home, err := p.svc.HomeLocation(ctx)
	if err != nil {
		p.logger.Error("Failed to load home location", zap.Error(err))
		return
	}

	distance := geo.Distance(
		snapshot.Status.LatitudeFloat(), snapshot.Status.LongitudeFloat(),
		home.Latitude, home.Longitude,
	)
	p.tracker.SetDistance(distance)
	p.evaluateProximity(ctx, distance)
	p.publish()
}

// Subscribe 订阅状态更新
func (p *Poller) Subscribe() <-chan state.TrackerState {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan state.TrackerState, 10)
	p.subscribers = append(p.subscribers, ch)
	return ch
}

// loop 轮询循环
// 每轮重新读取刷新间隔并重建定时器，保证间隔变更先取消旧定时器再装配
func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	// 启动时立即执行一次
	p.poll(ctx)

	for {
		interval, err := p.svc.RefreshInterval(ctx)
		if err != nil {
			p.logger.Error("Failed to load refresh interval", zap.Error(err))
			interval = defaultRefreshInterval
		}

		var ticker *time.Ticker
		var tickCh <-chan time.Time
		if interval > 0 {
			ticker = time.NewTicker(time.Duration(interval) * time.Second)
			tickCh = ticker.C
		}

		select {
		case <-p.stopCh:
			if ticker != nil {
				ticker.Stop()
			}
			return
		case <-ctx.Done():
			if ticker != nil {
				ticker.Stop()
			}
			return
		case <-p.rearmCh:
			// 下一轮按新间隔重建定时器
		case <-p.refreshCh:
			p.poll(ctx)
		case <-tickCh:
			p.poll(ctx)
		}

		if ticker != nil {
			ticker.Stop()
		}
	}
}

// poll 执行一次刷新
func (p *Poller) poll(ctx context.Context) {
	cfg, err := p.svc.SelectedVehicle(ctx)
	if err != nil {
		p.logger.Error("Failed to load selected vehicle", zap.Error(err))
		return
	}

	p.tracker.SetLoading(true)
	p.publish()

	status, fetchErr := p.svc.GetVehicleStatus(ctx, cfg)

	// 刷新期间用户可能已切换车辆，过期结果直接丢弃
	current, err := p.svc.SelectedVehicle(ctx)
	if err == nil && current.ID != cfg.ID {
		p.logger.Debug("Discarding stale poll result",
			zap.String("fetched_for", cfg.ID),
			zap.String("selected", current.ID))
		p.tracker.SetLoading(false)
		p.publish()
		return
	}

	if fetchErr != nil {
		// 失败的轮询保留上一次的状态数据，下一个 tick 照常调度
		p.logger.Error("Poll failed", zap.String("vehicle_id", cfg.ID), zap.Error(fetchErr))
		p.tracker.SetError(fetchErr.Error())
		p.publish()
		return
	}

	home, err := p.svc.HomeLocation(ctx)
	if err != nil {
		p.logger.Error("Failed to load home location", zap.Error(err))
		p.tracker.SetError(err.Error())
		p.publish()
		return
	}

	distance := geo.Distance(
		status.LatitudeFloat(), status.LongitudeFloat(),
		home.Latitude, home.Longitude,
	)

	p.tracker.SetStatus(status, distance)
	p.evaluateProximity(ctx, distance)
	p.publish()

	p.logger.Debug("Poll completed",
		zap.String("vehicle_no", status.VehicleNo),
		zap.String("status", status.Status),
		zap.Float64("distance_km", distance))
}

// evaluateProximity 每次成功轮询后的接近判定
func (p *Poller) evaluateProximity(ctx context.Context, distanceKm float64) {
	settings, err := p.svc.AlertSettings(ctx)
	if err != nil {
		p.logger.Error("Failed to load alert settings", zap.Error(err))
		return
	}

	// 禁用时不触发任何提醒，距离再近也一样
	if !settings.Enabled {
		if p.tracker.IsAlertActive() {
			p.tracker.LeaveRange()
			p.player.Stop()
		}
		return
	}

	if distanceKm <= settings.DistanceKm {
		if p.tracker.EnterRange() {
			p.logger.Info("Proximity alert fired",
				zap.Float64("distance_km", distanceKm),
				zap.Float64("threshold_km", settings.DistanceKm))
			p.player.Start(settings)
		}
	} else {
		// 离开范围复位锁存，允许下次接近时再次触发
		p.tracker.LeaveRange()
	}
}

// publish 广播状态快照给订阅者
func (p *Poller) publish() {
	snapshot := p.tracker.Snapshot()

	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ch := range p.subscribers {
		select {
		case ch <- snapshot:
		default:
			// 跳过慢消费者
		}
	}
}
