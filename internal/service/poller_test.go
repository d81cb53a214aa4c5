package service

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/langchou/trackgazer/internal/alert"
	"github.com/langchou/trackgazer/internal/config"
	"github.com/langchou/trackgazer/internal/models"
	"github.com/langchou/trackgazer/internal/repository"
	"github.com/langchou/trackgazer/internal/session"
	"github.com/langchou/trackgazer/internal/state"
)

type countingNotifier struct {
	mu    sync.Mutex
	plays int
	stops int
}

func (n *countingNotifier) Play(alert.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.plays++
	return nil
}

func (n *countingNotifier) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stops++
	return nil
}

func (n *countingNotifier) playCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.plays
}

func newTestPoller(t *testing.T) (*Poller, *state.Tracker, *countingNotifier, *VehicleService) {
	t.Helper()

	cfg := &config.Config{DefaultVehicleIMEI: "860000000000001", DefaultVehicleType: "Bus"}
	store := repository.NewMemoryStore()
	sessionStore := session.NewStore(store)
	svc := NewVehicleService(cfg, zap.NewNop(), nil, sessionStore, store)

	tracker := state.NewTracker(nil)
	require.NoError(t, tracker.Start())

	notifier := &countingNotifier{}
	player := alert.NewPlayer(zap.NewNop(), notifier)
	poller := NewPoller(zap.NewNop(), svc, tracker, player)
	return poller, tracker, notifier, svc
}

func TestProximityHysteresis(t *testing.T) {
	poller, _, notifier, _ := newTestPoller(t)
	ctx := context.Background()

	// 阈值 1.0 公里（默认值）；序列里两次独立进入范围，各触发一次。
	// 范围内停留和阈值边界抖动不重复触发
	for _, distance := range []float64{2.0, 0.5, 0.5, 1.5, 0.3} {
		poller.evaluateProximity(ctx, distance)
	}

	assert.Equal(t, 2, notifier.playCount())
}

func TestProximityBoundaryInclusive(t *testing.T) {
	poller, tracker, notifier, _ := newTestPoller(t)
	ctx := context.Background()

	// 距离恰好等于阈值算进入范围
	poller.evaluateProximity(ctx, 1.0)
	assert.Equal(t, 1, notifier.playCount())
	assert.True(t, tracker.IsAlertActive())
}

func TestProximityDisabledNeverFires(t *testing.T) {
	poller, tracker, notifier, svc := newTestPoller(t)
	ctx := context.Background()

	require.NoError(t, svc.SaveAlertSettings(ctx, models.AlertSettings{
		Enabled:     false,
		DistanceKm:  1.0,
		DurationSec: 5,
	}))

	poller.evaluateProximity(ctx, 0.1)
	assert.Zero(t, notifier.playCount())
	assert.False(t, tracker.IsAlertActive())
}

func TestProximityDisableWhileActiveResetsLatch(t *testing.T) {
	poller, tracker, notifier, svc := newTestPoller(t)
	ctx := context.Background()

	poller.evaluateProximity(ctx, 0.5)
	require.Equal(t, 1, notifier.playCount())
	require.True(t, tracker.IsAlertActive())

	require.NoError(t, svc.SaveAlertSettings(ctx, models.AlertSettings{
		Enabled:     false,
		DistanceKm:  1.0,
		DurationSec: 5,
	}))

	poller.evaluateProximity(ctx, 0.5)
	assert.False(t, tracker.IsAlertActive())
	assert.Equal(t, 1, notifier.playCount())
}

func TestOnVehicleSwitchedResetsLatch(t *testing.T) {
	poller, tracker, notifier, _ := newTestPoller(t)
	ctx := context.Background()

	poller.evaluateProximity(ctx, 0.5)
	require.True(t, tracker.IsAlertActive())

	poller.OnVehicleSwitched()
	assert.False(t, tracker.IsAlertActive())

	// 新车辆进入范围要能再次触发
	poller.evaluateProximity(ctx, 0.5)
	assert.Equal(t, 2, notifier.playCount())
}

func TestStopAlertDoesNotResetLatch(t *testing.T) {
	poller, tracker, notifier, _ := newTestPoller(t)
	ctx := context.Background()

	poller.evaluateProximity(ctx, 0.5)
	require.True(t, tracker.IsAlertActive())

	// 手动停掉的是播放，不是锁存；车辆还在范围内不应再触发
	poller.StopAlert()
	assert.True(t, tracker.IsAlertActive())

	poller.evaluateProximity(ctx, 0.5)
	assert.Equal(t, 1, notifier.playCount())
}

// newBackendPoller 把轮询引擎接到模拟后端上
func newBackendPoller(t *testing.T, svc *VehicleService) (*Poller, *state.Tracker, *countingNotifier) {
	t.Helper()
	tracker := state.NewTracker(nil)
	notifier := &countingNotifier{}
	player := alert.NewPlayer(zap.NewNop(), notifier)
	return NewPoller(zap.NewNop(), svc, tracker, player), tracker, notifier
}

func TestPollDiscardsStaleResultAfterVehicleSwitch(t *testing.T) {
	ctx := context.Background()

	var svc *VehicleService
	var added models.VehicleConfig
	srv, _, statuses := trackingBackend(func(w http.ResponseWriter, r *http.Request) {
		// 响应返回前用户已切走车辆
		require.NoError(t, svc.SelectVehicle(ctx, added.ID))
		w.Write([]byte(goodStatusBody))
	})
	defer srv.Close()

	svc, _ = newTestService(srv.URL)
	var err error
	added, err = svc.AddVehicle(ctx, models.VehicleConfig{ImeiNo: "860000000000002"})
	require.NoError(t, err)

	poller, tracker, notifier := newBackendPoller(t, svc)
	poller.poll(ctx)

	// 过期结果整体丢弃：不进状态、不算距离、不判提醒
	snapshot := tracker.Snapshot()
	assert.Nil(t, snapshot.Status)
	assert.False(t, snapshot.IsLoading)
	assert.Empty(t, snapshot.Error)
	assert.Equal(t, int32(1), statuses.Load())
	assert.Zero(t, notifier.playCount())

	// 针对新选中车辆的下一次刷新正常落地
	poller.poll(ctx)
	snapshot = tracker.Snapshot()
	require.NotNil(t, snapshot.Status)
	assert.Equal(t, "MP09FA6814", snapshot.Status.VehicleNo)
}

func TestLoopIntervalZeroDisablesTimer(t *testing.T) {
	ctx := context.Background()
	srv, _, statuses := trackingBackend(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(goodStatusBody))
	})
	defer srv.Close()

	svc, _ := newTestService(srv.URL)
	require.NoError(t, svc.SetRefreshInterval(ctx, 0))

	poller, _, _ := newBackendPoller(t, svc)
	require.NoError(t, poller.Start(ctx))
	defer poller.Stop()

	// 启动时仍立即刷新一次
	require.Eventually(t, func() bool { return statuses.Load() == 1 }, time.Second, 10*time.Millisecond)

	// 间隔 0 不装配定时器，之后不再有自动刷新
	assert.Never(t, func() bool { return statuses.Load() > 1 }, 1200*time.Millisecond, 50*time.Millisecond)
}

func TestRearmAppliesNewInterval(t *testing.T) {
	ctx := context.Background()
	srv, _, statuses := trackingBackend(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(goodStatusBody))
	})
	defer srv.Close()

	svc, _ := newTestService(srv.URL)
	require.NoError(t, svc.SetRefreshInterval(ctx, 0))

	poller, _, _ := newBackendPoller(t, svc)
	require.NoError(t, poller.Start(ctx))
	defer poller.Stop()

	require.Eventually(t, func() bool { return statuses.Load() == 1 }, time.Second, 10*time.Millisecond)

	// 重新装配后按新间隔自动刷新
	require.NoError(t, svc.SetRefreshInterval(ctx, 1))
	poller.Rearm()

	require.Eventually(t, func() bool { return statuses.Load() >= 2 }, 3*time.Second, 50*time.Millisecond)
}

func TestRefreshTriggersImmediatePoll(t *testing.T) {
	ctx := context.Background()
	srv, _, statuses := trackingBackend(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(goodStatusBody))
	})
	defer srv.Close()

	svc, _ := newTestService(srv.URL)
	require.NoError(t, svc.SetRefreshInterval(ctx, 0))

	poller, _, _ := newBackendPoller(t, svc)
	require.NoError(t, poller.Start(ctx))
	defer poller.Stop()

	require.Eventually(t, func() bool { return statuses.Load() == 1 }, time.Second, 10*time.Millisecond)

	poller.Refresh()
	require.Eventually(t, func() bool { return statuses.Load() == 2 }, time.Second, 10*time.Millisecond)
}

func TestSubscribePublishesSnapshots(t *testing.T) {
	poller, _, _, _ := newTestPoller(t)
	ctx := context.Background()

	ch := poller.Subscribe()
	poller.evaluateProximity(ctx, 0.5)

	select {
	case snapshot := <-ch:
		assert.Equal(t, state.StateAlertActive, snapshot.CurrentState)
		assert.True(t, snapshot.AlertPlaying)
	default:
		t.Fatal("expected a published snapshot")
	}
}
