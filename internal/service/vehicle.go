package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/langchou/trackgazer/internal/api/tracking"
	"github.com/langchou/trackgazer/internal/config"
	"github.com/langchou/trackgazer/internal/models"
	"github.com/langchou/trackgazer/internal/repository"
	"github.com/langchou/trackgazer/internal/session"
)

// 配置存储键
const (
	keyVehicles        = "vehicles_json"
	keySelectedVehicle = "selected_vehicle_id"
	keyHomeLatitude    = "home_latitude"
	keyHomeLongitude   = "home_longitude"
	keyHomeName        = "home_name"
	keyAlertEnabled    = "proximity_alert_enabled"
	keyAlertDistance   = "proximity_alert_distance"
	keyAlertSound      = "alert_sound"
	keyAlertDuration   = "alert_duration"
	keyAlertVibration  = "alert_vibration_enabled"
	keyRefreshInterval = "refresh_interval"
)

// 设置默认值
const (
	defaultAlertDistanceKm = 1.0
	defaultAlertDuration   = 5
	defaultRefreshInterval = 30
)

// VehicleService 车辆服务
// 负责会话引导、失败重试和车辆/设置的增删改查
type VehicleService struct {
	cfg     *config.Config
	logger  *zap.Logger
	client  *tracking.Client
	session *session.Store
	store   repository.Store

	// 串行化车辆集合的读-改-写，避免用户操作和轮询竞争丢更新
	mu sync.Mutex
}

// NewVehicleService 创建车辆服务
func NewVehicleService(
	cfg *config.Config,
	logger *zap.Logger,
	client *tracking.Client,
	sessionStore *session.Store,
	store repository.Store,
) *VehicleService {
	return &VehicleService{
		cfg:     cfg,
		logger:  logger,
		client:  client,
		session: sessionStore,
		store:   store,
	}
}

// GetVehicleStatus 获取车辆状态，必要时引导会话
// 会话静默过期时后端要么回 401/403，要么回格式正确的空载荷；
// 清会话重试一个周期即可重新建立，最多重试一次，绝不无限循环
func (s *VehicleService) GetVehicleStatus(ctx context.Context, cfg models.VehicleConfig) (*tracking.VehicleStatus, error) {
	return s.fetchStatus(ctx, cfg, 0)
}

func (s *VehicleService) fetchStatus(ctx context.Context, cfg models.VehicleConfig, retryCount int) (*tracking.VehicleStatus, error) {
	cookies, err := s.session.Cookies(ctx)
	if err != nil {
		return nil, fmt.Errorf("load session cookies: %w", err)
	}
	if cookies == "" {
		if err := s.client.InitializeSession(ctx); err != nil {
			return nil, fmt.Errorf("session init failed: %w", err)
		}
	}

	status, err := s.client.FetchStatus(ctx, cfg)
	if err == nil {
		return status, nil
	}

	var httpErr *tracking.HTTPError
	var parseErr *tracking.ParseError
	switch {
	case errors.As(err, &httpErr) && httpErr.IsAuthError():
		if retryCount < 1 {
			return s.retryWithFreshSession(ctx, cfg, retryCount)
		}
		return nil, fmt.Errorf("session expired: %w", err)

	case errors.Is(err, tracking.ErrNoData):
		if retryCount < 1 {
			return s.retryWithFreshSession(ctx, cfg, retryCount)
		}
		return nil, errors.New("no vehicle data found, check vehicle configuration")

	case errors.As(err, &parseErr) && retryCount < 1:
		// 过期会话可能返回垃圾文本导致解码失败，同样按会话失效处理
		return s.retryWithFreshSession(ctx, cfg, retryCount)

	default:
		return nil, err
	}
}

func (s *VehicleService) retryWithFreshSession(ctx context.Context, cfg models.VehicleConfig, retryCount int) (*tracking.VehicleStatus, error) {
	s.logger.Info("Clearing session and retrying status fetch",
		zap.String("vehicle_id", cfg.ID),
		zap.Int("retry", retryCount+1))

	if err := s.session.Clear(ctx); err != nil {
		return nil, fmt.Errorf("clear session: %w", err)
	}
	return s.fetchStatus(ctx, cfg, retryCount+1)
}

// defaultVehicle 内置默认车辆
func (s *VehicleService) defaultVehicle() models.VehicleConfig {
	return models.VehicleConfig{
		ID:          models.DefaultVehicleID,
		ImeiNo:      s.cfg.DefaultVehicleIMEI,
		VehicleType: s.cfg.DefaultVehicleType,
		VehicleNo:   s.cfg.DefaultVehicleNo,
		DisplayName: s.cfg.DefaultVehicleName,
	}
}

// Vehicles 车辆列表；集合永不为空，损坏或缺失时回落到内置默认项
func (s *VehicleService) Vehicles(ctx context.Context) ([]models.VehicleConfig, error) {
	raw, ok, err := s.store.Get(ctx, keyVehicles)
	if err != nil {
		return nil, fmt.Errorf("load vehicles: %w", err)
	}
	if !ok || raw == "" {
		return []models.VehicleConfig{s.defaultVehicle()}, nil
	}

	var vehicles []models.VehicleConfig
	if err := json.Unmarshal([]byte(raw), &vehicles); err != nil {
		s.logger.Warn("Stored vehicle list is corrupt, falling back to default", zap.Error(err))
		return []models.VehicleConfig{s.defaultVehicle()}, nil
	}
	if len(vehicles) == 0 {
		return []models.VehicleConfig{s.defaultVehicle()}, nil
	}
	return vehicles, nil
}

// SelectedVehicle 当前选中车辆；选中项丢失时回落到列表第一项
func (s *VehicleService) SelectedVehicle(ctx context.Context) (models.VehicleConfig, error) {
	vehicles, err := s.Vehicles(ctx)
	if err != nil {
		return models.VehicleConfig{}, err
	}

	selectedID, ok, err := s.store.Get(ctx, keySelectedVehicle)
	if err != nil {
		return models.VehicleConfig{}, fmt.Errorf("load selected vehicle: %w", err)
	}
	if !ok {
		selectedID = models.DefaultVehicleID
	}

	for _, v := range vehicles {
		if v.ID == selectedID {
			return v, nil
		}
	}
	return vehicles[0], nil
}

// AddVehicle 添加车辆；ID 为空时自动生成
func (s *VehicleService) AddVehicle(ctx context.Context, vehicle models.VehicleConfig) (models.VehicleConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if vehicle.ID == "" {
		vehicle.ID = uuid.NewString()
	}

	vehicles, err := s.Vehicles(ctx)
	if err != nil {
		return models.VehicleConfig{}, err
	}
	vehicles = append(vehicles, vehicle)

	if err := s.saveVehicles(ctx, vehicles); err != nil {
		return models.VehicleConfig{}, err
	}
	return vehicle, nil
}

// UpdateVehicle 按 ID 更新车辆
func (s *VehicleService) UpdateVehicle(ctx context.Context, vehicle models.VehicleConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vehicles, err := s.Vehicles(ctx)
	if err != nil {
		return err
	}

	for i := range vehicles {
		if vehicles[i].ID == vehicle.ID {
			vehicles[i] = vehicle
			return s.saveVehicles(ctx, vehicles)
		}
	}
	return fmt.Errorf("vehicle %s not found", vehicle.ID)
}

// DeleteVehicle 删除车辆
// 删掉最后一辆时补回内置默认项，集合永不为空；
// 删的是当前选中车辆时改选剩余的第一辆
func (s *VehicleService) DeleteVehicle(ctx context.Context, vehicleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vehicles, err := s.Vehicles(ctx)
	if err != nil {
		return err
	}

	remaining := vehicles[:0]
	for _, v := range vehicles {
		if v.ID != vehicleID {
			remaining = append(remaining, v)
		}
	}
	if len(remaining) == 0 {
		remaining = append(remaining, s.defaultVehicle())
	}

	if err := s.saveVehicles(ctx, remaining); err != nil {
		return err
	}

	selectedID, ok, err := s.store.Get(ctx, keySelectedVehicle)
	if err != nil {
		return fmt.Errorf("load selected vehicle: %w", err)
	}
	if !ok {
		selectedID = models.DefaultVehicleID
	}
	if selectedID == vehicleID {
		return s.selectVehicleLocked(ctx, remaining[0].ID)
	}
	return nil
}

// SelectVehicle 切换选中车辆
// 后端会话绑定之前活跃的设备上下文，切换前先清会话
func (s *VehicleService) SelectVehicle(ctx context.Context, vehicleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vehicles, err := s.Vehicles(ctx)
	if err != nil {
		return err
	}
	found := false
	for _, v := range vehicles {
		if v.ID == vehicleID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("vehicle %s not found", vehicleID)
	}

	return s.selectVehicleLocked(ctx, vehicleID)
}

func (s *VehicleService) selectVehicleLocked(ctx context.Context, vehicleID string) error {
	if err := s.session.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	if err := s.store.Set(ctx, keySelectedVehicle, vehicleID); err != nil {
		return fmt.Errorf("save selected vehicle: %w", err)
	}
	return nil
}

func (s *VehicleService) saveVehicles(ctx context.Context, vehicles []models.VehicleConfig) error {
	data, err := json.Marshal(vehicles)
	if err != nil {
		return fmt.Errorf("marshal vehicles: %w", err)
	}
	if err := s.store.Set(ctx, keyVehicles, string(data)); err != nil {
		return fmt.Errorf("save vehicles: %w", err)
	}
	return nil
}

// HomeLocation 家位置
func (s *VehicleService) HomeLocation(ctx context.Context) (models.HomeLocation, error) {
	home := models.HomeLocation{
		Latitude:  s.cfg.HomeLatitude,
		Longitude: s.cfg.HomeLongitude,
		Name:      s.cfg.HomeName,
	}

	if v, ok, err := s.store.Get(ctx, keyHomeLatitude); err != nil {
		return home, fmt.Errorf("load home latitude: %w", err)
	} else if ok {
		home.Latitude = parseFloatOr(v, home.Latitude)
	}
	if v, ok, err := s.store.Get(ctx, keyHomeLongitude); err != nil {
		return home, fmt.Errorf("load home longitude: %w", err)
	} else if ok {
		home.Longitude = parseFloatOr(v, home.Longitude)
	}
	if v, ok, err := s.store.Get(ctx, keyHomeName); err != nil {
		return home, fmt.Errorf("load home name: %w", err)
	} else if ok {
		home.Name = v
	}
	return home, nil
}

// SaveHomeLocation 保存家位置
func (s *VehicleService) SaveHomeLocation(ctx context.Context, home models.HomeLocation) error {
	if err := s.store.Set(ctx, keyHomeLatitude, strconv.FormatFloat(home.Latitude, 'f', -1, 64)); err != nil {
		return fmt.Errorf("save home latitude: %w", err)
	}
	if err := s.store.Set(ctx, keyHomeLongitude, strconv.FormatFloat(home.Longitude, 'f', -1, 64)); err != nil {
		return fmt.Errorf("save home longitude: %w", err)
	}
	if err := s.store.Set(ctx, keyHomeName, home.Name); err != nil {
		return fmt.Errorf("save home name: %w", err)
	}
	return nil
}

// AlertSettings 接近提醒设置
func (s *VehicleService) AlertSettings(ctx context.Context) (models.AlertSettings, error) {
	settings := models.AlertSettings{
		Enabled:     true,
		DistanceKm:  defaultAlertDistanceKm,
		Sound:       "",
		DurationSec: defaultAlertDuration,
		Vibration:   true,
	}

	if v, ok, err := s.store.Get(ctx, keyAlertEnabled); err != nil {
		return settings, fmt.Errorf("load alert enabled: %w", err)
	} else if ok {
		settings.Enabled = parseBoolOr(v, settings.Enabled)
	}
	if v, ok, err := s.store.Get(ctx, keyAlertDistance); err != nil {
		return settings, fmt.Errorf("load alert distance: %w", err)
	} else if ok {
		settings.DistanceKm = parseFloatOr(v, settings.DistanceKm)
	}
	if v, ok, err := s.store.Get(ctx, keyAlertSound); err != nil {
		return settings, fmt.Errorf("load alert sound: %w", err)
	} else if ok {
		settings.Sound = v
	}
	if v, ok, err := s.store.Get(ctx, keyAlertDuration); err != nil {
		return settings, fmt.Errorf("load alert duration: %w", err)
	} else if ok {
		settings.DurationSec = parseIntOr(v, settings.DurationSec)
	}
	if v, ok, err := s.store.Get(ctx, keyAlertVibration); err != nil {
		return settings, fmt.Errorf("load alert vibration: %w", err)
	} else if ok {
		settings.Vibration = parseBoolOr(v, settings.Vibration)
	}
	return settings, nil
}

// SaveAlertSettings 保存接近提醒设置
func (s *VehicleService) SaveAlertSettings(ctx context.Context, settings models.AlertSettings) error {
	if err := s.store.Set(ctx, keyAlertEnabled, strconv.FormatBool(settings.Enabled)); err != nil {
		return fmt.Errorf("save alert enabled: %w", err)
	}
	if err := s.store.Set(ctx, keyAlertDistance, strconv.FormatFloat(settings.DistanceKm, 'f', -1, 64)); err != nil {
		return fmt.Errorf("save alert distance: %w", err)
	}
	if err := s.store.Set(ctx, keyAlertSound, settings.Sound); err != nil {
		return fmt.Errorf("save alert sound: %w", err)
	}
	if err := s.store.Set(ctx, keyAlertDuration, strconv.Itoa(settings.DurationSec)); err != nil {
		return fmt.Errorf("save alert duration: %w", err)
	}
	if err := s.store.Set(ctx, keyAlertVibration, strconv.FormatBool(settings.Vibration)); err != nil {
		return fmt.Errorf("save alert vibration: %w", err)
	}
	return nil
}

// RefreshInterval 自动刷新间隔（秒）；0 表示禁用自动刷新
func (s *VehicleService) RefreshInterval(ctx context.Context) (int, error) {
	v, ok, err := s.store.Get(ctx, keyRefreshInterval)
	if err != nil {
		return defaultRefreshInterval, fmt.Errorf("load refresh interval: %w", err)
	}
	if !ok {
		return defaultRefreshInterval, nil
	}
	return parseIntOr(v, defaultRefreshInterval), nil
}

// SetRefreshInterval 设置自动刷新间隔
func (s *VehicleService) SetRefreshInterval(ctx context.Context, seconds int) error {
	if err := s.store.Set(ctx, keyRefreshInterval, strconv.Itoa(seconds)); err != nil {
		return fmt.Errorf("save refresh interval: %w", err)
	}
	return nil
}

func parseFloatOr(v string, fallback float64) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseIntOr(v string, fallback int) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func parseBoolOr(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
