package alert

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/trackgazer/internal/models"
)

const defaultDuration = 5 * time.Second

// Alert 一次提醒的播放参数
type Alert struct {
	Sound    string // 已解析的音效标识；空 = 静音
	Vibrate  bool
	Duration time.Duration
}

// Notifier 提醒播放的外部执行者（声音/震动由平台侧实现）
type Notifier interface {
	Play(a Alert) error
	Stop() error
}

// LogNotifier 默认实现，只打日志
type LogNotifier struct {
	Logger *zap.Logger
}

func (n *LogNotifier) Play(a Alert) error {
	n.Logger.Info("Alert playback started",
		zap.String("sound", a.Sound),
		zap.Bool("vibrate", a.Vibrate),
		zap.Duration("duration", a.Duration))
	return nil
}

func (n *LogNotifier) Stop() error {
	n.Logger.Info("Alert playback stopped")
	return nil
}

// Player 提醒播放控制器
// 启动后按配置时长自动取消；Stop 幂等，无提醒在播时调用是空操作。
// 播放侧的错误只记录不传播，提醒是尽力而为的副作用
type Player struct {
	logger   *zap.Logger
	notifier Notifier

	mu       sync.Mutex
	timer    *time.Timer
	playing  bool
	onChange func(playing bool)
}

// NewPlayer 创建播放控制器
func NewPlayer(logger *zap.Logger, notifier Notifier) *Player {
	return &Player{logger: logger, notifier: notifier}
}

// SetOnChange 设置播放状态变化回调
func (p *Player) SetOnChange(fn func(playing bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = fn
}

// Start 按提醒设置开始播放；已有提醒在播时先停掉旧的
func (p *Player) Start(settings models.AlertSettings) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()

	sound := settings.Sound
	if sound == models.AlertSoundSilent {
		sound = ""
	} else if sound == "" {
		sound = "default"
	}

	duration := time.Duration(settings.DurationSec) * time.Second
	if duration <= 0 {
		duration = defaultDuration
	}

	if err := p.notifier.Play(Alert{Sound: sound, Vibrate: settings.Vibration, Duration: duration}); err != nil {
		p.logger.Warn("Failed to start alert playback", zap.Error(err))
		return
	}

	p.playing = true
	p.timer = time.AfterFunc(duration, p.Stop)
	if p.onChange != nil {
		p.onChange(true)
	}
}

// Stop 停止播放；可重复调用
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// IsPlaying 是否有提醒在播
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *Player) stopLocked() {
	if !p.playing {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if err := p.notifier.Stop(); err != nil {
		p.logger.Warn("Failed to stop alert playback", zap.Error(err))
	}
	p.playing = false
	if p.onChange != nil {
		p.onChange(false)
	}
}
