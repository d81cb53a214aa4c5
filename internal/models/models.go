package models

// DefaultVehicleID 内置默认车辆的固定 ID
const DefaultVehicleID = "default"

// AlertSoundSilent 静音标记（空字符串表示系统默认提示音）
const AlertSoundSilent = "none"

// VehicleConfig 被跟踪车辆的配置
type VehicleConfig struct {
	ID          string `json:"id"`
	ImeiNo      string `json:"imeiNo"`
	VehicleType string `json:"vehicleType"`
	VehicleNo   string `json:"vehicleNo"`
	DisplayName string `json:"displayName"`
}

// HomeLocation 家位置，用于距离计算和接近提醒
type HomeLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name"`
}

// AlertSettings 接近提醒设置
type AlertSettings struct {
	Enabled     bool    `json:"enabled"`
	DistanceKm  float64 `json:"distance_km"`
	Sound       string  `json:"sound"` // 空 = 系统默认，"none" = 静音
	DurationSec int     `json:"duration_sec"`
	Vibration   bool    `json:"vibration"`
}
