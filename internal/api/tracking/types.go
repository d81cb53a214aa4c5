package tracking

import (
	"strconv"
	"strings"
)

// statusEnvelope 状态接口的响应包装
// 规范化后的格式: {"root": [[ <status-object-or-absent> ]]}
type statusEnvelope struct {
	Root [][]VehicleStatus `json:"root"`
}

func (e *statusEnvelope) vehicle() *VehicleStatus {
	if len(e.Root) == 0 || len(e.Root[0]) == 0 {
		return nil
	}
	return &e.Root[0][0]
}

// DriverInfo 司机信息
type DriverInfo struct {
	Name     string `json:"name"`
	MobileNo string `json:"mobile_no"`
}

// VehicleStatus 单次轮询解码出的车辆状态快照
// 数字字段后端一律以文本下发，解析统一走防御性访问器
type VehicleStatus struct {
	Status               string     `json:"sts"`
	VehicleID            string     `json:"vehicle_id"`
	ImeiNo               string     `json:"imeino"`
	VehicleNo            string     `json:"vehicle_no"`
	VehicleName          string     `json:"vehicle_name"`
	VehicleType          string     `json:"vehicle_type"`
	SpeedUnit            string     `json:"speed_unit"`
	Driver               DriverInfo `json:"driver_json"`
	Latitude             string     `json:"latitude"`
	Longitude            string     `json:"longitude"`
	Angle                string     `json:"angle"`
	DataInsertedTime     string     `json:"data_inserted_time"`
	DataInsertedTimeMili string     `json:"data_inserted_time_mili"`
	Location             string     `json:"location"`
	Speed                string     `json:"speed"`
	Since                string     `json:"since"`
	ImageExist           string     `json:"image_exist"`
	ImagePath            string     `json:"image_path"`
}

// LatitudeFloat 纬度；解析失败返回 0
func (s *VehicleStatus) LatitudeFloat() float64 {
	return parseFloat(s.Latitude)
}

// LongitudeFloat 经度；解析失败返回 0
func (s *VehicleStatus) LongitudeFloat() float64 {
	return parseFloat(s.Longitude)
}

// AngleFloat 航向角；解析失败返回 0
func (s *VehicleStatus) AngleFloat() float64 {
	return parseFloat(s.Angle)
}

// SpeedInt 速度；解析失败返回 0
func (s *VehicleStatus) SpeedInt() int {
	v, err := strconv.Atoi(strings.TrimSpace(s.Speed))
	if err != nil {
		return 0
	}
	return v
}

func (s *VehicleStatus) IsRunning() bool {
	return strings.EqualFold(s.Status, "Running")
}

func (s *VehicleStatus) IsStopped() bool {
	return strings.EqualFold(s.Status, "Stopped")
}

func (s *VehicleStatus) IsIdle() bool {
	return strings.EqualFold(s.Status, "Idle")
}

func parseFloat(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}
