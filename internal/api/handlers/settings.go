package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/trackgazer/internal/models"
)

type homeRequest struct {
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
	Name      string `json:"name"`
}

type alertSettingsRequest struct {
	Enabled     bool    `json:"enabled"`
	DistanceKm  float64 `json:"distance_km"`
	Sound       string  `json:"sound"`
	DurationSec int     `json:"duration_sec"`
	Vibration   bool    `json:"vibration"`
}

type intervalRequest struct {
	Seconds int `json:"seconds"`
}

// GetHome 获取家位置
func (h *Handler) GetHome(c *gin.Context) {
	home, err := h.svc.HomeLocation(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to load home location", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load home location"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": home})
}

// SetHome 设置家位置
// 经纬度以字符串提交，非数字输入在这里拦下，不落库
func (h *Handler) SetHome(c *gin.Context) {
	var req homeRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	lat, err := strconv.ParseFloat(req.Latitude, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid latitude"})
		return
	}
	lng, err := strconv.ParseFloat(req.Longitude, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid longitude"})
		return
	}

	home := models.HomeLocation{Latitude: lat, Longitude: lng, Name: req.Name}
	if err := h.svc.SaveHomeLocation(c.Request.Context(), home); err != nil {
		h.logger.Error("Failed to save home location", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save home location"})
		return
	}

	h.poller.OnHomeChanged(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"data": home})
}

// SetHomeFromVehicle 用当前车辆位置作为家位置
func (h *Handler) SetHomeFromVehicle(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	// 请求体可选，有内容才解析
	if c.Request.ContentLength > 0 {
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
	}

	snapshot := h.tracker.Snapshot()
	if snapshot.Status == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "No vehicle position available yet"})
		return
	}

	home := models.HomeLocation{
		Latitude:  snapshot.Status.LatitudeFloat(),
		Longitude: snapshot.Status.LongitudeFloat(),
		Name:      req.Name,
	}
	if err := h.svc.SaveHomeLocation(c.Request.Context(), home); err != nil {
		h.logger.Error("Failed to save home location", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save home location"})
		return
	}

	h.poller.OnHomeChanged(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"data": home})
}

// GetAlertSettings 获取提醒设置
func (h *Handler) GetAlertSettings(c *gin.Context) {
	settings, err := h.svc.AlertSettings(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to load alert settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load alert settings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": settings})
}

// SetAlertSettings 更新提醒设置
func (h *Handler) SetAlertSettings(c *gin.Context) {
	var req alertSettingsRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.DistanceKm <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "distance_km must be positive"})
		return
	}
	if req.DurationSec <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "duration_sec must be positive"})
		return
	}

	settings := models.AlertSettings{
		Enabled:     req.Enabled,
		DistanceKm:  req.DistanceKm,
		Sound:       req.Sound,
		DurationSec: req.DurationSec,
		Vibration:   req.Vibration,
	}
	if err := h.svc.SaveAlertSettings(c.Request.Context(), settings); err != nil {
		h.logger.Error("Failed to save alert settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save alert settings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": settings})
}

// SetRefreshInterval 更新刷新间隔；0 表示关闭自动轮询
func (h *Handler) SetRefreshInterval(c *gin.Context) {
	var req intervalRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.Seconds < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "seconds must not be negative"})
		return
	}

	if err := h.svc.SetRefreshInterval(c.Request.Context(), req.Seconds); err != nil {
		h.logger.Error("Failed to save refresh interval", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save refresh interval"})
		return
	}

	h.poller.Rearm()
	c.JSON(http.StatusOK, gin.H{"seconds": req.Seconds})
}
