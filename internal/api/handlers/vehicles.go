package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/trackgazer/internal/models"
)

type vehicleRequest struct {
	ImeiNo      string `json:"imeiNo"`
	VehicleType string `json:"vehicleType"`
	VehicleNo   string `json:"vehicleNo"`
	DisplayName string `json:"displayName"`
}

// ListVehicles 获取车辆列表和当前选中项
func (h *Handler) ListVehicles(c *gin.Context) {
	vehicles, err := h.svc.Vehicles(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list vehicles", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list vehicles"})
		return
	}

	selected, err := h.svc.SelectedVehicle(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to load selected vehicle", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load selected vehicle"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": vehicles, "selected_id": selected.ID})
}

// AddVehicle 添加车辆
func (h *Handler) AddVehicle(c *gin.Context) {
	var req vehicleRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if strings.TrimSpace(req.ImeiNo) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "imeiNo is required"})
		return
	}

	vehicle, err := h.svc.AddVehicle(c.Request.Context(), models.VehicleConfig{
		ImeiNo:      req.ImeiNo,
		VehicleType: req.VehicleType,
		VehicleNo:   req.VehicleNo,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		h.logger.Error("Failed to add vehicle", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add vehicle"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": vehicle})
}

// UpdateVehicle 更新车辆
func (h *Handler) UpdateVehicle(c *gin.Context) {
	var req vehicleRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if strings.TrimSpace(req.ImeiNo) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "imeiNo is required"})
		return
	}

	vehicle := models.VehicleConfig{
		ID:          c.Param("id"),
		ImeiNo:      req.ImeiNo,
		VehicleType: req.VehicleType,
		VehicleNo:   req.VehicleNo,
		DisplayName: req.DisplayName,
	}
	if err := h.svc.UpdateVehicle(c.Request.Context(), vehicle); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": vehicle})
}

// DeleteVehicle 删除车辆
func (h *Handler) DeleteVehicle(c *gin.Context) {
	if err := h.svc.DeleteVehicle(c.Request.Context(), c.Param("id")); err != nil {
		h.logger.Error("Failed to delete vehicle", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete vehicle"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SelectVehicle 切换选中车辆
func (h *Handler) SelectVehicle(c *gin.Context) {
	if err := h.svc.SelectVehicle(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	h.poller.OnVehicleSwitched()
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
