package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetState 获取当前跟踪器状态
func (h *Handler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.tracker.Snapshot()})
}

// Refresh 手动触发一次刷新
func (h *Handler) Refresh(c *gin.Context) {
	h.poller.Refresh()
	c.JSON(http.StatusAccepted, gin.H{"status": "refreshing"})
}

// StopAlert 手动停止提醒播放
func (h *Handler) StopAlert(c *gin.Context) {
	h.poller.StopAlert()
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
