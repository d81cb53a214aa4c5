package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/trackgazer/internal/service"
	"github.com/langchou/trackgazer/internal/state"
	"github.com/langchou/trackgazer/pkg/ws"
)

// Handler HTTP 处理器
type Handler struct {
	logger   *zap.Logger
	svc      *service.VehicleService
	poller   *service.Poller
	tracker  *state.Tracker
	wsHub    *ws.Hub
	upgrader websocket.Upgrader
}

// NewHandler 创建处理器
func NewHandler(
	logger *zap.Logger,
	svc *service.VehicleService,
	poller *service.Poller,
	tracker *state.Tracker,
	wsHub *ws.Hub,
) *Handler {
	return &Handler{
		logger:  logger,
		svc:     svc,
		poller:  poller,
		tracker: tracker,
		wsHub:   wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 开发环境允许所有来源
			},
		},
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// API 路由
	api := r.Group("/api")
	{
		// 跟踪器状态
		api.GET("/state", h.GetState)
		api.POST("/refresh", h.Refresh)
		api.POST("/alert/stop", h.StopAlert)

		// 车辆
		api.GET("/vehicles", h.ListVehicles)
		api.POST("/vehicles", h.AddVehicle)
		api.PUT("/vehicles/:id", h.UpdateVehicle)
		api.DELETE("/vehicles/:id", h.DeleteVehicle)
		api.POST("/vehicles/:id/select", h.SelectVehicle)

		// 家位置
		api.GET("/home", h.GetHome)
		api.PUT("/home", h.SetHome)
		api.POST("/home/from-vehicle", h.SetHomeFromVehicle)

		// 设置
		api.GET("/settings/alerts", h.GetAlertSettings)
		api.PUT("/settings/alerts", h.SetAlertSettings)
		api.PUT("/settings/interval", h.SetRefreshInterval)
	}

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// 健康检查
	r.GET("/health", h.HealthCheck)
}

// HandleWebSocket WebSocket 处理
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	client.Register()

	go client.WritePump()
	go client.ReadPump()
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"ws_clients": h.wsHub.ClientCount(),
	})
}
