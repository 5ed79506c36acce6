package v1

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes регистрирует все маршруты API v1
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	// Health-check доступен без ключа
	api.GET("/system/health", h.healthCheck)

	protected := api.Group("")
	if len(h.cfg.APIKeys) > 0 {
		protected.Use(APIKeyAuthMiddleware(h.cfg, h.logger))
	}

	incidents := protected.Group("/incidents")
	{
		incidents.POST("", h.createIncident)
		incidents.GET("", h.listIncidents)
		incidents.GET("/:id", h.getIncident)
		incidents.PUT("/:id", h.updateIncident)
		incidents.DELETE("/:id", h.deleteIncident)
		incidents.GET("/:id/audit", h.getAuditTrail)

		incidents.POST("/:id/resources", h.createResource)
		incidents.GET("/:id/resources/nearby", h.findNearbyResources)

		incidents.GET("/:id/social-media", h.getSocialReports)
		incidents.GET("/:id/official-updates", h.getOfficialUpdates)
		incidents.GET("/:id/situation", h.getSituationReport)
	}

	protected.POST("/geocode", h.geocode)

	// Подписка на события в реальном времени
	protected.GET("/ws", h.realtime)
}
