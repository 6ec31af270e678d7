package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"studiopay/internal/config"
	"studiopay/pkg/middleware"
)

var Module = fx.Module("http.api",
	fx.Provide(
		NewHandler,
		ProvideRouter,
	),
)

// ProvideRouter assembles the gin engine behind the HTTP server.
func ProvideRouter(cfg *config.Config, h *Handler) http.Handler {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Error())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	{
		v1.POST("/projects/:id/complete", h.CompleteProject)
		v1.POST("/projects/:id/unlock", h.UnlockProject)
		v1.GET("/projects/:id/editors/:editorId/breakdown", h.GetBreakdown)

		v1.GET("/editors/:id/wallet", h.GetWallet)
		v1.GET("/editors/:id/audit", h.ListAuditTrail)
		v1.GET("/editors/:id/payout-requests", h.ListPayoutRequests)

		v1.POST("/payout-requests", h.CreatePayoutRequest)
		v1.GET("/payout-requests/:id", h.GetPayoutRequest)
		v1.POST("/payout-requests/:id/approve", h.ApprovePayoutRequest)
		v1.POST("/payout-requests/:id/reject", h.RejectPayoutRequest)
		v1.POST("/payout-requests/:id/paid", h.MarkPayoutRequestPaid)
	}

	return r
}
