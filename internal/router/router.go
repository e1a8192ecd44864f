package router

import (
	"net/http"

	"meli_erp_v1_202608/internal/controller"
	"meli_erp_v1_202608/internal/middleware"

	"github.com/gin-gonic/gin"
)

// InitRoutes 注册所有路由
func InitRoutes(r *gin.Engine,
	authCtrl *controller.AuthController,
	orderCtl *controller.OrderController,
	invoiceCtl *controller.InvoiceController,
	syncCtl *controller.SyncController) {

	// 健康检查
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		// 后台登录（换 JWT）
		api.POST("/login", authCtrl.IssueToken)

		// oauth 平台授权组（回调来自平台，不能挂 JWT）
		oauth := api.Group("/oauth")
		{
			// GET /api/oauth/login
			oauth.GET("/login", authCtrl.Login)

			// GET /api/oauth/callback
			oauth.GET("/callback", authCtrl.Callback)

			// GET /api/oauth/refresh
			oauth.GET("/refresh",
				middleware.SyncRateLimit(middleware.SyncTypeToken, 0),
				authCtrl.RefreshToken)
		}

		// 业务 API，JWT 保护
		v1 := api.Group("/v1", middleware.JWTAuth())
		{
			// 订单
			orders := v1.Group("/orders")
			{
				orders.GET("", orderCtl.ListOrders)
				orders.GET("/:id", orderCtl.GetOrderDetail)
				orders.GET("/:id/events", orderCtl.ListEvents)
				orders.PUT("/:id/status", orderCtl.SetStatus)
				orders.DELETE("/:id/status/manual", orderCtl.ClearManual)
			}

			// 发票
			invoices := v1.Group("/invoices")
			{
				invoices.POST("/emit", invoiceCtl.Emit)
				invoices.GET("/:ref", invoiceCtl.Lookup)
			}

			// 同步/对账（手动触发有冷却，防止打爆平台配额）
			sync := v1.Group("/sync")
			{
				sync.POST("/orders",
					middleware.GlobalSyncRateLimit(middleware.SyncTypeOrder, 0),
					syncCtl.SyncAllOrders)
				sync.POST("/orders/:seller_id",
					middleware.SyncRateLimit(middleware.SyncTypeOrder, 0),
					syncCtl.SyncOrders)
				sync.POST("/reconcile",
					middleware.GlobalSyncRateLimit(middleware.SyncTypeReconcile, 0),
					syncCtl.ReconcileBatch)
				sync.POST("/reconcile/:ref", syncCtl.ReconcileOne)
			}
		}
	}
}
