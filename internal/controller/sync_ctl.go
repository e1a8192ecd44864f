package controller

import (
	"net/http"
	"strconv"
	"time"

	"meli_erp_v1_202608/internal/api/dto"
	"meli_erp_v1_202608/internal/service"
	"meli_erp_v1_202608/internal/task"

	"github.com/gin-gonic/gin"
)

// SyncController 同步/对账控制器
type SyncController struct {
	taskManager *task.TaskManager
	syncService *service.SyncService
}

// NewSyncController 创建同步控制器
func NewSyncController(taskManager *task.TaskManager, syncService *service.SyncService) *SyncController {
	return &SyncController{
		taskManager: taskManager,
		syncService: syncService,
	}
}

// ==================== Handler 实现 ====================

// SyncOrders 拉取单个卖家订单
// @Summary 手动触发某卖家的订单拉取
// @Tags Sync (同步模块)
// @Param seller_id path int true "平台卖家 ID"
// @Param full query bool false "是否翻完所有分页"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/sync/orders/{seller_id} [post]
func (c *SyncController) SyncOrders(ctx *gin.Context) {
	sellerID := parseID(ctx, "seller_id")
	if sellerID == 0 {
		return
	}

	full := ctx.Query("full") == "true"

	resp, err := c.taskManager.TriggerOrderSync(ctx.Request.Context(), sellerID, full)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "订单同步完成",
		"data": gin.H{
			"seller_id":  sellerID,
			"fetched":    resp.TotalFetched,
			"new_orders": resp.NewOrders,
			"updated":    resp.UpdatedOrders,
			"full":       full,
		},
	})
}

// SyncAllOrders 拉取所有卖家订单
// @Summary 手动触发全部卖家的订单拉取
// @Tags Sync (同步模块)
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/sync/orders [post]
func (c *SyncController) SyncAllOrders(ctx *gin.Context) {
	c.taskManager.TriggerAllOrdersSync()

	ctx.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "所有卖家订单同步任务已启动",
	})
}

// ReconcileOne 对账单笔订单
// @Summary 按引用对账单笔订单（重拉平台订单与发货并刷新状态）
// @Tags Sync (同步模块)
// @Param ref path string true "平台订单号、内部销售号或包裹号"
// @Success 200 {object} service.ReconcileResult
// @Router /api/v1/sync/reconcile/{ref} [post]
func (c *SyncController) ReconcileOne(ctx *gin.Context) {
	ref := ctx.Param("ref")
	if ref == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "缺少订单引用"})
		return
	}

	result, err := c.syncService.ReconcileByRef(ctx.Request.Context(), ref)
	if err != nil {
		if err == service.ErrOrderNotFound {
			ctx.JSON(http.StatusNotFound, gin.H{"code": 404, "message": err.Error()})
			return
		}
		ctx.JSON(http.StatusBadGateway, gin.H{"code": 502, "message": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"code": 200, "data": result})
}

// ReconcileBatch 批量对账
// @Summary 对账某卖家长时间未同步的非终态订单
// @Tags Sync (同步模块)
// @Param body body dto.ReconcileRequest true "对账参数"
// @Success 200 {object} service.BatchResult
// @Router /api/v1/sync/reconcile [post]
func (c *SyncController) ReconcileBatch(ctx *gin.Context) {
	var req dto.ReconcileRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": err.Error()})
		return
	}
	if req.OlderThanMinutes <= 0 {
		req.OlderThanMinutes = 15
	}
	if req.Limit <= 0 {
		req.Limit = 100
	}

	result, err := c.syncService.ReconcileStale(ctx.Request.Context(),
		req.SellerID, time.Duration(req.OlderThanMinutes)*time.Minute, req.Limit)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"code": 200, "data": result})
}

// ==================== 工具函数 ====================

func parseID(ctx *gin.Context, key string) int64 {
	idStr := ctx.Param(key)
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "无效的 ID"})
		return 0
	}
	return id
}
