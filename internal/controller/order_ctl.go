package controller

import (
	"net/http"
	"strconv"

	"meli_erp_v1_202608/internal/api/dto"
	"meli_erp_v1_202608/internal/service"

	"github.com/gin-gonic/gin"
)

// OrderController 订单控制器
type OrderController struct {
	orderService *service.OrderService
}

// NewOrderController 创建订单控制器
func NewOrderController(orderService *service.OrderService) *OrderController {
	return &OrderController{orderService: orderService}
}

// ListOrders 订单列表
// @Summary 查询订单列表
// @Tags Order (订单模块)
// @Param seller_id query int true "平台卖家 ID"
// @Param status query string false "内部状态"
// @Param invoice_status query string false "发票状态"
// @Success 200 {object} dto.ListOrdersResponse
// @Router /api/v1/orders [get]
func (ctrl *OrderController) ListOrders(c *gin.Context) {
	var req dto.ListOrdersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": err.Error()})
		return
	}

	resp, err := ctrl.orderService.ListOrders(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "data": resp})
}

// GetOrderDetail 订单详情
// @Summary 查询订单详情
// @Tags Order (订单模块)
// @Param id path int true "订单 ID"
// @Success 200 {object} dto.OrderDetailResponse
// @Router /api/v1/orders/{id} [get]
func (ctrl *OrderController) GetOrderDetail(c *gin.Context) {
	orderID := parseID(c, "id")
	if orderID == 0 {
		return
	}

	resp, err := ctrl.orderService.GetOrderDetail(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": 404, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "data": resp})
}

// ListEvents 订单状态变更流水
// @Summary 查询订单状态变更流水
// @Tags Order (订单模块)
// @Param id path int true "订单 ID"
// @Param limit query int false "返回条数（默认 50）"
// @Success 200 {array} dto.OrderEventItem
// @Router /api/v1/orders/{id}/events [get]
func (ctrl *OrderController) ListEvents(c *gin.Context) {
	orderID := parseID(c, "id")
	if orderID == 0 {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	events, err := ctrl.orderService.ListOrderEvents(c.Request.Context(), orderID, limit)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": 404, "message": err.Error()})
		return
	}

	list := make([]dto.OrderEventItem, len(events))
	for i, e := range events {
		list[i] = dto.OrderEventItem{
			MLOrderID:  e.MLOrderID,
			OldStatus:  e.OldStatus,
			NewStatus:  e.NewStatus,
			Source:     e.Source,
			RunID:      e.RunID,
			Note:       e.Note,
			OccurredAt: e.OccurredAt,
		}
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "data": list})
}

// SetStatus 人工设定订单状态
// @Summary 人工改状态并锁定，自动同步不再按层级推进
// @Tags Order (订单模块)
// @Param id path int true "订单 ID"
// @Param body body dto.SetStatusRequest true "目标状态"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/orders/{id}/status [put]
func (ctrl *OrderController) SetStatus(c *gin.Context) {
	orderID := parseID(c, "id")
	if orderID == 0 {
		return
	}

	var req dto.SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": err.Error()})
		return
	}

	if err := ctrl.orderService.SetManualStatus(c.Request.Context(), orderID, req.Status); err != nil {
		if err == service.ErrOrderNotFound {
			c.JSON(http.StatusNotFound, gin.H{"code": 404, "message": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "状态已设定并锁定"})
}

// ClearManual 解除人工锁定
// @Summary 解除人工锁定，恢复自动推进
// @Tags Order (订单模块)
// @Param id path int true "订单 ID"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/orders/{id}/status/manual [delete]
func (ctrl *OrderController) ClearManual(c *gin.Context) {
	orderID := parseID(c, "id")
	if orderID == 0 {
		return
	}

	if err := ctrl.orderService.ClearManualStatus(c.Request.Context(), orderID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": 404, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "已解除锁定"})
}
