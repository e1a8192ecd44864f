package controller

import (
	"errors"
	"net/http"

	"meli_erp_v1_202608/internal/api/dto"
	"meli_erp_v1_202608/internal/service"

	"github.com/gin-gonic/gin"
)

// InvoiceController 发票控制器
type InvoiceController struct {
	invoiceService *service.InvoiceService
	emitterService *service.EmitterService
}

// NewInvoiceController 创建发票控制器
func NewInvoiceController(invoiceService *service.InvoiceService, emitterService *service.EmitterService) *InvoiceController {
	return &InvoiceController{
		invoiceService: invoiceService,
		emitterService: emitterService,
	}
}

// Lookup 定位发票
// @Summary 按订单引用定位授权发票（订单/包裹/发货三个位置）
// @Tags Invoice (发票模块)
// @Param ref path string true "平台订单号、内部销售号或包裹号"
// @Success 200 {object} dto.InvoiceLookupResponse
// @Failure 404 {object} map[string]interface{} "订单或发票不存在"
// @Router /api/v1/invoices/{ref} [get]
func (ctrl *InvoiceController) Lookup(c *gin.Context) {
	ref := c.Param("ref")
	if ref == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "缺少订单引用"})
		return
	}

	doc, err := ctrl.invoiceService.LocateByRef(c.Request.Context(), ref)
	if err != nil {
		switch err {
		case service.ErrOrderNotFound, service.ErrInvoiceNotFound:
			c.JSON(http.StatusNotFound, gin.H{"code": 404, "message": err.Error()})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"code": 502, "message": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "data": dto.InvoiceLookupResponse{
		Ref:    ref,
		Source: doc.Source,
		Invoice: &dto.InvoiceVO{
			Status: doc.Status,
			Number: doc.Number,
			Series: doc.Series,
			Key:    doc.Key,
			XMLURL: doc.XMLURL,
			PDFURL: doc.PDFURL,
		},
	}})
}

// Emit 请求开票
// @Summary 为订单请求平台开具 NF-e
// @Tags Invoice (发票模块)
// @Param body body dto.EmitInvoiceRequest true "订单引用"
// @Success 200 {object} dto.EmitInvoiceResponse
// @Failure 422 {object} dto.EmitErrorResponse "前置校验失败/平台拒绝"
// @Failure 429 {object} dto.EmitErrorResponse "平台排程限制"
// @Router /api/v1/invoices/emit [post]
func (ctrl *InvoiceController) Emit(c *gin.Context) {
	var req dto.EmitInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": err.Error()})
		return
	}

	doc, err := ctrl.emitterService.EmitByRef(c.Request.Context(), req.Ref)
	if err != nil {
		ctrl.writeEmitError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "data": dto.EmitInvoiceResponse{
		Ref:    req.Ref,
		Source: doc.Source,
		Invoice: &dto.InvoiceVO{
			Status: doc.Status,
			Number: doc.Number,
			Series: doc.Series,
			Key:    doc.Key,
			XMLURL: doc.XMLURL,
			PDFURL: doc.PDFURL,
		},
	}})
}

// writeEmitError 按错误种类折算 HTTP 状态
func (ctrl *InvoiceController) writeEmitError(c *gin.Context, err error) {
	if err == service.ErrOrderNotFound {
		c.JSON(http.StatusNotFound, gin.H{"code": 404, "message": err.Error()})
		return
	}

	var emitErr *service.EmissionError
	if !errors.As(err, &emitErr) {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": err.Error()})
		return
	}

	body := dto.EmitErrorResponse{
		Kind:           emitErr.Kind,
		Code:           emitErr.Code,
		Message:        emitErr.Message,
		AvailableAfter: emitErr.AvailableAfter,
	}
	switch emitErr.Kind {
	case service.EmitKindScheduling:
		c.JSON(http.StatusTooManyRequests, gin.H{"code": 429, "data": body})
	case service.EmitKindValidation, service.EmitKindRejected:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"code": 422, "data": body})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"code": 502, "data": body})
	}
}
