package dto

import "time"

// ==================== 发票查询/开票 ====================

// InvoiceLookupResponse 发票定位响应
type InvoiceLookupResponse struct {
	Ref     string     `json:"ref"`
	Source  string     `json:"source"` // order / pack / shipment
	Invoice *InvoiceVO `json:"invoice"`
}

// EmitInvoiceRequest 开票请求
type EmitInvoiceRequest struct {
	// Ref 订单引用：平台订单号、内部销售号或包裹号
	Ref string `json:"ref" binding:"required"`
}

// EmitInvoiceResponse 开票响应
type EmitInvoiceResponse struct {
	Ref     string     `json:"ref"`
	Source  string     `json:"source,omitempty"`
	Invoice *InvoiceVO `json:"invoice,omitempty"`
}

// EmitErrorResponse 开票失败响应
type EmitErrorResponse struct {
	Kind           string     `json:"kind"`
	Code           string     `json:"code,omitempty"`
	Message        string     `json:"message"`
	AvailableAfter *time.Time `json:"available_after,omitempty"`
}
