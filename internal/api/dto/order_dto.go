package dto

import (
	"encoding/json"
	"time"

	"meli_erp_v1_202608/internal/model"
)

// ==================== 订单列表查询 ====================

// ListOrdersRequest 订单列表请求
type ListOrdersRequest struct {
	SellerID      int64  `form:"seller_id" binding:"required"`
	Status        string `form:"status"`         // PENDING, PAID, SHIPPED, DELIVERED, CANCELLED ...
	InvoiceStatus string `form:"invoice_status"` // pending, requested, authorized, failed
	LogisticType  string `form:"logistic_type"`  // fulfillment, cross_docking, self_service ...
	StartDate     string `form:"start_date"`     // 2026-01-01
	EndDate       string `form:"end_date"`
	Keyword       string `form:"keyword"` // 搜索：订单号、买家名
	Page          int    `form:"page,default=1"`
	PageSize      int    `form:"page_size,default=20"`
}

// ListOrdersResponse 订单列表响应
type ListOrdersResponse struct {
	Total int64           `json:"total"`
	List  []OrderListItem `json:"list"`
}

// OrderListItem 订单列表项
type OrderListItem struct {
	ID            int64      `json:"id"`
	MLOrderID     int64      `json:"ml_order_id"`
	SellerID      int64      `json:"seller_id"`
	PackID        int64      `json:"pack_id,omitempty"`
	BuyerNickname string     `json:"buyer_nickname"`
	Status        string     `json:"status"`
	StatusManual  bool       `json:"status_manual"`
	MLStatus      string     `json:"ml_status"`
	LogisticType  string     `json:"logistic_type"`
	InvoiceStatus string     `json:"invoice_status"`
	InvoiceNumber string     `json:"invoice_number,omitempty"`
	TotalAmount   float64    `json:"total_amount"`
	Currency      string     `json:"currency"`
	MLCreatedAt   *time.Time `json:"ml_created_at,omitempty"`
	SyncedAt      *time.Time `json:"synced_at,omitempty"`
}

// ==================== 订单详情 ====================

// OrderDetailResponse 订单详情响应
type OrderDetailResponse struct {
	Order           *OrderVO        `json:"order"`
	Items           json.RawMessage `json:"items,omitempty"`
	Payments        json.RawMessage `json:"payments,omitempty"`
	ShippingAddress json.RawMessage `json:"shipping_address,omitempty"`
	Invoice         *InvoiceVO      `json:"invoice,omitempty"`
}

// OrderVO 订单视图对象
type OrderVO struct {
	ID             int64      `json:"id"`
	MLOrderID      int64      `json:"ml_order_id"`
	SellerID       int64      `json:"seller_id"`
	PackID         int64      `json:"pack_id,omitempty"`
	ShipmentID     int64      `json:"shipment_id,omitempty"`
	SaleID         string     `json:"sale_id,omitempty"`
	BuyerUserID    int64      `json:"buyer_user_id"`
	BuyerNickname  string     `json:"buyer_nickname"`
	BuyerName      string     `json:"buyer_name"`
	Status         string     `json:"status"`
	StatusManual   bool       `json:"status_manual"`
	StatusManualAt *time.Time `json:"status_manual_at,omitempty"`
	MLStatus       string     `json:"ml_status"`
	MLSubstatus    string     `json:"ml_substatus,omitempty"`
	LogisticType   string     `json:"logistic_type"`
	IsFulfilled    bool       `json:"is_fulfilled"`
	Tags           []string   `json:"tags,omitempty"`
	TotalAmount    float64    `json:"total_amount"`
	PaidAmount     float64    `json:"paid_amount"`
	Currency       string     `json:"currency"`
	MLCreatedAt    *time.Time `json:"ml_created_at,omitempty"`
	MLUpdatedAt    *time.Time `json:"ml_updated_at,omitempty"`
	SyncedAt       *time.Time `json:"synced_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// InvoiceVO 发票视图对象
type InvoiceVO struct {
	Status         string     `json:"status"`
	Number         string     `json:"number,omitempty"`
	Series         string     `json:"series,omitempty"`
	Key            string     `json:"key,omitempty"`
	XMLURL         string     `json:"xml_url,omitempty"`
	PDFURL         string     `json:"pdf_url,omitempty"`
	IssuedAt       *time.Time `json:"issued_at,omitempty"`
	AvailableAfter *time.Time `json:"available_after,omitempty"`
}

// NewOrderDetailResponse 订单模型 -> 详情响应
func NewOrderDetailResponse(order *model.Order) *OrderDetailResponse {
	vo := &OrderVO{
		ID:             order.ID,
		MLOrderID:      order.MLOrderID,
		SellerID:       order.MLSellerID,
		PackID:         order.PackID,
		ShipmentID:     order.ShipmentID,
		SaleID:         order.SaleID,
		BuyerUserID:    order.BuyerUserID,
		BuyerNickname:  order.BuyerNickname,
		BuyerName:      order.BuyerName,
		Status:         order.Status,
		StatusManual:   order.StatusManual,
		StatusManualAt: order.StatusManualAt,
		MLStatus:       order.MLStatus,
		MLSubstatus:    order.MLSubstatus,
		LogisticType:   order.LogisticType,
		IsFulfilled:    order.IsFulfilled,
		Tags:           order.Tags,
		TotalAmount:    order.TotalAmount,
		PaidAmount:     order.PaidAmount,
		Currency:       order.Currency,
		MLCreatedAt:    order.MLCreatedAt,
		MLUpdatedAt:    order.MLUpdatedAt,
		SyncedAt:       order.SyncedAt,
		CreatedAt:      order.CreatedAt,
		UpdatedAt:      order.UpdatedAt,
	}

	resp := &OrderDetailResponse{
		Order:           vo,
		Items:           json.RawMessage(order.OrderItems),
		Payments:        json.RawMessage(order.Payments),
		ShippingAddress: json.RawMessage(order.ShippingAddress),
	}

	if order.InvoiceStatus != model.InvoicePending {
		resp.Invoice = &InvoiceVO{
			Status:         order.InvoiceStatus,
			Number:         order.InvoiceNumber,
			Series:         order.InvoiceSeries,
			Key:            order.InvoiceKey,
			XMLURL:         order.InvoiceXMLURL,
			PDFURL:         order.InvoicePDFURL,
			IssuedAt:       order.InvoicedAt,
			AvailableAfter: order.InvoiceAvailableAfter,
		}
	}
	return resp
}

// ==================== 订单同步 ====================

// SyncOrdersRequest 订单同步请求
type SyncOrdersRequest struct {
	SellerID int64 `json:"seller_id" binding:"required"`
	// Full 为 true 时翻完所有分页，否则只拉最近更新的一页
	Full bool `json:"full"`
}

// SyncOrdersResponse 订单同步响应
type SyncOrdersResponse struct {
	SellerID      int64    `json:"seller_id"`
	TotalFetched  int      `json:"total_fetched"`
	NewOrders     int      `json:"new_orders"`
	UpdatedOrders int      `json:"updated_orders"`
	Errors        []string `json:"errors,omitempty"`
}

// ==================== 状态流水 ====================

// OrderEventItem 状态变更流水项
type OrderEventItem struct {
	MLOrderID  int64     `json:"ml_order_id"`
	OldStatus  string    `json:"old_status,omitempty"`
	NewStatus  string    `json:"new_status"`
	Source     string    `json:"source"`
	RunID      string    `json:"run_id,omitempty"`
	Note       string    `json:"note,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ==================== 人工改状态 ====================

// SetStatusRequest 人工设定状态请求
type SetStatusRequest struct {
	Status string `json:"status" binding:"required"`
}
