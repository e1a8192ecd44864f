package meli

import (
	"strings"
	"time"
)

// ==========================================
// DTO: 用于接收 Mercado Livre API 返回的原始 JSON 数据
// ==========================================

// BaseURL Mercado Livre API 根地址
const BaseURL = "https://api.mercadolibre.com"

// ==================== OAuth ====================

// TokenResp OAuth Token 响应
// POST /oauth/token
type TokenResp struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	UserID       int64  `json:"user_id"`
	RefreshToken string `json:"refresh_token"`
	Error        string `json:"error,omitempty"`
	Message      string `json:"message,omitempty"`
}

// UserResp 用户信息响应
// GET /users/me
type UserResp struct {
	ID        int64  `json:"id"`
	Nickname  string `json:"nickname"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	SiteID    string `json:"site_id"`
	// 卖家税务信息（巴西站）
	Identification *Identification `json:"identification"`
	CompanyName    string          `json:"company_name"`
}

// Identification 税务证件
type Identification struct {
	Type   string `json:"type"` // CPF / CNPJ
	Number string `json:"number"`
}

// ==================== 订单 ====================

// OrderResp 订单详情响应
// GET /orders/{order_id}
type OrderResp struct {
	ID           int64          `json:"id"`
	Status       string         `json:"status"`
	StatusDetail *StatusDetail  `json:"status_detail"`
	DateCreated  string         `json:"date_created"`
	DateClosed   string         `json:"date_closed"`
	LastUpdated  string         `json:"last_updated"`
	PackID       int64          `json:"pack_id"`
	PickupID     int64          `json:"pickup_id"`
	Fulfilled    bool           `json:"fulfilled"`
	TotalAmount  float64        `json:"total_amount"`
	PaidAmount   float64        `json:"paid_amount"`
	CurrencyID   string         `json:"currency_id"`
	Buyer        *OrderBuyer    `json:"buyer"`
	Seller       *OrderSeller   `json:"seller"`
	Payments     []OrderPayment `json:"payments"`
	OrderItems   []OrderItem    `json:"order_items"`
	Shipping     *OrderShipping `json:"shipping"`
	Tags         []string       `json:"tags"`
}

// StatusDetail 订单状态细节
type StatusDetail struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// OrderBuyer 买家信息
type OrderBuyer struct {
	ID             int64           `json:"id"`
	Nickname       string          `json:"nickname"`
	Email          string          `json:"email"`
	FirstName      string          `json:"first_name"`
	LastName       string          `json:"last_name"`
	Identification *Identification `json:"billing_info"`
}

// OrderSeller 卖家信息
type OrderSeller struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname"`
}

// OrderPayment 支付信息
type OrderPayment struct {
	ID              int64         `json:"id"`
	Status          string        `json:"status"`
	PaymentMethodID string        `json:"payment_method_id"`
	PaymentTypeID   string        `json:"payment_type_id"`
	TotalPaidAmount float64       `json:"total_paid_amount"`
	Payer           *PaymentPayer `json:"payer"`
}

// PaymentPayer 付款人
type PaymentPayer struct {
	ID             int64           `json:"id"`
	Identification *Identification `json:"identification"`
}

// OrderItem 订单项
type OrderItem struct {
	Item      *ItemInfo `json:"item"`
	Quantity  int       `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
	SaleFee   float64   `json:"sale_fee"`
}

// ItemInfo 商品信息
type ItemInfo struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	CategoryID string `json:"category_id"`
	SellerSKU  string `json:"seller_sku"`
}

// OrderShipping 订单上内嵌的轻量发货信息
type OrderShipping struct {
	ID              int64            `json:"id"`
	Status          string           `json:"status"`
	Cost            float64          `json:"cost"`
	LogisticType    string           `json:"logistic_type"`
	ReceiverAddress *ReceiverAddress `json:"receiver_address"`
}

// BuyerDocNumber 返回买家税务证件号，按优先级从各候选位置提取
// 顺序：支付 payer.identification -> buyer.billing_info
func (o *OrderResp) BuyerDocNumber() (docType, docNumber string) {
	for _, p := range o.Payments {
		if p.Payer != nil && p.Payer.Identification != nil && p.Payer.Identification.Number != "" {
			return p.Payer.Identification.Type, p.Payer.Identification.Number
		}
	}
	if o.Buyer != nil && o.Buyer.Identification != nil && o.Buyer.Identification.Number != "" {
		return o.Buyer.Identification.Type, o.Buyer.Identification.Number
	}
	return "", ""
}

// HasTag 判断订单是否带指定标签
func (o *OrderResp) HasTag(tag string) bool {
	for _, t := range o.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ItemsTotal 按订单项重算总金额
func (o *OrderResp) ItemsTotal() float64 {
	var total float64
	for _, it := range o.OrderItems {
		total += it.UnitPrice * float64(it.Quantity)
	}
	return total
}

// OrderSearchResp 订单搜索响应
// GET /orders/search?seller={seller_id}
type OrderSearchResp struct {
	Results []OrderResp `json:"results"`
	Paging  Paging      `json:"paging"`
}

// Paging 分页信息
type Paging struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// ==================== 发货 ====================

// ShipmentResp 发货详情响应
// GET /shipments/{shipment_id} (需携带 x-format-new: true)
type ShipmentResp struct {
	ID             int64            `json:"id"`
	Status         string           `json:"status"`
	Substatus      string           `json:"substatus"`
	LogisticType   string           `json:"logistic_type"`
	Logistic       *LogisticInfo    `json:"logistic"`
	TrackingMethod string           `json:"tracking_method"`
	TrackingNumber string           `json:"tracking_number"`
	DateCreated    string           `json:"date_created"`
	StatusHistory  *StatusHistory   `json:"status_history"`
	ShippingOption *ShippingOption  `json:"shipping_option"`
	Receiver       *ReceiverAddress `json:"receiver_address"`
	BillingInfo    *BillingInfo     `json:"billing_info"`
}

// LogisticInfo 新格式下的物流模式信息
type LogisticInfo struct {
	Mode string `json:"mode"`
	Type string `json:"type"`
}

// StatusHistory 发货状态里程碑
type StatusHistory struct {
	DateReadyToShip string `json:"date_ready_to_ship"`
	DateShipped     string `json:"date_shipped"`
	DateDelivered   string `json:"date_delivered"`
}

// ShippingOption 配送选项
type ShippingOption struct {
	EstimatedDeliveryFinal *EstimatedDelivery `json:"estimated_delivery_final"`
}

// EstimatedDelivery 预计送达
type EstimatedDelivery struct {
	Date string `json:"date"`
}

// ReceiverAddress 收货地址
type ReceiverAddress struct {
	ZipCode      string     `json:"zip_code"`
	StreetName   string     `json:"street_name"`
	StreetNumber string     `json:"street_number"`
	Comment      string     `json:"comment"`
	City         *NamedNode `json:"city"`
	State        *NamedNode `json:"state"`
	Neighborhood *NamedNode `json:"neighborhood"`
	ReceiverName string     `json:"receiver_name"`
}

// NamedNode 平台常用的 {id, name} 嵌套结构
type NamedNode struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CityName 城市名（空安全）
func (a *ReceiverAddress) CityName() string {
	if a == nil || a.City == nil {
		return ""
	}
	return a.City.Name
}

// StateName 州/省名（空安全）
func (a *ReceiverAddress) StateName() string {
	if a == nil || a.State == nil {
		return ""
	}
	return a.State.Name
}

// IsComplete 判断开票所需的地址字段是否齐全
func (a *ReceiverAddress) IsComplete() bool {
	return a != nil &&
		a.ZipCode != "" &&
		a.StreetName != "" &&
		a.CityName() != "" &&
		a.StateName() != ""
}

// BillingInfo 发货维度的买家税务信息
// GET /shipments/{shipment_id}/billing_info
type BillingInfo struct {
	DocType   string `json:"doc_type"`
	DocNumber string `json:"doc_number"`
}

// ResolveLogisticType 提取物流类型：优先顶层字段，其次 logistic.type
func (s *ShipmentResp) ResolveLogisticType() string {
	if s.LogisticType != "" {
		return s.LogisticType
	}
	if s.Logistic != nil {
		return s.Logistic.Type
	}
	return ""
}

// ==================== 包裹 ====================

// PackResp 包裹响应
// GET /packs/{pack_id}
type PackResp struct {
	ID       int64         `json:"id"`
	SellerID int64         `json:"seller_id"`
	Shipment *PackShipment `json:"shipment"`
	Orders   []PackOrder   `json:"orders"`
}

// PackShipment 包裹内嵌的发货引用
type PackShipment struct {
	ID int64 `json:"id"`
}

// PackOrder 包裹内的订单引用
type PackOrder struct {
	ID int64 `json:"id"`
}

// PackFiscalDocsResp 包裹上传的税务文件列表
// GET /packs/{pack_id}/fiscal_documents
type PackFiscalDocsResp struct {
	FiscalDocuments []PackFiscalDoc `json:"fiscal_documents"`
}

// PackFiscalDoc 卖家上传的税务文件
type PackFiscalDoc struct {
	ID            int64  `json:"id"`
	InvoiceNumber string `json:"invoice_number"`
	InvoiceSeries string `json:"invoice_series"`
	InvoiceKey    string `json:"invoice_key"`
	Status        string `json:"status"`
}

// ==================== 发票（NF-e） ====================

// InvoiceStatusAuthorized 发票已授权状态
const InvoiceStatusAuthorized = "authorized"

// InvoiceResp 发票查询/开具响应
// GET /users/{user_id}/invoices/orders/{order_id}
// GET /users/{user_id}/invoices/shipments/{shipment_id}
type InvoiceResp struct {
	ID            int64              `json:"id"`
	Status        string             `json:"status"`
	InvoiceNumber string             `json:"invoice_number"`
	InvoiceSeries string             `json:"invoice_series"`
	IssuedDate    string             `json:"issued_date"`
	Attributes    *InvoiceAttributes `json:"attributes"`
}

// InvoiceAttributes 发票附加属性
type InvoiceAttributes struct {
	InvoiceKey    string `json:"invoice_key"`
	XMLLocation   string `json:"xml_location"`
	DanfeLocation string `json:"danfe_location"`
}

// IsAuthorized 发票是否已授权且有有效号码
func (r *InvoiceResp) IsAuthorized() bool {
	return r.Status == InvoiceStatusAuthorized && r.InvoiceNumber != ""
}

// Key 发票访问密钥（空安全）
func (r *InvoiceResp) Key() string {
	if r.Attributes == nil {
		return ""
	}
	return r.Attributes.InvoiceKey
}

// XMLURL 发票 XML 完整下载地址
func (r *InvoiceResp) XMLURL() string {
	if r.Attributes == nil || r.Attributes.XMLLocation == "" {
		return ""
	}
	return absoluteURL(r.Attributes.XMLLocation)
}

// PDFURL 发票 DANFE PDF 完整下载地址
func (r *InvoiceResp) PDFURL() string {
	if r.Attributes == nil || r.Attributes.DanfeLocation == "" {
		return ""
	}
	return absoluteURL(r.Attributes.DanfeLocation)
}

func absoluteURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return BaseURL + path
}

// ==================== 错误 ====================

// ErrorResp 平台通用错误响应
type ErrorResp struct {
	Message string      `json:"message"`
	Error   string      `json:"error"`
	Status  int         `json:"status"`
	Cause   []ErrorNode `json:"cause"`
}

// ErrorNode 错误明细
type ErrorNode struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	// 平台在限制开票时会在这里给出可重试时间
	AvailableAfter string `json:"available_after"`
}

// AvailabilityTime 扫描错误体中的未来可用时间戳
// 平台限制开票时（如 NF 排程限制）会携带该字段，找到则返回解析结果
func (e *ErrorResp) AvailabilityTime() (time.Time, bool) {
	for _, c := range e.Cause {
		if c.AvailableAfter == "" {
			continue
		}
		if ts, err := ParseMeliTime(c.AvailableAfter); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// ErrorDescResp 平台错误码描述查询响应
// GET /errors/{code}
type ErrorDescResp struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// ==================== 时间解析 ====================

// ParseMeliTime 解析平台时间戳（ISO8601，可能带 Z 或数字时区）
func ParseMeliTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	// 平台偶尔返回不带冒号的时区后缀
	return time.Parse("2006-01-02T15:04:05.000-0700", s)
}
