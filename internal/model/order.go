package model

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ==================== 订单状态常量 ====================

// 内部订单状态（状态机的规范值）
const (
	StatusPending           = "PENDING"            // 待支付
	StatusConfirmed         = "CONFIRMED"          // 已确认
	StatusReadyToPrepare    = "READY_TO_PREPARE"   // 待备货
	StatusPaid              = "PAID"               // 已支付
	StatusPartiallyPaid     = "PARTIALLY_PAID"     // 部分支付
	StatusShipped           = "SHIPPED"            // 已发货
	StatusDelivered         = "DELIVERED"          // 已签收
	StatusCancelled         = "CANCELLED"          // 已取消
	StatusPendingCancel     = "PENDING_CANCEL"     // 取消中
	StatusRefunded          = "REFUNDED"           // 已退款
	StatusPartiallyRefunded = "PARTIALLY_REFUNDED" // 部分退款
	StatusInvalid           = "INVALID"            // 无效
)

// 发票（NF-e）状态
const (
	InvoicePending    = "pending"    // 未开票
	InvoiceRequested  = "requested"  // 已请求开票，待授权
	InvoiceAuthorized = "authorized" // 已授权
	InvoiceFailed     = "failed"     // 开票失败
)

// 物流类型（平台 logistic_type）
const (
	LogisticFulfillment = "fulfillment"   // 平台仓发货
	LogisticCrossDock   = "cross_docking" // 集货
	LogisticSelfService = "self_service"  // Flex
	LogisticDropOff     = "drop_off"      // 自送网点
	LogisticXdDropOff   = "xd_drop_off"   // 集货网点
)

// ==================== Order 订单主表 ====================

// Order 从 Mercado Livre 同步的订单
// 一个平台 order 对应一条记录；同一笔销售可能带 pack_id（多订单合包）
type Order struct {
	ID int64 `gorm:"primaryKey;autoIncrement"`

	// 平台标识
	MLOrderID  int64  `gorm:"uniqueIndex;not null"` // 平台 order_id
	MLSellerID int64  `gorm:"index;not null"`       // 卖家 user_id
	PackID     int64  `gorm:"index"`                // 合包 ID，0 表示无包裹
	ShipmentID int64  `gorm:"index"`                // 平台 shipment_id
	SaleID     string `gorm:"size:64;index"`        // 内部销售流水号

	// 买家信息
	BuyerUserID   int64
	BuyerNickname string `gorm:"size:100"`
	BuyerName     string `gorm:"size:255"`
	BuyerDocType  string `gorm:"size:10"` // CPF / CNPJ
	BuyerDocNum   string `gorm:"size:20"`

	// 状态
	Status         string     `gorm:"size:32;index;default:PENDING"`
	MLStatus       string     `gorm:"size:32"` // 平台原始订单状态
	MLSubstatus    string     `gorm:"size:64"` // 平台发货 substatus
	StatusManual   bool       `gorm:"default:false;comment:人工锁定状态"`
	StatusManualAt *time.Time // 最后一次人工改状态的时间

	// 履约
	LogisticType string         `gorm:"size:32;index"`
	IsFulfilled  bool           `gorm:"default:false"` // 平台仓履约（FULL）
	Tags         pq.StringArray `gorm:"type:text[]"`   // 平台订单标签

	// 金额
	TotalAmount float64 `gorm:"type:decimal(12,2)"`
	PaidAmount  float64 `gorm:"type:decimal(12,2)"`
	Currency    string  `gorm:"size:10;default:BRL"`

	// 税务文件（NF-e）
	InvoiceStatus string `gorm:"size:20;index;default:pending"`
	InvoiceNumber string `gorm:"size:20"`
	InvoiceSeries string `gorm:"size:10"`
	InvoiceKey    string `gorm:"size:50;index"` // 44 位访问密钥
	InvoiceXMLURL string `gorm:"size:500"`
	InvoicePDFURL string `gorm:"size:500"`
	InvoicedAt    *time.Time
	// 平台限制开票时给出的下次可用时间
	InvoiceAvailableAfter *time.Time

	// 平台原始数据（PostgreSQL JSONB）
	OrderItems      datatypes.JSON `gorm:"type:jsonb"`
	Payments        datatypes.JSON `gorm:"type:jsonb"`
	ShippingAddress datatypes.JSON `gorm:"type:jsonb"`
	ShippingDetails datatypes.JSON `gorm:"type:jsonb"`

	// 平台时间
	MLCreatedAt *time.Time
	MLClosedAt  *time.Time
	MLUpdatedAt *time.Time
	SyncedAt    *time.Time `gorm:"index"`

	// 审计
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (*Order) TableName() string {
	return "ml_orders"
}

// IsTerminal 订单是否已进入终态
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case StatusCancelled, StatusRefunded, StatusInvalid:
		return true
	}
	return false
}

// IsInvoiced 是否已有授权发票
func (o *Order) IsInvoiced() bool {
	return o.InvoiceStatus == InvoiceAuthorized && o.InvoiceNumber != ""
}

// HasTag 判断订单是否携带指定平台标签
func (o *Order) HasTag(tag string) bool {
	for _, t := range o.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// InvoiceRestricted 当前是否处于平台开票限制窗口内
func (o *Order) InvoiceRestricted(now time.Time) bool {
	return o.InvoiceAvailableAfter != nil && now.Before(*o.InvoiceAvailableAfter)
}
