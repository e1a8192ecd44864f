package repository

import (
	"context"
	"strconv"
	"time"

	"meli_erp_v1_202608/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ==================== 过滤条件 ====================

// OrderFilter 订单过滤条件
type OrderFilter struct {
	SellerID      int64
	Status        string
	InvoiceStatus string
	LogisticType  string
	StartDate     *time.Time
	EndDate       *time.Time
	Keyword       string
	Page          int
	PageSize      int
}

// ==================== OrderRepository 订单仓库 ====================

// OrderRepository 订单仓库接口
type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	Upsert(ctx context.Context, order *model.Order) error
	GetByID(ctx context.Context, id int64) (*model.Order, error)
	GetByMLOrderID(ctx context.Context, mlOrderID int64) (*model.Order, error)
	// GetByAnyRef 依次按 ml_order_id / sale_id / pack_id 查找
	GetByAnyRef(ctx context.Context, ref string) (*model.Order, error)
	GetByPackID(ctx context.Context, packID int64) ([]model.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]model.Order, int64, error)
	Update(ctx context.Context, order *model.Order) error
	UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error
	Delete(ctx context.Context, id int64) error

	// 统计
	CountBySellerAndStatus(ctx context.Context, sellerID int64, status string) (int64, error)

	// 同步/开票相关
	GetStaleOrders(ctx context.Context, sellerID int64, before time.Time, limit int) ([]model.Order, error)
	GetAwaitingInvoice(ctx context.Context, sellerID int64, limit int) ([]model.Order, error)
}

// ==================== 实现 ====================

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓库
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// Upsert 按 ml_order_id 插入或更新，用于订单同步落库
func (r *orderRepository) Upsert(ctx context.Context, order *model.Order) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ml_order_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"ml_seller_id", "pack_id", "shipment_id",
			"buyer_user_id", "buyer_nickname", "buyer_name", "buyer_doc_type", "buyer_doc_num",
			"ml_status", "ml_substatus", "logistic_type", "is_fulfilled", "tags",
			"total_amount", "paid_amount", "currency",
			"order_items", "payments", "shipping_address", "shipping_details",
			"ml_created_at", "ml_closed_at", "ml_updated_at", "synced_at",
			"updated_at",
		}),
	}).Create(order).Error
}

func (r *orderRepository) GetByID(ctx context.Context, id int64) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).First(&order, id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) GetByMLOrderID(ctx context.Context, mlOrderID int64) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).Where("ml_order_id = ?", mlOrderID).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetByAnyRef 按任意外部引用定位订单
// 依次尝试：平台订单号 -> 内部销售号 -> 包裹号（取包裹内最早一单）
func (r *orderRepository) GetByAnyRef(ctx context.Context, ref string) (*model.Order, error) {
	var order model.Order

	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		err = r.db.WithContext(ctx).Where("ml_order_id = ?", id).First(&order).Error
		if err == nil {
			return &order, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
	}

	err := r.db.WithContext(ctx).Where("sale_id = ?", ref).First(&order).Error
	if err == nil {
		return &order, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	if id, perr := strconv.ParseInt(ref, 10, 64); perr == nil {
		err = r.db.WithContext(ctx).
			Where("pack_id = ?", id).
			Order("ml_created_at ASC").
			First(&order).Error
		if err == nil {
			return &order, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *orderRepository) GetByPackID(ctx context.Context, packID int64) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.WithContext(ctx).
		Where("pack_id = ?", packID).
		Order("ml_created_at ASC").
		Find(&orders).Error
	return orders, err
}

func (r *orderRepository) List(ctx context.Context, filter OrderFilter) ([]model.Order, int64, error) {
	var orders []model.Order
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Order{})

	// 应用过滤条件
	if filter.SellerID > 0 {
		db = db.Where("ml_seller_id = ?", filter.SellerID)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.InvoiceStatus != "" {
		db = db.Where("invoice_status = ?", filter.InvoiceStatus)
	}
	if filter.LogisticType != "" {
		db = db.Where("logistic_type = ?", filter.LogisticType)
	}
	if filter.StartDate != nil {
		db = db.Where("ml_created_at >= ?", filter.StartDate)
	}
	if filter.EndDate != nil {
		db = db.Where("ml_created_at <= ?", filter.EndDate)
	}
	if filter.Keyword != "" {
		keyword := "%" + filter.Keyword + "%"
		db = db.Where("buyer_name LIKE ? OR buyer_nickname LIKE ? OR CAST(ml_order_id AS TEXT) LIKE ?",
			keyword, keyword, keyword)
	}

	// 计算总数
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 分页
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	offset := (filter.Page - 1) * filter.PageSize

	err := db.
		Order("ml_created_at DESC").
		Limit(filter.PageSize).
		Offset(offset).
		Find(&orders).Error

	return orders, total, err
}

func (r *orderRepository) Update(ctx context.Context, order *model.Order) error {
	return r.db.WithContext(ctx).Save(order).Error
}

func (r *orderRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.Order{}).Where("id = ?", id).Updates(fields).Error
}

func (r *orderRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&model.Order{}, id).Error
}

func (r *orderRepository) CountBySellerAndStatus(ctx context.Context, sellerID int64, status string) (int64, error) {
	var count int64
	db := r.db.WithContext(ctx).Model(&model.Order{}).Where("ml_seller_id = ?", sellerID)
	if status != "" {
		db = db.Where("status = ?", status)
	}
	err := db.Count(&count).Error
	return count, err
}

// GetStaleOrders 取非终态且长时间未同步的订单，供补偿对账
func (r *orderRepository) GetStaleOrders(ctx context.Context, sellerID int64, before time.Time, limit int) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.WithContext(ctx).
		Where("ml_seller_id = ?", sellerID).
		Where("status NOT IN ?", []string{model.StatusCancelled, model.StatusRefunded, model.StatusInvalid, model.StatusDelivered}).
		Where("synced_at IS NULL OR synced_at < ?", before).
		Order("synced_at ASC NULLS FIRST").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

// GetAwaitingInvoice 取已支付但尚未取得授权发票的订单
func (r *orderRepository) GetAwaitingInvoice(ctx context.Context, sellerID int64, limit int) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.WithContext(ctx).
		Where("ml_seller_id = ?", sellerID).
		Where("status IN ?", []string{model.StatusPaid, model.StatusShipped, model.StatusDelivered}).
		Where("invoice_status <> ?", model.InvoiceAuthorized).
		Order("ml_created_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}
