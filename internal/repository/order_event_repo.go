package repository

import (
	"context"
	"time"

	"meli_erp_v1_202608/internal/model"

	"gorm.io/gorm"
)

// ==================== OrderEventRepository 状态流水仓库 ====================

// OrderEventRepository 订单状态变更流水仓库接口
type OrderEventRepository interface {
	Create(ctx context.Context, event *model.OrderEvent) error
	// ListByOrder 按时间倒序返回某订单的变更流水
	ListByOrder(ctx context.Context, mlOrderID int64, limit int) ([]model.OrderEvent, error)
	// ListByRun 返回某对账批次产生的全部变更
	ListByRun(ctx context.Context, runID string) ([]model.OrderEvent, error)
}

type orderEventRepository struct {
	db *gorm.DB
}

// NewOrderEventRepository 创建状态流水仓库
func NewOrderEventRepository(db *gorm.DB) OrderEventRepository {
	return &orderEventRepository{db: db}
}

func (r *orderEventRepository) Create(ctx context.Context, event *model.OrderEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *orderEventRepository) ListByOrder(ctx context.Context, mlOrderID int64, limit int) ([]model.OrderEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []model.OrderEvent
	err := r.db.WithContext(ctx).
		Where("ml_order_id = ?", mlOrderID).
		Order("occurred_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *orderEventRepository) ListByRun(ctx context.Context, runID string) ([]model.OrderEvent, error) {
	var events []model.OrderEvent
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("occurred_at ASC").
		Find(&events).Error
	return events, err
}
