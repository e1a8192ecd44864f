package model

import "time"

// ==================== 状态变更来源 ====================

// 状态变更事件的来源
const (
	EventSourceSync      = "sync"      // 订单拉取同步
	EventSourceReconcile = "reconcile" // 对账
	EventSourceManual    = "manual"    // 人工改状态
)

// ==================== OrderEvent 状态变更流水 ====================

// OrderEvent 订单状态变更流水
// 只增不改的审计记录，生产库按 occurred_at 月度分区（见 pkg/database/partitions）
type OrderEvent struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	MLOrderID  int64  `gorm:"index;not null"` // 平台 order_id
	MLSellerID int64  `gorm:"index"`          // 卖家 user_id
	OldStatus  string `gorm:"size:32"`
	NewStatus  string `gorm:"size:32;not null"`
	Source     string `gorm:"size:16;index;not null"` // sync / reconcile / manual
	RunID      string `gorm:"size:64"`                // 批次对账的 run_id，单笔操作为空
	Note       string `gorm:"size:255"`               // 附注（如人工操作原因、解锁说明）

	OccurredAt time.Time `gorm:"index;not null"`
}

// TableName 指定表名
func (OrderEvent) TableName() string {
	return "ml_order_events"
}
