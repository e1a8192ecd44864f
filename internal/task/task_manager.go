package task

import (
	"context"
	"log"
	"time"

	"meli_erp_v1_202608/internal/api/dto"
	"meli_erp_v1_202608/internal/repository"
	"meli_erp_v1_202608/internal/service"
)

// ==================== TaskManager 业务同步任务管理器 ====================

// TaskManager 统一管理业务同步任务
// 管理范围：订单同步/对账、Token 保活
type TaskManager struct {
	orderTask *OrderSyncTask
	tokenTask *TokenTask
}

// TaskManagerDeps 任务管理器依赖
type TaskManagerDeps struct {
	// Repositories
	AccountRepo repository.AccountRepository

	// Services
	OrderService *service.OrderService
	SyncService  *service.SyncService
	TokenService *service.TokenService
}

// TaskManagerConfig 任务管理器配置
type TaskManagerConfig struct {
	// Order 同步
	OrderEnabled     bool
	OrderConcurrency int
	StaleAfter       time.Duration
	StaleLimit       int

	// Token 保活
	TokenEnabled bool
}

// DefaultConfig 默认配置
func DefaultConfig() *TaskManagerConfig {
	return &TaskManagerConfig{
		OrderEnabled:     true,
		OrderConcurrency: 5,
		StaleAfter:       30 * time.Minute,
		StaleLimit:       100,

		TokenEnabled: true,
	}
}

// NewTaskManager 创建任务管理器
func NewTaskManager(deps *TaskManagerDeps, cfg *TaskManagerConfig) *TaskManager {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	tm := &TaskManager{}

	// 订单同步任务
	if cfg.OrderEnabled && deps.OrderService != nil && deps.SyncService != nil {
		tm.orderTask = NewOrderSyncTask(deps.AccountRepo, deps.OrderService, deps.SyncService)
		tm.orderTask.SetConcurrency(cfg.OrderConcurrency, 200*time.Millisecond)
		tm.orderTask.SetStalePolicy(cfg.StaleAfter, cfg.StaleLimit)
	}

	// Token 保活任务
	if cfg.TokenEnabled && deps.TokenService != nil {
		tm.tokenTask = NewTokenTask(deps.AccountRepo, deps.TokenService)
	}

	return tm
}

// ==================== 生命周期管理 ====================

// Start 启动所有任务
func (tm *TaskManager) Start() {
	log.Println("[TaskManager] 正在启动业务同步任务...")

	if tm.tokenTask != nil {
		tm.tokenTask.Start()
	}
	if tm.orderTask != nil {
		tm.orderTask.Start()
	}

	log.Println("[TaskManager] 业务同步任务已全部启动")
}

// Stop 停止所有任务
func (tm *TaskManager) Stop() {
	log.Println("[TaskManager] 正在停止业务同步任务...")

	if tm.orderTask != nil {
		tm.orderTask.Stop()
	}
	if tm.tokenTask != nil {
		tm.tokenTask.Stop()
	}

	log.Println("[TaskManager] 业务同步任务已全部停止")
}

// ==================== 手动触发接口 ====================

// TriggerOrderSync 触发单个卖家订单同步
func (tm *TaskManager) TriggerOrderSync(ctx context.Context, sellerID int64, full bool) (*dto.SyncOrdersResponse, error) {
	if tm.orderTask == nil {
		return nil, ErrTaskDisabled
	}
	return tm.orderTask.SyncAccountNow(ctx, sellerID, full)
}

// TriggerAllOrdersSync 触发所有卖家订单同步
func (tm *TaskManager) TriggerAllOrdersSync() {
	if tm.orderTask != nil {
		tm.orderTask.SyncAllNow()
	}
}

// TriggerTokenRefresh 触发 Token 刷新
func (tm *TaskManager) TriggerTokenRefresh() error {
	if tm.tokenTask == nil {
		return ErrTaskDisabled
	}
	tm.tokenTask.RefreshNow()
	return nil
}

// ==================== 状态查询 ====================

// Status 获取任务状态
func (tm *TaskManager) Status() map[string]bool {
	return map[string]bool{
		"order": tm.orderTask != nil,
		"token": tm.tokenTask != nil,
	}
}

// ==================== 错误定义 ====================

type TaskError string

func (e TaskError) Error() string { return string(e) }

const (
	ErrTaskDisabled TaskError = "task is disabled"
)
