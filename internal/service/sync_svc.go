package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"meli_erp_v1_202608/internal/model"
	"meli_erp_v1_202608/internal/repository"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// 批量对账参数
const (
	// reconcileChunkSize 每批并发处理的订单数
	reconcileChunkSize = 10
	// reconcileChunkGap 批与批之间的间隔，给平台限速留余地
	reconcileChunkGap = 1 * time.Second
)

// ==================== SyncService 对账 ====================

// ReconcileResult 单笔对账结果
type ReconcileResult struct {
	MLOrderID  int64  `json:"ml_order_id"`
	OldStatus  string `json:"old_status"`
	NewStatus  string `json:"new_status"`
	Changed    bool   `json:"changed"`
	Skipped    string `json:"skipped,omitempty"` // 人工锁定拦下平台状态时为 manual
	Substatus  string `json:"substatus,omitempty"`
	InvoiceHit bool   `json:"invoice_hit"`
}

// BatchResult 批量对账结果
type BatchResult struct {
	RunID     string            `json:"run_id"`
	Total     int               `json:"total"`
	Changed   int               `json:"changed"`
	Unchanged int               `json:"unchanged"`
	Failed    int               `json:"failed"`
	Errors    []string          `json:"errors,omitempty"`
	Results   []ReconcileResult `json:"results,omitempty"`
}

// SyncService 对账服务
// 以平台为准刷新本地订单：重新拉取订单与发货详情，
// 折算状态过覆盖守卫，顺带定位缺失的发票
type SyncService struct {
	orderRepo  repository.OrderRepository
	eventRepo  repository.OrderEventRepository
	meliSvc    *MeliService
	invoiceSvc *InvoiceService
	// emitterSvc 非 nil 时，对账未定位到发票的可开票订单顺带发起开票
	emitterSvc *EmitterService
}

// NewSyncService 工厂方法
// emitterSvc 传 nil 表示对账只定位发票、不发起开票
func NewSyncService(orderRepo repository.OrderRepository, eventRepo repository.OrderEventRepository, meliSvc *MeliService, invoiceSvc *InvoiceService, emitterSvc *EmitterService) *SyncService {
	return &SyncService{
		orderRepo:  orderRepo,
		eventRepo:  eventRepo,
		meliSvc:    meliSvc,
		invoiceSvc: invoiceSvc,
		emitterSvc: emitterSvc,
	}
}

// ReconcileByRef 按外部引用对账单笔订单
func (s *SyncService) ReconcileByRef(ctx context.Context, ref string) (*ReconcileResult, error) {
	order, err := s.orderRepo.GetByAnyRef(ctx, ref)
	if err != nil {
		return nil, ErrOrderNotFound
	}
	return s.ReconcileOne(ctx, order)
}

// ReconcileOne 对账单笔订单
// 1. 重新拉取平台订单
// 2. 有发货记录时取发货详情，substatus 优先参与折算
// 3. 过覆盖守卫后落库；权威事件会解除人工锁定
// 4. 已支付未开票的订单顺带定位一次发票
func (s *SyncService) ReconcileOne(ctx context.Context, order *model.Order) (*ReconcileResult, error) {
	return s.reconcileOne(ctx, order, "")
}

func (s *SyncService) reconcileOne(ctx context.Context, order *model.Order, runID string) (*ReconcileResult, error) {
	result := &ReconcileResult{
		MLOrderID: order.MLOrderID,
		OldStatus: order.Status,
		NewStatus: order.Status,
	}

	remote, err := s.meliSvc.GetOrder(ctx, order.MLSellerID, order.MLOrderID)
	if err != nil {
		return nil, fmt.Errorf("拉取订单 %d 失败: %w", order.MLOrderID, err)
	}

	fields := map[string]interface{}{
		"ml_status":    remote.Status,
		"total_amount": remote.TotalAmount,
		"paid_amount":  remote.PaidAmount,
	}
	if remote.PackID != 0 {
		fields["pack_id"] = remote.PackID
	}
	if remote.Buyer != nil {
		fields["buyer_nickname"] = remote.Buyer.Nickname
		fields["buyer_name"] = remote.Buyer.FirstName + " " + remote.Buyer.LastName
	}

	// 发货详情：substatus / logistic_type
	shipmentID := order.ShipmentID
	if remote.Shipping != nil && remote.Shipping.ID != 0 {
		shipmentID = remote.Shipping.ID
		fields["shipment_id"] = shipmentID
	}
	var substatus string
	if shipmentID != 0 {
		shipment, serr := s.meliSvc.GetShipment(ctx, order.MLSellerID, shipmentID)
		if serr != nil {
			log.Printf("[Sync] 订单 %d 发货详情拉取失败: %v", order.MLOrderID, serr)
		} else {
			substatus = shipment.Substatus
			result.Substatus = substatus
			fields["ml_substatus"] = shipment.Substatus
			if lt := shipment.ResolveLogisticType(); lt != "" {
				fields["logistic_type"] = lt
			}
			if b, merr := json.Marshal(shipment); merr == nil {
				fields["shipping_details"] = datatypes.JSON(b)
			}
		}
	}

	// 状态折算 + 覆盖守卫
	mapped := MapStatus(remote.Status, substatus, remote.Tags)
	switch {
	case ShouldUpdateStatus(order.Status, mapped, order.StatusManual):
		fields["status"] = mapped
		result.NewStatus = mapped
		result.Changed = true
		if order.StatusManual {
			fields["status_manual"] = false
			fields["status_manual_at"] = nil
		}
	case order.StatusManual && mapped != order.Status:
		result.Skipped = "manual"
	}

	now := time.Now()
	fields["synced_at"] = &now
	if err = s.orderRepo.UpdateFields(ctx, order.ID, fields); err != nil {
		return nil, fmt.Errorf("订单 %d 落库失败: %w", order.MLOrderID, err)
	}
	if result.Changed && s.eventRepo != nil {
		event := &model.OrderEvent{
			MLOrderID:  order.MLOrderID,
			MLSellerID: order.MLSellerID,
			OldStatus:  result.OldStatus,
			NewStatus:  result.NewStatus,
			Source:     model.EventSourceReconcile,
			RunID:      runID,
		}
		if eerr := s.eventRepo.Create(ctx, event); eerr != nil {
			log.Printf("[Sync] 订单 %d 状态流水写入失败: %v", order.MLOrderID, eerr)
		}
	}
	order.Status = result.NewStatus
	order.ShipmentID = shipmentID

	// 发票补齐：已支付链路且未开票，先定位，定位不到再顺带开票
	if s.invoiceSvc != nil && !order.IsInvoiced() {
		switch result.NewStatus {
		case model.StatusPaid, model.StatusShipped, model.StatusDelivered:
			if _, lerr := s.invoiceSvc.Locate(ctx, order); lerr == nil {
				result.InvoiceHit = true
			} else if lerr == ErrInvoiceNotFound {
				s.tryEmit(ctx, order, result)
			} else {
				log.Printf("[Sync] 订单 %d 发票定位失败: %v", order.MLOrderID, lerr)
			}
		}
	}

	return result, nil
}

// tryEmit 对账顺带开票；失败只记日志，不影响对账结果
func (s *SyncService) tryEmit(ctx context.Context, order *model.Order, result *ReconcileResult) {
	if s.emitterSvc == nil {
		return
	}
	doc, err := s.emitterSvc.Emit(ctx, order)
	if err != nil {
		log.Printf("[Sync] 订单 %d 顺带开票未成功: %v", order.MLOrderID, err)
		return
	}
	if doc != nil && doc.Number != "" {
		result.InvoiceHit = true
	}
}

// ReconcileBatch 批量对账
// 按 reconcileChunkSize 分批并发，批间加间隔；每次运行带独立 run_id 便于追踪
func (s *SyncService) ReconcileBatch(ctx context.Context, orders []model.Order) *BatchResult {
	batch := &BatchResult{
		RunID: uuid.NewString(),
		Total: len(orders),
	}
	if len(orders) == 0 {
		return batch
	}
	log.Printf("[Sync] 对账批次 %s 启动，共 %d 单", batch.RunID, len(orders))

	var mu sync.Mutex
	for start := 0; start < len(orders); start += reconcileChunkSize {
		end := start + reconcileChunkSize
		if end > len(orders) {
			end = len(orders)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(order model.Order) {
				defer wg.Done()
				result, err := s.reconcileOne(ctx, &order, batch.RunID)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					batch.Failed++
					batch.Errors = append(batch.Errors, err.Error())
					return
				}
				if result.Changed {
					batch.Changed++
				} else {
					batch.Unchanged++
				}
				batch.Results = append(batch.Results, *result)
			}(orders[i])
		}
		wg.Wait()

		if end < len(orders) {
			select {
			case <-ctx.Done():
				batch.Errors = append(batch.Errors, ctx.Err().Error())
				return batch
			case <-time.After(reconcileChunkGap):
			}
		}
	}

	log.Printf("[Sync] 对账批次 %s 完成: 变更 %d / 未变 %d / 失败 %d",
		batch.RunID, batch.Changed, batch.Unchanged, batch.Failed)
	return batch
}

// ReconcileStale 对账某卖家长时间未同步的非终态订单
func (s *SyncService) ReconcileStale(ctx context.Context, sellerID int64, olderThan time.Duration, limit int) (*BatchResult, error) {
	before := time.Now().Add(-olderThan)
	orders, err := s.orderRepo.GetStaleOrders(ctx, sellerID, before, limit)
	if err != nil {
		return nil, err
	}
	return s.ReconcileBatch(ctx, orders), nil
}
