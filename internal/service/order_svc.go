package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"meli_erp_v1_202608/internal/api/dto"
	"meli_erp_v1_202608/internal/model"
	"meli_erp_v1_202608/internal/repository"
	"meli_erp_v1_202608/pkg/meli"

	"gorm.io/datatypes"
)

// syncPageSize 订单搜索分页大小
const syncPageSize = 50

// ==================== OrderService ====================

// OrderService 订单服务
type OrderService struct {
	orderRepo   repository.OrderRepository
	accountRepo repository.AccountRepository
	eventRepo   repository.OrderEventRepository
	meliSvc     *MeliService
}

// NewOrderService 创建订单服务
func NewOrderService(
	orderRepo repository.OrderRepository,
	accountRepo repository.AccountRepository,
	eventRepo repository.OrderEventRepository,
	meliSvc *MeliService,
) *OrderService {
	return &OrderService{
		orderRepo:   orderRepo,
		accountRepo: accountRepo,
		eventRepo:   eventRepo,
		meliSvc:     meliSvc,
	}
}

// ==================== 订单列表 ====================

// ListOrders 获取订单列表
func (s *OrderService) ListOrders(ctx context.Context, req *dto.ListOrdersRequest) (*dto.ListOrdersResponse, error) {
	filter := repository.OrderFilter{
		SellerID:      req.SellerID,
		Status:        req.Status,
		InvoiceStatus: req.InvoiceStatus,
		LogisticType:  req.LogisticType,
		Keyword:       req.Keyword,
		Page:          req.Page,
		PageSize:      req.PageSize,
	}

	// 解析日期
	if req.StartDate != "" {
		t, err := time.Parse("2006-01-02", req.StartDate)
		if err == nil {
			filter.StartDate = &t
		}
	}
	if req.EndDate != "" {
		t, err := time.Parse("2006-01-02", req.EndDate)
		if err == nil {
			endOfDay := t.Add(24*time.Hour - time.Second)
			filter.EndDate = &endOfDay
		}
	}

	orders, total, err := s.orderRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("查询订单列表失败: %w", err)
	}

	list := make([]dto.OrderListItem, len(orders))
	for i, order := range orders {
		list[i] = dto.OrderListItem{
			ID:            order.ID,
			MLOrderID:     order.MLOrderID,
			SellerID:      order.MLSellerID,
			PackID:        order.PackID,
			BuyerNickname: order.BuyerNickname,
			Status:        order.Status,
			StatusManual:  order.StatusManual,
			MLStatus:      order.MLStatus,
			LogisticType:  order.LogisticType,
			InvoiceStatus: order.InvoiceStatus,
			InvoiceNumber: order.InvoiceNumber,
			TotalAmount:   order.TotalAmount,
			Currency:      order.Currency,
			MLCreatedAt:   order.MLCreatedAt,
			SyncedAt:      order.SyncedAt,
		}
	}

	return &dto.ListOrdersResponse{
		Total: total,
		List:  list,
	}, nil
}

// GetOrderDetail 获取订单详情
func (s *OrderService) GetOrderDetail(ctx context.Context, orderID int64) (*dto.OrderDetailResponse, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, ErrOrderNotFound
	}
	return dto.NewOrderDetailResponse(order), nil
}

// ==================== 订单同步 ====================

// SyncOrders 拉取某卖家的订单并落库
// 分页遍历搜索结果，逐单折算状态后 upsert
func (s *OrderService) SyncOrders(ctx context.Context, req *dto.SyncOrdersRequest) (*dto.SyncOrdersResponse, error) {
	account, err := s.accountRepo.GetByMLUserID(ctx, req.SellerID)
	if err != nil {
		return nil, ErrAccountNotFound
	}

	result := &dto.SyncOrdersResponse{SellerID: req.SellerID}
	offset := 0
	for {
		page, err := s.meliSvc.SearchOrders(ctx, req.SellerID, offset, syncPageSize)
		if err != nil {
			if result.TotalFetched == 0 {
				return nil, fmt.Errorf("订单搜索失败: %w", err)
			}
			result.Errors = append(result.Errors, fmt.Sprintf("offset %d 拉取失败: %v", offset, err))
			break
		}

		for i := range page.Results {
			remote := &page.Results[i]
			result.TotalFetched++
			isNew, err := s.upsertFromRemote(ctx, req.SellerID, remote)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("订单 %d 同步失败: %v", remote.ID, err))
				continue
			}
			if isNew {
				result.NewOrders++
			} else {
				result.UpdatedOrders++
			}
		}

		offset += len(page.Results)
		if len(page.Results) == 0 || offset >= page.Paging.Total {
			break
		}
		// 非全量模式只拉第一页（最近更新的订单）
		if !req.Full {
			break
		}
	}

	now := time.Now()
	_ = s.accountRepo.TouchSyncedAt(ctx, account.ID, now)

	return result, nil
}

// upsertFromRemote 把平台订单折算后落库
func (s *OrderService) upsertFromRemote(ctx context.Context, sellerID int64, remote *meli.OrderResp) (bool, error) {
	existing, _ := s.orderRepo.GetByMLOrderID(ctx, remote.ID)
	isNew := existing == nil

	order := s.buildOrderRecord(sellerID, remote)

	if isNew {
		// 新订单直接采用折算结果（未知平台状态由 MapStatus 落到 PENDING）
		mapped := MapStatus(remote.Status, "", remote.Tags)
		order.Status = mapped
		if err := s.orderRepo.Upsert(ctx, order); err != nil {
			return true, err
		}
		s.recordEvent(ctx, order, "", mapped, model.EventSourceSync, "新订单入库")
		return true, nil
	}

	// 已有订单：状态走覆盖守卫，其余字段整体刷新
	order.ID = existing.ID
	order.Status = existing.Status
	order.StatusManual = existing.StatusManual
	order.StatusManualAt = existing.StatusManualAt
	order.ShipmentID = pickShipmentID(existing, remote)

	mapped := MapStatus(remote.Status, existing.MLSubstatus, remote.Tags)
	if ShouldUpdateStatus(existing.Status, mapped, existing.StatusManual) {
		order.Status = mapped
		// 权威事件覆盖后解除人工锁定
		if existing.StatusManual {
			order.StatusManual = false
			order.StatusManualAt = nil
		}
	}
	order.MLSubstatus = existing.MLSubstatus

	if err := s.orderRepo.Upsert(ctx, order); err != nil {
		return false, err
	}
	// Upsert 不覆盖状态列，人工/守卫结果单独落库
	if err := s.orderRepo.UpdateFields(ctx, existing.ID, map[string]interface{}{
		"status":           order.Status,
		"status_manual":    order.StatusManual,
		"status_manual_at": order.StatusManualAt,
	}); err != nil {
		return false, err
	}
	if order.Status != existing.Status {
		s.recordEvent(ctx, order, existing.Status, order.Status, model.EventSourceSync, "")
	}
	return false, nil
}

// recordEvent 写状态变更流水（失败只记日志，不阻断主流程）
func (s *OrderService) recordEvent(ctx context.Context, order *model.Order, oldStatus, newStatus, source, note string) {
	if s.eventRepo == nil {
		return
	}
	event := &model.OrderEvent{
		MLOrderID:  order.MLOrderID,
		MLSellerID: order.MLSellerID,
		OldStatus:  oldStatus,
		NewStatus:  newStatus,
		Source:     source,
		Note:       note,
	}
	if err := s.eventRepo.Create(ctx, event); err != nil {
		log.Printf("[Order] 订单 %d 状态流水写入失败: %v", order.MLOrderID, err)
	}
}

// buildOrderRecord 平台订单 -> 本地订单记录（不含状态机字段）
func (s *OrderService) buildOrderRecord(sellerID int64, remote *meli.OrderResp) *model.Order {
	now := time.Now()
	order := &model.Order{
		MLOrderID:   remote.ID,
		MLSellerID:  sellerID,
		PackID:      remote.PackID,
		MLStatus:    remote.Status,
		IsFulfilled: remote.Fulfilled || remote.PackID != 0,
		Tags:        remote.Tags,
		TotalAmount: remote.TotalAmount,
		PaidAmount:  remote.PaidAmount,
		Currency:    remote.CurrencyID,
		SyncedAt:    &now,
	}

	if remote.Buyer != nil {
		order.BuyerUserID = remote.Buyer.ID
		order.BuyerNickname = remote.Buyer.Nickname
		order.BuyerName = remote.Buyer.FirstName + " " + remote.Buyer.LastName
	}
	order.BuyerDocType, order.BuyerDocNum = remote.BuyerDocNumber()

	if remote.Shipping != nil {
		order.ShipmentID = remote.Shipping.ID
		order.LogisticType = remote.Shipping.LogisticType
		if b, err := json.Marshal(remote.Shipping.ReceiverAddress); err == nil && remote.Shipping.ReceiverAddress != nil {
			order.ShippingAddress = datatypes.JSON(b)
		}
	}

	if b, err := json.Marshal(remote.OrderItems); err == nil {
		order.OrderItems = datatypes.JSON(b)
	}
	if b, err := json.Marshal(remote.Payments); err == nil {
		order.Payments = datatypes.JSON(b)
	}

	if t, err := meli.ParseMeliTime(remote.DateCreated); err == nil {
		order.MLCreatedAt = &t
	}
	if remote.DateClosed != "" {
		if t, err := meli.ParseMeliTime(remote.DateClosed); err == nil {
			order.MLClosedAt = &t
		}
	}
	if remote.LastUpdated != "" {
		if t, err := meli.ParseMeliTime(remote.LastUpdated); err == nil {
			order.MLUpdatedAt = &t
		}
	}

	return order
}

func pickShipmentID(existing *model.Order, remote *meli.OrderResp) int64 {
	if remote.Shipping != nil && remote.Shipping.ID != 0 {
		return remote.Shipping.ID
	}
	return existing.ShipmentID
}

// ==================== 人工改状态 ====================

// SetManualStatus 人工设定订单状态并锁定
// 锁定后自动同步不再按层级推进该单，直到权威事件解除
func (s *OrderService) SetManualStatus(ctx context.Context, orderID int64, status string) error {
	if _, ok := statusHierarchy[status]; !ok {
		return fmt.Errorf("未知状态: %s", status)
	}
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return ErrOrderNotFound
	}

	now := time.Now()
	if err := s.orderRepo.UpdateFields(ctx, order.ID, map[string]interface{}{
		"status":           status,
		"status_manual":    true,
		"status_manual_at": &now,
	}); err != nil {
		return err
	}
	s.recordEvent(ctx, order, order.Status, status, model.EventSourceManual, "人工设定状态并锁定")
	return nil
}

// ClearManualStatus 解除人工锁定，下一轮同步恢复自动推进
func (s *OrderService) ClearManualStatus(ctx context.Context, orderID int64) error {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return ErrOrderNotFound
	}
	if err := s.orderRepo.UpdateFields(ctx, order.ID, map[string]interface{}{
		"status_manual":    false,
		"status_manual_at": nil,
	}); err != nil {
		return err
	}
	s.recordEvent(ctx, order, order.Status, order.Status, model.EventSourceManual, "解除人工锁定")
	return nil
}

// ==================== 状态流水 ====================

// ListOrderEvents 查询订单的状态变更流水
func (s *OrderService) ListOrderEvents(ctx context.Context, orderID int64, limit int) ([]model.OrderEvent, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, ErrOrderNotFound
	}
	if s.eventRepo == nil {
		return nil, nil
	}
	return s.eventRepo.ListByOrder(ctx, order.MLOrderID, limit)
}
