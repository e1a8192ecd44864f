package service

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"meli_erp_v1_202608/internal/model"
)

func newSyncUnderTest(h *meliHarness) *SyncService {
	return NewSyncService(h.orderRepo, h.eventRepo, h.meliSvc, NewInvoiceService(h.meliSvc, h.orderRepo), nil)
}

func serveOrder(h *meliHarness, mlOrderID int64, status string, shipmentID int64, tags ...string) {
	payload := map[string]interface{}{
		"id": mlOrderID, "status": status, "tags": tags,
	}
	if shipmentID != 0 {
		payload["shipping"] = map[string]interface{}{"id": shipmentID}
	}
	h.mux.HandleFunc(fmt.Sprintf("/orders/%d", mlOrderID), func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, payload)
	})
}

func serveShipment(h *meliHarness, shipmentID int64, substatus, logisticType string) {
	h.mux.HandleFunc(fmt.Sprintf("/shipments/%d", shipmentID), func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]interface{}{
			"id": shipmentID, "status": "shipped",
			"substatus": substatus, "logistic_type": logisticType,
		})
	})
}

func serveInvoiceMiss(h *meliHarness) {
	h.mux.HandleFunc("/users/123/invoices/", func(w http.ResponseWriter, r *http.Request) {
		notFoundJSON(w)
	})
	h.mux.HandleFunc("/packs/", func(w http.ResponseWriter, r *http.Request) {
		notFoundJSON(w)
	})
}

// ==================== 单笔对账 ====================

func TestSyncService_ReconcileOne_AdvancesStatus(t *testing.T) {
	h := newMeliHarness(t, 123)
	svc := newSyncUnderTest(h)

	order := h.createOrder(t, &model.Order{MLOrderID: 2000001, MLSellerID: 123, Status: model.StatusPaid})

	serveOrder(h, 2000001, "paid", 4000001)
	serveShipment(h, 4000001, "in_transit", "cross_docking")
	serveInvoiceMiss(h)

	result, err := svc.ReconcileOne(context.Background(), order)
	if err != nil {
		t.Fatalf("对账失败: %v", err)
	}
	if !result.Changed || result.NewStatus != model.StatusShipped {
		t.Fatalf("in_transit 应推进到 SHIPPED, 实际 %+v", result)
	}

	got, _ := h.orderRepo.GetByID(context.Background(), order.ID)
	if got.Status != model.StatusShipped {
		t.Errorf("状态应落库为 SHIPPED, 实际 %q", got.Status)
	}
	if got.ShipmentID != 4000001 {
		t.Errorf("shipment_id 应补齐, 实际 %d", got.ShipmentID)
	}
	if got.MLSubstatus != "in_transit" {
		t.Errorf("ml_substatus 应落库, 实际 %q", got.MLSubstatus)
	}
	if got.LogisticType != "cross_docking" {
		t.Errorf("logistic_type 应落库, 实际 %q", got.LogisticType)
	}
	if got.SyncedAt == nil {
		t.Error("synced_at 应更新")
	}

	events, _ := h.eventRepo.ListByOrder(context.Background(), 2000001, 0)
	if len(events) != 1 {
		t.Fatalf("状态变更应写一条流水, 实际 %d 条", len(events))
	}
	if events[0].Source != model.EventSourceReconcile ||
		events[0].OldStatus != model.StatusPaid ||
		events[0].NewStatus != model.StatusShipped {
		t.Errorf("流水内容不对: %+v", events[0])
	}
}

func TestSyncService_ReconcileOne_ManualLockBlocksAdvance(t *testing.T) {
	h := newMeliHarness(t, 123)
	svc := newSyncUnderTest(h)

	order := h.createOrder(t, &model.Order{
		MLOrderID: 2000001, MLSellerID: 123,
		Status: model.StatusPaid, StatusManual: true,
	})

	// 平台回退到 confirmed：层级低于 PAID 且非权威事件，锁定生效
	serveOrder(h, 2000001, "confirmed", 0)
	serveInvoiceMiss(h)

	result, err := svc.ReconcileOne(context.Background(), order)
	if err != nil {
		t.Fatalf("对账失败: %v", err)
	}
	if result.Changed {
		t.Fatal("人工锁定时低层级状态不应生效")
	}
	if result.Skipped != "manual" {
		t.Errorf("跳过原因应为 manual, 实际 %q", result.Skipped)
	}

	events, _ := h.eventRepo.ListByOrder(context.Background(), 2000001, 0)
	if len(events) != 0 {
		t.Errorf("未变更不应写流水, 实际 %d 条", len(events))
	}
}

func TestSyncService_ReconcileOne_AuthoritativeClearsManualLock(t *testing.T) {
	h := newMeliHarness(t, 123)
	svc := newSyncUnderTest(h)

	order := h.createOrder(t, &model.Order{
		MLOrderID: 2000001, MLSellerID: 123,
		Status: model.StatusShipped, StatusManual: true,
	})

	// 平台取消：权威事件覆盖并解除人工锁
	serveOrder(h, 2000001, "cancelled", 0)

	result, err := svc.ReconcileOne(context.Background(), order)
	if err != nil {
		t.Fatalf("对账失败: %v", err)
	}
	if !result.Changed || result.NewStatus != model.StatusCancelled {
		t.Fatalf("取消应覆盖人工锁定, 实际 %+v", result)
	}

	got, _ := h.orderRepo.GetByID(context.Background(), order.ID)
	if got.StatusManual {
		t.Error("权威覆盖后应解除人工锁定")
	}
	if got.StatusManualAt != nil {
		t.Error("解除锁定后应清空锁定时间")
	}
}

func TestSyncService_ReconcileOne_LocatesInvoice(t *testing.T) {
	h := newMeliHarness(t, 123)
	svc := newSyncUnderTest(h)

	order := h.createOrder(t, &model.Order{MLOrderID: 2000001, MLSellerID: 123, Status: model.StatusPaid})

	serveOrder(h, 2000001, "paid", 0)
	h.mux.HandleFunc("/users/123/invoices/orders/2000001", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, authorizedInvoiceJSON("321"))
	})

	result, err := svc.ReconcileOne(context.Background(), order)
	if err != nil {
		t.Fatalf("对账失败: %v", err)
	}
	if !result.InvoiceHit {
		t.Fatal("已支付未开票订单应顺带定位发票")
	}

	got, _ := h.orderRepo.GetByID(context.Background(), order.ID)
	if got.InvoiceNumber != "321" {
		t.Errorf("发票应回写, 实际 %q", got.InvoiceNumber)
	}
}

func TestSyncService_ReconcileOne_UnknownStatusDefaultsPending(t *testing.T) {
	h := newMeliHarness(t, 123)
	svc := newSyncUnderTest(h)

	order := h.createOrder(t, &model.Order{MLOrderID: 2000001, MLSellerID: 123, Status: model.StatusPaid})

	// 平台新增的未知状态兜底为 PENDING，非人工锁定直接生效
	serveOrder(h, 2000001, "brand_new_platform_status", 0)
	serveInvoiceMiss(h)

	result, err := svc.ReconcileOne(context.Background(), order)
	if err != nil {
		t.Fatalf("对账失败: %v", err)
	}
	if !result.Changed || result.NewStatus != model.StatusPending {
		t.Fatalf("未知平台状态应落到 PENDING, 实际 %+v", result)
	}

	got, _ := h.orderRepo.GetByID(context.Background(), order.ID)
	if got.Status != model.StatusPending {
		t.Errorf("状态应落库为 PENDING, 实际 %q", got.Status)
	}
}

func TestSyncService_ReconcileOne_Idempotent(t *testing.T) {
	h := newMeliHarness(t, 123)
	svc := newSyncUnderTest(h)

	order := h.createOrder(t, &model.Order{MLOrderID: 2000001, MLSellerID: 123, Status: model.StatusConfirmed})

	serveOrder(h, 2000001, "paid", 0)
	h.mux.HandleFunc("/users/123/invoices/orders/2000001", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, authorizedInvoiceJSON("321"))
	})

	first, err := svc.ReconcileOne(context.Background(), order)
	if err != nil {
		t.Fatalf("首轮对账失败: %v", err)
	}
	if !first.Changed || !first.InvoiceHit {
		t.Fatalf("首轮应推进状态并定位发票, 实际 %+v", first)
	}

	// 第二轮对同一订单不再产生任何变化
	got, _ := h.orderRepo.GetByID(context.Background(), order.ID)
	second, err := svc.ReconcileOne(context.Background(), got)
	if err != nil {
		t.Fatalf("次轮对账失败: %v", err)
	}
	if second.Changed || second.InvoiceHit {
		t.Fatalf("次轮对账应无变化, 实际 %+v", second)
	}

	events, _ := h.eventRepo.ListByOrder(context.Background(), 2000001, 0)
	if len(events) != 1 {
		t.Errorf("两轮对账只应有首轮一条流水, 实际 %d 条", len(events))
	}
}

func TestSyncService_ReconcileOne_AutoEmitsOnInvoiceMiss(t *testing.T) {
	h := newMeliHarness(t, 123)
	emitter := newEmitterUnderTest(h)
	svc := NewSyncService(h.orderRepo, h.eventRepo, h.meliSvc, NewInvoiceService(h.meliSvc, h.orderRepo), emitter)
	seedCompanyAndAccount(t, h, 123, model.EmissionModePlatform, true)

	order := h.createOrder(t, &model.Order{
		MLOrderID: 2000001, MLSellerID: 123, ShipmentID: 4000001,
		Status:       model.StatusPaid,
		BuyerDocType: "CPF", BuyerDocNum: "52998224725",
	})

	serveEmittableOrder(h, 2000001, 4000001, "cross_docking")
	serveShipment(h, 4000001, "", "cross_docking")

	// 定位未命中之前发票不存在；对账顺带开票后才可定位
	emitted := false
	h.mux.HandleFunc("/users/123/invoices/orders/2000001", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			emitted = true
			writeJSON(w, 201, map[string]interface{}{"id": 1, "status": "processing"})
			return
		}
		if emitted {
			writeJSON(w, 200, authorizedInvoiceJSON("555"))
			return
		}
		notFoundJSON(w)
	})
	h.mux.HandleFunc("/users/123/invoices/shipments/4000001", func(w http.ResponseWriter, r *http.Request) {
		notFoundJSON(w)
	})

	result, err := svc.ReconcileOne(context.Background(), order)
	if err != nil {
		t.Fatalf("对账失败: %v", err)
	}
	if !emitted {
		t.Fatal("发票未命中时应顺带发起开票")
	}
	if !result.InvoiceHit {
		t.Fatal("开票成功后应视为发票命中")
	}

	got, _ := h.orderRepo.GetByID(context.Background(), order.ID)
	if got.InvoiceNumber != "555" {
		t.Errorf("发票应回写, 实际 %q", got.InvoiceNumber)
	}
}

// ==================== 批量对账 ====================

func TestSyncService_ReconcileBatch_Counts(t *testing.T) {
	h := newMeliHarness(t, 123)
	svc := newSyncUnderTest(h)

	ok := h.createOrder(t, &model.Order{MLOrderID: 2000001, MLSellerID: 123, Status: model.StatusPaid})
	// 平台侧不存在，对账报错计入 Failed
	missing := h.createOrder(t, &model.Order{MLOrderID: 2000404, MLSellerID: 123, Status: model.StatusPaid})

	serveOrder(h, 2000001, "paid", 4000001)
	serveShipment(h, 4000001, "in_transit", "cross_docking")
	serveInvoiceMiss(h)
	h.mux.HandleFunc("/orders/2000404", func(w http.ResponseWriter, r *http.Request) {
		notFoundJSON(w)
	})

	batch := svc.ReconcileBatch(context.Background(), []model.Order{*ok, *missing})
	if batch.RunID == "" {
		t.Error("批次应有 run_id")
	}
	if batch.Total != 2 || batch.Changed != 1 || batch.Failed != 1 {
		t.Fatalf("批次计数不符: %+v", batch)
	}

	// 变更流水携带批次 run_id
	events, _ := h.eventRepo.ListByRun(context.Background(), batch.RunID)
	if len(events) != 1 {
		t.Fatalf("批次应产生 1 条流水, 实际 %d 条", len(events))
	}
	if events[0].MLOrderID != 2000001 || events[0].NewStatus != model.StatusShipped {
		t.Errorf("批次流水内容不对: %+v", events[0])
	}
}

func TestSyncService_ReconcileByRef_UnknownOrder(t *testing.T) {
	h := newMeliHarness(t, 123)
	svc := newSyncUnderTest(h)

	if _, err := svc.ReconcileByRef(context.Background(), "no-such"); err != ErrOrderNotFound {
		t.Fatalf("未知引用应返回 ErrOrderNotFound, 实际 %v", err)
	}
}
