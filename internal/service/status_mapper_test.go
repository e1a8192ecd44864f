package service

import (
	"testing"

	"meli_erp_v1_202608/internal/model"
)

// ==================== 状态映射 ====================

func TestMapStatus_OrderStatus(t *testing.T) {
	cases := []struct {
		mlStatus string
		want     string
	}{
		{"confirmed", model.StatusConfirmed},
		{"paid", model.StatusPaid},
		{"partially_paid", model.StatusPartiallyPaid},
		{"cancelled", model.StatusCancelled},
		{"invalid", model.StatusInvalid},
		{"pending_cancel", model.StatusPendingCancel},
		{"partially_refunded", model.StatusPartiallyRefunded},
		{"payment_in_process", model.StatusPending},
		// 平台新增的未知状态兜底为 PENDING
		{"unknown_status", model.StatusPending},
		{"", model.StatusPending},
	}

	for _, c := range cases {
		got := MapStatus(c.mlStatus, "", nil)
		if got != c.want {
			t.Errorf("MapStatus(%q) = %q, 期望 %q", c.mlStatus, got, c.want)
		}
	}
}

func TestMapStatus_SubstatusWins(t *testing.T) {
	// 子状态优先于订单状态
	got := MapStatus("paid", "delivered", nil)
	if got != model.StatusDelivered {
		t.Errorf("子状态 delivered 应映射为 DELIVERED, 实际 %q", got)
	}

	got = MapStatus("confirmed", "in_transit", nil)
	if got != model.StatusShipped {
		t.Errorf("子状态 in_transit 应映射为 SHIPPED, 实际 %q", got)
	}

	// 未知子状态回退到订单状态
	got = MapStatus("paid", "some_new_substatus", nil)
	if got != model.StatusPaid {
		t.Errorf("未知子状态应回退到订单状态, 实际 %q", got)
	}
}

func TestMapStatus_PartiallyRefundedDeliveredTag(t *testing.T) {
	// 部分退款 + delivered 标签 → 视为已送达
	got := MapStatus("partially_refunded", "", []string{"delivered", "pack_order"})
	if got != model.StatusDelivered {
		t.Errorf("部分退款且带 delivered 标签应为 DELIVERED, 实际 %q", got)
	}

	// 无标签则保持部分退款
	got = MapStatus("partially_refunded", "", []string{"pack_order"})
	if got != model.StatusPartiallyRefunded {
		t.Errorf("部分退款无 delivered 标签应为 PARTIALLY_REFUNDED, 实际 %q", got)
	}
}

// ==================== 覆盖守卫 ====================

func TestShouldUpdateStatus_NotManual(t *testing.T) {
	// 未人工锁定时平台状态直接生效，层级回退也照单全收
	if !ShouldUpdateStatus(model.StatusPaid, model.StatusShipped, false) {
		t.Error("PAID → SHIPPED 应允许")
	}
	if !ShouldUpdateStatus(model.StatusShipped, model.StatusPaid, false) {
		t.Error("非人工锁定时 SHIPPED → PAID 应允许")
	}
	if !ShouldUpdateStatus(model.StatusShipped, model.StatusConfirmed, false) {
		t.Error("非人工锁定时 SHIPPED → CONFIRMED 应允许")
	}
	if !ShouldUpdateStatus(model.StatusCancelled, model.StatusConfirmed, false) {
		t.Error("非人工锁定时终态订单也跟随平台状态")
	}
	if ShouldUpdateStatus(model.StatusPaid, model.StatusPaid, false) {
		t.Error("同状态不应触发更新")
	}
	if ShouldUpdateStatus(model.StatusPaid, "", false) {
		t.Error("空目标状态不应触发更新")
	}
}

func TestShouldUpdateStatus_ManualAlwaysOverride(t *testing.T) {
	// 权威状态无条件穿透人工锁
	if !ShouldUpdateStatus(model.StatusDelivered, model.StatusRefunded, true) {
		t.Error("REFUNDED 应覆盖人工锁定的订单")
	}
	if !ShouldUpdateStatus(model.StatusPaid, model.StatusCancelled, true) {
		t.Error("CANCELLED 应覆盖人工锁定的订单")
	}
	// PAID/SHIPPED 属于权威集合，即使层级回退也覆盖
	if !ShouldUpdateStatus(model.StatusShipped, model.StatusPaid, true) {
		t.Error("PAID 属于权威集合，应覆盖")
	}
	if !ShouldUpdateStatus(model.StatusPaid, model.StatusShipped, true) {
		t.Error("SHIPPED 属于权威集合，应覆盖")
	}
}

func TestShouldUpdateStatus_ManualHierarchy(t *testing.T) {
	// 非权威状态只接受层级推进
	if !ShouldUpdateStatus(model.StatusPending, model.StatusConfirmed, true) {
		t.Error("人工锁定时 PENDING → CONFIRMED 仍应推进")
	}
	if !ShouldUpdateStatus(model.StatusConfirmed, model.StatusReadyToPrepare, true) {
		t.Error("人工锁定时 CONFIRMED → READY_TO_PREPARE 仍应推进")
	}
	if ShouldUpdateStatus(model.StatusPaid, model.StatusConfirmed, true) {
		t.Error("人工锁定时 PAID → CONFIRMED 不应回退")
	}
	if ShouldUpdateStatus(model.StatusPaid, model.StatusReadyToPrepare, true) {
		t.Error("人工锁定时 PAID → READY_TO_PREPARE 不应回退")
	}
	// 终态层级为 0，人工锁定时普通状态可从终态推进出来
	if !ShouldUpdateStatus(model.StatusCancelled, model.StatusConfirmed, true) {
		t.Error("人工锁定在终态时层级推进应允许")
	}
}

func TestShouldUpdateStatus_UnknownStates(t *testing.T) {
	// 层级表未收录的状态按 0 计
	if ShouldUpdateStatus(model.StatusPaid, "SOMETHING_ELSE", true) {
		t.Error("人工锁定时未知目标状态不应触发更新")
	}
	if !ShouldUpdateStatus("LEGACY_STATE", model.StatusConfirmed, true) {
		t.Error("人工锁定时未知当前状态应接受已映射状态")
	}
	if !ShouldUpdateStatus("LEGACY_STATE", model.StatusConfirmed, false) {
		t.Error("非人工锁定时未知当前状态应接受已映射状态")
	}
}
