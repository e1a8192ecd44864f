package service

import (
	"meli_erp_v1_202608/internal/model"
)

// ==================== 状态映射 ====================
// 把平台订单状态 + 发货 substatus 折算为内部状态，
// 并按状态层级决定是否允许覆盖已有状态。

// statusHierarchy 状态推进层级，数值越大越靠后
// 终态为 0：终态之间的切换不走层级比较，由 alwaysOverride 决定
var statusHierarchy = map[string]int{
	model.StatusPending:        1,
	model.StatusConfirmed:      2,
	model.StatusReadyToPrepare: 3,
	model.StatusPaid:           4,
	model.StatusPartiallyPaid:  4,
	model.StatusShipped:        5,
	model.StatusDelivered:      6,

	model.StatusCancelled:         0,
	model.StatusPendingCancel:     0,
	model.StatusRefunded:          0,
	model.StatusPartiallyRefunded: 0,
	model.StatusInvalid:           0,
}

// alwaysOverride 这些新状态无条件覆盖旧状态（取消、签收、退款等权威事件）
var alwaysOverride = map[string]bool{
	model.StatusCancelled:         true,
	model.StatusDelivered:         true,
	model.StatusShipped:           true,
	model.StatusPaid:              true,
	model.StatusRefunded:          true,
	model.StatusPartiallyRefunded: true,
	model.StatusInvalid:           true,
	model.StatusPendingCancel:     true,
}

// orderStatusMapping 平台订单状态 -> 内部状态
var orderStatusMapping = map[string]string{
	"confirmed":          model.StatusConfirmed,
	"payment_required":   model.StatusPending,
	"payment_in_process": model.StatusPending,
	"paid":               model.StatusPaid,
	"partially_paid":     model.StatusPartiallyPaid,
	"ready_to_ship":      model.StatusPaid,
	"shipped":            model.StatusShipped,
	"delivered":          model.StatusDelivered,
	"cancelled":          model.StatusCancelled,
	"pending_cancel":     model.StatusPendingCancel,
	"refunded":           model.StatusRefunded,
	"partially_refunded": model.StatusPartiallyRefunded,
	"invalid":            model.StatusInvalid,
}

// substatusMapping 发货 substatus -> 内部状态
// substatus 比订单状态更细，存在时优先采用
var substatusMapping = map[string]string{
	// 备货/仓内阶段
	"in_warehouse":      model.StatusPaid,
	"ready_to_print":    model.StatusPaid,
	"printed":           model.StatusPaid,
	"ready_to_pack":     model.StatusPaid,
	"ready_to_ship":     model.StatusPaid,
	"in_pickup_list":    model.StatusPaid,
	"ready_for_pickup":  model.StatusPaid,
	"ready_for_dropoff": model.StatusPaid,
	"picked_up":         model.StatusPaid,
	"dropped_off":       model.StatusPaid,
	"in_hub":            model.StatusPaid,
	"packed":            model.StatusPaid,
	"on_hold":           model.StatusPaid,

	// 运输阶段
	"shipped":            model.StatusShipped,
	"in_transit":         model.StatusShipped,
	"out_for_delivery":   model.StatusShipped,
	"soon_deliver":       model.StatusShipped,
	"at_customs":         model.StatusShipped,
	"delayed_at_customs": model.StatusShipped,
	"left_customs":       model.StatusShipped,

	// 签收
	"delivered": model.StatusDelivered,
	"inferred":  model.StatusDelivered,

	// 异常终态
	"rejected_in_hub":                model.StatusCancelled,
	"lost":                           model.StatusCancelled,
	"damaged":                        model.StatusCancelled,
	"returning_to_sender":            model.StatusCancelled,
	"returned":                       model.StatusCancelled,
	"destroyed":                      model.StatusCancelled,
	"stolen":                         model.StatusCancelled,
	"confiscated":                    model.StatusCancelled,
	"cancelled_measurement_exceeded": model.StatusCancelled,
	"closed_by_user":                 model.StatusCancelled,
	"pack_splitted":                  model.StatusCancelled,
}

// MapStatus 折算内部状态
// 规则：
//  1. substatus 可识别时直接采用
//  2. 否则按订单状态映射，未知的平台状态按 PENDING 处理
//  3. partially_refunded 订单若带 delivered 标签，按已签收处理（部分退款不影响履约完成）
func MapStatus(mlStatus, mlSubstatus string, tags []string) string {
	if mlSubstatus != "" {
		if mapped, ok := substatusMapping[mlSubstatus]; ok {
			return mapped
		}
	}

	mapped, ok := orderStatusMapping[mlStatus]
	if !ok {
		return model.StatusPending
	}

	if mapped == model.StatusPartiallyRefunded {
		for _, t := range tags {
			if t == "delivered" {
				return model.StatusDelivered
			}
		}
	}
	return mapped
}

// ShouldUpdateStatus 决定新状态能否覆盖当前状态
// 规则：
//  1. 非人工锁定的订单，平台状态直接生效
//  2. 人工锁定时，权威事件（alwaysOverride）仍无条件覆盖
//  3. 其余情况只接受层级推进；层级表未收录的状态按 0 计
func ShouldUpdateStatus(current, next string, manual bool) bool {
	if next == "" || next == current {
		return false
	}
	if !manual {
		return true
	}
	if alwaysOverride[next] {
		return true
	}
	return statusHierarchy[next] > statusHierarchy[current]
}
