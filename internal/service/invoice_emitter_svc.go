package service

import (
	"context"
	"errors"
	"log"
	"time"

	"meli_erp_v1_202608/internal/model"
	"meli_erp_v1_202608/internal/repository"
	"meli_erp_v1_202608/pkg/meli"

	"github.com/go-resty/resty/v2"
)

// emitterPollAttempts 开票请求受理后轮询授权结果的次数
const emitterPollAttempts = 3

// emitterPollInterval 轮询间隔
const emitterPollInterval = 2 * time.Second

// ==================== EmitterService 开票 ====================

// EmitterService 请求平台开具 NF-e
// 前置校验全部通过才发请求；订单维度为主路径（合包订单一并提交），
// FULL 单在主路径失败时回退发货维度；受理后轮询定位授权发票
type EmitterService struct {
	meliSvc     *MeliService
	invoiceSvc  *InvoiceService
	orderRepo   repository.OrderRepository
	accountRepo repository.AccountRepository
	companyRepo repository.CompanyRepository

	// 错误码描述查询走独立轻量客户端，失败不影响主流程
	errClient *resty.Client

	pollAttempts int
	pollInterval time.Duration
}

// NewEmitterService 工厂方法
func NewEmitterService(meliSvc *MeliService, invoiceSvc *InvoiceService, orderRepo repository.OrderRepository, accountRepo repository.AccountRepository, companyRepo repository.CompanyRepository) *EmitterService {
	return &EmitterService{
		meliSvc:     meliSvc,
		invoiceSvc:  invoiceSvc,
		orderRepo:   orderRepo,
		accountRepo: accountRepo,
		companyRepo: companyRepo,
		errClient: resty.New().
			SetBaseURL(meli.BaseURL).
			SetTimeout(10 * time.Second),
		pollAttempts: emitterPollAttempts,
		pollInterval: emitterPollInterval,
	}
}

// Emit 为订单开票
// 流程：本地前置校验 -> 拉取订单详情补全校验（地址/订单项/金额）->
// 组装买家证件 -> 订单维度开票（合包订单一并提交）->
// FULL 单失败回退发货维度 -> 轮询授权结果
// 已有授权发票时直接返回现有文件，不重复开票
func (s *EmitterService) Emit(ctx context.Context, order *model.Order) (*FiscalDocument, error) {
	// 0. 幂等：已授权直接返回
	if order.IsInvoiced() {
		return &FiscalDocument{
			Source: InvoiceSourceOrder,
			Number: order.InvoiceNumber,
			Series: order.InvoiceSeries,
			Key:    order.InvoiceKey,
			XMLURL: order.InvoiceXMLURL,
			PDFURL: order.InvoicePDFURL,
			Status: model.InvoiceAuthorized,
		}, nil
	}

	// 1. 本地前置校验（失败不发任何平台请求）
	if err := s.validate(ctx, order); err != nil {
		return nil, err
	}

	// 2. 订单详情：收货地址、订单项与金额的校验依据，也是回退路径的输入
	remote, err := s.meliSvc.GetOrder(ctx, order.MLSellerID, order.MLOrderID)
	if err != nil {
		return nil, newEmissionError(EmitKindUnavailable, "order_detail",
			"拉取订单详情失败: "+err.Error(), err)
	}
	if err = s.validateRemote(ctx, order, remote); err != nil {
		return nil, err
	}

	// 3. 买家证件缺失时从发货维度补齐
	billing, err := s.resolveBilling(ctx, order)
	if err != nil {
		return nil, err
	}

	// 4. 请求平台开票（主路径 + 回退）
	if err = s.submit(ctx, order, remote, billing); err != nil {
		return nil, err
	}

	// 5. 受理后标记并轮询授权结果
	_ = s.orderRepo.UpdateFields(ctx, order.ID, map[string]interface{}{
		"invoice_status": model.InvoiceRequested,
	})
	order.InvoiceStatus = model.InvoiceRequested

	return s.awaitAuthorization(ctx, order)
}

// submit 发起开票请求
// 主路径：订单维度，body 携带同包裹的全部本地订单号；
// 回退：仅 FULL 单且有 shipment_id 时改走发货维度，
// 该路径要求显式卖家税务身份
func (s *EmitterService) submit(ctx context.Context, order *model.Order, remote *meli.OrderResp, billing *meli.EmitBillingInfo) error {
	req := &meli.InvoiceEmitReq{
		Orders:      s.packOrders(ctx, order),
		BillingInfo: billing,
	}
	_, perr := s.meliSvc.EmitOrderInvoice(ctx, order.MLSellerID, order.MLOrderID, req)
	if perr == nil {
		return nil
	}

	shipmentID := emitShipmentID(order, remote)
	if !emitIsFulfillment(order, remote) || shipmentID == 0 {
		return s.classify(ctx, order, perr)
	}

	log.Printf("[Emitter] 订单 %d 订单维度开票失败，回退发货维度: %v", order.MLOrderID, perr)
	seller, serr := s.resolveSellerIdentity(ctx, order)
	if serr != nil {
		return serr
	}
	fallbackReq := &meli.InvoiceEmitReq{
		BillingInfo: billing,
		SellerInfo:  seller,
	}
	if _, ferr := s.meliSvc.EmitShipmentInvoice(ctx, order.MLSellerID, shipmentID, fallbackReq); ferr != nil {
		return s.classify(ctx, order, ferr)
	}
	return nil
}

// packOrders 合包时把本地已知的同包裹订单一并提交，一张发票覆盖整个包裹
func (s *EmitterService) packOrders(ctx context.Context, order *model.Order) []int64 {
	ids := []int64{order.MLOrderID}
	if order.PackID == 0 {
		return ids
	}
	siblings, err := s.orderRepo.GetByPackID(ctx, order.PackID)
	if err != nil {
		log.Printf("[Emitter] 订单 %d 查询包裹 %d 同包订单失败: %v", order.MLOrderID, order.PackID, err)
		return ids
	}
	for _, sib := range siblings {
		if sib.MLOrderID != order.MLOrderID {
			ids = append(ids, sib.MLOrderID)
		}
	}
	return ids
}

// resolveSellerIdentity 发货维度开票要求的卖家税务身份
// 优先本地公司税务档案，档案不全时查平台卖家身份
func (s *EmitterService) resolveSellerIdentity(ctx context.Context, order *model.Order) (*meli.EmitSellerInfo, error) {
	if account, err := s.accountRepo.GetByMLUserID(ctx, order.MLSellerID); err == nil && account.CompanyID != 0 && s.companyRepo != nil {
		if company, cerr := s.companyRepo.GetByID(ctx, account.CompanyID); cerr == nil &&
			company.Name != "" && company.CNPJ != "" {
			return &meli.EmitSellerInfo{
				Name:      company.Name,
				DocType:   "CNPJ",
				DocNumber: company.CNPJ,
			}, nil
		}
	}

	user, err := s.meliSvc.GetSellerIdentity(ctx, order.MLSellerID)
	if err != nil {
		return nil, newEmissionError(EmitKindValidation, "seller_identity",
			"无法取得卖家税务身份", err)
	}
	if user.Identification == nil || user.Identification.Number == "" {
		return nil, newEmissionError(EmitKindValidation, "seller_identity",
			"平台未返回卖家税务证件", nil)
	}
	name := user.CompanyName
	if name == "" {
		name = user.Nickname
	}
	return &meli.EmitSellerInfo{
		Name:      name,
		DocType:   user.Identification.Type,
		DocNumber: user.Identification.Number,
	}, nil
}

func emitShipmentID(order *model.Order, remote *meli.OrderResp) int64 {
	if order.ShipmentID != 0 {
		return order.ShipmentID
	}
	if remote.Shipping != nil {
		return remote.Shipping.ID
	}
	return 0
}

func emitIsFulfillment(order *model.Order, remote *meli.OrderResp) bool {
	if order.LogisticType == model.LogisticFulfillment {
		return true
	}
	return remote.Shipping != nil && remote.Shipping.LogisticType == model.LogisticFulfillment
}

// EmitByRef 按外部引用开票
func (s *EmitterService) EmitByRef(ctx context.Context, ref string) (*FiscalDocument, error) {
	order, err := s.orderRepo.GetByAnyRef(ctx, ref)
	if err != nil {
		return nil, ErrOrderNotFound
	}
	return s.Emit(ctx, order)
}

// validate 本地前置校验
// 校验失败返回 validation_failed / scheduling_restricted，不触发平台请求
func (s *EmitterService) validate(ctx context.Context, order *model.Order) error {
	switch order.Status {
	case model.StatusPaid, model.StatusShipped, model.StatusDelivered:
	default:
		return newEmissionError(EmitKindValidation, "order_status",
			"订单状态 "+order.Status+" 不可开票", nil)
	}

	if order.MLSellerID == 0 {
		return newEmissionError(EmitKindValidation, "seller_id",
			"订单缺少卖家标识", nil)
	}

	// 平台限制窗口未过，两条开票路径统一拦截
	if order.InvoiceRestricted(time.Now()) {
		emitErr := newEmissionError(EmitKindScheduling, "availability_window",
			"平台限制开票，未到可用时间", nil)
		emitErr.AvailableAfter = order.InvoiceAvailableAfter
		return emitErr
	}

	account, err := s.accountRepo.GetByMLUserIDWithCompany(ctx, order.MLSellerID)
	if err != nil {
		return ErrAccountNotFound
	}
	if account.Company == nil || !account.Company.Active {
		return newEmissionError(EmitKindValidation, "company_profile",
			"公司税务档案缺失或已停用", nil)
	}
	if account.Company.EmissionMode != model.EmissionModePlatform {
		return newEmissionError(EmitKindValidation, "emission_mode",
			"该公司为自行开票模式，应上传税务文件而非平台代开", nil)
	}
	return nil
}

// validateRemote 基于平台订单详情的前置校验
// 收货地址齐全、至少一个正价订单项、总金额为正，三者缺一不可
func (s *EmitterService) validateRemote(ctx context.Context, order *model.Order, remote *meli.OrderResp) error {
	var addr *meli.ReceiverAddress
	if remote.Shipping != nil {
		addr = remote.Shipping.ReceiverAddress
	}
	// 订单详情上地址不全时用发货详情的地址兜底
	if !addr.IsComplete() {
		if shipmentID := emitShipmentID(order, remote); shipmentID != 0 {
			if shipment, err := s.meliSvc.GetShipment(ctx, order.MLSellerID, shipmentID); err == nil {
				addr = shipment.Receiver
			}
		}
	}
	if !addr.IsComplete() {
		return newEmissionError(EmitKindValidation, "destination_address",
			"收货地址不完整（邮编/街道/城市/州）", nil)
	}

	hasPositiveItem := false
	for _, it := range remote.OrderItems {
		if it.UnitPrice > 0 {
			hasPositiveItem = true
			break
		}
	}
	if !hasPositiveItem {
		return newEmissionError(EmitKindValidation, "order_items",
			"订单缺少单价为正的订单项", nil)
	}

	total := remote.TotalAmount
	if total <= 0 {
		total = remote.ItemsTotal()
	}
	if total <= 0 {
		return newEmissionError(EmitKindValidation, "total_amount",
			"订单总金额无法确定", nil)
	}
	return nil
}

// resolveBilling 组装买家证件；订单缺失时回退到发货维度的 billing_info
func (s *EmitterService) resolveBilling(ctx context.Context, order *model.Order) (*meli.EmitBillingInfo, error) {
	if order.BuyerDocNum != "" {
		return &meli.EmitBillingInfo{
			DocType:   order.BuyerDocType,
			DocNumber: order.BuyerDocNum,
		}, nil
	}

	if order.ShipmentID != 0 {
		info, err := s.meliSvc.GetShipmentBillingInfo(ctx, order.MLSellerID, order.ShipmentID)
		if err == nil && info.DocNumber != "" {
			_ = s.orderRepo.UpdateFields(ctx, order.ID, map[string]interface{}{
				"buyer_doc_type": info.DocType,
				"buyer_doc_num":  info.DocNumber,
			})
			order.BuyerDocType = info.DocType
			order.BuyerDocNum = info.DocNumber
			return &meli.EmitBillingInfo{DocType: info.DocType, DocNumber: info.DocNumber}, nil
		}
	}

	return nil, newEmissionError(EmitKindValidation, "buyer_document",
		"买家税务证件缺失，无法开票", nil)
}

// classify 把平台错误折算为结构化开票错误
func (s *EmitterService) classify(ctx context.Context, order *model.Order, err error) error {
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		// 网络层或 Token 链路错误
		return newEmissionError(EmitKindUnavailable, "", err.Error(), err)
	}

	if apiErr.StatusCode >= 500 {
		return newEmissionError(EmitKindUnavailable, "", apiErr.Error(), err)
	}

	// 平台排程限制：错误体携带未来可用时间
	if ts, ok := apiErr.Body.AvailabilityTime(); ok {
		_ = s.orderRepo.UpdateFields(ctx, order.ID, map[string]interface{}{
			"invoice_available_after": &ts,
		})
		order.InvoiceAvailableAfter = &ts
		emitErr := newEmissionError(EmitKindScheduling, firstCauseCode(&apiErr.Body),
			"平台限制开票，稍后重试", err)
		emitErr.AvailableAfter = &ts
		return emitErr
	}

	code := firstCauseCode(&apiErr.Body)
	message := apiErr.Body.Message
	if desc := s.describeError(ctx, code); desc != "" {
		message = desc
	}
	_ = s.orderRepo.UpdateFields(ctx, order.ID, map[string]interface{}{
		"invoice_status": model.InvoiceFailed,
	})
	order.InvoiceStatus = model.InvoiceFailed
	return newEmissionError(EmitKindRejected, code, message, err)
}

// awaitAuthorization 轮询发票授权结果
// 在窗口内未授权不算失败，返回"已受理待授权"的占位文件，
// 订单保持 requested 状态等下一轮任务定位
func (s *EmitterService) awaitAuthorization(ctx context.Context, order *model.Order) (*FiscalDocument, error) {
	for i := 0; i < s.pollAttempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.pollInterval):
			}
		}
		doc, err := s.invoiceSvc.Locate(ctx, order)
		if err == nil {
			return doc, nil
		}
		if err != ErrInvoiceNotFound {
			log.Printf("[Emitter] 订单 %d 轮询发票失败: %v", order.MLOrderID, err)
		}
	}
	return &FiscalDocument{
		Source: InvoiceSourceOrder,
		Status: model.InvoiceRequested,
	}, nil
}

// describeError 查错误码的人类可读描述，查不到返回空串
func (s *EmitterService) describeError(ctx context.Context, code string) string {
	if code == "" {
		return ""
	}
	var desc meli.ErrorDescResp
	resp, err := s.errClient.R().
		SetContext(ctx).
		SetResult(&desc).
		Get("/invoices/errors/" + code)
	if err != nil || resp.IsError() {
		return ""
	}
	return desc.Description
}

func firstCauseCode(body *meli.ErrorResp) string {
	for _, c := range body.Cause {
		if c.Code != "" {
			return c.Code
		}
	}
	return body.Error
}
