package service

import (
	"context"
	"errors"
	"log"
	"time"

	"meli_erp_v1_202608/internal/model"
	"meli_erp_v1_202608/internal/repository"
	"meli_erp_v1_202608/pkg/meli"
)

// ==================== 发票来源 ====================

const (
	InvoiceSourceOrder    = "order"    // 按订单查到（平台代开）
	InvoiceSourcePack     = "pack"     // 包裹上传文件（自行开票）
	InvoiceSourceShipment = "shipment" // 按发货查到（合包场景）
)

// FiscalDocument 定位到的税务文件（不落库的领域对象，落库字段在 Order 上）
type FiscalDocument struct {
	Source string
	Number string
	Series string
	Key    string
	XMLURL string
	PDFURL string
	Status string
}

// ==================== InvoiceService 发票定位 ====================

// lookupFn 单个查找渠道，未命中时返回 (nil, nil)
type lookupFn func(ctx context.Context, order *model.Order) (*FiscalDocument, error)

// InvoiceService 发票定位服务
// 同一笔销售的发票可能挂在订单、包裹或发货三个位置之一，
// 按固定顺序逐一尝试，命中即回写订单
type InvoiceService struct {
	meliSvc   *MeliService
	orderRepo repository.OrderRepository
}

// NewInvoiceService 工厂方法
func NewInvoiceService(meliSvc *MeliService, orderRepo repository.OrderRepository) *InvoiceService {
	return &InvoiceService{
		meliSvc:   meliSvc,
		orderRepo: orderRepo,
	}
}

// Locate 定位订单的授权发票
// 查找顺序：订单维度 -> 包裹上传文件 -> 发货维度
// 单个渠道出错（平台 4xx/5xx 或网络故障）按该渠道未命中处理，
// 继续走下一渠道；三处都未命中返回 ErrInvoiceNotFound
func (s *InvoiceService) Locate(ctx context.Context, order *model.Order) (*FiscalDocument, error) {
	strategies := []struct {
		name   string
		lookup lookupFn
	}{
		{InvoiceSourceOrder, s.lookupByOrder},
		{InvoiceSourcePack, s.lookupByPack},
		{InvoiceSourceShipment, s.lookupByShipment},
	}

	for _, st := range strategies {
		doc, err := st.lookup(ctx, order)
		if err != nil {
			log.Printf("[Invoice] 订单 %d 渠道 %s 查找失败，改走下一渠道: %v", order.MLOrderID, st.name, err)
			continue
		}
		if doc != nil {
			if err = s.persist(ctx, order, doc); err != nil {
				log.Printf("[Invoice] 订单 %d 发票回写失败: %v", order.MLOrderID, err)
			}
			return doc, nil
		}
	}
	return nil, ErrInvoiceNotFound
}

// LocateByRef 按外部引用定位发票
func (s *InvoiceService) LocateByRef(ctx context.Context, ref string) (*FiscalDocument, error) {
	order, err := s.orderRepo.GetByAnyRef(ctx, ref)
	if err != nil {
		return nil, ErrOrderNotFound
	}
	return s.Locate(ctx, order)
}

// lookupByOrder 订单维度查发票
func (s *InvoiceService) lookupByOrder(ctx context.Context, order *model.Order) (*FiscalDocument, error) {
	invoice, err := s.meliSvc.GetOrderInvoice(ctx, order.MLSellerID, order.MLOrderID)
	if err != nil {
		return nil, ignoreNotFound(err)
	}
	if !invoice.IsAuthorized() {
		return nil, nil
	}
	return docFromInvoice(InvoiceSourceOrder, invoice), nil
}

// lookupByPack 包裹上传的税务文件（卖家自行开票路径）
func (s *InvoiceService) lookupByPack(ctx context.Context, order *model.Order) (*FiscalDocument, error) {
	if order.PackID == 0 {
		return nil, nil
	}
	docs, err := s.meliSvc.GetPackFiscalDocs(ctx, order.MLSellerID, order.PackID)
	if err != nil {
		return nil, ignoreNotFound(err)
	}
	for _, d := range docs.FiscalDocuments {
		if d.InvoiceNumber == "" {
			continue
		}
		return &FiscalDocument{
			Source: InvoiceSourcePack,
			Number: d.InvoiceNumber,
			Series: d.InvoiceSeries,
			Key:    d.InvoiceKey,
			Status: d.Status,
		}, nil
	}
	return nil, nil
}

// lookupByShipment 发货维度查发票
// 订单上没有 shipment_id 时先从订单详情补齐，再不行从包裹详情补齐
func (s *InvoiceService) lookupByShipment(ctx context.Context, order *model.Order) (*FiscalDocument, error) {
	shipmentID := order.ShipmentID
	if shipmentID == 0 {
		remote, err := s.meliSvc.GetOrder(ctx, order.MLSellerID, order.MLOrderID)
		if err != nil {
			return nil, ignoreNotFound(err)
		}
		if remote.Shipping != nil {
			shipmentID = remote.Shipping.ID
		}
	}
	if shipmentID == 0 && order.PackID != 0 {
		pack, err := s.meliSvc.GetPack(ctx, order.MLSellerID, order.PackID)
		if err != nil {
			return nil, ignoreNotFound(err)
		}
		if pack.Shipment != nil {
			shipmentID = pack.Shipment.ID
		}
	}
	if shipmentID == 0 {
		return nil, nil
	}

	invoice, err := s.meliSvc.GetShipmentInvoice(ctx, order.MLSellerID, shipmentID)
	if err != nil {
		return nil, ignoreNotFound(err)
	}
	if !invoice.IsAuthorized() {
		return nil, nil
	}
	return docFromInvoice(InvoiceSourceShipment, invoice), nil
}

// persist 把定位结果回写到订单
func (s *InvoiceService) persist(ctx context.Context, order *model.Order, doc *FiscalDocument) error {
	now := time.Now()
	fields := map[string]interface{}{
		"invoice_status":  model.InvoiceAuthorized,
		"invoice_number":  doc.Number,
		"invoice_series":  doc.Series,
		"invoice_key":     doc.Key,
		"invoice_xml_url": doc.XMLURL,
		"invoice_pdf_url": doc.PDFURL,
		"invoiced_at":     &now,
	}
	if err := s.orderRepo.UpdateFields(ctx, order.ID, fields); err != nil {
		return err
	}
	order.InvoiceStatus = model.InvoiceAuthorized
	order.InvoiceNumber = doc.Number
	order.InvoiceSeries = doc.Series
	order.InvoiceKey = doc.Key
	order.InvoiceXMLURL = doc.XMLURL
	order.InvoicePDFURL = doc.PDFURL
	order.InvoicedAt = &now
	return nil
}

func docFromInvoice(source string, invoice *meli.InvoiceResp) *FiscalDocument {
	return &FiscalDocument{
		Source: source,
		Number: invoice.InvoiceNumber,
		Series: invoice.InvoiceSeries,
		Key:    invoice.Key(),
		XMLURL: invoice.XMLURL(),
		PDFURL: invoice.PDFURL(),
		Status: invoice.Status,
	}
}

// ignoreNotFound 404 视为未命中，其余错误原样上抛
func ignoreNotFound(err error) error {
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.StatusCode == 404 {
		return nil
	}
	return err
}
