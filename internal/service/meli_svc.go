package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"meli_erp_v1_202608/pkg/meli"
	"meli_erp_v1_202608/pkg/net"
)

// ==================== MeliService 平台网关 ====================

// MeliService Mercado Livre API 访问层
// 所有业务服务经由它调平台接口：统一 Token 解析、请求构建与响应解码
type MeliService struct {
	tokenSvc   *TokenService
	dispatcher net.Dispatcher
	baseURL    string
}

// NewMeliService 工厂方法
func NewMeliService(tokenSvc *TokenService, dispatcher net.Dispatcher) *MeliService {
	return &MeliService{
		tokenSvc:   tokenSvc,
		dispatcher: dispatcher,
		baseURL:    meli.BaseURL,
	}
}

// apiError 平台非 2xx 响应
type apiError struct {
	StatusCode int
	Body       meli.ErrorResp
	Raw        []byte
}

func (e *apiError) Error() string {
	if e.Body.Message != "" {
		return fmt.Sprintf("platform returned %d: %s", e.StatusCode, e.Body.Message)
	}
	return fmt.Sprintf("platform returned %d", e.StatusCode)
}

// doJSON 发送请求并解码 JSON 响应到 out
func (s *MeliService) doJSON(ctx context.Context, sellerID int64, req *http.Request, out interface{}) error {
	resp, err := s.dispatcher.Send(ctx, sellerID, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &apiError{StatusCode: resp.StatusCode, Raw: raw}
		_ = json.Unmarshal(raw, &apiErr.Body)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err = json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode platform response failed: %v", err)
	}
	return nil
}

// get 解析 Token 后发 GET 请求
func (s *MeliService) get(ctx context.Context, sellerID int64, path string, shipmentFormat bool, out interface{}) error {
	token, err := s.tokenSvc.ResolveToken(ctx, sellerID)
	if err != nil {
		return err
	}

	var req *http.Request
	if shipmentFormat {
		req, err = net.BuildShipmentRequest(ctx, s.baseURL+path, token)
	} else {
		req, err = net.BuildMeliGetRequest(ctx, s.baseURL+path, token)
	}
	if err != nil {
		return err
	}
	return s.doJSON(ctx, sellerID, req, out)
}

// post 解析 Token 后发 POST 请求
func (s *MeliService) post(ctx context.Context, sellerID int64, path string, body interface{}, out interface{}) error {
	token, err := s.tokenSvc.ResolveToken(ctx, sellerID)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, merr := json.Marshal(body)
		if merr != nil {
			return merr
		}
		reader = bytes.NewReader(payload)
	}
	req, err := net.BuildMeliPostRequest(ctx, s.baseURL+path, reader, token)
	if err != nil {
		return err
	}
	return s.doJSON(ctx, sellerID, req, out)
}

// ==================== 卖家 ====================

// GetSellerIdentity 取卖家自身的身份与税务信息（发货维度开票用）
// Token 本身就代表该身份，归属探活没有意义，走通用解析
func (s *MeliService) GetSellerIdentity(ctx context.Context, sellerID int64) (*meli.UserResp, error) {
	token, err := s.tokenSvc.ResolveTokenGeneric(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	req, err := net.BuildMeliGetRequest(ctx, s.baseURL+"/users/me", token)
	if err != nil {
		return nil, err
	}
	var user meli.UserResp
	if err = s.doJSON(ctx, sellerID, req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ==================== 订单 ====================

// GetOrder 拉取订单详情
func (s *MeliService) GetOrder(ctx context.Context, sellerID, orderID int64) (*meli.OrderResp, error) {
	var order meli.OrderResp
	path := fmt.Sprintf("/orders/%d", orderID)
	if err := s.get(ctx, sellerID, path, false, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// SearchOrders 按卖家分页搜索订单
func (s *MeliService) SearchOrders(ctx context.Context, sellerID int64, offset, limit int) (*meli.OrderSearchResp, error) {
	var result meli.OrderSearchResp
	path := fmt.Sprintf("/orders/search?seller=%d&sort=date_desc&offset=%d&limit=%d", sellerID, offset, limit)
	if err := s.get(ctx, sellerID, path, false, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ==================== 发货 ====================

// GetShipment 拉取发货详情（新格式，含 logistic_type / substatus）
func (s *MeliService) GetShipment(ctx context.Context, sellerID, shipmentID int64) (*meli.ShipmentResp, error) {
	var shipment meli.ShipmentResp
	path := fmt.Sprintf("/shipments/%d", shipmentID)
	if err := s.get(ctx, sellerID, path, true, &shipment); err != nil {
		return nil, err
	}
	return &shipment, nil
}

// GetShipmentBillingInfo 拉取发货维度的买家税务信息
func (s *MeliService) GetShipmentBillingInfo(ctx context.Context, sellerID, shipmentID int64) (*meli.BillingInfo, error) {
	var wrapper struct {
		BillingInfo meli.BillingInfo `json:"billing_info"`
	}
	path := fmt.Sprintf("/shipments/%d/billing_info", shipmentID)
	if err := s.get(ctx, sellerID, path, true, &wrapper); err != nil {
		return nil, err
	}
	return &wrapper.BillingInfo, nil
}

// ==================== 包裹 ====================

// GetPack 拉取包裹详情
func (s *MeliService) GetPack(ctx context.Context, sellerID, packID int64) (*meli.PackResp, error) {
	var pack meli.PackResp
	path := fmt.Sprintf("/packs/%d", packID)
	if err := s.get(ctx, sellerID, path, false, &pack); err != nil {
		return nil, err
	}
	return &pack, nil
}

// GetPackFiscalDocs 拉取卖家上传到包裹的税务文件
func (s *MeliService) GetPackFiscalDocs(ctx context.Context, sellerID, packID int64) (*meli.PackFiscalDocsResp, error) {
	var docs meli.PackFiscalDocsResp
	path := fmt.Sprintf("/packs/%d/fiscal_documents", packID)
	if err := s.get(ctx, sellerID, path, false, &docs); err != nil {
		return nil, err
	}
	return &docs, nil
}

// ==================== 发票 ====================

// GetOrderInvoice 按订单查发票
func (s *MeliService) GetOrderInvoice(ctx context.Context, sellerID, orderID int64) (*meli.InvoiceResp, error) {
	var invoice meli.InvoiceResp
	path := fmt.Sprintf("/users/%d/invoices/orders/%d", sellerID, orderID)
	if err := s.get(ctx, sellerID, path, false, &invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// GetShipmentInvoice 按发货查发票
func (s *MeliService) GetShipmentInvoice(ctx context.Context, sellerID, shipmentID int64) (*meli.InvoiceResp, error) {
	var invoice meli.InvoiceResp
	path := fmt.Sprintf("/users/%d/invoices/shipments/%d", sellerID, shipmentID)
	if err := s.get(ctx, sellerID, path, false, &invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// EmitOrderInvoice 请求平台按订单开票
func (s *MeliService) EmitOrderInvoice(ctx context.Context, sellerID, orderID int64, req *meli.InvoiceEmitReq) (*meli.InvoiceResp, error) {
	var invoice meli.InvoiceResp
	path := fmt.Sprintf("/users/%d/invoices/orders/%d", sellerID, orderID)
	if err := s.post(ctx, sellerID, path, req, &invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// EmitShipmentInvoice 请求平台按发货开票
func (s *MeliService) EmitShipmentInvoice(ctx context.Context, sellerID, shipmentID int64, req *meli.InvoiceEmitReq) (*meli.InvoiceResp, error) {
	var invoice meli.InvoiceResp
	path := fmt.Sprintf("/users/%d/invoices/shipments/%d", sellerID, shipmentID)
	if err := s.post(ctx, sellerID, path, req, &invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}
