package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"meli_erp_v1_202608/internal/model"
	"meli_erp_v1_202608/internal/repository"
	"meli_erp_v1_202608/pkg/net"
)

// ==================== 测试基座 ====================

// meliHarness 打通 Token -> 网关 -> 平台假服务的完整链路
type meliHarness struct {
	db          *gorm.DB
	mux         *http.ServeMux
	srv         *httptest.Server
	orderRepo   repository.OrderRepository
	accountRepo repository.AccountRepository
	eventRepo   repository.OrderEventRepository
	companyRepo repository.CompanyRepository
	meliSvc     *MeliService
}

func newMeliHarness(t *testing.T, sellerID int64) *meliHarness {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("连接测试数据库失败: %v", err)
	}
	if err = db.AutoMigrate(&model.Token{}, &model.MLAccount{}, &model.CompanyFiscalProfile{}, &model.Order{}, &model.OrderEvent{}); err != nil {
		t.Fatalf("数据库迁移失败: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/users/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]interface{}{"id": sellerID})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	tokenRepo := repository.NewTokenRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	orderRepo := repository.NewOrderRepository(db)

	tokenSvc := NewTokenService(TokenServiceConfig{
		ClientID: "test-app", ClientSecret: "test-secret",
	}, tokenRepo, accountRepo)
	tokenSvc.client.SetBaseURL(srv.URL)
	seedToken(t, tokenRepo, sellerID, "harness-token", "rt", time.Now().Add(6*time.Hour))

	meliSvc := NewMeliService(tokenSvc, net.NewDispatcher())
	meliSvc.baseURL = srv.URL

	return &meliHarness{
		db:          db,
		mux:         mux,
		srv:         srv,
		orderRepo:   orderRepo,
		accountRepo: accountRepo,
		eventRepo:   repository.NewOrderEventRepository(db),
		companyRepo: repository.NewCompanyRepository(db),
		meliSvc:     meliSvc,
	}
}

func (h *meliHarness) createOrder(t *testing.T, order *model.Order) *model.Order {
	if err := h.orderRepo.Create(context.Background(), order); err != nil {
		t.Fatalf("建单失败: %v", err)
	}
	return order
}

func notFoundJSON(w http.ResponseWriter) {
	writeJSON(w, 404, map[string]interface{}{"message": "not found", "status": 404})
}

func authorizedInvoiceJSON(number string) map[string]interface{} {
	return map[string]interface{}{
		"id": 1, "status": "authorized",
		"invoice_number": number, "invoice_series": "1",
		"attributes": map[string]string{
			"invoice_key":    "35260811222333000181550010000012341000012349",
			"xml_location":   "/invoices/1/xml",
			"danfe_location": "/invoices/1/danfe",
		},
	}
}

// ==================== 定位策略 ====================

func TestInvoiceService_Locate_OrderLevel(t *testing.T) {
	h := newMeliHarness(t, 123)
	svc := NewInvoiceService(h.meliSvc, h.orderRepo)

	order := h.createOrder(t, &model.Order{MLOrderID: 2000001, MLSellerID: 123, Status: model.StatusPaid})

	h.mux.HandleFunc("/users/123/invoices/orders/2000001", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, authorizedInvoiceJSON("777"))
	})

	doc, err := svc.Locate(context.Background(), order)
	if err != nil {
		t.Fatalf("定位发票失败: %v", err)
	}
	if doc.Source != InvoiceSourceOrder {
		t.Errorf("应命中订单维度, 实际 %q", doc.Source)
	}
	if doc.Number != "777" {
		t.Errorf("发票号应为 777, 实际 %q", doc.Number)
	}

	// 命中后回写订单
	got, _ := h.orderRepo.GetByID(context.Background(), order.ID)
	if got.InvoiceStatus != model.InvoiceAuthorized || got.InvoiceNumber != "777" {
		t.Errorf("发票应回写订单: status=%q number=%q", got.InvoiceStatus, got.InvoiceNumber)
	}
	if got.InvoicedAt == nil {
		t.Error("回写应记录 invoiced_at")
	}
}

func TestInvoiceService_Locate_FallsBackToPack(t *testing.T) {
	h := newMeliHarness(t, 123)
	svc := NewInvoiceService(h.meliSvc, h.orderRepo)

	order := h.createOrder(t, &model.Order{MLOrderID: 2000001, MLSellerID: 123, PackID: 9000001, Status: model.StatusPaid})

	// 订单维度 404，落到包裹上传文件
	h.mux.HandleFunc("/users/123/invoices/orders/2000001", func(w http.ResponseWriter, r *http.Request) {
		notFoundJSON(w)
	})
	h.mux.HandleFunc("/packs/9000001/fiscal_documents", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]interface{}{
			"fiscal_documents": []map[string]interface{}{
				{"id": 5, "invoice_number": "555", "invoice_series": "2", "invoice_key": "chave", "status": "authorized"},
			},
		})
	})

	doc, err := svc.Locate(context.Background(), order)
	if err != nil {
		t.Fatalf("定位发票失败: %v", err)
	}
	if doc.Source != InvoiceSourcePack || doc.Number != "555" {
		t.Errorf("应命中包裹维度 555, 实际 %q/%q", doc.Source, doc.Number)
	}
}

func TestInvoiceService_Locate_ShipmentWithRemoteLookup(t *testing.T) {
	h := newMeliHarness(t, 123)
	svc := NewInvoiceService(h.meliSvc, h.orderRepo)

	// 本地订单没有 shipment_id，定位时需要先拉订单详情补齐
	order := h.createOrder(t, &model.Order{MLOrderID: 2000001, MLSellerID: 123, Status: model.StatusShipped})

	h.mux.HandleFunc("/users/123/invoices/orders/2000001", func(w http.ResponseWriter, r *http.Request) {
		notFoundJSON(w)
	})
	h.mux.HandleFunc("/orders/2000001", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]interface{}{
			"id": 2000001, "status": "paid",
			"shipping": map[string]interface{}{"id": 4000001},
		})
	})
	h.mux.HandleFunc("/users/123/invoices/shipments/4000001", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, authorizedInvoiceJSON("888"))
	})

	doc, err := svc.Locate(context.Background(), order)
	if err != nil {
		t.Fatalf("定位发票失败: %v", err)
	}
	if doc.Source != InvoiceSourceShipment || doc.Number != "888" {
		t.Errorf("应命中发货维度 888, 实际 %q/%q", doc.Source, doc.Number)
	}
}

func TestInvoiceService_Locate_StrategyErrorAdvancesChain(t *testing.T) {
	h := newMeliHarness(t, 123)
	svc := NewInvoiceService(h.meliSvc, h.orderRepo)

	order := h.createOrder(t, &model.Order{MLOrderID: 2000001, MLSellerID: 123, ShipmentID: 4000001, Status: model.StatusPaid})

	// 订单维度返回 400：按该渠道未命中处理，继续走后续渠道
	h.mux.HandleFunc("/users/123/invoices/orders/2000001", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 400, map[string]interface{}{"message": "bad request", "status": 400})
	})
	h.mux.HandleFunc("/users/123/invoices/shipments/4000001", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, authorizedInvoiceJSON("666"))
	})

	doc, err := svc.Locate(context.Background(), order)
	if err != nil {
		t.Fatalf("单渠道出错不应中断定位链: %v", err)
	}
	if doc.Source != InvoiceSourceShipment || doc.Number != "666" {
		t.Errorf("应命中发货维度 666, 实际 %q/%q", doc.Source, doc.Number)
	}
}

func TestInvoiceService_Locate_PackShipmentHop(t *testing.T) {
	h := newMeliHarness(t, 123)
	svc := NewInvoiceService(h.meliSvc, h.orderRepo)

	// 本地没有 shipment_id，订单详情也没有，只能从包裹详情跳到发货维度
	order := h.createOrder(t, &model.Order{MLOrderID: 2000001, MLSellerID: 123, PackID: 9000001, Status: model.StatusPaid})

	h.mux.HandleFunc("/users/123/invoices/orders/2000001", func(w http.ResponseWriter, r *http.Request) {
		notFoundJSON(w)
	})
	h.mux.HandleFunc("/packs/9000001/fiscal_documents", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]interface{}{"fiscal_documents": []map[string]interface{}{}})
	})
	h.mux.HandleFunc("/orders/2000001", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]interface{}{"id": 2000001, "status": "paid"})
	})
	h.mux.HandleFunc("/packs/9000001", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]interface{}{
			"id": 9000001, "seller_id": 123,
			"shipment": map[string]interface{}{"id": 4000001},
		})
	})
	h.mux.HandleFunc("/users/123/invoices/shipments/4000001", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, authorizedInvoiceJSON("444"))
	})

	doc, err := svc.Locate(context.Background(), order)
	if err != nil {
		t.Fatalf("定位发票失败: %v", err)
	}
	if doc.Source != InvoiceSourceShipment || doc.Number != "444" {
		t.Errorf("应经包裹详情跳到发货维度 444, 实际 %q/%q", doc.Source, doc.Number)
	}
}

func TestInvoiceService_Locate_NotFound(t *testing.T) {
	h := newMeliHarness(t, 123)
	svc := NewInvoiceService(h.meliSvc, h.orderRepo)

	order := h.createOrder(t, &model.Order{MLOrderID: 2000001, MLSellerID: 123, ShipmentID: 4000001, Status: model.StatusPaid})

	// 三个渠道全部 404
	for _, path := range []string{
		"/users/123/invoices/orders/2000001",
		"/users/123/invoices/shipments/4000001",
	} {
		h.mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) { notFoundJSON(w) })
	}

	if _, err := svc.Locate(context.Background(), order); err != ErrInvoiceNotFound {
		t.Fatalf("应返回 ErrInvoiceNotFound, 实际 %v", err)
	}
}

func TestInvoiceService_Locate_PendingInvoiceIsMiss(t *testing.T) {
	h := newMeliHarness(t, 123)
	svc := NewInvoiceService(h.meliSvc, h.orderRepo)

	order := h.createOrder(t, &model.Order{MLOrderID: 2000001, MLSellerID: 123, ShipmentID: 4000001, Status: model.StatusPaid})

	// 发票存在但未授权，视为未命中
	h.mux.HandleFunc("/users/123/invoices/orders/2000001", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]interface{}{"id": 1, "status": "processing", "invoice_number": ""})
	})
	h.mux.HandleFunc("/users/123/invoices/shipments/4000001", func(w http.ResponseWriter, r *http.Request) {
		notFoundJSON(w)
	})

	if _, err := svc.Locate(context.Background(), order); err != ErrInvoiceNotFound {
		t.Fatalf("未授权发票不应命中, 实际 %v", err)
	}
}

func TestInvoiceService_LocateByRef_UnknownOrder(t *testing.T) {
	h := newMeliHarness(t, 123)
	svc := NewInvoiceService(h.meliSvc, h.orderRepo)

	if _, err := svc.LocateByRef(context.Background(), "2000404"); err != ErrOrderNotFound {
		t.Fatalf("未知订单应返回 ErrOrderNotFound, 实际 %v", err)
	}
}
