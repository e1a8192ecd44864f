package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestSyncRateLimiter_Check(t *testing.T) {
	limiter := &SyncRateLimiter{}
	key := SellerSyncKey(123, SyncTypeOrder)

	first := limiter.Check(key, time.Minute)
	if !first.Allowed {
		t.Fatal("首次执行应放行")
	}

	second := limiter.Check(key, time.Minute)
	if second.Allowed {
		t.Fatal("冷却期内应拒绝")
	}
	if second.RetryAfter <= 0 || second.RetryAfter > time.Minute {
		t.Errorf("剩余冷却时间不合理: %v", second.RetryAfter)
	}

	// 不同卖家互不影响
	if !limiter.Check(SellerSyncKey(456, SyncTypeOrder), time.Minute).Allowed {
		t.Error("不同卖家的冷却应相互独立")
	}
	// 同卖家不同类型互不影响
	if !limiter.Check(SellerSyncKey(123, SyncTypeReconcile), time.Minute).Allowed {
		t.Error("不同同步类型的冷却应相互独立")
	}

	limiter.Reset(key)
	if !limiter.Check(key, time.Minute).Allowed {
		t.Error("重置后应放行")
	}
}

func TestSyncRateLimit_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST("/sync/orders/:seller_id",
		SyncRateLimit(SyncTypeOrder, time.Minute),
		func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(path string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, path, nil)
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := do("/sync/orders/123"); code != http.StatusOK {
		t.Fatalf("首次触发应放行, 实际 %d", code)
	}
	if code := do("/sync/orders/123"); code != http.StatusTooManyRequests {
		t.Fatalf("冷却期内应返回 429, 实际 %d", code)
	}
	// 其他卖家不受影响
	if code := do("/sync/orders/456"); code != http.StatusOK {
		t.Fatalf("其他卖家应放行, 实际 %d", code)
	}
	if code := do("/sync/orders/abc"); code != http.StatusBadRequest {
		t.Fatalf("非法卖家 ID 应返回 400, 实际 %d", code)
	}

	GetLimiter().Reset(SellerSyncKey(123, SyncTypeOrder))
	GetLimiter().Reset(SellerSyncKey(456, SyncTypeOrder))
}

func TestGlobalSyncRateLimit_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST("/sync/reconcile",
		GlobalSyncRateLimit(SyncTypeReconcile, time.Minute),
		func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sync/reconcile", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("首次触发应放行, 实际 %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sync/reconcile", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("冷却期内应返回 429, 实际 %d", w.Code)
	}

	GetLimiter().Reset(GlobalSyncKey(SyncTypeReconcile))
}
