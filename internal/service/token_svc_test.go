package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"meli_erp_v1_202608/internal/model"
	"meli_erp_v1_202608/internal/repository"
)

// ==================== 测试辅助 ====================

func setupTokenSvcTest(t *testing.T, handler http.Handler) (*TokenService, repository.TokenRepository, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("连接测试数据库失败: %v", err)
	}
	if err = db.AutoMigrate(&model.Token{}, &model.MLAccount{}, &model.CompanyFiscalProfile{}); err != nil {
		t.Fatalf("数据库迁移失败: %v", err)
	}

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tokenRepo := repository.NewTokenRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	svc := NewTokenService(TokenServiceConfig{
		ClientID:     "test-app",
		ClientSecret: "test-secret",
		RedirectURI:  "https://erp.example.com/callback",
	}, tokenRepo, accountRepo)
	svc.client.SetBaseURL(srv.URL)

	return svc, tokenRepo, db
}

func seedToken(t *testing.T, repo repository.TokenRepository, mlUserID int64, access, refresh string, expiresAt time.Time) *model.Token {
	tk := &model.Token{
		MLUserID:     mlUserID,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
		Status:       model.TokenStatusValid,
	}
	if err := repo.Create(context.Background(), tk); err != nil {
		t.Fatalf("写入 Token 失败: %v", err)
	}
	return tk
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ==================== ResolveToken ====================

func TestTokenService_ResolveToken_ValidCandidate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]interface{}{"id": 123, "nickname": "LOJA"})
	})

	svc, repo, _ := setupTokenSvcTest(t, mux)
	seedToken(t, repo, 123, "valid-token", "rt-1", time.Now().Add(6*time.Hour))

	got, err := svc.ResolveToken(context.Background(), 123)
	if err != nil {
		t.Fatalf("解析 Token 失败: %v", err)
	}
	if got != "valid-token" {
		t.Errorf("应直接返回未过期 Token, 实际 %q", got)
	}
}

func TestTokenService_ResolveToken_OwnershipMismatchFallsToRefresh(t *testing.T) {
	refreshed := false
	mux := http.NewServeMux()
	mux.HandleFunc("/users/me", func(w http.ResponseWriter, r *http.Request) {
		// Token 有效但归属另一个卖家
		writeJSON(w, 200, map[string]interface{}{"id": 999})
	})
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		refreshed = true
		writeJSON(w, 200, map[string]interface{}{
			"access_token": "refreshed-token", "refresh_token": "rt-2",
			"expires_in": 21600, "user_id": 123,
		})
	})

	svc, repo, db := setupTokenSvcTest(t, mux)
	seedToken(t, repo, 123, "stranger-token", "", time.Now().Add(6*time.Hour))
	// 第二候选过期，只能走刷新
	seedToken(t, repo, 123, "expired-token", "rt-ok", time.Now().Add(-time.Hour))

	got, err := svc.ResolveToken(context.Background(), 123)
	if err != nil {
		t.Fatalf("解析 Token 失败: %v", err)
	}
	if got != "refreshed-token" {
		t.Errorf("应回退到刷新候选, 实际 %q", got)
	}
	if !refreshed {
		t.Error("应发起过一次刷新请求")
	}

	// 刷新成功替换全部旧记录，只留下新 Token（归属错误的一并清掉）
	var remaining []model.Token
	if err = db.Unscoped().Where("ml_user_id = ?", int64(123)).Find(&remaining).Error; err != nil {
		t.Fatalf("读取 Token 失败: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("刷新后应只剩 1 条 Token, 实际 %d", len(remaining))
	}
	if remaining[0].AccessToken != "refreshed-token" {
		t.Errorf("应保留刷新后的 Token, 实际 %q", remaining[0].AccessToken)
	}
}

func TestTokenService_ResolveToken_AllCandidatesMismatched(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]interface{}{"id": 999})
	})

	svc, repo, db := setupTokenSvcTest(t, mux)
	// 唯一候选归属别的卖家且没有 refresh_token
	wrongOwner := seedToken(t, repo, 123, "stranger-token", "", time.Now().Add(6*time.Hour))

	_, err := svc.ResolveToken(context.Background(), 123)
	if err != ErrOwnershipMismatch {
		t.Fatalf("候选全部归属不符应返回 ErrOwnershipMismatch, 实际 %v", err)
	}

	// 归属错误的 Token 应被标记失效
	var marked model.Token
	if err = db.First(&marked, wrongOwner.ID).Error; err != nil {
		t.Fatalf("读取 Token 失败: %v", err)
	}
	if marked.Status != model.TokenStatusInvalid {
		t.Errorf("归属错误的 Token 应标记为 %s, 实际 %s", model.TokenStatusInvalid, marked.Status)
	}
}

func TestTokenService_ResolveTokenGeneric_SkipsProbe(t *testing.T) {
	probes := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/users/me", func(w http.ResponseWriter, r *http.Request) {
		probes++
		writeJSON(w, 200, map[string]interface{}{"id": 999})
	})

	svc, repo, _ := setupTokenSvcTest(t, mux)
	seedToken(t, repo, 123, "generic-token", "rt-1", time.Now().Add(6*time.Hour))

	got, err := svc.ResolveTokenGeneric(context.Background(), 123)
	if err != nil {
		t.Fatalf("通用解析失败: %v", err)
	}
	if got != "generic-token" {
		t.Errorf("未过期候选应直接返回, 实际 %q", got)
	}
	if probes != 0 {
		t.Errorf("通用解析不应探活, 实际探活 %d 次", probes)
	}
}

func TestTokenService_ResolveTokenGeneric_RefreshesExpired(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]interface{}{
			"access_token": "fresh-generic", "refresh_token": "rt-2",
			"expires_in": 21600, "user_id": 123,
		})
	})

	svc, repo, _ := setupTokenSvcTest(t, mux)
	seedToken(t, repo, 123, "expired-token", "rt-ok", time.Now().Add(-time.Hour))

	got, err := svc.ResolveTokenGeneric(context.Background(), 123)
	if err != nil {
		t.Fatalf("通用解析失败: %v", err)
	}
	if got != "fresh-generic" {
		t.Errorf("过期候选应走刷新, 实际 %q", got)
	}
}

func TestTokenService_ResolveToken_RefreshDenied(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		// 平台明确拒绝刷新
		writeJSON(w, 400, map[string]interface{}{"error": "invalid_grant"})
	})

	svc, repo, _ := setupTokenSvcTest(t, mux)
	seedToken(t, repo, 123, "expired-token", "rt-dead", time.Now().Add(-time.Hour))

	_, err := svc.ResolveToken(context.Background(), 123)
	if err != ErrReauthorizationRequired {
		t.Fatalf("刷新被拒应返回 ErrReauthorizationRequired, 实际 %v", err)
	}
}

func TestTokenService_ResolveToken_NoCandidates(t *testing.T) {
	svc, _, _ := setupTokenSvcTest(t, http.NewServeMux())

	_, err := svc.ResolveToken(context.Background(), 123)
	if err != ErrTokenUnavailable {
		t.Fatalf("无候选应返回 ErrTokenUnavailable, 实际 %v", err)
	}
}

// ==================== Refresh ====================

func TestTokenService_Refresh_ConvergesToSingleRecord(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("grant_type") != "refresh_token" {
			writeJSON(w, 400, map[string]interface{}{"error": "unsupported_grant_type"})
			return
		}
		writeJSON(w, 200, map[string]interface{}{
			"access_token": "fresh", "refresh_token": "rt-next",
			"expires_in": 21600, "user_id": 123,
		})
	})

	svc, repo, _ := setupTokenSvcTest(t, mux)
	seedToken(t, repo, 123, "a", "rt-a", time.Now().Add(time.Hour))
	seedToken(t, repo, 123, "b", "rt-b", time.Now().Add(2*time.Hour))

	if err := svc.Refresh(context.Background(), 123); err != nil {
		t.Fatalf("刷新失败: %v", err)
	}

	// 刷新后收敛为单条
	candidates, err := repo.GetCandidates(context.Background(), 123)
	if err != nil {
		t.Fatalf("查询候选失败: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("刷新后应只剩 1 条 Token, 实际 %d", len(candidates))
	}
	if candidates[0].AccessToken != "fresh" {
		t.Errorf("应保留刷新后的 Token, 实际 %q", candidates[0].AccessToken)
	}
}

// ==================== 授权回调 ====================

func TestTokenService_HandleCallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("grant_type") != "authorization_code" {
			writeJSON(w, 400, map[string]interface{}{"error": "unsupported_grant_type"})
			return
		}
		if r.FormValue("code_verifier") == "" {
			writeJSON(w, 400, map[string]interface{}{"error": "missing code_verifier"})
			return
		}
		writeJSON(w, 200, map[string]interface{}{
			"access_token": "first-token", "refresh_token": "rt-first",
			"expires_in": 21600, "user_id": 123,
		})
	})
	mux.HandleFunc("/users/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]interface{}{
			"id": 123, "nickname": "LOJA_BR", "site_id": "MLB",
			"identification": map[string]string{"type": "CNPJ", "number": "11222333000181"},
		})
	})

	svc, repo, _ := setupTokenSvcTest(t, mux)

	// 先走登录 URL 生成，让 state/verifier 进缓存
	loginURL, err := svc.GenerateLoginURL(context.Background(), 1)
	if err != nil {
		t.Fatalf("生成登录 URL 失败: %v", err)
	}
	state := extractQueryParam(t, loginURL, "state")

	account, err := svc.HandleCallback(context.Background(), "auth-code", state)
	if err != nil {
		t.Fatalf("授权回调失败: %v", err)
	}
	if account.MLUserID != 123 {
		t.Errorf("账号应绑定平台卖家 123, 实际 %d", account.MLUserID)
	}
	if account.Nickname != "LOJA_BR" {
		t.Errorf("昵称应为 LOJA_BR, 实际 %q", account.Nickname)
	}

	candidates, _ := repo.GetCandidates(context.Background(), 123)
	if len(candidates) != 1 || candidates[0].AccessToken != "first-token" {
		t.Fatalf("回调后应落库 1 条 Token, 实际 %+v", candidates)
	}
}

func TestTokenService_HandleCallback_UnknownState(t *testing.T) {
	svc, _, _ := setupTokenSvcTest(t, http.NewServeMux())

	if _, err := svc.HandleCallback(context.Background(), "auth-code", "state-not-cached"); err == nil {
		t.Fatal("未知 state 应报错")
	}
}

// ==================== 内部辅助 ====================

func extractQueryParam(t *testing.T, rawURL, key string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("解析 URL 失败: %v", err)
	}
	value := u.Query().Get(key)
	if value == "" {
		t.Fatalf("URL 中缺少参数 %s: %s", key, rawURL)
	}
	return value
}
