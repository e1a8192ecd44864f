package service

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"meli_erp_v1_202608/internal/model"
	"meli_erp_v1_202608/internal/repository"
	"meli_erp_v1_202608/pkg/meli"
	"meli_erp_v1_202608/pkg/utils"

	"github.com/go-resty/resty/v2"
)

// 业务常量
const (
	// AuthBaseURL 授权页地址（巴西站）
	AuthBaseURL = "https://auth.mercadolivre.com.br/authorization"
	// TokenURL Token 换取/刷新地址
	TokenURL = meli.BaseURL + "/oauth/token"
)

// TokenServiceConfig OAuth 应用配置
type TokenServiceConfig struct {
	ClientID     string
	ClientSecret string
	// RedirectURI 必须与平台后台登记的完全一致
	RedirectURI string
}

// TokenService Token 生命周期管理
// 职责：授权握手、Token 解析（取可用 Token）、刷新与归属校验
type TokenService struct {
	cfg         TokenServiceConfig
	tokenRepo   repository.TokenRepository
	accountRepo repository.AccountRepository
	client      *resty.Client

	// 按卖家串行化解析/刷新，避免并发刷新把对方的 refresh_token 作废
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewTokenService 工厂方法
func NewTokenService(cfg TokenServiceConfig, tokenRepo repository.TokenRepository, accountRepo repository.AccountRepository) *TokenService {
	return &TokenService{
		cfg:         cfg,
		tokenRepo:   tokenRepo,
		accountRepo: accountRepo,
		client: resty.New().
			SetBaseURL(meli.BaseURL).
			SetTimeout(15 * time.Second),
		locks: make(map[int64]*sync.Mutex),
	}
}

func (s *TokenService) userLock(mlUserID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[mlUserID]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[mlUserID] = l
	return l
}

// ==================== 授权握手 ====================

// GenerateLoginURL 生成授权链接
// state 随 PKCE verifier 一起缓存，回调时校验
func (s *TokenService) GenerateLoginURL(ctx context.Context, companyID int64) (string, error) {
	verifier, err := utils.GenerateRandomString(32)
	if err != nil {
		return "", err
	}
	challenge := utils.GenerateCodeChallenge(verifier)
	state, err := utils.GenerateRandomString(16)
	if err != nil {
		return "", err
	}

	// 缓存 Verifier (格式为 key=state, value="verifier:company_id")
	utils.SetCache(state, fmt.Sprintf("%s:%d", verifier, companyID))

	authURL := fmt.Sprintf(
		"%s?response_type=code&client_id=%s&redirect_uri=%s&state=%s&code_challenge=%s&code_challenge_method=S256",
		AuthBaseURL, s.cfg.ClientID, s.cfg.RedirectURI, state, challenge,
	)
	return authURL, nil
}

// HandleCallback 处理授权回调 -> 换 Token -> 建档卖家账号
func (s *TokenService) HandleCallback(ctx context.Context, code, state string) (*model.MLAccount, error) {
	// 1. 校验 State 取缓存
	cachedVal, exists := utils.GetCache(state)
	if !exists {
		return nil, fmt.Errorf("授权超时或 State 无效，请重新发起")
	}

	// 2. 解析缓存 "verifier:company_id"
	parts := strings.Split(cachedVal, ":")
	if len(parts) != 2 {
		return nil, fmt.Errorf("缓存数据格式错误，预期 'verifier:companyID'，实际: %s", cachedVal)
	}
	verifier := parts[0]
	companyID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("缓存中的 CompanyID 无效: %v", err)
	}

	// 3. 换 Token
	tokenResp, err := s.exchangeToken(ctx, map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     s.cfg.ClientID,
		"client_secret": s.cfg.ClientSecret,
		"code":          code,
		"redirect_uri":  s.cfg.RedirectURI,
		"code_verifier": verifier,
	})
	if err != nil {
		return nil, fmt.Errorf("换取 Token 失败: %v", err)
	}

	// 4. 拉取用户信息确认身份
	user, err := s.fetchUser(ctx, tokenResp.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("获取用户信息失败: %v", err)
	}

	// 5. 建档或更新账号
	account, err := s.accountRepo.GetByMLUserID(ctx, user.ID)
	if err != nil {
		account = &model.MLAccount{
			MLUserID:  user.ID,
			CompanyID: companyID,
		}
	}
	account.Nickname = user.Nickname
	account.SiteID = user.SiteID
	account.Email = user.Email
	account.Status = model.AccountStatusActive
	if account.ID == 0 {
		if err = s.accountRepo.Create(ctx, account); err != nil {
			return nil, fmt.Errorf("卖家账号入库失败: %v", err)
		}
	} else {
		if err = s.accountRepo.Update(ctx, account); err != nil {
			return nil, fmt.Errorf("卖家账号更新失败: %v", err)
		}
	}

	// 6. Token 入库（替换旧记录）
	if err = s.tokenRepo.ReplaceAll(ctx, user.ID, newTokenRecord(user.ID, tokenResp)); err != nil {
		return nil, fmt.Errorf("Token 入库失败: %v", err)
	}

	return account, nil
}

// ==================== Token 解析 ====================

// ResolveToken 取某卖家当前可用的 AccessToken，附带归属校验
// 流程：按过期时间倒序取候选 -> 未过期先探活校验归属 ->
// 过期或探活失败则用该候选的 refresh_token 刷新一次 ->
// 刷新成功即收敛入库并返回。全部候选失败时：
// 刷新被平台拒绝返回 ErrReauthorizationRequired，
// 只剩归属不符的候选返回 ErrOwnershipMismatch，
// 其余情况返回 ErrTokenUnavailable
func (s *TokenService) ResolveToken(ctx context.Context, mlUserID int64) (string, error) {
	return s.resolve(ctx, mlUserID, true)
}

// ResolveTokenGeneric 通用/批处理场景取 Token
// 跳过 /users/me 归属探活（调用方不关心 Token 背后是哪个身份），
// 未过期直接用，过期仍走刷新
func (s *TokenService) ResolveTokenGeneric(ctx context.Context, mlUserID int64) (string, error) {
	return s.resolve(ctx, mlUserID, false)
}

func (s *TokenService) resolve(ctx context.Context, mlUserID int64, checkOwner bool) (string, error) {
	lock := s.userLock(mlUserID)
	lock.Lock()
	defer lock.Unlock()

	candidates, err := s.tokenRepo.GetCandidates(ctx, mlUserID)
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		return "", ErrTokenUnavailable
	}

	var refreshDenied, ownerMismatch bool
	for i := range candidates {
		token := &candidates[i]

		if !token.IsExpired() {
			if !checkOwner {
				return token.AccessToken, nil
			}
			ownerID, probeErr := s.probeOwner(ctx, token.AccessToken)
			if probeErr == nil {
				if ownerID == mlUserID {
					return token.AccessToken, nil
				}
				// Token 有效但属于别的卖家，属于配置事故，标记后继续
				// 刷新它只会换来同一身份的新 Token，不走刷新分支
				log.Printf("[Token] 卖家 %d 的 Token(id=%d) 实际归属 %d，标记失效", mlUserID, token.ID, ownerID)
				_ = s.tokenRepo.MarkInvalid(ctx, token.ID)
				ownerMismatch = true
				continue
			}
			// 探活失败（401 或网络），落入刷新分支
		}

		if token.RefreshToken == "" {
			continue
		}
		refreshed, refreshErr := s.refresh(ctx, token)
		if refreshErr == nil {
			return refreshed.AccessToken, nil
		}
		if refreshErr == ErrReauthorizationRequired {
			refreshDenied = true
		}
		log.Printf("[Token] 卖家 %d 候选 Token(id=%d) 刷新失败: %v", mlUserID, token.ID, refreshErr)
	}

	if refreshDenied {
		return "", ErrReauthorizationRequired
	}
	if ownerMismatch {
		return "", ErrOwnershipMismatch
	}
	return "", ErrTokenUnavailable
}

// Refresh 强制刷新某卖家的 Token（定时任务用）
// 取最新候选刷新，成功后收敛为单条记录
func (s *TokenService) Refresh(ctx context.Context, mlUserID int64) error {
	lock := s.userLock(mlUserID)
	lock.Lock()
	defer lock.Unlock()

	candidates, err := s.tokenRepo.GetCandidates(ctx, mlUserID)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return ErrTokenUnavailable
	}

	var lastErr error
	for i := range candidates {
		if candidates[i].RefreshToken == "" {
			continue
		}
		if _, err = s.refresh(ctx, &candidates[i]); err == nil {
			return nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return lastErr
	}
	return ErrTokenUnavailable
}

// refresh 用候选的 refresh_token 换新 Token 并替换入库
func (s *TokenService) refresh(ctx context.Context, token *model.Token) (*model.Token, error) {
	tokenResp, err := s.exchangeToken(ctx, map[string]string{
		"grant_type":    "refresh_token",
		"client_id":     s.cfg.ClientID,
		"client_secret": s.cfg.ClientSecret,
		"refresh_token": token.RefreshToken,
	})
	if err != nil {
		return nil, err
	}

	record := newTokenRecord(token.MLUserID, tokenResp)
	if err = s.tokenRepo.ReplaceAll(ctx, token.MLUserID, record); err != nil {
		return nil, fmt.Errorf("刷新后 Token 入库失败: %v", err)
	}
	return record, nil
}

// exchangeToken 调 oauth/token，authorization_code 与 refresh_token 共用
func (s *TokenService) exchangeToken(ctx context.Context, form map[string]string) (*meli.TokenResp, error) {
	var tokenResp meli.TokenResp
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetFormData(form).
		SetResult(&tokenResp).
		Post("/oauth/token")

	// A. 网络层错误
	if err != nil {
		return nil, fmt.Errorf("token endpoint network error: %v", err)
	}

	// B. 业务层错误（平台明确拒绝）
	if resp.StatusCode() == 400 || resp.StatusCode() == 401 {
		return nil, ErrReauthorizationRequired
	}
	if resp.IsError() {
		return nil, fmt.Errorf("token endpoint returned %d", resp.StatusCode())
	}

	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint returned empty access_token: %s", tokenResp.Error)
	}
	return &tokenResp, nil
}

// probeOwner 用 /users/me 探活并确认 Token 归属
func (s *TokenService) probeOwner(ctx context.Context, accessToken string) (int64, error) {
	var user meli.UserResp
	resp, err := s.client.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetResult(&user).
		Get("/users/me")
	if err != nil {
		return 0, err
	}
	if resp.IsError() {
		return 0, fmt.Errorf("users/me returned %d", resp.StatusCode())
	}
	return user.ID, nil
}

// fetchUser 拉取完整用户信息（授权回调建档用）
func (s *TokenService) fetchUser(ctx context.Context, accessToken string) (*meli.UserResp, error) {
	var user meli.UserResp
	resp, err := s.client.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetResult(&user).
		Get("/users/me")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("users/me returned %d", resp.StatusCode())
	}
	return &user, nil
}

func newTokenRecord(mlUserID int64, resp *meli.TokenResp) *model.Token {
	return &model.Token{
		MLUserID:     mlUserID,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		Scope:        resp.Scope,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
		Status:       model.TokenStatusValid,
	}
}
