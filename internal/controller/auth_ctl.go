package controller

import (
	"net/http"
	"strconv"

	"meli_erp_v1_202608/internal/middleware"
	"meli_erp_v1_202608/internal/service"

	"github.com/gin-gonic/gin"
)

type AuthController struct {
	tokenService *service.TokenService

	// 后台接口的登录凭证（来自环境配置）
	apiUser   string
	apiSecret string
}

func NewAuthController(s *service.TokenService, apiUser, apiSecret string) *AuthController {
	return &AuthController{
		tokenService: s,
		apiUser:      apiUser,
		apiSecret:    apiSecret,
	}
}

// IssueToken 签发后台访问 JWT
// @Summary 用配置的后台凭证换取 API 访问 Token
// @Tags Auth (授权模块)
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{} "access/refresh token 对"
// @Failure 401 {object} map[string]string "凭证错误"
// @Router /api/login [post]
func (ctrl *AuthController) IssueToken(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Username != ctrl.apiUser || req.Password != ctrl.apiSecret {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "用户名或密码错误"})
		return
	}

	access, refresh, err := middleware.GenerateTokenPair(1, 0, req.Username, "admin")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "签发失败: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  access,
		"refresh_token": refresh,
	})
}

// Login
// @Summary 获取 Mercado Livre 授权链接
// @Description 为公司生成 OAuth 授权跳转链接
// @Tags Auth (授权模块)
// @Accept json
// @Produce json
// @Param company_id query int true "公司税务档案 ID"
// @Success 200 {object} map[string]interface{} "授权链接"
// @Failure 400 {string} string "错误信息"
// @Router /oauth/login [get]
func (ctrl *AuthController) Login(c *gin.Context) {
	companyIDStr := c.Query("company_id")
	if companyIDStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 company_id 参数"})
		return
	}
	companyID, err := strconv.ParseInt(companyIDStr, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "company_id 必须是数字"})
		return
	}

	url, err := ctrl.tokenService.GenerateLoginURL(c.Request.Context(), companyID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "生成失败",
			"detail": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "获取成功",
		"auth_url": url,
	})
}

// Callback
// @Summary Mercado Livre 授权回调
// @Description 接收平台返回的 code 和 state，换取 Token 并建档卖家账号
// @Tags Auth (授权模块)
// @Accept json
// @Produce json
// @Param code query string true "授权码"
// @Param state query string true "安全校验码"
// @Success 200 {object} map[string]interface{} "授权成功信息"
// @Failure 400 {object} map[string]string "拒绝授权/参数错误"
// @Router /api/oauth/callback [get]
func (ctrl *AuthController) Callback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")
	errParam := c.Query("error")

	if errParam != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "用户拒绝了授权", "platform_msg": errParam})
		return
	}

	if code == "" || state == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少必要参数 code 或 state"})
		return
	}

	account, err := ctrl.tokenService.HandleCallback(c.Request.Context(), code, state)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":  "授权失败",
			"detail": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "卖家账号绑定成功",
		"nickname":   account.Nickname,
		"ml_user_id": account.MLUserID,
		"site_id":    account.SiteID,
	})
}

// RefreshToken 手动强制刷新 Token
// @Summary 刷新卖家 Token
// @Tags Auth (授权模块)
// @Accept json
// @Produce json
// @Param seller_id query int true "平台卖家 ID"
// @Success 200 {object} map[string]interface{} "成功消息"
// @Failure 400 {string} string "错误信息"
// @Router /oauth/refresh [get]
func (ctrl *AuthController) RefreshToken(c *gin.Context) {
	sellerIDStr := c.Query("seller_id")
	if sellerIDStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 seller_id 参数"})
		return
	}

	sellerID, err := strconv.ParseInt(sellerIDStr, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "seller_id 必须是数字"})
		return
	}

	if err = ctrl.tokenService.Refresh(c.Request.Context(), sellerID); err != nil {
		if err == service.ErrReauthorizationRequired {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "刷新被拒绝，请重新授权"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "刷新失败: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Token 刷新成功"})
}
