package dto

import "time"

// ==================== 账号/授权 ====================

// LoginURLRequest 生成授权链接请求
type LoginURLRequest struct {
	CompanyID int64 `form:"company_id" binding:"required"`
}

// LoginURLResponse 授权链接响应
type LoginURLResponse struct {
	AuthURL string `json:"auth_url"`
}

// AccountVO 卖家账号视图对象
type AccountVO struct {
	ID           int64      `json:"id"`
	MLUserID     int64      `json:"ml_user_id"`
	Nickname     string     `json:"nickname"`
	SiteID       string     `json:"site_id"`
	CompanyID    int64      `json:"company_id"`
	Status       int        `json:"status"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

// ==================== 对账 ====================

// ReconcileRequest 批量对账请求
type ReconcileRequest struct {
	SellerID int64 `json:"seller_id" binding:"required"`
	// OlderThanMinutes 只处理超过该时长未同步的订单，默认 15 分钟
	OlderThanMinutes int `json:"older_than_minutes"`
	// Limit 单次最多处理的订单数，默认 100
	Limit int `json:"limit"`
}
