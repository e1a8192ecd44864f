package model

import (
	"time"
)

// Token 状态常量
const (
	TokenStatusValid   = "valid"        // 有效
	TokenStatusExpired = "expired"      // 已过期
	TokenStatusInvalid = "auth_invalid" // 需重新授权
)

// ExpirySafetyMargin 判定过期时预留的安全余量
// 临近过期的 Token 直接按过期处理，避免请求途中失效
const ExpirySafetyMargin = 5 * time.Minute

// Token 卖家账号的 OAuth 凭证
// 同一 MLUserID 可能存在多条记录（历史遗留），解析时按过期时间倒序逐条验证
type Token struct {
	BaseModel

	// 归属的平台卖家 ID（非主键外键，直接存平台 user_id）
	MLUserID int64 `gorm:"index;not null"`

	AccessToken  string    `gorm:"size:512;not null"`
	RefreshToken string    `gorm:"size:512"`
	TokenType    string    `gorm:"size:20;default:'Bearer'"`
	Scope        string    `gorm:"size:255"`
	ExpiresAt    time.Time `gorm:"index;not null"`

	Status string `gorm:"index;size:20;default:'valid'"`
}

// IsExpired 判断 Token 是否已过期（含安全余量）
func (t *Token) IsExpired() bool {
	return time.Now().Add(ExpirySafetyMargin).After(t.ExpiresAt)
}

func (Token) TableName() string {
	return "ml_tokens"
}
