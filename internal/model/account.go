package model

import (
	"time"
)

// 账号状态常量
const (
	AccountStatusPending  = 0 // 待授权
	AccountStatusActive   = 1 // 正常
	AccountStatusInactive = 2 // 已停用
)

// MLAccount Mercado Livre 卖家账号
// 一个公司可绑定多个卖家账号，每个账号可持有多条 Token 记录
type MLAccount struct {
	BaseModel

	// 核心身份
	// MLUserID 对应平台的 user_id（即 seller_id），区别于主键 ID
	MLUserID int64  `gorm:"uniqueIndex;not null"`
	Nickname string `gorm:"size:100"`
	SiteID   string `gorm:"size:10;default:'MLB'"` // 站点，巴西为 MLB
	Email    string `gorm:"size:100"`

	// 归属公司
	CompanyID int64                 `gorm:"index;not null"`
	Company   *CompanyFiscalProfile `gorm:"foreignKey:CompanyID"`

	// 账号状态
	Status       int        `gorm:"default:0;comment:状态 0-待授权 1-正常 2-已停用"`
	LastSyncedAt *time.Time `gorm:"comment:最后订单同步时间"`

	// Token 记录（Has Many，同账号保留多条候选）
	Tokens []Token `gorm:"foreignKey:MLUserID;references:MLUserID"`
}

func (MLAccount) TableName() string {
	return "ml_accounts"
}
