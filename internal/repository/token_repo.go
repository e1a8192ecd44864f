package repository

import (
	"context"

	"meli_erp_v1_202608/internal/model"

	"gorm.io/gorm"
)

// ==================== TokenRepository Token 仓库 ====================

// TokenRepository Token 仓库接口
type TokenRepository interface {
	Create(ctx context.Context, token *model.Token) error
	// GetCandidates 返回某卖家的全部候选 Token，按过期时间倒序（最新优先）
	GetCandidates(ctx context.Context, mlUserID int64) ([]model.Token, error)
	// ReplaceAll 在单个事务内删除卖家旧 Token 并写入新 Token
	ReplaceAll(ctx context.Context, mlUserID int64, token *model.Token) error
	MarkInvalid(ctx context.Context, id int64) error
	DeleteByUser(ctx context.Context, mlUserID int64) error
}

type tokenRepository struct {
	db *gorm.DB
}

// NewTokenRepository 创建 Token 仓库
func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepository{db: db}
}

func (r *tokenRepository) Create(ctx context.Context, token *model.Token) error {
	return r.db.WithContext(ctx).Create(token).Error
}

func (r *tokenRepository) GetCandidates(ctx context.Context, mlUserID int64) ([]model.Token, error) {
	var tokens []model.Token
	err := r.db.WithContext(ctx).
		Where("ml_user_id = ?", mlUserID).
		Where("status <> ?", model.TokenStatusInvalid).
		Order("expires_at DESC").
		Find(&tokens).Error
	return tokens, err
}

// ReplaceAll 刷新成功后收敛为单条记录，杜绝历史 Token 堆积
func (r *tokenRepository) ReplaceAll(ctx context.Context, mlUserID int64, token *model.Token) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("ml_user_id = ?", mlUserID).Delete(&model.Token{}).Error; err != nil {
			return err
		}
		return tx.Create(token).Error
	})
}

func (r *tokenRepository) MarkInvalid(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Model(&model.Token{}).
		Where("id = ?", id).
		Update("status", model.TokenStatusInvalid).Error
}

func (r *tokenRepository) DeleteByUser(ctx context.Context, mlUserID int64) error {
	return r.db.WithContext(ctx).Unscoped().
		Where("ml_user_id = ?", mlUserID).
		Delete(&model.Token{}).Error
}
