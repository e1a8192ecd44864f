package repository

import (
	"context"
	"time"

	"meli_erp_v1_202608/internal/model"

	"gorm.io/gorm"
)

// ==================== AccountRepository 卖家账号仓库 ====================

// AccountRepository 卖家账号仓库接口
type AccountRepository interface {
	Create(ctx context.Context, account *model.MLAccount) error
	GetByID(ctx context.Context, id int64) (*model.MLAccount, error)
	GetByMLUserID(ctx context.Context, mlUserID int64) (*model.MLAccount, error)
	GetByMLUserIDWithCompany(ctx context.Context, mlUserID int64) (*model.MLAccount, error)
	ListActive(ctx context.Context) ([]model.MLAccount, error)
	Update(ctx context.Context, account *model.MLAccount) error
	UpdateStatus(ctx context.Context, id int64, status int) error
	TouchSyncedAt(ctx context.Context, id int64, t time.Time) error
}

type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository 创建卖家账号仓库
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(ctx context.Context, account *model.MLAccount) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *accountRepository) GetByID(ctx context.Context, id int64) (*model.MLAccount, error) {
	var account model.MLAccount
	err := r.db.WithContext(ctx).First(&account, id).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) GetByMLUserID(ctx context.Context, mlUserID int64) (*model.MLAccount, error) {
	var account model.MLAccount
	err := r.db.WithContext(ctx).Where("ml_user_id = ?", mlUserID).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) GetByMLUserIDWithCompany(ctx context.Context, mlUserID int64) (*model.MLAccount, error) {
	var account model.MLAccount
	err := r.db.WithContext(ctx).
		Preload("Company").
		Where("ml_user_id = ?", mlUserID).
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) ListActive(ctx context.Context) ([]model.MLAccount, error) {
	var accounts []model.MLAccount
	err := r.db.WithContext(ctx).
		Where("status = ?", model.AccountStatusActive).
		Find(&accounts).Error
	return accounts, err
}

func (r *accountRepository) Update(ctx context.Context, account *model.MLAccount) error {
	return r.db.WithContext(ctx).Save(account).Error
}

func (r *accountRepository) UpdateStatus(ctx context.Context, id int64, status int) error {
	return r.db.WithContext(ctx).Model(&model.MLAccount{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *accountRepository) TouchSyncedAt(ctx context.Context, id int64, t time.Time) error {
	return r.db.WithContext(ctx).Model(&model.MLAccount{}).
		Where("id = ?", id).
		Update("last_synced_at", t).Error
}
