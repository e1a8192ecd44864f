package repository

import (
	"context"

	"meli_erp_v1_202608/internal/model"

	"gorm.io/gorm"
)

// ==================== CompanyRepository 公司税务档案仓库 ====================

// CompanyRepository 公司税务档案仓库接口
type CompanyRepository interface {
	Create(ctx context.Context, company *model.CompanyFiscalProfile) error
	GetByID(ctx context.Context, id int64) (*model.CompanyFiscalProfile, error)
	GetByCNPJ(ctx context.Context, cnpj string) (*model.CompanyFiscalProfile, error)
	List(ctx context.Context) ([]model.CompanyFiscalProfile, error)
	Update(ctx context.Context, company *model.CompanyFiscalProfile) error
}

type companyRepository struct {
	db *gorm.DB
}

// NewCompanyRepository 创建公司税务档案仓库
func NewCompanyRepository(db *gorm.DB) CompanyRepository {
	return &companyRepository{db: db}
}

func (r *companyRepository) Create(ctx context.Context, company *model.CompanyFiscalProfile) error {
	return r.db.WithContext(ctx).Create(company).Error
}

func (r *companyRepository) GetByID(ctx context.Context, id int64) (*model.CompanyFiscalProfile, error) {
	var company model.CompanyFiscalProfile
	err := r.db.WithContext(ctx).First(&company, id).Error
	if err != nil {
		return nil, err
	}
	return &company, nil
}

func (r *companyRepository) GetByCNPJ(ctx context.Context, cnpj string) (*model.CompanyFiscalProfile, error) {
	var company model.CompanyFiscalProfile
	err := r.db.WithContext(ctx).Where("cnpj = ?", cnpj).First(&company).Error
	if err != nil {
		return nil, err
	}
	return &company, nil
}

func (r *companyRepository) List(ctx context.Context) ([]model.CompanyFiscalProfile, error) {
	var companies []model.CompanyFiscalProfile
	err := r.db.WithContext(ctx).Order("id ASC").Find(&companies).Error
	return companies, err
}

func (r *companyRepository) Update(ctx context.Context, company *model.CompanyFiscalProfile) error {
	return r.db.WithContext(ctx).Save(company).Error
}
