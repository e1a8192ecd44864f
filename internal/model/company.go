package model

// 开票模式常量
const (
	EmissionModePlatform = "platform" // 平台代开（ML 自动开票）
	EmissionModeOwn      = "own"      // 自行开票后上传
)

// CompanyFiscalProfile 公司税务档案
// 决定该公司名下账号的开票模式与税务参数
type CompanyFiscalProfile struct {
	BaseModel

	Name string `gorm:"size:255;not null"`
	CNPJ string `gorm:"size:20;uniqueIndex;not null"`

	// 州注册号（Inscrição Estadual）
	StateRegistration string `gorm:"size:30"`
	// 税制：simples_nacional / normal
	TaxRegime string `gorm:"size:30;default:'simples_nacional'"`

	// 开票模式
	EmissionMode string `gorm:"size:20;default:'platform';comment:platform-平台代开 own-自行开票"`
	// 自行开票时的发票系列号
	InvoiceSeries string `gorm:"size:10;default:'1'"`

	Active bool `gorm:"default:true"`
}

func (CompanyFiscalProfile) TableName() string {
	return "company_fiscal_profiles"
}
