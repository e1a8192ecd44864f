package meli

// ==========================================
// DTO: 发往 Mercado Livre API 的请求体
// ==========================================

// TokenReq OAuth Token 请求
// POST /oauth/token (application/x-www-form-urlencoded)
type TokenReq struct {
	GrantType    string // authorization_code / refresh_token
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
	RefreshToken string
}

// FormValues 转换为表单键值对
func (r *TokenReq) FormValues() map[string]string {
	v := map[string]string{
		"grant_type":    r.GrantType,
		"client_id":     r.ClientID,
		"client_secret": r.ClientSecret,
	}
	switch r.GrantType {
	case "authorization_code":
		v["code"] = r.Code
		v["redirect_uri"] = r.RedirectURI
	case "refresh_token":
		v["refresh_token"] = r.RefreshToken
	}
	return v
}

// InvoiceEmitReq 请求平台代开发票
// POST /users/{user_id}/invoices/orders/{order_id}
// POST /users/{user_id}/invoices/shipments/{shipment_id}
type InvoiceEmitReq struct {
	// 同包裹的全部订单号（订单维度开票，一张发票覆盖合包）
	Orders []int64 `json:"orders,omitempty"`
	// 买家税务证件（CPF/CNPJ），缺失时平台会拒绝
	BillingInfo *EmitBillingInfo `json:"billing_info,omitempty"`
	// 卖家税务身份，发货维度开票时平台强制要求
	SellerInfo *EmitSellerInfo `json:"seller_info,omitempty"`
}

// EmitBillingInfo 开票用买家证件
type EmitBillingInfo struct {
	DocType   string `json:"doc_type"`
	DocNumber string `json:"doc_number"`
}

// EmitSellerInfo 开票用卖家税务身份
type EmitSellerInfo struct {
	Name      string `json:"name"`
	DocType   string `json:"doc_type"`
	DocNumber string `json:"doc_number"`
}
