package net

import (
	"context"
	"io"
	"net/http"
)

// BuildMeliRequest 通用 Mercado Livre 请求构建器
// 适用方：OrderService, InvoiceService, SyncService 等所有业务服务
// 职责：统一封装鉴权头 (Authorization) 和标准头 (Accept, Content-Type)
// 注意：如果 Content-Type 不是 JSON (如 form-data)，调用方获取 req 后可手动覆盖 Header
func BuildMeliRequest(ctx context.Context, method, url string, body io.Reader, accessToken string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	return req, nil
}

// BuildMeliGetRequest 构建 GET 请求
func BuildMeliGetRequest(ctx context.Context, url string, accessToken string) (*http.Request, error) {
	return BuildMeliRequest(ctx, http.MethodGet, url, nil, accessToken)
}

// BuildMeliPostRequest 构建 POST 请求
func BuildMeliPostRequest(ctx context.Context, url string, body io.Reader, accessToken string) (*http.Request, error) {
	return BuildMeliRequest(ctx, http.MethodPost, url, body, accessToken)
}

// BuildShipmentRequest 构建发货详情请求
// 平台要求带 x-format-new: true 才会返回 logistic_type 与 substatus 新格式
func BuildShipmentRequest(ctx context.Context, url string, accessToken string) (*http.Request, error) {
	req, err := BuildMeliGetRequest(ctx, url, accessToken)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-format-new", "true")
	return req, nil
}
