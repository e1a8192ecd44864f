package net

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Dispatcher 网络调度器 (通用组件)
type Dispatcher interface {
	// Send 发送 HTTP 请求
	// sellerID: 业务实体的唯一标识，用于日志与限速归属
	// req: 标准的 http.Request 对象
	Send(ctx context.Context, sellerID int64, req *http.Request) (*http.Response, error)
}

// httpDispatcher 是 Dispatcher 接口的具体实现
// 注意：它是私有的，外部只能通过 NewDispatcher 获取接口
type httpDispatcher struct {
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
}

var _ Dispatcher = (*httpDispatcher)(nil)

func NewDispatcher() Dispatcher {
	return &httpDispatcher{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: 30 * time.Second,
		},
		maxRetries: 2,
		retryDelay: 500 * time.Millisecond,
	}
}

// Send 发送 HTTP 请求 (自动处理网络层重试)
// 只对连接层错误和 5xx 重试；4xx 属于业务语义，原样返回给调用方判断
func (d *httpDispatcher) Send(ctx context.Context, sellerID int64, req *http.Request) (*http.Response, error) {
	var lastErr error

	for i := 0; i <= d.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d.retryDelay * time.Duration(i)):
			}
			// GET 以外的请求不可盲目重放
			if req.Method != http.MethodGet && req.GetBody == nil {
				break
			}
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				req.Body = body
			}
		}

		resp, err := d.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= http.StatusInternalServerError && i < d.maxRetries {
			resp.Body.Close()
			lastErr = fmt.Errorf("upstream returned %d", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("request failed after retries (seller %d): %v", sellerID, lastErr)
}
