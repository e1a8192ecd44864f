package utils

import (
	"sync"
	"time"
)

// OAuth 授权握手的临时存储：state 在跳转授权页时生成，
// 回调时凭 state 取回 PKCE verifier 和发起授权的公司，
// 用完即焚。进程内 sync.Map 即可，握手不跨实例
var handshakeCache sync.Map

// 从跳转到卖家完成授权的窗口，超时视为握手作废
const handshakeTTL = 10 * time.Minute

type cacheItem struct {
	value      string
	expiration int64
}

// SetCache 记录一次握手
// key 为 state，value 为 "verifier:company_id"
func SetCache(key string, value string) {
	handshakeCache.Store(key, cacheItem{
		value:      value,
		expiration: time.Now().Add(handshakeTTL).Unix(),
	})
}

// GetCache 取回握手内容，过期视为不存在
func GetCache(key string) (string, bool) {
	val, ok := handshakeCache.Load(key)
	if !ok {
		return "", false
	}

	item := val.(cacheItem)
	if time.Now().Unix() > item.expiration {
		handshakeCache.Delete(key) // 懒删除
		return "", false
	}

	return item.value, true
}

// DeleteCache 回调处理完成后销毁 state，防止重放
func DeleteCache(key string) {
	handshakeCache.Delete(key)
}
