package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// APIKeyHeader 携带 API Key 的请求头
const APIKeyHeader = "X-API-Key"

// APIKeyAuth API Key认证中间件
//
// 校验请求头中的 Key 是否属于配置的静态列表，未配置任何 Key 时放行所有请求。
type APIKeyAuth struct {
	keys [][]byte
}

// NewAPIKeyAuth 创建API Key认证中间件，空白的 Key 会被忽略
func NewAPIKeyAuth(keys []string) *APIKeyAuth {
	a := &APIKeyAuth{}
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k != "" {
			a.keys = append(a.keys, []byte(k))
		}
	}
	return a
}

// Enabled 是否配置了 API Key
func (m *APIKeyAuth) Enabled() bool {
	return len(m.keys) > 0
}

// RequireAPIKey 要求API Key认证
func (m *APIKeyAuth) RequireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.Enabled() {
			c.Next()
			return
		}

		apiKey := c.GetHeader(APIKeyHeader)
		if apiKey == "" {
			abortWith(c, http.StatusUnauthorized, "缺少 API Key")
			return
		}
		if !m.valid([]byte(apiKey)) {
			abortWith(c, http.StatusUnauthorized, "API Key 无效")
			return
		}

		c.Next()
	}
}

// valid 逐个比较全部 Key，耗时与命中位置无关
func (m *APIKeyAuth) valid(candidate []byte) bool {
	ok := 0
	for _, k := range m.keys {
		ok |= subtle.ConstantTimeCompare(candidate, k)
	}
	return ok == 1
}
