// Package middleware 提供 HTTP 中间件
package middleware

import (
	"benefit-ai-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	// TenantIDHeader 租户 ID 头
	TenantIDHeader = "X-Tenant-ID"
)

// Tenant 多租户上下文中间件。
// 限流与日志按 Header 里的租户分键；检索范围用的 tenant_id
// 取自请求体，由 Handler 校验，Header 只影响观测与限流。
func Tenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetHeader(TenantIDHeader)
		if tenantID != "" {
			c.Set("tenant_id", tenantID)

			ctx := logger.WithContext(c.Request.Context(), logger.TenantIDKey, tenantID)
			c.Request = c.Request.WithContext(ctx)
		}

		c.Next()
	}
}

// GetTenantIDFromGin 从 Gin Context 中获取租户 ID
func GetTenantIDFromGin(c *gin.Context) string {
	return c.GetString("tenant_id")
}
