package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/installment_billing/internal/pkg/jwt"
	"github.com/qs3c/installment_billing/internal/pkg/response"
)

const (
	StaffIDKey = "staffID"
	ActorKey   = "actor"
)

// Auth 工作人员 JWT 认证中间件，令牌中的 actor 会记入人工调整审计
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.AuthError(c, "请提供认证信息")
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			response.AuthError(c, "认证格式错误")
			c.Abort()
			return
		}

		claims, err := jwt.ParseToken(tokenString, jwtSecret)
		if err != nil {
			response.AuthError(c, "认证失败或已过期")
			c.Abort()
			return
		}

		c.Set(StaffIDKey, claims.StaffID)
		c.Set(ActorKey, claims.Actor)
		c.Next()
	}
}

// GetStaffID 从上下文获取工作人员 ID
func GetStaffID(c *gin.Context) (int64, bool) {
	staffID, exists := c.Get(StaffIDKey)
	if !exists {
		return 0, false
	}
	id, ok := staffID.(int64)
	return id, ok
}

// GetActor 从上下文获取操作人标识
func GetActor(c *gin.Context) string {
	actor, exists := c.Get(ActorKey)
	if !exists {
		return ""
	}
	s, _ := actor.(string)
	return s
}
