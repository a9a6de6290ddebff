package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"payverify-http-service/internal/domain/models"
	"payverify-http-service/internal/domain/services"
	"payverify-http-service/internal/infrastructure/config"
)

var jwtService services.InterfaceJWTService

// InitAuthMiddleware 初始化认证中间件
func InitAuthMiddleware(cfg *config.Config, db *gorm.DB) {
	jwtService = services.NewJWTService(cfg, db)
}

// extractToken 从授权头中提取token
func extractToken(authHeader string) string {
	// 检查并移除 "Bearer " 前缀
	if len(authHeader) > 7 && strings.HasPrefix(authHeader, "Bearer ") {
		return authHeader[7:]
	}
	return authHeader
}

// authenticate 校验令牌并检查角色权限，通过后把操作员信息写入上下文
func authenticate(c *gin.Context, required models.OperatorRole) bool {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    401,
			"message": "Authorization header is required",
			"data":    nil,
		})
		c.Abort()
		return false
	}

	tokenString := extractToken(authHeader)
	claims, err := jwtService.ExtractClaims(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    401,
			"message": "Invalid token: " + err.Error(),
			"data":    nil,
		})
		c.Abort()
		return false
	}

	operator := models.Operator{Role: models.OperatorRole(claims.Role)}
	if !operator.HasRole(required) {
		c.JSON(http.StatusForbidden, gin.H{
			"code":    403,
			"message": "Insufficient permissions: requires " + string(required) + " role",
			"data":    nil,
		})
		c.Abort()
		return false
	}

	// 存储claims到上下文
	c.Set("operatorID", claims.OperatorID)
	c.Set("role", claims.Role)
	c.Set("claims", claims)
	return true
}

// AuthenticateOperator 验证任意操作员身份，前台接待即可访问
func AuthenticateOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		if authenticate(c, models.OperatorRoleReceptionist) {
			c.Next()
		}
	}
}

// AuthenticateAdmin 验证管理员权限，终端增删改、合作方接入管理需要
func AuthenticateAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if authenticate(c, models.OperatorRoleAdmin) {
			c.Next()
		}
	}
}

// AuthenticateSuperAdmin 验证超级管理员权限
func AuthenticateSuperAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if authenticate(c, models.OperatorRoleSuperAdmin) {
			c.Next()
		}
	}
}
