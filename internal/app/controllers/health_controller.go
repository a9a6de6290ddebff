package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"payverify-http-service/internal/domain/services/container"
	"payverify-http-service/internal/infrastructure/database"
)

// HealthController 处理健康检查请求
type HealthController struct {
	Ctx       *gin.Context
	Container *container.ServiceContainer
	Pool      *database.ConnectionPool
}

// HandleHealthFunc 返回一个处理健康检查的Gin处理函数
func HandleHealthFunc(container *container.ServiceContainer, pool *database.ConnectionPool, method string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		controller := &HealthController{
			Ctx:       ctx,
			Container: container,
			Pool:      pool,
		}

		switch method {
		case "ping":
			controller.Ping()
		case "health":
			controller.Health()
		default:
			ctx.String(http.StatusNotFound, "not found")
		}
	}
}

// Ping 存活探针
// @Summary 存活探针
// @Tags Health
// @Produce plain
// @Success 200 {string} string "pong"
// @Router /ping [get]
func (c *HealthController) Ping() {
	c.Ctx.String(http.StatusOK, "pong")
}

// Health 就绪探针，带数据库连接状态
// @Summary 就绪探针
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health [get]
func (c *HealthController) Health() {
	status := "ok"
	httpStatus := http.StatusOK

	if c.Pool != nil {
		if err := c.Pool.HealthCheck(); err != nil {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	body := gin.H{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	}
	if c.Pool != nil {
		if stats, err := c.Pool.Stats(); err == nil {
			body["db"] = stats
		}
	}

	c.Ctx.JSON(httpStatus, body)
}
