package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	_ "payverify-http-service/docs"
	"payverify-http-service/internal/app/controllers"
	"payverify-http-service/internal/app/middleware"
	"payverify-http-service/internal/domain/services/container"
	"payverify-http-service/internal/infrastructure/config"
	"payverify-http-service/internal/infrastructure/database"
)

// SetupRouter 初始化并返回配置好的路由
func SetupRouter(db *gorm.DB, cfg *config.Config, pool *database.ConnectionPool, redisClient *redis.Client) *gin.Engine {
	// 初始化 Gin
	r := gin.Default()

	// 添加 CORS 中间件
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization", "Accept", "Cache-Control", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	// 创建服务容器
	serviceContainer := container.NewServiceContainer(db, cfg, redisClient)
	// 初始化中间件
	middleware.InitAuthMiddleware(cfg, db)
	// 添加 Swagger 文档路由
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 注册路由
	registerRoutes(r, serviceContainer, pool)
	return r
}

// registerRoutes 配置所有API路由
func registerRoutes(
	r *gin.Engine,
	container *container.ServiceContainer,
	pool *database.ConnectionPool,
) {
	// API 路由根路径
	api := r.Group("/api")
	// 注册公共路由
	registerPublicRoutes(api, container, pool)
	// 注册需要认证的路由
	registerAuthenticatedRoutes(api, container)
}

// registerPublicRoutes 注册公共路由
func registerPublicRoutes(
	api *gin.RouterGroup,
	container *container.ServiceContainer,
	pool *database.ConnectionPool,
) {
	// 健康检查路由
	api.GET("/ping", controllers.HandleHealthFunc(container, pool, "ping"))
	api.GET("/health", controllers.HandleHealthFunc(container, pool, "health"))

	// 认证路由，限流挡暴力尝试
	api.POST("/auth/login", middleware.CombinedRateLimiter(5, 10), controllers.HandleJWTFunc(container, "login"))

	// 终端事件推送路由。设备不会处理非200应答，禁止加任何会改状态码的中间件
	api.POST("/hik/events", controllers.HandleAccessEventFunc(container, "receiveEvents"))
	api.GET("/terminal-mode/:terminal_ip", controllers.HandleAccessEventFunc(container, "getTerminalMode"))

	// 合作方API路由，令牌在请求体内校验
	integrationGroup := api.Group("/integration")
	integrationGroup.Use(middleware.IPRateLimiter(10, 20))
	integrationGroup.POST("/create-appointment", controllers.HandleIntegrationFunc(container, "createAppointment"))
	integrationGroup.POST("/validate-qr", controllers.HandleIntegrationFunc(container, "validateQRCode"))
}

// registerAuthenticatedRoutes 注册需要认证的路由
func registerAuthenticatedRoutes(
	api *gin.RouterGroup,
	container *container.ServiceContainer,
) {
	// 操作员路由：前台接待即可访问
	operator := api.Group("/")
	operator.Use(middleware.AuthenticateOperator())
	operator.Use(middleware.IPRateLimiter(30, 50))

	// 拉取式扫码开门（前台扫码枪）
	operator.POST("/terminals/:id/validate-qr", controllers.HandleGateFunc(container, "validateQRAndOpenDoor"))

	// 通行记录，大厅看板轮询，短缓存挡重复查询
	operator.GET("/gate/access-logs", middleware.Cache(5*time.Second), controllers.HandleGateFunc(container, "getAccessLogs"))

	// 人工修正凭证状态
	operator.POST("/gate/override-status", controllers.HandleGateFunc(container, "overrideStatus"))

	// 撤销凭证（预约取消等场景）
	operator.POST("/gate/revoke-qr", controllers.HandleGateFunc(container, "revokeQRCode"))

	// 终端查询
	operator.GET("/terminals", controllers.HandleTerminalFunc(container, "getTerminals"))
	operator.GET("/terminals/:id", controllers.HandleTerminalFunc(container, "getTerminal"))

	// 管理员路由：终端增删改和接入方管理
	admin := api.Group("/")
	admin.Use(middleware.AuthenticateAdmin())
	admin.Use(middleware.IPRateLimiter(30, 50))

	admin.POST("/terminals", controllers.HandleTerminalFunc(container, "createTerminal"))
	admin.PUT("/terminals/:id", controllers.HandleTerminalFunc(container, "updateTerminal"))
	admin.DELETE("/terminals/:id", controllers.HandleTerminalFunc(container, "deleteTerminal"))
	admin.POST("/terminals/:id/probe", controllers.HandleTerminalFunc(container, "probeTerminal"))
	admin.POST("/terminals/:id/open", controllers.HandleTerminalFunc(container, "openDoor"))

	admin.GET("/integrations", controllers.HandleIntegrationFunc(container, "getIntegrations"))
	admin.POST("/integrations", controllers.HandleIntegrationFunc(container, "createIntegration"))
	admin.PUT("/integrations/:id/active", controllers.HandleIntegrationFunc(container, "setIntegrationActive"))
	admin.POST("/integrations/:id/rotate-token", controllers.HandleIntegrationFunc(container, "rotateIntegrationToken"))
}
