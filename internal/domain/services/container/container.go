package container

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"payverify-http-service/internal/domain/services"
	"payverify-http-service/internal/infrastructure/config"
)

// ServiceContainer 管理所有服务的依赖注入
type ServiceContainer struct {
	db     *gorm.DB
	config *config.Config
	redis  *redis.Client

	// 基础服务
	jwtService services.InterfaceJWTService

	// 数据存储服务
	redisService services.InterfaceRedisService

	// 事件广播服务
	eventPublisher services.InterfaceEventPublisher

	// 业务服务
	gateService        services.InterfaceGateService
	terminalService    services.InterfaceTerminalService
	appointmentService services.InterfaceAppointmentService
	integrationService services.InterfaceIntegrationService
	eventExtractor     services.InterfaceEventExtractor

	mu sync.RWMutex
}

// NewServiceContainer 创建新的服务容器
func NewServiceContainer(db *gorm.DB, cfg *config.Config, redisClient *redis.Client) *ServiceContainer {
	if db == nil {
		panic("数据库连接为空")
	}

	if cfg == nil {
		panic("配置为空")
	}

	// 测试Redis连接
	if redisClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("Redis连接测试失败: %v，将不使用Redis缓存", err)
		}
	}

	container := &ServiceContainer{
		db:     db,
		config: cfg,
		redis:  redisClient,
	}
	container.initializeServices()
	return container
}

// initializeServices 初始化所有服务
func (c *ServiceContainer) initializeServices() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// 初始化基础服务
	c.jwtService = services.NewJWTService(c.config, c.db)

	// 初始化Redis服务
	c.redisService = services.NewRedisService(c.config)

	// 初始化MQTT事件广播服务
	c.eventPublisher = services.NewMQTTEventService(c.config)
	if c.config.MQTTEnabled {
		if err := c.eventPublisher.Connect(); err != nil {
			log.Printf("MQTT事件广播连接失败: %v，通行判定照常进行", err)
		}
	}

	// 初始化业务服务
	c.gateService = services.NewGateService(c.db, c.config, c.eventPublisher)
	c.terminalService = services.NewTerminalService(c.db, c.config, c.redisService)
	c.appointmentService = services.NewAppointmentService(c.db, c.config, c.gateService)
	c.integrationService = services.NewIntegrationService(c.db)
	c.eventExtractor = services.NewEventExtractor()
}

// GetService 获取指定名称的服务
func (c *ServiceContainer) GetService(name string) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch name {
	case "config":
		return c.config
	case "db":
		return c.db
	case "jwt":
		return c.jwtService
	case "redis":
		return c.redisService
	case "publisher":
		return c.eventPublisher
	case "gate":
		return c.gateService
	case "terminal":
		return c.terminalService
	case "appointment":
		return c.appointmentService
	case "integration":
		return c.integrationService
	case "extractor":
		return c.eventExtractor
	default:
		return nil
	}
}

// GetDB 获取数据库连接
func (c *ServiceContainer) GetDB() *gorm.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}
