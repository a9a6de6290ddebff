package services

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"payverify-http-service/internal/domain/models"
	"payverify-http-service/internal/infrastructure/config"
	"payverify-http-service/pkg/logger"
)

// 健康字段中错误文本的最大长度
const maxLastErrorLen = 500

// 终端模式缓存的过期时间
const terminalModeCacheTTL = 30 * time.Second

// EventTypeAccessController 门禁事件类型标记，步骤4的兜底解析仅对它生效
const EventTypeAccessController = "accesscontrollerevent"

// InterfaceTerminalService 定义终端目录服务接口
type InterfaceTerminalService interface {
	GetAllTerminals() ([]models.Terminal, error)
	GetTerminalByID(id uint) (*models.Terminal, error)
	CreateTerminal(terminal *models.Terminal) error
	UpdateTerminal(id uint, updates map[string]interface{}) (*models.Terminal, error)
	DeleteTerminal(id uint) error
	Resolve(mac, embeddedIP, forwardedFor, remoteAddr, eventType string) (*models.Terminal, error)
	TouchLastSeen(terminal *models.Terminal) error
	ProbeTerminal(terminal *models.Terminal) (string, error)
	OpenDoor(terminal *models.Terminal, doorNo int) error
	GetModeByIP(ip string) models.TerminalMode
}

// TerminalService 提供终端注册目录和健康管理
type TerminalService struct {
	DB        *gorm.DB
	Config    *config.Config
	Redis     InterfaceRedisService
	NewClient ISAPIClientFactory
	Now       func() time.Time
}

// NewTerminalService 创建一个新的终端服务
func NewTerminalService(db *gorm.DB, cfg *config.Config, redisService InterfaceRedisService) InterfaceTerminalService {
	return &TerminalService{
		DB:        db,
		Config:    cfg,
		Redis:     redisService,
		NewClient: NewISAPIClient,
		Now:       time.Now,
	}
}

// 1 GetAllTerminals 获取所有终端列表
func (s *TerminalService) GetAllTerminals() ([]models.Terminal, error) {
	var terminals []models.Terminal
	if err := s.DB.Order("terminal_name").Find(&terminals).Error; err != nil {
		return nil, err
	}
	return terminals, nil
}

// 2 GetTerminalByID 根据ID获取终端
func (s *TerminalService) GetTerminalByID(id uint) (*models.Terminal, error) {
	var terminal models.Terminal
	if err := s.DB.First(&terminal, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("终端不存在")
		}
		return nil, err
	}
	return &terminal, nil
}

// 3 CreateTerminal 创建新终端
func (s *TerminalService) CreateTerminal(terminal *models.Terminal) error {
	// 验证IP唯一性
	var count int64
	if err := s.DB.Model(&models.Terminal{}).Where("terminal_ip = ?", terminal.TerminalIP).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return errors.New("终端IP已存在")
	}

	if terminal.Mode == "" {
		terminal.Mode = models.TerminalModeEntry
	}

	return s.DB.Create(terminal).Error
}

// 4 UpdateTerminal 更新终端信息
func (s *TerminalService) UpdateTerminal(id uint, updates map[string]interface{}) (*models.Terminal, error) {
	terminal, err := s.GetTerminalByID(id)
	if err != nil {
		return nil, err
	}

	// 如果更新IP，需要检查唯一性
	if ip, ok := updates["terminal_ip"].(string); ok && ip != terminal.TerminalIP {
		var count int64
		if err := s.DB.Model(&models.Terminal{}).Where("terminal_ip = ? AND id != ?", ip, id).Count(&count).Error; err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, errors.New("终端IP已存在")
		}
	}

	if err := s.DB.Model(terminal).Updates(updates).Error; err != nil {
		return nil, err
	}

	// 模式或启用状态可能已变化，失效缓存
	s.invalidateModeCache(terminal.TerminalIP)
	if ip, ok := updates["terminal_ip"].(string); ok {
		s.invalidateModeCache(ip)
	}

	return s.GetTerminalByID(id)
}

// 5 DeleteTerminal 删除终端
func (s *TerminalService) DeleteTerminal(id uint) error {
	terminal, err := s.GetTerminalByID(id)
	if err != nil {
		return err
	}
	s.invalidateModeCache(terminal.TerminalIP)
	return s.DB.Delete(terminal).Error
}

// 6 Resolve 按标识解析推送事件来自哪台已注册终端，仅匹配启用的终端。
// 匹配顺序：MAC（忽略大小写）→ 报文内嵌IP → 请求转发IP → 请求源IP →
// （仅门禁事件）最近一次上报的终端。全部落空返回nil，调用方按未知设备忽略。
func (s *TerminalService) Resolve(mac, embeddedIP, forwardedFor, remoteAddr, eventType string) (*models.Terminal, error) {
	active := func() *gorm.DB { return s.DB.Where("active = ?", true) }

	// 优先级1: MAC地址（最可靠）
	if mac = strings.TrimSpace(strings.ToLower(mac)); mac != "" {
		var terminal models.Terminal
		err := active().Where("LOWER(mac_address) = ?", mac).First(&terminal).Error
		if err == nil {
			logger.Info("HIK: 通过MAC地址识别终端: %s -> %s", mac, terminal.TerminalName)
			return &terminal, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	// 优先级2: 报文内嵌IP
	if embeddedIP = strings.TrimSpace(embeddedIP); embeddedIP != "" {
		var terminal models.Terminal
		err := active().Where("terminal_ip = ?", embeddedIP).First(&terminal).Error
		if err == nil {
			logger.Info("HIK: 通过内嵌IP识别终端: %s -> %s", embeddedIP, terminal.TerminalName)
			return &terminal, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	// 优先级3: 请求IP（先取X-Forwarded-For首个地址，再取直连地址）
	xff := strings.TrimSpace(strings.Split(forwardedFor, ",")[0])
	for _, ip := range []string{xff, strings.TrimSpace(remoteAddr)} {
		if ip == "" {
			continue
		}
		var terminal models.Terminal
		err := active().Where("terminal_ip = ?", ip).First(&terminal).Error
		if err == nil {
			logger.Info("HIK: 通过请求IP识别终端: %s -> %s", ip, terminal.TerminalName)
			return &terminal, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	// 优先级4: 仅对门禁事件兜底取最近上报的终端（部分固件不带标识字段）。
	// 已知弱点：多台终端同时在线时可能误归属。
	if strings.ToLower(strings.TrimSpace(eventType)) == EventTypeAccessController {
		var terminal models.Terminal
		err := active().Order("last_seen DESC").First(&terminal).Error
		if err == nil {
			logger.Info("HIK: 通过最近活跃记录识别终端: %s", terminal.TerminalName)
			return &terminal, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	return nil, nil
}

// 7 TouchLastSeen 推送事件处理时刷新终端的最近上报时间
func (s *TerminalService) TouchLastSeen(terminal *models.Terminal) error {
	now := s.Now()
	return s.DB.Model(terminal).Updates(map[string]interface{}{
		"reachable": true,
		"last_seen": now,
	}).Error
}

// 8 ProbeTerminal 探测终端连通性并更新健康状态
func (s *TerminalService) ProbeTerminal(terminal *models.Terminal) (string, error) {
	client := s.NewClient(terminal.TerminalIP, terminal.TerminalUsername, terminal.TerminalPassword)

	info, err := client.DeviceInfo()
	if err != nil {
		errText := err.Error()
		if len(errText) > maxLastErrorLen {
			errText = errText[:maxLastErrorLen]
		}
		if dbErr := s.DB.Model(terminal).Updates(map[string]interface{}{
			"reachable":  false,
			"last_error": errText,
		}).Error; dbErr != nil {
			logger.Error("更新终端健康状态失败: %v", dbErr)
		}
		return "", err
	}

	now := s.Now()
	if dbErr := s.DB.Model(terminal).Updates(map[string]interface{}{
		"reachable":  true,
		"last_seen":  now,
		"last_error": "",
	}).Error; dbErr != nil {
		logger.Error("更新终端健康状态失败: %v", dbErr)
	}
	return info, nil
}

// 9 OpenDoor 向终端下发开门命令。只报告成败，不改动健康字段。
func (s *TerminalService) OpenDoor(terminal *models.Terminal, doorNo int) error {
	if doorNo <= 0 {
		doorNo = s.Config.TerminalDefaultDoorNo
	}
	client := s.NewClient(terminal.TerminalIP, terminal.TerminalUsername, terminal.TerminalPassword)
	return client.OpenDoor(doorNo, "open")
}

// 10 GetModeByIP 按IP查询终端方向模式，未注册或未启用返回unknown
func (s *TerminalService) GetModeByIP(ip string) models.TerminalMode {
	cacheKey := "payverify:terminal:mode:" + ip
	if s.Redis != nil {
		var cached string
		if err := s.Redis.Get(cacheKey, &cached); err == nil && cached != "" {
			return models.TerminalMode(cached)
		}
	}

	var terminal models.Terminal
	mode := models.TerminalMode("unknown")
	if err := s.DB.Where("terminal_ip = ? AND active = ?", ip, true).First(&terminal).Error; err == nil {
		mode = terminal.Mode
	}

	if s.Redis != nil {
		if err := s.Redis.Set(cacheKey, string(mode), terminalModeCacheTTL); err != nil {
			logger.Warning("缓存终端模式失败: %v", err)
		}
	}
	return mode
}

func (s *TerminalService) invalidateModeCache(ip string) {
	if s.Redis == nil || ip == "" {
		return
	}
	if err := s.Redis.Delete("payverify:terminal:mode:" + ip); err != nil {
		logger.Warning("失效终端模式缓存失败: %v", err)
	}
}
