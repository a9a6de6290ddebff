package services

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"payverify-http-service/internal/domain/models"
	"payverify-http-service/pkg/logger"
	"payverify-http-service/pkg/utils"
)

// 合作方令牌的随机字节数，十六进制后为64字符
const integrationTokenBytes = 32

// InterfaceIntegrationService 定义合作方接入服务接口
type InterfaceIntegrationService interface {
	ValidateToken(token string) (*models.Integration, error)
	CreateIntegration(name string) (*models.Integration, error)
	GetAllIntegrations() ([]models.Integration, error)
	SetActive(id uint, active bool) error
	RotateToken(id uint) (*models.Integration, error)
}

// IntegrationService 管理合作方系统的接入令牌
type IntegrationService struct {
	DB            *gorm.DB
	GenerateToken func() string
}

// NewIntegrationService 创建一个新的合作方接入服务
func NewIntegrationService(db *gorm.DB) InterfaceIntegrationService {
	return &IntegrationService{
		DB: db,
		GenerateToken: func() string {
			return utils.RandomToken(integrationTokenBytes)
		},
	}
}

// 1 ValidateToken 校验合作方令牌，只接受启用中的接入方
func (s *IntegrationService) ValidateToken(token string) (*models.Integration, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("缺少令牌")
	}

	var integration models.Integration
	err := s.DB.Where("api_token = ? AND is_active = ?", token, true).First(&integration).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("令牌无效或已停用")
		}
		return nil, err
	}
	return &integration, nil
}

// 2 CreateIntegration 创建合作方接入并签发令牌
func (s *IntegrationService) CreateIntegration(name string) (*models.Integration, error) {
	integration := models.Integration{
		Name:     name,
		APIToken: s.GenerateToken(),
		IsActive: true,
	}
	if err := s.DB.Create(&integration).Error; err != nil {
		return nil, err
	}
	logger.Info("创建合作方接入: %s (token=%s)", name, integration.TokenPreview())
	return &integration, nil
}

// 3 GetAllIntegrations 查询所有合作方接入
func (s *IntegrationService) GetAllIntegrations() ([]models.Integration, error) {
	var integrations []models.Integration
	if err := s.DB.Order("created_at DESC").Find(&integrations).Error; err != nil {
		return nil, err
	}
	return integrations, nil
}

// 4 SetActive 启用或停用合作方接入
func (s *IntegrationService) SetActive(id uint, active bool) error {
	result := s.DB.Model(&models.Integration{}).Where("id = ?", id).Update("is_active", active)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("接入方不存在")
	}
	return nil
}

// 5 RotateToken 更换令牌，旧令牌立即失效
func (s *IntegrationService) RotateToken(id uint) (*models.Integration, error) {
	var integration models.Integration
	if err := s.DB.First(&integration, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("接入方不存在")
		}
		return nil, err
	}

	integration.APIToken = s.GenerateToken()
	if err := s.DB.Model(&integration).Update("api_token", integration.APIToken).Error; err != nil {
		return nil, err
	}
	logger.Info("合作方%s已更换令牌 (token=%s)", integration.Name, integration.TokenPreview())
	return &integration, nil
}
