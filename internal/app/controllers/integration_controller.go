package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"payverify-http-service/internal/domain/models"
	"payverify-http-service/internal/domain/services"
	"payverify-http-service/internal/domain/services/container"
	"payverify-http-service/internal/error/code"
	"payverify-http-service/internal/error/response"
	"payverify-http-service/pkg/logger"
)

// InterfaceIntegrationController 定义合作方API控制器接口
type InterfaceIntegrationController interface {
	CreateAppointment()
	ValidateQRCode()
	GetIntegrations()
	CreateIntegration()
	SetIntegrationActive()
	RotateIntegrationToken()
}

// IntegrationController 处理合作方系统的API请求和接入方管理
type IntegrationController struct {
	Ctx       *gin.Context
	Container *container.ServiceContainer
}

// NewIntegrationController 创建一个新的合作方API控制器
func NewIntegrationController(ctx *gin.Context, container *container.ServiceContainer) *IntegrationController {
	return &IntegrationController{
		Ctx:       ctx,
		Container: container,
	}
}

// CreateAppointmentRequest 表示合作方创建预约请求
type CreateAppointmentRequest struct {
	Token                    string                 `json:"token"`
	Patient                  *services.PatientInput `json:"patient"`
	AppointmentDurationHours interface{}            `json:"appointment_duration_hours"`
}

// ValidateQRCodeRequest 表示合作方校验二维码请求
type ValidateQRCodeRequest struct {
	Token        string `json:"token"`
	QRCode       string `json:"qr_code"`
	TerminalMode string `json:"terminal_mode"`
}

// IntegrationRequest 表示创建接入方请求
type IntegrationRequest struct {
	Name string `json:"name" binding:"required" example:"HIS系统"`
}

// HandleIntegrationFunc 返回一个处理合作方请求的Gin处理函数
func HandleIntegrationFunc(container *container.ServiceContainer, method string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		controller := NewIntegrationController(ctx, container)

		switch method {
		case "createAppointment":
			controller.CreateAppointment()
		case "validateQRCode":
			controller.ValidateQRCode()
		case "getIntegrations":
			controller.GetIntegrations()
		case "createIntegration":
			controller.CreateIntegration()
		case "setIntegrationActive":
			controller.SetIntegrationActive()
		case "rotateIntegrationToken":
			controller.RotateIntegrationToken()
		default:
			response.FailWithMessage(ctx, code.ErrBind, "无效的方法", nil)
		}
	}
}

// partnerError 合作方接口的错误响应，字段名是对外契约
func (c *IntegrationController) partnerError(status int, message string) {
	c.Ctx.JSON(status, gin.H{
		"success": false,
		"error":   message,
	})
}

// authenticatePartner 校验合作方令牌，优先取请求体token，其次Authorization头
func (c *IntegrationController) authenticatePartner(bodyToken string) *models.Integration {
	token := strings.TrimSpace(bodyToken)
	if token == "" {
		token = c.Ctx.GetHeader("Authorization")
		if len(token) > 7 && strings.HasPrefix(token, "Bearer ") {
			token = token[7:]
		}
	}
	if token == "" {
		c.partnerError(http.StatusBadRequest, "Integration token is required")
		return nil
	}

	integrationService := c.Container.GetService("integration").(services.InterfaceIntegrationService)
	integration, err := integrationService.ValidateToken(token)
	if err != nil {
		c.partnerError(http.StatusUnauthorized, "Invalid or inactive integration token")
		return nil
	}
	return integration
}

// 1 CreateAppointment 合作方创建预约并签发二维码
// @Summary 合作方创建预约
// @Description 合作方系统提交患者信息，创建预约并返回二维码凭证码，二维码图片由合作方自行渲染
// @Tags Integration
// @Accept json
// @Produce json
// @Param request body CreateAppointmentRequest true "预约请求"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Router /integration/create-appointment [post]
func (c *IntegrationController) CreateAppointment() {
	var req CreateAppointmentRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		c.partnerError(http.StatusBadRequest, "Invalid JSON format")
		return
	}

	integration := c.authenticatePartner(req.Token)
	if integration == nil {
		return
	}

	if req.Patient == nil {
		c.partnerError(http.StatusBadRequest, "Patient information is required")
		return
	}
	if req.Patient.FirstName == "" {
		c.partnerError(http.StatusBadRequest, "Patient first_name is required")
		return
	}
	if req.Patient.LastName == "" {
		c.partnerError(http.StatusBadRequest, "Patient last_name is required")
		return
	}
	if req.Patient.MedicalCardNumber == "" {
		c.partnerError(http.StatusBadRequest, "Patient medical_card_number is required")
		return
	}

	// 时长可能以数字或字符串传入，缺省24小时
	durationHours := 0
	switch v := req.AppointmentDurationHours.(type) {
	case float64:
		durationHours = int(v)
	case string:
		parsed, err := strconv.Atoi(v)
		if err != nil {
			c.partnerError(http.StatusBadRequest, "Appointment duration must be a positive integer")
			return
		}
		durationHours = parsed
	case nil:
	default:
		c.partnerError(http.StatusBadRequest, "Appointment duration must be a positive integer")
		return
	}
	if req.AppointmentDurationHours != nil && durationHours <= 0 {
		c.partnerError(http.StatusBadRequest, "Appointment duration must be a positive integer")
		return
	}

	logger.Info("API: 合作方%s创建预约", integration.Name)

	appointmentService := c.Container.GetService("appointment").(services.InterfaceAppointmentService)
	result, err := appointmentService.CreateWithQRCode(*req.Patient, durationHours)
	if err != nil {
		logger.Error("API: 创建预约失败: %v", err)
		c.partnerError(http.StatusInternalServerError, "Internal server error")
		return
	}

	c.Ctx.JSON(http.StatusOK, result)
}

// 2 ValidateQRCode 合作方校验二维码
// @Summary 合作方校验二维码
// @Description 校验凭证码并返回预约详情；显式terminal_mode按方向迁移状态，缺省时每次调用自动推进一步
// @Tags Integration
// @Accept json
// @Produce json
// @Param request body ValidateQRCodeRequest true "校验请求"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Router /integration/validate-qr [post]
func (c *IntegrationController) ValidateQRCode() {
	var req ValidateQRCodeRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		c.partnerError(http.StatusBadRequest, "Invalid JSON format")
		return
	}

	integration := c.authenticatePartner(req.Token)
	if integration == nil {
		return
	}

	if req.QRCode == "" {
		c.partnerError(http.StatusBadRequest, "QR code is required")
		return
	}

	appointmentService := c.Container.GetService("appointment").(services.InterfaceAppointmentService)
	result, err := appointmentService.ValidateQRCode(req.QRCode, strings.ToLower(req.TerminalMode))
	if err != nil {
		logger.Error("API: 校验二维码失败: %v", err)
		c.partnerError(http.StatusInternalServerError, "Internal server error")
		return
	}

	c.Ctx.JSON(http.StatusOK, result)
}

// 3 GetIntegrations 获取所有接入方
// @Summary 获取接入方列表
// @Tags Integration
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Router /integrations [get]
func (c *IntegrationController) GetIntegrations() {
	integrationService := c.Container.GetService("integration").(services.InterfaceIntegrationService)
	integrations, err := integrationService.GetAllIntegrations()
	if err != nil {
		response.FailWithMessage(c.Ctx, code.ErrDatabase, "获取接入方列表失败: "+err.Error(), nil)
		return
	}

	// 列表中不回完整令牌
	data := make([]gin.H, 0, len(integrations))
	for _, integration := range integrations {
		data = append(data, gin.H{
			"id":            integration.ID,
			"name":          integration.Name,
			"token_preview": integration.TokenPreview(),
			"is_active":     integration.IsActive,
			"created_at":    integration.CreatedAt,
		})
	}

	response.Success(c.Ctx, gin.H{
		"total": len(data),
		"data":  data,
	})
}

// 4 CreateIntegration 创建接入方并签发令牌
// @Summary 创建接入方
// @Description 创建合作方接入，完整令牌仅在创建时返回一次
// @Tags Integration
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body IntegrationRequest true "接入方名称"
// @Success 200 {object} map[string]interface{}
// @Router /integrations [post]
func (c *IntegrationController) CreateIntegration() {
	var req IntegrationRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的请求参数", nil)
		return
	}

	integrationService := c.Container.GetService("integration").(services.InterfaceIntegrationService)
	integration, err := integrationService.CreateIntegration(req.Name)
	if err != nil {
		response.FailWithMessage(c.Ctx, code.ErrDatabase, "创建接入方失败: "+err.Error(), nil)
		return
	}

	response.Success(c.Ctx, gin.H{
		"id":        integration.ID,
		"name":      integration.Name,
		"api_token": integration.APIToken,
		"is_active": integration.IsActive,
	})
}

// 5 SetIntegrationActive 启用或停用接入方
// @Summary 启停接入方
// @Tags Integration
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "接入方ID"
// @Success 200 {object} map[string]interface{}
// @Router /integrations/{id}/active [put]
func (c *IntegrationController) SetIntegrationActive() {
	id, err := strconv.ParseUint(c.Ctx.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c.Ctx, "无效的接入方ID")
		return
	}

	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的请求参数", nil)
		return
	}

	integrationService := c.Container.GetService("integration").(services.InterfaceIntegrationService)
	if err := integrationService.SetActive(uint(id), *req.Active); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrIntegrationTokenInvalid, err.Error(), nil)
		return
	}

	response.Success(c.Ctx, gin.H{"id": id, "active": *req.Active})
}

// 6 RotateIntegrationToken 更换接入方令牌
// @Summary 更换接入方令牌
// @Description 签发新令牌并立即作废旧令牌，新令牌仅本次响应返回
// @Tags Integration
// @Produce json
// @Security BearerAuth
// @Param id path int true "接入方ID"
// @Success 200 {object} map[string]interface{}
// @Router /integrations/{id}/rotate-token [post]
func (c *IntegrationController) RotateIntegrationToken() {
	id, err := strconv.ParseUint(c.Ctx.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c.Ctx, "无效的接入方ID")
		return
	}

	integrationService := c.Container.GetService("integration").(services.InterfaceIntegrationService)
	integration, err := integrationService.RotateToken(uint(id))
	if err != nil {
		response.FailWithMessage(c.Ctx, code.ErrIntegrationTokenInvalid, err.Error(), nil)
		return
	}

	response.Success(c.Ctx, gin.H{
		"id":        integration.ID,
		"name":      integration.Name,
		"api_token": integration.APIToken,
	})
}
