package controllers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"payverify-http-service/internal/domain/models"
	"payverify-http-service/internal/domain/services"
	"payverify-http-service/internal/domain/services/container"
	"payverify-http-service/internal/error/code"
	"payverify-http-service/internal/error/response"
	"payverify-http-service/pkg/logger"
)

// InterfaceGateController 定义闸机控制器接口
type InterfaceGateController interface {
	ValidateQRAndOpenDoor()
	OverrideStatus()
	GetAccessLogs()
	RevokeQRCode()
}

// GateController 处理拉取式通行请求：服务端判定并主动下发开门命令
type GateController struct {
	Ctx       *gin.Context
	Container *container.ServiceContainer
}

// NewGateController 创建一个新的闸机控制器
func NewGateController(ctx *gin.Context, container *container.ServiceContainer) *GateController {
	return &GateController{
		Ctx:       ctx,
		Container: container,
	}
}

// ValidateQRRequest 表示扫码开门请求
type ValidateQRRequest struct {
	QRCode    string `json:"qr_code" example:"ABC123XYZ789"`
	QRPayload string `json:"qr_payload"`
	DoorNo    int    `json:"door_no" example:"1"`
}

// OverrideStatusRequest 表示人工修正凭证状态请求
type OverrideStatusRequest struct {
	QRCode string `json:"qr_code" binding:"required" example:"ABC123XYZ789"`
	Status string `json:"status" binding:"required" example:"active"`
	Reason string `json:"reason" binding:"required" example:"患者误刷离场"`
}

// RevokeQRCodeRequest 表示撤销凭证请求
type RevokeQRCodeRequest struct {
	QRCode string `json:"qr_code" binding:"required" example:"ABC123XYZ789"`
	Reason string `json:"reason" example:"预约已取消"`
}

// HandleGateFunc 返回一个处理闸机请求的Gin处理函数
func HandleGateFunc(container *container.ServiceContainer, method string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		controller := NewGateController(ctx, container)

		switch method {
		case "validateQRAndOpenDoor":
			controller.ValidateQRAndOpenDoor()
		case "overrideStatus":
			controller.OverrideStatus()
		case "getAccessLogs":
			controller.GetAccessLogs()
		case "revokeQRCode":
			controller.RevokeQRCode()
		default:
			response.FailWithMessage(ctx, code.ErrBind, "无效的方法", nil)
		}
	}
}

// appointmentJSON 拉取式接口响应中的预约信息
func appointmentJSON(qr *models.QRCode, status models.QRCodeStatus) gin.H {
	if qr == nil || qr.Appointment == nil || qr.Appointment.Patient == nil {
		return nil
	}
	return gin.H{
		"id":                   qr.Appointment.ID,
		"patient":              qr.Appointment.Patient.FullName(),
		"patient_medical_card": qr.Appointment.Patient.MedicalCardNumber,
		"status":               status,
	}
}

// 1 ValidateQRAndOpenDoor 校验二维码并开门
// @Summary 扫码开门
// @Description 校验二维码，按终端方向做状态迁移，通过后向终端下发开门命令；开门失败回退状态
// @Tags Gate
// @Accept json
// @Produce json
// @Param id path int true "终端ID"
// @Param request body ValidateQRRequest true "二维码"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /terminals/{id}/validate-qr [post]
func (c *GateController) ValidateQRAndOpenDoor() {
	terminalID, err := strconv.ParseUint(c.Ctx.Param("id"), 10, 64)
	if err != nil {
		c.Ctx.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "Invalid terminal ID"})
		return
	}

	terminalService := c.Container.GetService("terminal").(services.InterfaceTerminalService)
	gateService := c.Container.GetService("gate").(services.InterfaceGateService)

	terminal, err := terminalService.GetTerminalByID(uint(terminalID))
	if err != nil {
		c.Ctx.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "Terminal not found"})
		return
	}

	var req ValidateQRRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		c.Ctx.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "Invalid JSON format"})
		return
	}

	qrCode := req.QRCode
	if qrCode == "" {
		qrCode = req.QRPayload
	}
	if qrCode == "" {
		c.Ctx.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "QR code required"})
		return
	}

	decision, err := gateService.AttemptTransition(qrCode, terminal.Mode, &terminal.ID, models.AccessMethodPull)
	if err != nil {
		c.Ctx.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Internal server error"})
		return
	}

	if !decision.Granted {
		// 凭证不存在或已失效与迁移被拒分开回码，前者无预约信息可回
		if decision.DenialCode == code.ErrQRCodeNotFound {
			c.Ctx.JSON(http.StatusBadRequest, gin.H{
				"ok":          false,
				"error":       "Invalid or expired QR code",
				"appointment": nil,
			})
			return
		}
		c.Ctx.JSON(http.StatusForbidden, gin.H{
			"ok":          false,
			"error":       decision.Reason,
			"appointment": appointmentJSON(decision.QRCode, decision.FromStatus),
		})
		return
	}

	// 判定通过，下发开门命令；失败则回退状态，凭证不被消耗
	if err := terminalService.OpenDoor(terminal, req.DoorNo); err != nil {
		if revertErr := gateService.Revert(decision.QRCode, decision.FromStatus); revertErr != nil {
			logger.Error("GATE: 状态回退失败 (qr=%s): %v", decision.QRCode.Code, revertErr)
		}
		c.Ctx.JSON(http.StatusBadGateway, gin.H{
			"ok":          false,
			"error":       fmt.Sprintf("Failed to open door: %v", err),
			"appointment": appointmentJSON(decision.QRCode, decision.QRCode.Status),
		})
		return
	}

	c.Ctx.JSON(http.StatusOK, gin.H{
		"ok":          true,
		"message":     "Door opened successfully",
		"appointment": appointmentJSON(decision.QRCode, decision.ToStatus),
	})
}

// 2 OverrideStatus 人工修正凭证状态
// @Summary 人工修正凭证状态
// @Description 操作员修正卡死的凭证状态（如患者从侧门离开），写入审计日志
// @Tags Gate
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body OverrideStatusRequest true "修正请求"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Router /gate/override-status [post]
func (c *GateController) OverrideStatus() {
	var req OverrideStatusRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的请求参数", nil)
		return
	}

	operator := "unknown"
	if operatorID, exists := c.Ctx.Get("operatorID"); exists {
		operator = fmt.Sprintf("operator:%v", operatorID)
	}

	gateService := c.Container.GetService("gate").(services.InterfaceGateService)
	qr, err := gateService.OverrideStatus(req.QRCode, models.QRCodeStatus(req.Status), req.Reason, operator)
	if err != nil {
		response.FailWithMessage(c.Ctx, code.ErrQRCodeNotFound, err.Error(), nil)
		return
	}

	response.Success(c.Ctx, gin.H{
		"qr_code": qr.Code,
		"status":  qr.Status,
	})
}

// 3 GetAccessLogs 分页查询通行记录
// @Summary 查询通行记录
// @Description 分页返回通行判定记录，大厅看板轮询使用，缺省按时间倒序取最新一页
// @Tags Gate
// @Produce json
// @Security BearerAuth
// @Param pageNum query int false "页码，默认1"
// @Param pageSize query int false "每页条数，默认50，上限500"
// @Param desc query bool false "按时间倒序，默认true"
// @Success 200 {object} map[string]interface{}
// @Router /gate/access-logs [get]
func (c *GateController) GetAccessLogs() {
	// 看板轮询关心最新记录，未传desc时按时间倒序
	query := models.PaginationQuery{Desc: true}
	if err := c.Ctx.ShouldBindQuery(&query); err != nil {
		response.ParamError(c.Ctx, "无效的分页参数")
		return
	}

	gateService := c.Container.GetService("gate").(services.InterfaceGateService)
	logs, pagination, err := gateService.ListLogs(query)
	if err != nil {
		response.FailWithMessage(c.Ctx, code.ErrDatabase, "获取通行记录失败: "+err.Error(), nil)
		return
	}

	response.Success(c.Ctx, gin.H{
		"pagination": pagination,
		"data":       logs,
	})
}

// 4 RevokeQRCode 撤销凭证
// @Summary 撤销凭证
// @Description 操作员撤销二维码凭证（如预约取消），撤销立即生效且独立于通行状态
// @Tags Gate
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body RevokeQRCodeRequest true "撤销请求"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Router /gate/revoke-qr [post]
func (c *GateController) RevokeQRCode() {
	var req RevokeQRCodeRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的请求参数", nil)
		return
	}

	operator := "unknown"
	if operatorID, exists := c.Ctx.Get("operatorID"); exists {
		operator = fmt.Sprintf("operator:%v", operatorID)
	}

	appointmentService := c.Container.GetService("appointment").(services.InterfaceAppointmentService)
	if err := appointmentService.RevokeQRCode(req.QRCode); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrQRCodeNotFound, err.Error(), nil)
		return
	}

	logger.Info("GATE: 操作员%s撤销凭证 %s: %s", operator, req.QRCode, req.Reason)

	qr, err := appointmentService.GetByQRCode(req.QRCode)
	if err != nil || qr == nil {
		response.Success(c.Ctx, gin.H{"qr_code": req.QRCode, "revoked": true})
		return
	}

	response.Success(c.Ctx, gin.H{
		"qr_code": qr.Code,
		"revoked": true,
		"status":  qr.EffectiveStatus(time.Now()),
	})
}
