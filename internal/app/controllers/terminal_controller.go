package controllers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"payverify-http-service/internal/domain/models"
	"payverify-http-service/internal/domain/services"
	"payverify-http-service/internal/domain/services/container"
	"payverify-http-service/internal/error/code"
	"payverify-http-service/internal/error/response"
)

// InterfaceTerminalController 定义终端控制器接口
type InterfaceTerminalController interface {
	GetTerminals()
	GetTerminal()
	CreateTerminal()
	UpdateTerminal()
	DeleteTerminal()
	ProbeTerminal()
	OpenDoor()
}

// TerminalController 处理终端目录相关的请求
type TerminalController struct {
	Ctx       *gin.Context
	Container *container.ServiceContainer
}

// NewTerminalController 创建一个新的终端控制器
func NewTerminalController(ctx *gin.Context, container *container.ServiceContainer) *TerminalController {
	return &TerminalController{
		Ctx:       ctx,
		Container: container,
	}
}

// TerminalRequest 表示终端注册请求
type TerminalRequest struct {
	TerminalName     string  `json:"terminal_name" binding:"required" example:"东门入口"`
	TerminalIP       string  `json:"terminal_ip" binding:"required" example:"192.168.1.100"`
	MACAddress       *string `json:"mac_address" example:"a4:d5:c2:11:22:33"`
	TerminalUsername string  `json:"terminal_username" example:"admin"`
	TerminalPassword string  `json:"terminal_password" example:"hik12345"`
	Mode             string  `json:"mode" example:"entry"` // entry, exit, both
	Active           *bool   `json:"active"`
}

// OpenDoorRequest 表示手动开门请求
type OpenDoorRequest struct {
	DoorNo int `json:"door_no" example:"1"`
}

// HandleTerminalFunc 返回一个处理终端请求的Gin处理函数
func HandleTerminalFunc(container *container.ServiceContainer, method string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		controller := NewTerminalController(ctx, container)

		switch method {
		case "getTerminals":
			controller.GetTerminals()
		case "getTerminal":
			controller.GetTerminal()
		case "createTerminal":
			controller.CreateTerminal()
		case "updateTerminal":
			controller.UpdateTerminal()
		case "deleteTerminal":
			controller.DeleteTerminal()
		case "probeTerminal":
			controller.ProbeTerminal()
		case "openDoor":
			controller.OpenDoor()
		default:
			response.FailWithMessage(ctx, code.ErrBind, "无效的方法", nil)
		}
	}
}

// terminalID 解析路径中的终端ID
func (c *TerminalController) terminalID() (uint, bool) {
	id, err := strconv.ParseUint(c.Ctx.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c.Ctx, "无效的终端ID")
		return 0, false
	}
	return uint(id), true
}

// 1 GetTerminals 获取所有终端列表
// @Summary 获取终端列表
// @Description 获取所有已注册的门禁终端及其健康状态
// @Tags Terminal
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} ErrorResponse
// @Router /terminals [get]
func (c *TerminalController) GetTerminals() {
	terminalService := c.Container.GetService("terminal").(services.InterfaceTerminalService)
	terminals, err := terminalService.GetAllTerminals()
	if err != nil {
		response.FailWithMessage(c.Ctx, code.ErrDatabase, "获取终端列表失败: "+err.Error(), nil)
		return
	}

	response.Success(c.Ctx, gin.H{
		"total": len(terminals),
		"data":  terminals,
	})
}

// 2 GetTerminal 获取单个终端详情
// @Summary 获取终端详情
// @Description 根据ID获取终端详细信息
// @Tags Terminal
// @Produce json
// @Security BearerAuth
// @Param id path int true "终端ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Router /terminals/{id} [get]
func (c *TerminalController) GetTerminal() {
	id, ok := c.terminalID()
	if !ok {
		return
	}

	terminalService := c.Container.GetService("terminal").(services.InterfaceTerminalService)
	terminal, err := terminalService.GetTerminalByID(id)
	if err != nil {
		response.FailWithMessage(c.Ctx, code.ErrTerminalNotFound, err.Error(), nil)
		return
	}

	response.Success(c.Ctx, terminal)
}

// 3 CreateTerminal 注册新终端
// @Summary 注册终端
// @Description 注册一台新的门禁终端
// @Tags Terminal
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body TerminalRequest true "终端信息"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Router /terminals [post]
func (c *TerminalController) CreateTerminal() {
	var req TerminalRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的请求参数: "+err.Error(), nil)
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	terminal := models.Terminal{
		TerminalName:     req.TerminalName,
		TerminalIP:       req.TerminalIP,
		MACAddress:       req.MACAddress,
		TerminalUsername: req.TerminalUsername,
		TerminalPassword: req.TerminalPassword,
		Mode:             models.TerminalMode(req.Mode),
		Active:           active,
	}

	terminalService := c.Container.GetService("terminal").(services.InterfaceTerminalService)
	if err := terminalService.CreateTerminal(&terminal); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrTerminalAlreadyExist, err.Error(), nil)
		return
	}

	response.Success(c.Ctx, terminal)
}

// 4 UpdateTerminal 更新终端信息
// @Summary 更新终端
// @Description 更新终端的名称、IP、方向模式或启用状态
// @Tags Terminal
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "终端ID"
// @Param request body map[string]interface{} true "更新字段"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Router /terminals/{id} [put]
func (c *TerminalController) UpdateTerminal() {
	id, ok := c.terminalID()
	if !ok {
		return
	}

	var updates map[string]interface{}
	if err := c.Ctx.ShouldBindJSON(&updates); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的请求参数", nil)
		return
	}

	// 健康字段由服务端维护，不接受外部写入
	delete(updates, "reachable")
	delete(updates, "last_seen")
	delete(updates, "last_error")

	terminalService := c.Container.GetService("terminal").(services.InterfaceTerminalService)
	terminal, err := terminalService.UpdateTerminal(id, updates)
	if err != nil {
		response.FailWithMessage(c.Ctx, code.ErrTerminalNotFound, err.Error(), nil)
		return
	}

	response.Success(c.Ctx, terminal)
}

// 5 DeleteTerminal 删除终端
// @Summary 删除终端
// @Description 从目录中删除一台终端
// @Tags Terminal
// @Produce json
// @Security BearerAuth
// @Param id path int true "终端ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Router /terminals/{id} [delete]
func (c *TerminalController) DeleteTerminal() {
	id, ok := c.terminalID()
	if !ok {
		return
	}

	terminalService := c.Container.GetService("terminal").(services.InterfaceTerminalService)
	if err := terminalService.DeleteTerminal(id); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrTerminalNotFound, err.Error(), nil)
		return
	}

	response.Success(c.Ctx, gin.H{"deleted": id})
}

// 6 ProbeTerminal 探测终端连通性
// @Summary 探测终端
// @Description 主动探测终端设备并更新其健康状态，返回设备信息
// @Tags Terminal
// @Produce json
// @Security BearerAuth
// @Param id path int true "终端ID"
// @Success 200 {object} map[string]interface{}
// @Failure 502 {object} ErrorResponse
// @Router /terminals/{id}/probe [post]
func (c *TerminalController) ProbeTerminal() {
	id, ok := c.terminalID()
	if !ok {
		return
	}

	terminalService := c.Container.GetService("terminal").(services.InterfaceTerminalService)
	terminal, err := terminalService.GetTerminalByID(id)
	if err != nil {
		response.FailWithMessage(c.Ctx, code.ErrTerminalNotFound, err.Error(), nil)
		return
	}

	info, err := terminalService.ProbeTerminal(terminal)
	if err != nil {
		response.FailWithMessage(c.Ctx, code.ErrTerminalUnreachable, "终端不可达: "+err.Error(), nil)
		return
	}

	// 探测后广播最新健康状态
	if publisher, ok := c.Container.GetService("publisher").(services.InterfaceEventPublisher); ok {
		refreshed, err := terminalService.GetTerminalByID(id)
		if err == nil {
			publisher.PublishTerminalStatus(refreshed)
		}
	}

	response.Success(c.Ctx, gin.H{
		"reachable":   true,
		"device_info": info,
	})
}

// 7 OpenDoor 手动开门
// @Summary 手动开门
// @Description 操作员绕过扫码流程直接向终端下发开门命令
// @Tags Terminal
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "终端ID"
// @Param request body OpenDoorRequest false "门编号"
// @Success 200 {object} map[string]interface{}
// @Failure 502 {object} ErrorResponse
// @Router /terminals/{id}/open [post]
func (c *TerminalController) OpenDoor() {
	id, ok := c.terminalID()
	if !ok {
		return
	}

	var req OpenDoorRequest
	_ = c.Ctx.ShouldBindJSON(&req)

	terminalService := c.Container.GetService("terminal").(services.InterfaceTerminalService)
	terminal, err := terminalService.GetTerminalByID(id)
	if err != nil {
		response.FailWithMessage(c.Ctx, code.ErrTerminalNotFound, err.Error(), nil)
		return
	}

	if err := terminalService.OpenDoor(terminal, req.DoorNo); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrTerminalDoorFailed, "开门失败: "+err.Error(), nil)
		return
	}

	response.Success(c.Ctx, gin.H{"opened": true})
}
