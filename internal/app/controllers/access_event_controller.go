package controllers

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"payverify-http-service/internal/domain/models"
	"payverify-http-service/internal/domain/services"
	"payverify-http-service/internal/domain/services/container"
	"payverify-http-service/internal/error/code"
	"payverify-http-service/internal/error/response"
	"payverify-http-service/pkg/logger"
)

// 事件时效窗口：终端时区漂移和网络延迟常见，仅丢弃超过3小时的旧事件
const maxEventAge = 3 * time.Hour

// 事件去重键的保留时间
const eventDedupTTL = 5 * time.Minute

// 推送请求体上限
const maxEventBodyBytes = 10 << 20

// InterfaceAccessEventController 定义终端事件控制器接口
type InterfaceAccessEventController interface {
	ReceiveEvents()
	GetTerminalMode()
}

// AccessEventController 处理门禁终端推送的事件
type AccessEventController struct {
	Ctx       *gin.Context
	Container *container.ServiceContainer
}

// NewAccessEventController 创建一个新的终端事件控制器
func NewAccessEventController(ctx *gin.Context, container *container.ServiceContainer) *AccessEventController {
	return &AccessEventController{
		Ctx:       ctx,
		Container: container,
	}
}

// HandleAccessEventFunc 返回一个处理终端事件请求的Gin处理函数
func HandleAccessEventFunc(container *container.ServiceContainer, method string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		controller := NewAccessEventController(ctx, container)

		switch method {
		case "receiveEvents":
			controller.ReceiveEvents()
		case "getTerminalMode":
			controller.GetTerminalMode()
		default:
			response.FailWithMessage(ctx, code.ErrBind, "无效的方法", nil)
		}
	}
}

// authResultResponse 同步校验模式下终端期望的判定响应，authResult 0=放行 1=拒绝
func (c *AccessEventController) authResultResponse(authResult int) {
	c.Ctx.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "success",
		"data": gin.H{
			"authResult": authResult,
		},
	})
}

// ReceiveEvents 接收海康终端推送的事件流
// @Summary 接收门禁终端推送事件
// @Description 接收终端以JSON或multipart编码推送的事件，心跳快速应答，扫码事件做通行判定
// @Tags Hikvision
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /hik/events [post]
func (c *AccessEventController) ReceiveEvents() {
	reqID := uuid.New().String()[:8]

	// 任何内部错误都不能让设备收到非200应答，否则会无限重推
	defer func() {
		if r := recover(); r != nil {
			logger.Error("HIK[%s]: 事件处理panic: %v", reqID, r)
			c.Ctx.String(http.StatusOK, "OK")
		}
	}()

	rawBody, err := io.ReadAll(io.LimitReader(c.Ctx.Request.Body, maxEventBodyBytes))
	if err != nil {
		logger.Warning("HIK[%s]: 读取请求体失败: %v", reqID, err)
		c.Ctx.String(http.StatusOK, "OK")
		return
	}

	contentType := c.Ctx.GetHeader("Content-Type")

	// 标准multipart报文交给表单解析器，解析失败不致命，还有原始扫描兜底
	form := url.Values{}
	if strings.Contains(strings.ToLower(contentType), "multipart") {
		c.Ctx.Request.Body = io.NopCloser(bytes.NewReader(rawBody))
		if err := c.Ctx.Request.ParseMultipartForm(maxEventBodyBytes); err == nil && c.Ctx.Request.MultipartForm != nil {
			for key, values := range c.Ctx.Request.MultipartForm.Value {
				form[key] = values
			}
		}
	}

	extractor := c.Container.GetService("extractor").(services.InterfaceEventExtractor)
	terminalService := c.Container.GetService("terminal").(services.InterfaceTerminalService)
	gateService := c.Container.GetService("gate").(services.InterfaceGateService)
	redisService, _ := c.Container.GetService("redis").(services.InterfaceRedisService)

	events := extractor.ExtractEvents(contentType, rawBody, form)
	logger.Info("HIK[%s]: 从请求中解析出%d个事件", reqID, len(events))
	if len(events) == 0 {
		// 部分固件的心跳不带JSON段，直接确认
		c.Ctx.String(http.StatusOK, "OK")
		return
	}

	for i, meta := range events {
		// 设备标识在顶层，事件体在AccessControllerEvent/AcsEvent子对象里
		ev := meta
		if sub, ok := meta["AccessControllerEvent"].(map[string]interface{}); ok {
			ev = sub
		} else if sub, ok := meta["AcsEvent"].(map[string]interface{}); ok {
			ev = sub
		}

		// 设备断线重连后会重推缓存事件，按流水号去重
		if serialNo := eventField(ev, meta, "serialNo"); serialNo != "" && redisService != nil {
			fresh, err := redisService.SetNX("payverify:hik:event:"+serialNo, 1, eventDedupTTL)
			if err == nil && !fresh {
				logger.Info("HIK[%s]: 跳过重复事件 serialNo=%s", reqID, serialNo)
				continue
			}
		}

		// 丢弃超过时效窗口的旧事件
		if eventTime := eventField(ev, meta, "dateTime"); eventTime != "" {
			if t, err := time.Parse(time.RFC3339, eventTime); err == nil {
				if age := time.Since(t); age > maxEventAge {
					logger.Info("HIK[%s]: 跳过旧事件 %s (滞后%.0f秒)", reqID, eventTime, age.Seconds())
					continue
				}
			} else {
				logger.Warning("HIK[%s]: 事件时间解析失败 %s: %v", reqID, eventTime, err)
			}
		}

		embeddedIP := eventField(meta, nil, "ipAddress")
		embeddedMAC := eventField(meta, nil, "macAddress")
		eventType := strings.ToLower(eventField(meta, ev, "eventType"))

		// 事件体常用字段优先，部分固件把码值藏在嵌套对象里，递归兜底
		qr := eventField(ev, nil, "qrCode")
		if qr == "" {
			qr = eventField(ev, nil, "credentialNo")
		}
		if qr == "" {
			qr = eventField(ev, nil, "cardNo")
		}
		if qr == "" {
			qr = eventField(ev, nil, "code")
		}
		if qr == "" {
			qr = extractor.FindQRCode(ev)
		}

		terminal, err := terminalService.Resolve(
			embeddedMAC,
			embeddedIP,
			c.Ctx.GetHeader("X-Forwarded-For"),
			remoteIP(c.Ctx.Request.RemoteAddr),
			eventType,
		)
		if err != nil {
			logger.Error("HIK[%s]: 解析终端失败: %v", reqID, err)
			continue
		}
		if terminal == nil {
			// 未注册设备，确认但不处理
			logger.Info("HIK[%s]: 未知终端 (mac=%s, ip=%s, event=%d, type=%s)",
				reqID, embeddedMAC, embeddedIP, i, eventType)
			continue
		}

		if err := terminalService.TouchLastSeen(terminal); err != nil {
			logger.Warning("HIK[%s]: 刷新终端上报时间失败: %v", reqID, err)
		}

		// 心跳和不带码值的事件快速确认，终端不会重推
		if eventType == "heartbeat" || qr == "" {
			c.Ctx.String(http.StatusOK, "OK")
			return
		}

		logger.Info("HIK[%s]: 终端%s(%s)上报扫码: %s", reqID, terminal.TerminalName, terminal.TerminalIP, qr)

		decision, err := gateService.AttemptTransition(qr, terminal.Mode, &terminal.ID, models.AccessMethodPush)
		if err != nil {
			logger.Error("HIK[%s]: 通行判定失败: %v", reqID, err)
			c.Ctx.String(http.StatusOK, "OK")
			return
		}

		// 同步校验模式下开门由终端本地执行，服务端只回判定结果
		if decision.Granted {
			c.authResultResponse(0)
		} else {
			c.authResultResponse(1)
		}
		return
	}

	// 所有事件都不可处理，确认以避免设备重推
	c.Ctx.String(http.StatusOK, "OK")
}

// GetTerminalMode 查询终端方向模式
// @Summary 查询终端方向模式
// @Description 按终端IP查询其entry/exit/both方向配置，未注册返回unknown
// @Tags Hikvision
// @Produce json
// @Param terminal_ip path string true "终端IP"
// @Success 200 {object} map[string]interface{}
// @Router /terminal-mode/{terminal_ip} [get]
func (c *AccessEventController) GetTerminalMode() {
	terminalIP := c.Ctx.Param("terminal_ip")
	terminalService := c.Container.GetService("terminal").(services.InterfaceTerminalService)

	mode := terminalService.GetModeByIP(terminalIP)
	c.Ctx.JSON(http.StatusOK, gin.H{
		"ok":          true,
		"terminal_ip": terminalIP,
		"mode":        mode,
	})
}

// eventField 先在事件体、再在顶层元数据中取字段并转为字符串
func eventField(primary, fallback map[string]interface{}, key string) string {
	for _, m := range []map[string]interface{}{primary, fallback} {
		if m == nil {
			continue
		}
		if value, ok := m[key]; ok {
			switch v := value.(type) {
			case string:
				if s := strings.TrimSpace(v); s != "" {
					return s
				}
			case float64:
				return strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
	}
	return ""
}

// remoteIP 从RemoteAddr中去掉端口
func remoteIP(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
