package code

// 错误码消息映射
var codeMessageMap = map[int]string{
	// 通用错误码
	ErrSuccess:      "成功",
	ErrUnknown:      "未知错误",
	ErrBind:         "请求参数绑定错误",
	ErrValidation:   "请求参数验证错误",
	ErrTokenInvalid: "无效的认证令牌",

	// 操作员相关错误码
	ErrOperatorNotFound:          "操作员不存在",
	ErrOperatorAlreadyExist:      "操作员已存在",
	ErrOperatorPasswordIncorrect: "操作员密码错误",
	ErrOperatorForbidden:         "操作员权限不足",

	// 终端相关错误码
	ErrTerminalNotFound:     "终端不存在",
	ErrTerminalAlreadyExist: "终端已存在",
	ErrTerminalUnreachable:  "终端不可达",
	ErrTerminalDoorFailed:   "终端开门命令失败",

	// 凭证相关错误码
	ErrQRCodeNotFound:   "二维码不存在或已过期",
	ErrQRCodeInvalid:    "二维码无效",
	ErrQRCodeTransition: "当前状态下不允许此方向通行",
	ErrQRCodeRevoked:    "二维码已撤销",

	// 预约相关错误码
	ErrAppointmentNotFound: "预约不存在",
	ErrPatientNotFound:     "患者不存在",

	// 集成方相关错误码
	ErrIntegrationTokenInvalid: "集成方令牌无效或未启用",

	// 数据库相关错误码
	ErrDatabase:       "数据库错误",
	ErrRecordNotFound: "记录不存在",
}

// 错误码HTTP状态码映射
var codeStatusMap = map[int]int{
	// 通用错误码
	ErrSuccess:      StatusOK,
	ErrUnknown:      StatusInternalServerError,
	ErrBind:         StatusBadRequest,
	ErrValidation:   StatusBadRequest,
	ErrTokenInvalid: StatusUnauthorized,

	// 操作员相关错误码
	ErrOperatorNotFound:          StatusNotFound,
	ErrOperatorAlreadyExist:      StatusBadRequest,
	ErrOperatorPasswordIncorrect: StatusUnauthorized,
	ErrOperatorForbidden:         StatusForbidden,

	// 终端相关错误码
	ErrTerminalNotFound:     StatusNotFound,
	ErrTerminalAlreadyExist: StatusBadRequest,
	ErrTerminalUnreachable:  StatusBadGateway,
	ErrTerminalDoorFailed:   StatusBadGateway,

	// 凭证相关错误码
	ErrQRCodeNotFound:   StatusBadRequest,
	ErrQRCodeInvalid:    StatusBadRequest,
	ErrQRCodeTransition: StatusForbidden,
	ErrQRCodeRevoked:    StatusBadRequest,

	// 预约相关错误码
	ErrAppointmentNotFound: StatusNotFound,
	ErrPatientNotFound:     StatusNotFound,

	// 集成方相关错误码
	ErrIntegrationTokenInvalid: StatusUnauthorized,

	// 数据库相关错误码
	ErrDatabase:       StatusInternalServerError,
	ErrRecordNotFound: StatusNotFound,
}

// GetMessage 获取错误码对应的消息
func GetMessage(code int) string {
	if msg, ok := codeMessageMap[code]; ok {
		return msg
	}
	return "未知错误"
}

// GetStatus 获取错误码对应的HTTP状态码
func GetStatus(code int) int {
	if status, ok := codeStatusMap[code]; ok {
		return status
	}
	return StatusInternalServerError
}
