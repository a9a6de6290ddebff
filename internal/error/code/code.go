package code

// HTTP状态码.
const (
	// StatusOK - 200: 成功.
	StatusOK = 200
	// StatusBadRequest - 400: 请求参数错误.
	StatusBadRequest = 400
	// StatusUnauthorized - 401: 未授权.
	StatusUnauthorized = 401
	// StatusForbidden - 403: 禁止访问.
	StatusForbidden = 403
	// StatusNotFound - 404: 资源不存在.
	StatusNotFound = 404
	// StatusInternalServerError - 500: 服务器内部错误.
	StatusInternalServerError = 500
	// StatusBadGateway - 502: 下游设备错误.
	StatusBadGateway = 502
	// StatusTooManyRequests - 429: 请求过多.
	StatusTooManyRequests = 429
)

// 通用错误码 (100xxx).
const (
	// ErrSuccess - 200: 成功.
	ErrSuccess int = iota + 100000
	// ErrUnknown - 500: 未知错误.
	ErrUnknown
	// ErrBind - 400: 请求参数绑定错误.
	ErrBind
	// ErrValidation - 400: 请求参数验证错误.
	ErrValidation
	// ErrTokenInvalid - 401: 令牌无效.
	ErrTokenInvalid
	// ErrTooManyRequests - 429: 请求频率过高.
	ErrTooManyRequests
)

// 操作员相关错误码 (101xxx).
const (
	// ErrOperatorNotFound - 404: 操作员不存在.
	ErrOperatorNotFound int = iota + 101000
	// ErrOperatorAlreadyExist - 400: 操作员已存在.
	ErrOperatorAlreadyExist
	// ErrOperatorPasswordIncorrect - 401: 操作员密码错误.
	ErrOperatorPasswordIncorrect
	// ErrOperatorForbidden - 403: 操作员权限不足.
	ErrOperatorForbidden
)

// 终端相关错误码 (102xxx).
const (
	// ErrTerminalNotFound - 404: 终端不存在.
	ErrTerminalNotFound int = iota + 102000
	// ErrTerminalAlreadyExist - 400: 终端已存在.
	ErrTerminalAlreadyExist
	// ErrTerminalUnreachable - 502: 终端不可达.
	ErrTerminalUnreachable
	// ErrTerminalDoorFailed - 502: 终端开门命令失败.
	ErrTerminalDoorFailed
)

// 凭证相关错误码 (103xxx).
const (
	// ErrQRCodeNotFound - 400: 二维码不存在或已过期.
	ErrQRCodeNotFound int = iota + 103000
	// ErrQRCodeInvalid - 400: 二维码无效.
	ErrQRCodeInvalid
	// ErrQRCodeTransition - 403: 当前状态下不允许此方向通行.
	ErrQRCodeTransition
	// ErrQRCodeRevoked - 400: 二维码已撤销.
	ErrQRCodeRevoked
)

// 预约相关错误码 (104xxx).
const (
	// ErrAppointmentNotFound - 404: 预约不存在.
	ErrAppointmentNotFound int = iota + 104000
	// ErrPatientNotFound - 404: 患者不存在.
	ErrPatientNotFound
)

// 集成方相关错误码 (105xxx).
const (
	// ErrIntegrationTokenInvalid - 401: 集成方令牌无效或未启用.
	ErrIntegrationTokenInvalid int = iota + 105000
)

// 数据库相关错误码 (106xxx).
const (
	// ErrDatabase - 500: 数据库错误.
	ErrDatabase int = iota + 106000
	// ErrRecordNotFound - 404: 记录不存在.
	ErrRecordNotFound
)
