package models

import "time"

// AccessResult represents the result of an access attempt
type AccessResult string

const (
	AccessResultGranted AccessResult = "granted"
	AccessResultDenied  AccessResult = "denied"
)

// AccessMethod represents the channel the access attempt came through
type AccessMethod string

const (
	AccessMethodPush     AccessMethod = "push"     // 终端主动推送事件
	AccessMethodPull     AccessMethod = "pull"     // 自助机请求校验并开门
	AccessMethodAPI      AccessMethod = "api"      // 合作方API校验
	AccessMethodOverride AccessMethod = "override" // 操作员人工修正
)

// AccessLog represents one gate decision, written on every accept or refusal
type AccessLog struct {
	ID         uint         `gorm:"primaryKey" json:"id"`
	TerminalID *uint        `gorm:"index" json:"terminal_id,omitempty"` // API渠道没有终端
	Code       string       `gorm:"type:varchar(12);index" json:"code"`
	Result     AccessResult `gorm:"type:varchar(20)" json:"result"`
	Reason     string       `gorm:"type:varchar(255)" json:"reason"`
	FromStatus QRCodeStatus `gorm:"type:varchar(16)" json:"from_status"`
	ToStatus   QRCodeStatus `gorm:"type:varchar(16)" json:"to_status"`
	Method     AccessMethod `gorm:"type:varchar(20)" json:"method"`
	Timestamp  time.Time    `json:"timestamp"`

	// Relations
	Terminal *Terminal `gorm:"foreignKey:TerminalID" json:"terminal,omitempty"`
}
