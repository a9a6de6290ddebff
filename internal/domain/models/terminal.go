package models

import "time"

// TerminalMode represents the direction a terminal controls
type TerminalMode string

const (
	TerminalModeEntry TerminalMode = "entry"
	TerminalModeExit  TerminalMode = "exit"
	TerminalModeBoth  TerminalMode = "both"
)

// Terminal represents a physical Hikvision access terminal registration
type Terminal struct {
	BaseModel
	TerminalName     string       `gorm:"type:varchar(100);not null" json:"terminal_name"`
	TerminalIP       string       `gorm:"type:varchar(45);unique;not null" json:"terminal_ip"`
	MACAddress       *string      `gorm:"type:varchar(17);unique" json:"mac_address,omitempty"` // 格式: AA:BB:CC:DD:EE:FF，部分固件不上报
	TerminalUsername string       `gorm:"type:varchar(50);not null" json:"terminal_username"`
	TerminalPassword string       `gorm:"type:varchar(100);not null" json:"-"`
	Mode             TerminalMode `gorm:"type:varchar(10);default:'entry';index:idx_mode_active" json:"mode"`

	// 健康状态字段，由探测和推送事件处理更新
	Reachable bool       `gorm:"default:false" json:"reachable"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
	LastError string     `gorm:"type:text" json:"last_error"`

	// 控制字段。布尔零值必须可写入，缺省值由创建入口填充，不放在列默认值上
	Active bool `gorm:"index:idx_mode_active" json:"active"` // 设为false时跳过该终端

	// Relations
	AccessLogs []AccessLog `gorm:"foreignKey:TerminalID" json:"access_logs,omitempty"`
}
