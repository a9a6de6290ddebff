package models

import "time"

// QRCodeStatus represents the lifecycle status of a QR credential
type QRCodeStatus string

const (
	QRCodeStatusActive  QRCodeStatus = "active"
	QRCodeStatusEntered QRCodeStatus = "entered"
	QRCodeStatusLeft    QRCodeStatus = "left"
	// QRCodeStatusExpired 仅用于展示，闸机逻辑从不写入该值（过期由时间计算得出）
	QRCodeStatusExpired QRCodeStatus = "expired"
)

// QRCode represents the access credential bound 1:1 to an appointment
type QRCode struct {
	BaseModel
	AppointmentID uint         `gorm:"not null;uniqueIndex" json:"appointment_id"`
	Code          string       `gorm:"type:varchar(12);unique;not null;index" json:"code"` // 12位大写字母数字凭证码
	Status        QRCodeStatus `gorm:"type:varchar(16);default:'active'" json:"status"`
	Revoked       bool         `gorm:"default:false" json:"revoked"`
	ExpiresAt     time.Time    `gorm:"not null" json:"expires_at"`

	// Relations
	Appointment *Appointment `gorm:"foreignKey:AppointmentID" json:"appointment,omitempty"`
}

// IsValid 判断凭证在给定时刻是否可用。
// 过期比较使用严格小于：expires_at 恰好等于当前时刻视为已过期。
func (q *QRCode) IsValid(now time.Time) bool {
	if q.Revoked {
		return false
	}
	if !now.Before(q.ExpiresAt) {
		return false
	}
	switch q.Status {
	case QRCodeStatusActive, QRCodeStatusEntered, QRCodeStatusLeft:
		return true
	}
	return false
}

// EffectiveStatus 返回用于展示的状态，已过期的凭证显示为expired
func (q *QRCode) EffectiveStatus(now time.Time) QRCodeStatus {
	if !now.Before(q.ExpiresAt) {
		return QRCodeStatusExpired
	}
	return q.Status
}
