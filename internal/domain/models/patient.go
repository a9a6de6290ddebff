package models

import "strings"

// Patient represents a patient identified by a unique medical card number
type Patient struct {
	BaseModel
	FirstName         string `gorm:"type:varchar(50);not null" json:"first_name"`
	LastName          string `gorm:"type:varchar(50);not null" json:"last_name"`
	MedicalCardNumber string `gorm:"type:varchar(20);unique;not null" json:"medical_card_number"` // 唯一就诊卡号

	// Relations
	Appointments []Appointment `gorm:"foreignKey:PatientID" json:"appointments,omitempty"`
}

// FullName 返回患者全名
func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}
