package models

// Appointment represents one patient visit window.
// 每个预约恰好拥有一张二维码凭证（1:1），删除预约时级联删除凭证。
type Appointment struct {
	BaseModel
	PatientID uint `gorm:"not null;index" json:"patient_id"`

	// Relations
	Patient *Patient `gorm:"foreignKey:PatientID" json:"patient,omitempty"`
	QRCode  *QRCode  `gorm:"foreignKey:AppointmentID;constraint:OnDelete:CASCADE" json:"qr_code,omitempty"`
}
