package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"payverify-http-service/internal/domain/models"
	"payverify-http-service/internal/infrastructure/config"
	"payverify-http-service/pkg/logger"
	"payverify-http-service/pkg/utils"
)

// 凭证码长度与生成重试次数
const (
	qrCodeLength      = 12
	codeGenMaxRetries = 5
)

// PatientInput 合作方下发的患者数据
type PatientInput struct {
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	MedicalCardNumber string `json:"medical_card_number"`
}

// IssuanceResult 预约创建结果，qr_code由合作方自行渲染成图
type IssuanceResult struct {
	Success            bool   `json:"success"`
	AppointmentID      uint   `json:"appointment_id"`
	QRCode             string `json:"qr_code"`
	ExpiresAt          string `json:"expires_at"`
	PatientName        string `json:"patient_name"`
	PatientMedicalCard string `json:"patient_medical_card"`
	Message            string `json:"message"`
}

// AppointmentInfo 对外暴露的预约信息
type AppointmentInfo struct {
	ID                 uint   `json:"id"`
	PatientName        string `json:"patient_name"`
	PatientMedicalCard string `json:"patient_medical_card"`
	CreatedAt          string `json:"created_at,omitempty"`
	Status             string `json:"status,omitempty"`
}

// QRValidationResult 合作方二维码校验结果
type QRValidationResult struct {
	Success     bool             `json:"success"`
	Valid       bool             `json:"valid"`
	QRCode      string           `json:"qr_code,omitempty"`
	Status      string           `json:"status,omitempty"`
	ExpiresAt   string           `json:"expires_at,omitempty"`
	Revoked     bool             `json:"revoked"`
	Appointment *AppointmentInfo `json:"appointment,omitempty"`
	Message     string           `json:"message"`
}

// InterfaceAppointmentService 定义预约/凭证签发服务接口
type InterfaceAppointmentService interface {
	CreateWithQRCode(patient PatientInput, durationHours int) (*IssuanceResult, error)
	GetByQRCode(qrCode string) (*models.QRCode, error)
	ValidateQRCode(qrCode, terminalMode string) (*QRValidationResult, error)
	RevokeQRCode(qrCode string) error
}

// AppointmentService 管理预约与二维码凭证的签发。
// 时钟和凭证码生成器可注入，测试可提供确定的时间与码值。
type AppointmentService struct {
	DB           *gorm.DB
	Config       *config.Config
	Gate         InterfaceGateService
	Now          func() time.Time
	GenerateCode func() string
}

// NewAppointmentService 创建一个新的预约服务
func NewAppointmentService(db *gorm.DB, cfg *config.Config, gate InterfaceGateService) InterfaceAppointmentService {
	return &AppointmentService{
		DB:     db,
		Config: cfg,
		Gate:   gate,
		Now:    time.Now,
		GenerateCode: func() string {
			return utils.RandomCode(qrCodeLength)
		},
	}
}

// 1 CreateWithQRCode 创建（或复用）患者、新建预约并签发二维码凭证，单事务完成
func (s *AppointmentService) CreateWithQRCode(input PatientInput, durationHours int) (*IssuanceResult, error) {
	if durationHours <= 0 {
		durationHours = s.Config.QRCodeDefaultHours
	}

	var (
		patient     models.Patient
		appointment models.Appointment
		qr          models.QRCode
	)

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		// 按就诊卡号取或建患者
		result := tx.Where("medical_card_number = ?", input.MedicalCardNumber).
			Attrs(models.Patient{
				FirstName: input.FirstName,
				LastName:  input.LastName,
			}).
			FirstOrCreate(&patient, models.Patient{MedicalCardNumber: input.MedicalCardNumber})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			logger.Info("API: 创建新患者: %s", patient.FullName())
		} else {
			logger.Info("API: 复用已有患者: %s", patient.FullName())
		}

		appointment = models.Appointment{PatientID: patient.ID}
		if err := tx.Create(&appointment).Error; err != nil {
			return err
		}

		code, err := s.uniqueCode(tx)
		if err != nil {
			return err
		}

		qr = models.QRCode{
			AppointmentID: appointment.ID,
			Code:          code,
			Status:        models.QRCodeStatusActive,
			ExpiresAt:     s.Now().Add(time.Duration(durationHours) * time.Hour),
		}
		return tx.Create(&qr).Error
	})
	if err != nil {
		return nil, err
	}

	logger.Info("API: 已创建预约%d，二维码%s", appointment.ID, qr.Code)
	return &IssuanceResult{
		Success:            true,
		AppointmentID:      appointment.ID,
		QRCode:             qr.Code,
		ExpiresAt:          qr.ExpiresAt.Format(time.RFC3339),
		PatientName:        patient.FullName(),
		PatientMedicalCard: patient.MedicalCardNumber,
		Message:            "Appointment created successfully",
	}, nil
}

// uniqueCode 生成未被占用的凭证码。碰撞概率可忽略，但存储层强制唯一，
// 这里仍做有限重试兜底。
func (s *AppointmentService) uniqueCode(tx *gorm.DB) (string, error) {
	for i := 0; i < codeGenMaxRetries; i++ {
		code := s.GenerateCode()
		var count int64
		if err := tx.Model(&models.QRCode{}).Where("code = ?", code).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", errors.New("生成唯一凭证码失败")
}

// 2 GetByQRCode 按凭证码取二维码及其预约、患者
func (s *AppointmentService) GetByQRCode(qrCode string) (*models.QRCode, error) {
	var qr models.QRCode
	err := s.DB.Preload("Appointment.Patient").Where("code = ?", qrCode).First(&qr).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &qr, nil
}

// 3 ValidateQRCode 合作方二维码校验。
// 显式terminal_mode（enter/exit/leave）按对应方向尝试迁移；
// 未传模式时按双向闸机语义每次调用自动推进一步（浏览器扫码便捷模式）；
// 无法识别的模式不做状态迁移，仅回显当前状态。
// 状态变更统一经由闸机判定服务，本方法不直接写状态。
func (s *AppointmentService) ValidateQRCode(qrCode, terminalMode string) (*QRValidationResult, error) {
	qr, err := s.GetByQRCode(qrCode)
	if err != nil {
		return nil, err
	}
	if qr == nil {
		return &QRValidationResult{
			Success: true,
			Valid:   false,
			Message: "QR code not found",
		}, nil
	}

	now := s.Now()
	isValid := qr.IsValid(now)

	statusChanged := false
	if mode, known := parseTerminalMode(terminalMode); isValid && known {
		decision, err := s.Gate.AttemptTransition(qr.Code, mode, nil, models.AccessMethodAPI)
		if err != nil {
			return nil, err
		}
		if decision.Granted {
			qr.Status = decision.ToStatus
			statusChanged = true
		}
	}

	result := &QRValidationResult{
		Success:   true,
		Valid:     isValid,
		QRCode:    qr.Code,
		Status:    string(qr.Status),
		ExpiresAt: qr.ExpiresAt.Format(time.RFC3339),
		Revoked:   qr.Revoked,
	}

	if !isValid {
		result.Message = "INVALID: QR code is expired or revoked"
		return result, nil
	}

	if qr.Appointment != nil && qr.Appointment.Patient != nil {
		result.Appointment = &AppointmentInfo{
			ID:                 qr.Appointment.ID,
			PatientName:        qr.Appointment.Patient.FullName(),
			PatientMedicalCard: qr.Appointment.Patient.MedicalCardNumber,
			CreatedAt:          qr.Appointment.CreatedAt.Format(time.RFC3339),
		}
	}

	result.Message = validationMessage(qr.Status, terminalMode, statusChanged)
	return result, nil
}

// parseTerminalMode 解析合作方传入的终端模式。
// 仅enter/exit/leave和空值（空值按双向闸机自动推进）参与状态迁移，
// 无法识别的模式只读回显当前状态，不触碰凭证。
func parseTerminalMode(terminalMode string) (models.TerminalMode, bool) {
	switch terminalMode {
	case "enter":
		return models.TerminalModeEntry, true
	case "exit", "leave":
		return models.TerminalModeExit, true
	case "":
		return models.TerminalModeBoth, true
	}
	return "", false
}

// validationMessage 根据迁移后的状态生成提示语
func validationMessage(status models.QRCodeStatus, terminalMode string, changed bool) string {
	if terminalMode != "" {
		// 实体终端模式：强调状态变化
		switch {
		case status == models.QRCodeStatusEntered && changed:
			return "SUCCESS: Patient ENTERED"
		case status == models.QRCodeStatusLeft && changed:
			return "SUCCESS: Patient LEFT"
		case status == models.QRCodeStatusEntered:
			return "Patient already ENTERED"
		case status == models.QRCodeStatusLeft:
			return "Patient already LEFT"
		}
		return "QR code is valid"
	}

	// 浏览器扫码模式：仅提示当前状态
	switch status {
	case models.QRCodeStatusActive:
		return "QR Code Valid - Ready for Entry"
	case models.QRCodeStatusEntered:
		return "QR Code Valid - Patient Entered"
	case models.QRCodeStatusLeft:
		return "QR Code Valid - Patient Left"
	}
	return "QR code is valid"
}

// 4 RevokeQRCode 撤销凭证，撤销独立于状态
func (s *AppointmentService) RevokeQRCode(qrCode string) error {
	result := s.DB.Model(&models.QRCode{}).Where("code = ?", qrCode).Update("revoked", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("二维码不存在")
	}
	return nil
}

// BuildAppointmentInfo 从闸机判定结果整理预约信息，供HTTP层响应使用
func BuildAppointmentInfo(qr *models.QRCode) *AppointmentInfo {
	if qr == nil || qr.Appointment == nil || qr.Appointment.Patient == nil {
		return nil
	}
	return &AppointmentInfo{
		ID:                 qr.Appointment.ID,
		PatientName:        qr.Appointment.Patient.FullName(),
		PatientMedicalCard: qr.Appointment.Patient.MedicalCardNumber,
		Status:             string(qr.Status),
	}
}
