package services

import (
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"payverify-http-service/internal/domain/models"
)

func newAppointmentServiceForTest(db *gorm.DB) *AppointmentService {
	svc := NewAppointmentService(db, newTestConfig(), newGateService(db))
	return svc.(*AppointmentService)
}

func TestCreateWithQRCode(t *testing.T) {
	db := newTestDB(t)
	s := newAppointmentServiceForTest(db)

	result, err := s.CreateWithQRCode(PatientInput{
		FirstName:         "John",
		LastName:          "Doe",
		MedicalCardNumber: "MC1234567",
	}, 0)
	if err != nil {
		t.Fatalf("CreateWithQRCode: %v", err)
	}
	if !result.Success || result.AppointmentID == 0 {
		t.Fatalf("创建失败: %+v", result)
	}
	if result.PatientName != "John Doe" {
		t.Errorf("患者姓名不符: %s", result.PatientName)
	}

	// 凭证码为12位大写字母数字
	if len(result.QRCode) != 12 {
		t.Fatalf("凭证码应为12位, got %q", result.QRCode)
	}
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	for _, r := range result.QRCode {
		if !strings.ContainsRune(alphabet, r) {
			t.Fatalf("凭证码包含非法字符: %q", result.QRCode)
		}
	}

	// 缺省有效期24小时
	expiresAt, err := time.Parse(time.RFC3339, result.ExpiresAt)
	if err != nil {
		t.Fatalf("过期时间格式错误: %v", err)
	}
	want := time.Now().Add(24 * time.Hour)
	if diff := expiresAt.Sub(want); diff > time.Minute || diff < -time.Minute {
		t.Errorf("过期时间应约为24小时后, got %s", result.ExpiresAt)
	}
}

func TestCreateWithQRCodeReusesPatient(t *testing.T) {
	db := newTestDB(t)
	s := newAppointmentServiceForTest(db)

	input := PatientInput{FirstName: "Jane", LastName: "Doe", MedicalCardNumber: "MC0000001"}
	if _, err := s.CreateWithQRCode(input, 2); err != nil {
		t.Fatalf("第一次创建: %v", err)
	}

	// 同卡号不同姓名：复用患者，不覆盖姓名
	input.FirstName = "Janet"
	if _, err := s.CreateWithQRCode(input, 2); err != nil {
		t.Fatalf("第二次创建: %v", err)
	}

	var patientCount, appointmentCount int64
	db.Model(&models.Patient{}).Count(&patientCount)
	db.Model(&models.Appointment{}).Count(&appointmentCount)
	if patientCount != 1 {
		t.Errorf("同卡号应只有1个患者, got %d", patientCount)
	}
	if appointmentCount != 2 {
		t.Errorf("应有2个预约, got %d", appointmentCount)
	}

	var patient models.Patient
	db.First(&patient)
	if patient.FirstName != "Jane" {
		t.Errorf("复用患者不应覆盖姓名, got %s", patient.FirstName)
	}
}

func TestUniqueCodeRetry(t *testing.T) {
	db := newTestDB(t)
	s := newAppointmentServiceForTest(db)

	seedQRCode(t, db, "COLLISION001", models.QRCodeStatusActive, time.Now().Add(time.Hour))

	// 第一次生成撞库，第二次换码
	calls := 0
	s.GenerateCode = func() string {
		calls++
		if calls == 1 {
			return "COLLISION001"
		}
		return "FRESH0000001"
	}

	result, err := s.CreateWithQRCode(PatientInput{
		FirstName:         "A",
		LastName:          "B",
		MedicalCardNumber: "MC-RETRY",
	}, 1)
	if err != nil {
		t.Fatalf("CreateWithQRCode: %v", err)
	}
	if result.QRCode != "FRESH0000001" {
		t.Errorf("撞库后应使用新码, got %s", result.QRCode)
	}
	if calls != 2 {
		t.Errorf("期望2次生成调用, got %d", calls)
	}
}

func TestValidateQRCodeAutoProgression(t *testing.T) {
	db := newTestDB(t)
	s := newAppointmentServiceForTest(db)
	seedQRCode(t, db, "AUTOPROG0001", models.QRCodeStatusActive, time.Now().Add(time.Hour))

	// 浏览器模式：每次调用自动推进一步
	result, err := s.ValidateQRCode("AUTOPROG0001", "")
	if err != nil {
		t.Fatalf("ValidateQRCode: %v", err)
	}
	if !result.Valid || result.Status != "entered" {
		t.Fatalf("第一次校验应推进到entered: %+v", result)
	}
	if result.Message != "QR Code Valid - Patient Entered" {
		t.Errorf("提示语不符: %s", result.Message)
	}
	if result.Appointment == nil {
		t.Fatal("有效凭证应带预约信息")
	}

	result, _ = s.ValidateQRCode("AUTOPROG0001", "")
	if result.Status != "left" {
		t.Fatalf("第二次校验应推进到left: %+v", result)
	}

	// left为终态，不再变化
	result, _ = s.ValidateQRCode("AUTOPROG0001", "")
	if result.Status != "left" || !result.Valid {
		t.Fatalf("离场后的校验应保持left: %+v", result)
	}
	if result.Message != "QR Code Valid - Patient Left" {
		t.Errorf("提示语不符: %s", result.Message)
	}
}

func TestValidateQRCodeExplicitModes(t *testing.T) {
	db := newTestDB(t)
	s := newAppointmentServiceForTest(db)
	seedQRCode(t, db, "EXPLICIT0001", models.QRCodeStatusActive, time.Now().Add(time.Hour))

	// enter模式入场
	result, err := s.ValidateQRCode("EXPLICIT0001", "enter")
	if err != nil {
		t.Fatalf("ValidateQRCode: %v", err)
	}
	if result.Message != "SUCCESS: Patient ENTERED" {
		t.Errorf("提示语不符: %s", result.Message)
	}

	// 重复enter：状态不变
	result, _ = s.ValidateQRCode("EXPLICIT0001", "enter")
	if result.Message != "Patient already ENTERED" || result.Status != "entered" {
		t.Errorf("重复入场提示不符: %+v", result)
	}

	// leave等价于exit
	result, _ = s.ValidateQRCode("EXPLICIT0001", "leave")
	if result.Message != "SUCCESS: Patient LEFT" || result.Status != "left" {
		t.Errorf("离场提示不符: %+v", result)
	}
}

// 无法识别的terminal_mode只读回显当前状态，不消耗凭证
func TestValidateQRCodeUnknownModeNoTransition(t *testing.T) {
	db := newTestDB(t)
	s := newAppointmentServiceForTest(db)
	seedQRCode(t, db, "MODEGARBAGE1", models.QRCodeStatusActive, time.Now().Add(time.Hour))

	result, err := s.ValidateQRCode("MODEGARBAGE1", "garbage")
	if err != nil {
		t.Fatalf("ValidateQRCode: %v", err)
	}
	if !result.Success || !result.Valid {
		t.Fatalf("未知模式下校验应成功且凭证有效: %+v", result)
	}
	if result.Status != "active" {
		t.Errorf("状态不应被推进: %s", result.Status)
	}
	if result.Message != "QR code is valid" {
		t.Errorf("提示语不符: %s", result.Message)
	}

	var qr models.QRCode
	db.Where("code = ?", "MODEGARBAGE1").First(&qr)
	if qr.Status != models.QRCodeStatusActive {
		t.Errorf("存储状态不应被推进, got %s", qr.Status)
	}

	// 未经过闸机判定，不应落通行日志
	var logCount int64
	db.Model(&models.AccessLog{}).Where("code = ?", "MODEGARBAGE1").Count(&logCount)
	if logCount != 0 {
		t.Errorf("未知模式不应产生通行日志, got %d", logCount)
	}
}

func TestValidateQRCodeNotFound(t *testing.T) {
	db := newTestDB(t)
	s := newAppointmentServiceForTest(db)

	result, err := s.ValidateQRCode("MISSING00001", "")
	if err != nil {
		t.Fatalf("ValidateQRCode: %v", err)
	}
	if !result.Success || result.Valid {
		t.Fatalf("未知码应success且valid=false: %+v", result)
	}
	if result.Message != "QR code not found" {
		t.Errorf("提示语不符: %s", result.Message)
	}
}

func TestValidateQRCodeExpired(t *testing.T) {
	db := newTestDB(t)
	s := newAppointmentServiceForTest(db)
	seedQRCode(t, db, "EXPIRED00001", models.QRCodeStatusActive, time.Now().Add(-time.Minute))

	result, err := s.ValidateQRCode("EXPIRED00001", "")
	if err != nil {
		t.Fatalf("ValidateQRCode: %v", err)
	}
	if result.Valid {
		t.Fatal("过期码应valid=false")
	}
	if result.Message != "INVALID: QR code is expired or revoked" {
		t.Errorf("提示语不符: %s", result.Message)
	}
	if result.Appointment != nil {
		t.Error("无效凭证不应带预约信息")
	}

	// 过期不改状态
	var qr models.QRCode
	db.Where("code = ?", "EXPIRED00001").First(&qr)
	if qr.Status != models.QRCodeStatusActive {
		t.Errorf("过期码的存储状态不应变化, got %s", qr.Status)
	}
}

func TestRevokeQRCode(t *testing.T) {
	db := newTestDB(t)
	s := newAppointmentServiceForTest(db)
	seedQRCode(t, db, "TOREVOKE0001", models.QRCodeStatusEntered, time.Now().Add(time.Hour))

	if err := s.RevokeQRCode("TOREVOKE0001"); err != nil {
		t.Fatalf("RevokeQRCode: %v", err)
	}

	var qr models.QRCode
	db.Where("code = ?", "TOREVOKE0001").First(&qr)
	if !qr.Revoked {
		t.Fatal("应标记为已撤销")
	}
	// 撤销独立于状态
	if qr.Status != models.QRCodeStatusEntered {
		t.Errorf("撤销不应改动状态, got %s", qr.Status)
	}

	if err := s.RevokeQRCode("MISSING00009"); err == nil {
		t.Fatal("撤销不存在的码应报错")
	}
}
