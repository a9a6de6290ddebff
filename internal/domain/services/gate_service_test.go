package services

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"payverify-http-service/internal/domain/models"
	"payverify-http-service/internal/error/code"
	"payverify-http-service/internal/infrastructure/config"
)

// newTestDB 创建隔离的内存数据库，shared cache允许并发测试多连接访问
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=10000", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}

	err = db.AutoMigrate(
		&models.Patient{},
		&models.Appointment{},
		&models.QRCode{},
		&models.Terminal{},
		&models.Integration{},
		&models.Operator{},
		&models.AccessLog{},
	)
	if err != nil {
		t.Fatalf("迁移测试数据库失败: %v", err)
	}
	return db
}

func newTestConfig() *config.Config {
	return &config.Config{
		QRCodeDefaultHours:     24,
		TerminalDefaultDoorNo:  1,
		TerminalTimeoutSeconds: 5,
		JWTSecretKey:           "test-secret",
	}
}

// seedQRCode 建立患者-预约-二维码链并返回二维码
func seedQRCode(t *testing.T, db *gorm.DB, codeValue string, status models.QRCodeStatus, expiresAt time.Time) *models.QRCode {
	t.Helper()

	patient := models.Patient{
		FirstName:         "测试",
		LastName:          "患者",
		MedicalCardNumber: "MC-" + codeValue,
	}
	if err := db.Create(&patient).Error; err != nil {
		t.Fatalf("创建患者失败: %v", err)
	}

	appointment := models.Appointment{PatientID: patient.ID}
	if err := db.Create(&appointment).Error; err != nil {
		t.Fatalf("创建预约失败: %v", err)
	}

	qr := models.QRCode{
		AppointmentID: appointment.ID,
		Code:          codeValue,
		Status:        status,
		ExpiresAt:     expiresAt,
	}
	if err := db.Create(&qr).Error; err != nil {
		t.Fatalf("创建二维码失败: %v", err)
	}
	return &qr
}

func newGateService(db *gorm.DB) *GateService {
	return &GateService{
		DB:     db,
		Config: newTestConfig(),
		Now:    time.Now,
	}
}

func TestNextStatus(t *testing.T) {
	s := newGateService(nil)

	cases := []struct {
		current models.QRCodeStatus
		mode    models.TerminalMode
		next    models.QRCodeStatus
		ok      bool
	}{
		{models.QRCodeStatusActive, models.TerminalModeEntry, models.QRCodeStatusEntered, true},
		{models.QRCodeStatusEntered, models.TerminalModeEntry, "", false},
		{models.QRCodeStatusLeft, models.TerminalModeEntry, "", false},
		{models.QRCodeStatusActive, models.TerminalModeExit, "", false},
		{models.QRCodeStatusEntered, models.TerminalModeExit, models.QRCodeStatusLeft, true},
		{models.QRCodeStatusLeft, models.TerminalModeExit, "", false},
		{models.QRCodeStatusActive, models.TerminalModeBoth, models.QRCodeStatusEntered, true},
		{models.QRCodeStatusEntered, models.TerminalModeBoth, models.QRCodeStatusLeft, true},
		{models.QRCodeStatusLeft, models.TerminalModeBoth, "", false},
		// 未知模式按双向闸机处理
		{models.QRCodeStatusActive, models.TerminalMode("unknown"), models.QRCodeStatusEntered, true},
	}

	for _, tc := range cases {
		next, ok := s.NextStatus(tc.current, tc.mode)
		if ok != tc.ok || next != tc.next {
			t.Errorf("NextStatus(%s, %s) = (%s, %v), 期望 (%s, %v)",
				tc.current, tc.mode, next, ok, tc.next, tc.ok)
		}
	}
}

func TestAttemptTransitionRoundTrip(t *testing.T) {
	db := newTestDB(t)
	s := newGateService(db)
	seedQRCode(t, db, "ABC123XYZ789", models.QRCodeStatusActive, time.Now().Add(time.Hour))

	// 双向闸机：第一次扫码入场
	decision, err := s.AttemptTransition("ABC123XYZ789", models.TerminalModeBoth, nil, models.AccessMethodPush)
	if err != nil {
		t.Fatalf("AttemptTransition: %v", err)
	}
	if !decision.Granted || decision.ToStatus != models.QRCodeStatusEntered {
		t.Fatalf("首次扫码应入场, got %+v", decision)
	}

	// 第二次扫码离场
	decision, err = s.AttemptTransition("ABC123XYZ789", models.TerminalModeBoth, nil, models.AccessMethodPush)
	if err != nil {
		t.Fatalf("AttemptTransition: %v", err)
	}
	if !decision.Granted || decision.ToStatus != models.QRCodeStatusLeft {
		t.Fatalf("第二次扫码应离场, got %+v", decision)
	}

	// 第三次扫码拒绝，left为终态
	decision, err = s.AttemptTransition("ABC123XYZ789", models.TerminalModeBoth, nil, models.AccessMethodPush)
	if err != nil {
		t.Fatalf("AttemptTransition: %v", err)
	}
	if decision.Granted || decision.DenialCode != code.ErrQRCodeTransition {
		t.Fatalf("离场后的扫码应被拒绝, got %+v", decision)
	}

	// 三次判定各落一条通行日志
	var logCount int64
	db.Model(&models.AccessLog{}).Count(&logCount)
	if logCount != 3 {
		t.Errorf("期望3条通行日志, got %d", logCount)
	}
}

func TestAttemptTransitionEntryExitModes(t *testing.T) {
	db := newTestDB(t)
	s := newGateService(db)
	seedQRCode(t, db, "ENTRYEXIT001", models.QRCodeStatusActive, time.Now().Add(time.Hour))

	// 出口终端不能消费active凭证
	decision, err := s.AttemptTransition("ENTRYEXIT001", models.TerminalModeExit, nil, models.AccessMethodPush)
	if err != nil {
		t.Fatalf("AttemptTransition: %v", err)
	}
	if decision.Granted {
		t.Fatal("active凭证不应通过出口终端")
	}
	if !strings.Contains(decision.Reason, "Invalid status transition from active for exit mode") {
		t.Errorf("拒绝原因不符: %s", decision.Reason)
	}

	// 入口终端放行
	decision, err = s.AttemptTransition("ENTRYEXIT001", models.TerminalModeEntry, nil, models.AccessMethodPush)
	if err != nil {
		t.Fatalf("AttemptTransition: %v", err)
	}
	if !decision.Granted || decision.ToStatus != models.QRCodeStatusEntered {
		t.Fatalf("入口终端应放行, got %+v", decision)
	}

	// 再次入场被拒
	decision, _ = s.AttemptTransition("ENTRYEXIT001", models.TerminalModeEntry, nil, models.AccessMethodPush)
	if decision.Granted {
		t.Fatal("entered凭证不应再次入场")
	}
}

func TestAttemptTransitionExpiryBoundary(t *testing.T) {
	db := newTestDB(t)
	s := newGateService(db)

	expiresAt := time.Now().Add(time.Hour).Truncate(time.Second)
	seedQRCode(t, db, "BOUNDARY0001", models.QRCodeStatusActive, expiresAt)

	// 过期时刻本身即无效
	s.Now = func() time.Time { return expiresAt }
	decision, err := s.AttemptTransition("BOUNDARY0001", models.TerminalModeEntry, nil, models.AccessMethodPush)
	if err != nil {
		t.Fatalf("AttemptTransition: %v", err)
	}
	if decision.Granted {
		t.Fatal("expires_at时刻的扫码应被拒绝")
	}
	if decision.Reason != "Invalid or expired QR code" {
		t.Errorf("拒绝原因不符: %s", decision.Reason)
	}

	// 过期前一秒有效
	s.Now = func() time.Time { return expiresAt.Add(-time.Second) }
	decision, err = s.AttemptTransition("BOUNDARY0001", models.TerminalModeEntry, nil, models.AccessMethodPush)
	if err != nil {
		t.Fatalf("AttemptTransition: %v", err)
	}
	if !decision.Granted {
		t.Fatalf("过期前的扫码应放行, got %+v", decision)
	}
}

func TestAttemptTransitionRevoked(t *testing.T) {
	db := newTestDB(t)
	s := newGateService(db)

	qr := seedQRCode(t, db, "REVOKED00001", models.QRCodeStatusActive, time.Now().Add(time.Hour))
	if err := db.Model(qr).Update("revoked", true).Error; err != nil {
		t.Fatalf("撤销失败: %v", err)
	}

	decision, err := s.AttemptTransition("REVOKED00001", models.TerminalModeEntry, nil, models.AccessMethodPush)
	if err != nil {
		t.Fatalf("AttemptTransition: %v", err)
	}
	if decision.Granted {
		t.Fatal("已撤销凭证应被拒绝")
	}
}

func TestAttemptTransitionUnknownCode(t *testing.T) {
	db := newTestDB(t)
	s := newGateService(db)

	decision, err := s.AttemptTransition("NOPE00000000", models.TerminalModeEntry, nil, models.AccessMethodPush)
	if err != nil {
		t.Fatalf("AttemptTransition: %v", err)
	}
	if decision.Granted || decision.DenialCode != code.ErrQRCodeNotFound {
		t.Fatalf("未知凭证应被拒绝, got %+v", decision)
	}

	// 未知凭证也要落日志
	var entry models.AccessLog
	if err := db.Where("code = ?", "NOPE00000000").First(&entry).Error; err != nil {
		t.Fatalf("未知凭证应有通行日志: %v", err)
	}
	if entry.Result != models.AccessResultDenied {
		t.Errorf("日志结果应为denied, got %s", entry.Result)
	}
}

// 同码并发扫码只有一次迁移成功
func TestAttemptTransitionConcurrent(t *testing.T) {
	db := newTestDB(t)
	s := newGateService(db)
	seedQRCode(t, db, "RACE00000001", models.QRCodeStatusActive, time.Now().Add(time.Hour))

	const workers = 8
	var wg sync.WaitGroup
	granted := make(chan bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := s.AttemptTransition("RACE00000001", models.TerminalModeEntry, nil, models.AccessMethodPush)
			if err != nil {
				t.Errorf("AttemptTransition: %v", err)
				return
			}
			granted <- decision.Granted
		}()
	}
	wg.Wait()
	close(granted)

	grantedCount := 0
	for g := range granted {
		if g {
			grantedCount++
		}
	}
	if grantedCount != 1 {
		t.Fatalf("并发扫码应恰好放行1次, got %d", grantedCount)
	}

	var qr models.QRCode
	db.Where("code = ?", "RACE00000001").First(&qr)
	if qr.Status != models.QRCodeStatusEntered {
		t.Errorf("并发后状态应为entered, got %s", qr.Status)
	}
}

func TestRevert(t *testing.T) {
	db := newTestDB(t)
	s := newGateService(db)
	seedQRCode(t, db, "REVERT000001", models.QRCodeStatusActive, time.Now().Add(time.Hour))

	decision, err := s.AttemptTransition("REVERT000001", models.TerminalModeEntry, nil, models.AccessMethodPull)
	if err != nil || !decision.Granted {
		t.Fatalf("迁移失败: %v %+v", err, decision)
	}

	// 模拟开门失败后的补偿回退
	if err := s.Revert(decision.QRCode, decision.FromStatus); err != nil {
		t.Fatalf("Revert: %v", err)
	}

	var qr models.QRCode
	db.Where("code = ?", "REVERT000001").First(&qr)
	if qr.Status != models.QRCodeStatusActive {
		t.Errorf("回退后状态应为active, got %s", qr.Status)
	}

	// 回退后凭证可以再次使用
	decision, err = s.AttemptTransition("REVERT000001", models.TerminalModeEntry, nil, models.AccessMethodPull)
	if err != nil || !decision.Granted {
		t.Fatalf("回退后的凭证应可再次使用: %v %+v", err, decision)
	}
}

func TestOverrideStatus(t *testing.T) {
	db := newTestDB(t)
	s := newGateService(db)
	seedQRCode(t, db, "OVERRIDE0001", models.QRCodeStatusEntered, time.Now().Add(time.Hour))

	qr, err := s.OverrideStatus("OVERRIDE0001", models.QRCodeStatusLeft, "患者从侧门离开", "operator:1")
	if err != nil {
		t.Fatalf("OverrideStatus: %v", err)
	}
	if qr.Status != models.QRCodeStatusLeft {
		t.Errorf("修正后状态应为left, got %s", qr.Status)
	}

	// 修正动作写入审计日志
	var entry models.AccessLog
	if err := db.Where("code = ? AND method = ?", "OVERRIDE0001", models.AccessMethodOverride).First(&entry).Error; err != nil {
		t.Fatalf("应有修正审计日志: %v", err)
	}
	if !strings.Contains(entry.Reason, "operator:1") {
		t.Errorf("审计日志应记录操作员: %s", entry.Reason)
	}

	// 不允许写入expired等展示态
	if _, err := s.OverrideStatus("OVERRIDE0001", models.QRCodeStatus("expired"), "x", "operator:1"); err == nil {
		t.Fatal("不应允许写入expired状态")
	}
}

func TestListLogs(t *testing.T) {
	db := newTestDB(t)
	s := newGateService(db)
	seedQRCode(t, db, "LOGS00000001", models.QRCodeStatusActive, time.Now().Add(time.Hour))

	for i := 0; i < 5; i++ {
		s.AttemptTransition("LOGS00000001", models.TerminalModeBoth, nil, models.AccessMethodPush)
	}

	logs, pagination, err := s.ListLogs(models.PaginationQuery{PageNum: 1, PageSize: 3, Desc: true})
	if err != nil {
		t.Fatalf("ListLogs: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("第一页期望3条记录, got %d", len(logs))
	}
	if pagination.Total != 5 || pagination.PageNum != 1 || pagination.PageSize != 3 {
		t.Errorf("分页信息不符: %+v", pagination)
	}
	// 时间倒序
	for i := 1; i < len(logs); i++ {
		if logs[i].Timestamp.After(logs[i-1].Timestamp) {
			t.Errorf("记录应按时间倒序")
		}
	}

	// 第二页剩余2条
	logs, pagination, err = s.ListLogs(models.PaginationQuery{PageNum: 2, PageSize: 3, Desc: true})
	if err != nil {
		t.Fatalf("ListLogs: %v", err)
	}
	if len(logs) != 2 || pagination.Total != 5 {
		t.Errorf("第二页期望2条记录, got %d (total=%d)", len(logs), pagination.Total)
	}

	// 非法分页参数回落默认值
	logs, pagination, err = s.ListLogs(models.PaginationQuery{PageNum: -1, PageSize: 9999})
	if err != nil {
		t.Fatalf("ListLogs: %v", err)
	}
	if len(logs) != 5 || pagination.PageNum != 1 || pagination.PageSize != 50 {
		t.Errorf("非法参数应回落默认值: %d条 %+v", len(logs), pagination)
	}
}
