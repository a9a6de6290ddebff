package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"payverify-http-service/internal/domain/models"
	"payverify-http-service/internal/error/code"
	"payverify-http-service/internal/infrastructure/config"
	"payverify-http-service/pkg/logger"
)

// GateDecision 一次通行判定的结果。Granted为false时Reason/DenialCode说明拒绝原因。
type GateDecision struct {
	Granted    bool
	Reason     string
	DenialCode int
	QRCode     *models.QRCode
	FromStatus models.QRCodeStatus
	ToStatus   models.QRCodeStatus
}

// InterfaceGateService 定义闸机判定服务接口
type InterfaceGateService interface {
	NextStatus(current models.QRCodeStatus, mode models.TerminalMode) (models.QRCodeStatus, bool)
	AttemptTransition(qrCode string, mode models.TerminalMode, terminalID *uint, method models.AccessMethod) (*GateDecision, error)
	Revert(qr *models.QRCode, prior models.QRCodeStatus) error
	OverrideStatus(qrCode string, status models.QRCodeStatus, reason, operator string) (*models.QRCode, error)
	ListLogs(query models.PaginationQuery) ([]models.AccessLog, models.PaginationResult, error)
}

// GateService 决定并应用凭证状态迁移。
// 凭证状态只允许经由AttemptTransition（以及独立审计的OverrideStatus）变更。
type GateService struct {
	DB        *gorm.DB
	Config    *config.Config
	Publisher InterfaceEventPublisher
	Now       func() time.Time
}

// NewGateService 创建一个新的闸机判定服务
func NewGateService(db *gorm.DB, cfg *config.Config, publisher InterfaceEventPublisher) InterfaceGateService {
	return &GateService{
		DB:        db,
		Config:    cfg,
		Publisher: publisher,
		Now:       time.Now,
	}
}

// 1 NextStatus 根据当前状态和终端模式计算允许的下一状态。
// 纯函数：对任意(状态,模式)组合有确定结果，left为终态，任何模式都不再迁移。
func (s *GateService) NextStatus(current models.QRCodeStatus, mode models.TerminalMode) (models.QRCodeStatus, bool) {
	switch mode {
	case models.TerminalModeEntry:
		if current == models.QRCodeStatusActive {
			return models.QRCodeStatusEntered, true
		}
	case models.TerminalModeExit:
		if current == models.QRCodeStatusEntered {
			return models.QRCodeStatusLeft, true
		}
	default: // both及其它值按双向闸机处理
		if current == models.QRCodeStatusActive {
			return models.QRCodeStatusEntered, true
		}
		if current == models.QRCodeStatusEntered {
			return models.QRCodeStatusLeft, true
		}
	}
	return "", false
}

// 2 AttemptTransition 校验扫码并应用状态迁移。
// 状态写入使用条件更新谓词（status=期望值），同码并发扫码只有一次能成功，
// 多进程部署下依赖存储层的原子条件写保证。
func (s *GateService) AttemptTransition(qrCode string, mode models.TerminalMode, terminalID *uint, method models.AccessMethod) (*GateDecision, error) {
	qrCode = strings.TrimSpace(qrCode)

	var qr models.QRCode
	err := s.DB.Preload("Appointment.Patient").Where("code = ?", qrCode).First(&qr).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Info("GATE: 二维码不存在: %s", qrCode)
			decision := &GateDecision{
				Granted:    false,
				Reason:     "Invalid or expired QR code",
				DenialCode: code.ErrQRCodeNotFound,
			}
			s.logDecision(terminalID, qrCode, decision, method)
			return decision, nil
		}
		return nil, err
	}

	now := s.Now()
	if !qr.IsValid(now) {
		logger.Info("GATE: 二维码无效或已过期: %s (status=%s, revoked=%v, expires=%s)",
			qrCode, qr.Status, qr.Revoked, qr.ExpiresAt.Format(time.RFC3339))
		decision := &GateDecision{
			Granted:    false,
			Reason:     "Invalid or expired QR code",
			DenialCode: code.ErrQRCodeNotFound,
			QRCode:     &qr,
			FromStatus: qr.Status,
		}
		s.logDecision(terminalID, qrCode, decision, method)
		return decision, nil
	}

	current := qr.Status
	next, ok := s.NextStatus(current, mode)
	if !ok {
		// 设备对拒绝的重试是无害的，这里只是拒绝通行，不是故障
		logger.Info("GATE: 拒绝通行 - %s模式下不允许从%s迁移 (qr=%s)", mode, current, qrCode)
		decision := &GateDecision{
			Granted:    false,
			Reason:     fmt.Sprintf("Access denied: Invalid status transition from %s for %s mode", current, mode),
			DenialCode: code.ErrQRCodeTransition,
			QRCode:     &qr,
			FromStatus: current,
		}
		s.logDecision(terminalID, qrCode, decision, method)
		return decision, nil
	}

	// 条件更新：以期望的当前状态为谓词，丢失更新的竞争方affected=0
	result := s.DB.Model(&models.QRCode{}).
		Where("id = ? AND status = ?", qr.ID, current).
		Update("status", next)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		logger.Info("GATE: 并发扫码竞争失败 (qr=%s, expected=%s)", qrCode, current)
		decision := &GateDecision{
			Granted:    false,
			Reason:     fmt.Sprintf("Access denied: Invalid status transition from %s for %s mode", current, mode),
			DenialCode: code.ErrQRCodeTransition,
			QRCode:     &qr,
			FromStatus: current,
		}
		s.logDecision(terminalID, qrCode, decision, method)
		return decision, nil
	}

	qr.Status = next
	logger.Info("GATE: 允许通行 %s -> %s (qr=%s)", current, next, qrCode)
	decision := &GateDecision{
		Granted:    true,
		QRCode:     &qr,
		FromStatus: current,
		ToStatus:   next,
	}
	s.logDecision(terminalID, qrCode, decision, method)
	return decision, nil
}

// 3 Revert 补偿回退：开门命令失败后把状态写回先前值，避免凭证被白白消耗。
// 状态写入与开门是两个独立的外部效果，这里是补偿动作而非事务回滚。
func (s *GateService) Revert(qr *models.QRCode, prior models.QRCodeStatus) error {
	err := s.DB.Model(qr).Update("status", prior).Error
	if err == nil {
		qr.Status = prior
		logger.Info("GATE: 开门失败，状态已回退为%s (qr=%s)", prior, qr.Code)
	}
	return err
}

// 4 OverrideStatus 操作员人工修正凭证状态。独立于闸机判定契约的审计操作。
func (s *GateService) OverrideStatus(qrCode string, status models.QRCodeStatus, reason, operator string) (*models.QRCode, error) {
	switch status {
	case models.QRCodeStatusActive, models.QRCodeStatusEntered, models.QRCodeStatusLeft:
	default:
		return nil, errors.New("不允许写入该状态")
	}

	var qr models.QRCode
	if err := s.DB.Where("code = ?", strings.TrimSpace(qrCode)).First(&qr).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("二维码不存在")
		}
		return nil, err
	}

	prior := qr.Status
	if err := s.DB.Model(&qr).Update("status", status).Error; err != nil {
		return nil, err
	}
	qr.Status = status

	entry := models.AccessLog{
		Code:       qr.Code,
		Result:     models.AccessResultGranted,
		Reason:     fmt.Sprintf("manual override by %s: %s", operator, reason),
		FromStatus: prior,
		ToStatus:   status,
		Method:     models.AccessMethodOverride,
		Timestamp:  s.Now(),
	}
	if err := s.DB.Create(&entry).Error; err != nil {
		logger.Error("写入通行日志失败: %v", err)
	}

	logger.Info("GATE: 操作员%s人工修正 %s: %s -> %s", operator, qr.Code, prior, status)
	return &qr, nil
}

// 5 ListLogs 分页查询通行判定记录，按时间排序
func (s *GateService) ListLogs(query models.PaginationQuery) ([]models.AccessLog, models.PaginationResult, error) {
	if query.PageNum <= 0 {
		query.PageNum = 1
	}
	if query.PageSize <= 0 || query.PageSize > 500 {
		query.PageSize = 50
	}

	var total int64
	if err := s.DB.Model(&models.AccessLog{}).Count(&total).Error; err != nil {
		return nil, models.PaginationResult{}, err
	}

	order := "timestamp ASC"
	if query.Desc {
		order = "timestamp DESC"
	}

	var logs []models.AccessLog
	err := s.DB.Preload("Terminal").Order(order).
		Offset((query.PageNum - 1) * query.PageSize).
		Limit(query.PageSize).
		Find(&logs).Error
	if err != nil {
		return nil, models.PaginationResult{}, err
	}
	return logs, models.NewPaginationResult(int(total), query.PageNum, query.PageSize), nil
}

// logDecision 每次判定都落一条通行日志，并尽力广播给大厅看板
func (s *GateService) logDecision(terminalID *uint, qrCode string, decision *GateDecision, method models.AccessMethod) {
	entry := models.AccessLog{
		TerminalID: terminalID,
		Code:       qrCode,
		Reason:     decision.Reason,
		FromStatus: decision.FromStatus,
		ToStatus:   decision.ToStatus,
		Method:     method,
		Timestamp:  s.Now(),
	}
	if decision.Granted {
		entry.Result = models.AccessResultGranted
	} else {
		entry.Result = models.AccessResultDenied
	}

	if err := s.DB.Create(&entry).Error; err != nil {
		logger.Error("写入通行日志失败: %v", err)
	}

	if s.Publisher != nil {
		s.Publisher.PublishAccessEvent(entry)
	}
}
