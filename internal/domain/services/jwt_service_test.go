package services

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"payverify-http-service/internal/domain/models"
)

func seedOperator(t *testing.T, db *gorm.DB, username, password string, role models.OperatorRole) *models.Operator {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("生成密码哈希失败: %v", err)
	}
	operator := models.Operator{
		Username: username,
		Password: string(hashed),
		Role:     role,
	}
	if err := db.Create(&operator).Error; err != nil {
		t.Fatalf("创建操作员失败: %v", err)
	}
	return &operator
}

func TestGenerateAndExtractClaims(t *testing.T) {
	db := newTestDB(t)
	s := NewJWTService(newTestConfig(), db)

	token, err := s.GenerateToken(7, models.OperatorRoleAdmin)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := s.ExtractClaims(token)
	if err != nil {
		t.Fatalf("ExtractClaims: %v", err)
	}
	if claims.OperatorID != 7 {
		t.Errorf("operator_id不符: %d", claims.OperatorID)
	}
	if claims.Role != string(models.OperatorRoleAdmin) {
		t.Errorf("role不符: %s", claims.Role)
	}
	if claims.Issuer != "payverify-http-service" {
		t.Errorf("issuer不符: %s", claims.Issuer)
	}
}

func TestExtractClaimsRejectsTampered(t *testing.T) {
	db := newTestDB(t)
	s := NewJWTService(newTestConfig(), db)

	token, err := s.GenerateToken(1, models.OperatorRoleReceptionist)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	// 篡改签名
	if _, err := s.ExtractClaims(token + "x"); err == nil {
		t.Fatal("被篡改的令牌应被拒绝")
	}

	// 密钥不同的服务不认对方的令牌
	otherCfg := newTestConfig()
	otherCfg.JWTSecretKey = "another-secret"
	other := NewJWTService(otherCfg, db)
	if _, err := other.ExtractClaims(token); err == nil {
		t.Fatal("签名密钥不同的令牌应被拒绝")
	}
}

func TestLogin(t *testing.T) {
	db := newTestDB(t)
	s := NewJWTService(newTestConfig(), db)

	seedOperator(t, db, "reception1", "s3cret", models.OperatorRoleReceptionist)

	result, err := s.Login("reception1", "s3cret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result.Token == "" || result.Username != "reception1" {
		t.Fatalf("登录结果不符: %+v", result)
	}
	if result.Role != string(models.OperatorRoleReceptionist) {
		t.Errorf("角色不符: %s", result.Role)
	}

	// 签发的令牌可回读
	claims, err := s.ExtractClaims(result.Token)
	if err != nil {
		t.Fatalf("ExtractClaims: %v", err)
	}
	if claims.OperatorID != result.OperatorID {
		t.Errorf("令牌中的operator_id不符: %d != %d", claims.OperatorID, result.OperatorID)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	db := newTestDB(t)
	s := NewJWTService(newTestConfig(), db)

	seedOperator(t, db, "reception1", "s3cret", models.OperatorRoleReceptionist)

	if _, err := s.Login("reception1", "wrong"); err == nil {
		t.Fatal("错误密码应被拒绝")
	}
	if _, err := s.Login("ghost", "s3cret"); err == nil {
		t.Fatal("不存在的操作员应被拒绝")
	}
}

func TestOperatorHasRole(t *testing.T) {
	super := models.Operator{Role: models.OperatorRoleSuperAdmin}
	admin := models.Operator{Role: models.OperatorRoleAdmin}
	reception := models.Operator{Role: models.OperatorRoleReceptionist}

	if !super.HasRole(models.OperatorRoleAdmin) || !super.HasRole(models.OperatorRoleReceptionist) {
		t.Error("超级管理员应具备所有角色能力")
	}
	if !admin.HasRole(models.OperatorRoleReceptionist) {
		t.Error("管理员应具备前台能力")
	}
	if admin.HasRole(models.OperatorRoleSuperAdmin) {
		t.Error("管理员不应具备超级管理员能力")
	}
	if reception.HasRole(models.OperatorRoleAdmin) {
		t.Error("前台不应具备管理员能力")
	}
}
