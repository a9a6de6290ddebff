package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"gorm.io/gorm"

	"payverify-http-service/internal/domain/models"
)

// fakeISAPIClient 可编程的终端客户端替身
type fakeISAPIClient struct {
	deviceInfo string
	err        error
	openCalls  []int
}

func (f *fakeISAPIClient) DeviceInfo() (string, error) { return f.deviceInfo, f.err }
func (f *fakeISAPIClient) Status() (string, error)     { return "", f.err }
func (f *fakeISAPIClient) OpenDoor(doorNo int, cmd string) error {
	f.openCalls = append(f.openCalls, doorNo)
	return f.err
}
func (f *fakeISAPIClient) AlertStream(ctx context.Context) (*http.Response, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeISAPIClient) SearchAcsEvents(start, end time.Time, maxResults int) (int, string, error) {
	return 0, "", errors.New("not implemented")
}

func newTerminalServiceForTest(db *gorm.DB, fake *fakeISAPIClient) *TerminalService {
	return &TerminalService{
		DB:     db,
		Config: newTestConfig(),
		NewClient: func(host, username, password string) InterfaceISAPIClient {
			return fake
		},
		Now: time.Now,
	}
}

func seedTerminal(t *testing.T, db *gorm.DB, name, ip string, mac *string, mode models.TerminalMode, active bool) *models.Terminal {
	t.Helper()
	terminal := models.Terminal{
		TerminalName: name,
		TerminalIP:   ip,
		MACAddress:   mac,
		Mode:         mode,
		Active:       active,
	}
	if err := db.Create(&terminal).Error; err != nil {
		t.Fatalf("创建终端失败: %v", err)
	}
	return &terminal
}

func strPtr(s string) *string { return &s }

func TestResolveByMAC(t *testing.T) {
	db := newTestDB(t)
	s := newTerminalServiceForTest(db, &fakeISAPIClient{})

	seedTerminal(t, db, "东门", "192.168.1.100", strPtr("a4:d5:c2:11:22:33"), models.TerminalModeEntry, true)
	seedTerminal(t, db, "西门", "192.168.1.101", nil, models.TerminalModeExit, true)

	// MAC匹配忽略大小写，且优先于IP
	terminal, err := s.Resolve("A4:D5:C2:11:22:33", "192.168.1.101", "", "", "accesscontrollerevent")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if terminal == nil || terminal.TerminalName != "东门" {
		t.Fatalf("应按MAC匹配到东门, got %+v", terminal)
	}
}

func TestResolveByEmbeddedIP(t *testing.T) {
	db := newTestDB(t)
	s := newTerminalServiceForTest(db, &fakeISAPIClient{})

	seedTerminal(t, db, "东门", "192.168.1.100", nil, models.TerminalModeEntry, true)

	terminal, err := s.Resolve("", "192.168.1.100", "", "", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if terminal == nil || terminal.TerminalName != "东门" {
		t.Fatalf("应按内嵌IP匹配, got %+v", terminal)
	}
}

func TestResolveByRequestIP(t *testing.T) {
	db := newTestDB(t)
	s := newTerminalServiceForTest(db, &fakeISAPIClient{})

	seedTerminal(t, db, "东门", "10.0.0.7", nil, models.TerminalModeEntry, true)

	// X-Forwarded-For取第一个地址
	terminal, err := s.Resolve("", "", "10.0.0.7, 172.16.0.1", "192.168.9.9", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if terminal == nil || terminal.TerminalIP != "10.0.0.7" {
		t.Fatalf("应按转发IP匹配, got %+v", terminal)
	}

	// 转发头为空时回落到直连地址
	terminal, err = s.Resolve("", "", "", "10.0.0.7", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if terminal == nil {
		t.Fatal("应按直连IP匹配")
	}
}

func TestResolveLastSeenFallback(t *testing.T) {
	db := newTestDB(t)
	s := newTerminalServiceForTest(db, &fakeISAPIClient{})

	old := time.Now().Add(-time.Hour)
	recent := time.Now().Add(-time.Minute)
	t1 := seedTerminal(t, db, "旧终端", "192.168.1.1", nil, models.TerminalModeEntry, true)
	t2 := seedTerminal(t, db, "新终端", "192.168.1.2", nil, models.TerminalModeExit, true)
	db.Model(t1).Update("last_seen", old)
	db.Model(t2).Update("last_seen", recent)

	// 门禁事件允许按最近上报兜底
	terminal, err := s.Resolve("", "", "", "", "accesscontrollerevent")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if terminal == nil || terminal.TerminalName != "新终端" {
		t.Fatalf("应兜底匹配最近上报的终端, got %+v", terminal)
	}

	// 其它事件类型不做兜底
	terminal, err = s.Resolve("", "", "", "", "heartbeat")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if terminal != nil {
		t.Fatalf("非门禁事件不应兜底, got %+v", terminal)
	}
}

func TestResolveSkipsInactive(t *testing.T) {
	db := newTestDB(t)
	s := newTerminalServiceForTest(db, &fakeISAPIClient{})

	seedTerminal(t, db, "停用终端", "192.168.1.50", strPtr("aa:bb:cc:dd:ee:ff"), models.TerminalModeEntry, false)

	terminal, err := s.Resolve("aa:bb:cc:dd:ee:ff", "192.168.1.50", "192.168.1.50", "192.168.1.50", "accesscontrollerevent")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if terminal != nil {
		t.Fatalf("停用终端不应被匹配, got %+v", terminal)
	}
}

func TestCreateTerminalDuplicateIP(t *testing.T) {
	db := newTestDB(t)
	s := newTerminalServiceForTest(db, &fakeISAPIClient{})

	seedTerminal(t, db, "东门", "192.168.1.100", nil, models.TerminalModeEntry, true)

	err := s.CreateTerminal(&models.Terminal{
		TerminalName: "影子终端",
		TerminalIP:   "192.168.1.100",
	})
	if err == nil {
		t.Fatal("重复IP应被拒绝")
	}
}

// 布尔零值要能落库：以停用状态注册的终端不得被列默认值改写成启用
func TestCreateTerminalPersistsInactive(t *testing.T) {
	db := newTestDB(t)
	s := newTerminalServiceForTest(db, &fakeISAPIClient{})

	err := s.CreateTerminal(&models.Terminal{
		TerminalName: "备用闸机",
		TerminalIP:   "192.168.1.200",
		Mode:         models.TerminalModeExit,
		Active:       false,
	})
	if err != nil {
		t.Fatalf("CreateTerminal: %v", err)
	}

	var stored models.Terminal
	if err := db.Where("terminal_ip = ?", "192.168.1.200").First(&stored).Error; err != nil {
		t.Fatalf("查询终端失败: %v", err)
	}
	if stored.Active {
		t.Fatal("以停用状态注册的终端落库后不应变为启用")
	}

	// 停用终端对解析和模式查询都不可见
	if terminal, err := s.Resolve("", "192.168.1.200", "", "", ""); err != nil || terminal != nil {
		t.Errorf("停用终端不应被解析到: %+v %v", terminal, err)
	}
	if mode := s.GetModeByIP("192.168.1.200"); mode != models.TerminalMode("unknown") {
		t.Errorf("停用终端应返回unknown, got %s", mode)
	}
}

func TestProbeTerminalUpdatesHealth(t *testing.T) {
	db := newTestDB(t)
	fake := &fakeISAPIClient{deviceInfo: "<DeviceInfo><model>DS-K1T342MFWX</model></DeviceInfo>"}
	s := newTerminalServiceForTest(db, fake)

	terminal := seedTerminal(t, db, "东门", "192.168.1.100", nil, models.TerminalModeEntry, true)

	info, err := s.ProbeTerminal(terminal)
	if err != nil {
		t.Fatalf("ProbeTerminal: %v", err)
	}
	if info == "" {
		t.Fatal("应返回设备信息")
	}

	var refreshed models.Terminal
	db.First(&refreshed, terminal.ID)
	if !refreshed.Reachable || refreshed.LastSeen == nil || refreshed.LastError != "" {
		t.Errorf("探测成功后健康字段不符: %+v", refreshed)
	}

	// 探测失败：reachable置false并记录错误
	fake.err = errors.New("connection refused")
	if _, err := s.ProbeTerminal(terminal); err == nil {
		t.Fatal("探测失败应返回错误")
	}
	db.First(&refreshed, terminal.ID)
	if refreshed.Reachable || refreshed.LastError == "" {
		t.Errorf("探测失败后健康字段不符: %+v", refreshed)
	}
}

func TestOpenDoorDefaultDoorNo(t *testing.T) {
	db := newTestDB(t)
	fake := &fakeISAPIClient{}
	s := newTerminalServiceForTest(db, fake)

	terminal := seedTerminal(t, db, "东门", "192.168.1.100", nil, models.TerminalModeEntry, true)

	if err := s.OpenDoor(terminal, 0); err != nil {
		t.Fatalf("OpenDoor: %v", err)
	}
	if len(fake.openCalls) != 1 || fake.openCalls[0] != 1 {
		t.Errorf("未指定门编号时应使用默认门1, got %v", fake.openCalls)
	}
}

func TestGetModeByIP(t *testing.T) {
	db := newTestDB(t)
	s := newTerminalServiceForTest(db, &fakeISAPIClient{})

	seedTerminal(t, db, "东门", "192.168.1.100", nil, models.TerminalModeEntry, true)
	seedTerminal(t, db, "停用", "192.168.1.101", nil, models.TerminalModeExit, false)

	if mode := s.GetModeByIP("192.168.1.100"); mode != models.TerminalModeEntry {
		t.Errorf("期望entry, got %s", mode)
	}
	// 停用终端视为未注册
	if mode := s.GetModeByIP("192.168.1.101"); mode != models.TerminalMode("unknown") {
		t.Errorf("停用终端应返回unknown, got %s", mode)
	}
	if mode := s.GetModeByIP("172.16.0.9"); mode != models.TerminalMode("unknown") {
		t.Errorf("未注册IP应返回unknown, got %s", mode)
	}
}

func TestTouchLastSeen(t *testing.T) {
	db := newTestDB(t)
	s := newTerminalServiceForTest(db, &fakeISAPIClient{})

	terminal := seedTerminal(t, db, "东门", "192.168.1.100", nil, models.TerminalModeEntry, true)
	db.Model(terminal).Update("reachable", false)

	if err := s.TouchLastSeen(terminal); err != nil {
		t.Fatalf("TouchLastSeen: %v", err)
	}

	var refreshed models.Terminal
	db.First(&refreshed, terminal.ID)
	if !refreshed.Reachable || refreshed.LastSeen == nil {
		t.Errorf("上报后应标记可达并刷新时间: %+v", refreshed)
	}
}
