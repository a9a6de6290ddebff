package services

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// newFakeDevice 启动一个模拟终端的HTTP服务，返回客户端与请求记录
func newFakeDevice(t *testing.T, handler http.HandlerFunc) (InterfaceISAPIClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	host := strings.TrimPrefix(server.URL, "http://")
	return NewISAPIClient(host, "admin", "password123"), server
}

func TestDeviceInfo(t *testing.T) {
	const deviceXML = `<DeviceInfo><model>DS-K1T342MFWX-E1</model></DeviceInfo>`

	var gotPath string
	client, _ := newFakeDevice(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(deviceXML))
	})

	info, err := client.DeviceInfo()
	if err != nil {
		t.Fatalf("DeviceInfo: %v", err)
	}
	if gotPath != "/ISAPI/System/deviceInfo" {
		t.Errorf("请求路径不符: %s", gotPath)
	}
	if info != deviceXML {
		t.Errorf("设备信息不符: %s", info)
	}
}

func TestDeviceInfoUnreachable(t *testing.T) {
	// 端口1基本必然拒绝连接
	client := NewISAPIClientWithTimeout("127.0.0.1:1", "admin", "password123", 500*time.Millisecond)
	if _, err := client.DeviceInfo(); err == nil {
		t.Fatal("不可达终端应返回错误")
	}
}

func TestOpenDoor(t *testing.T) {
	var (
		gotMethod string
		gotPath   string
		gotBody   string
		gotCT     string
	)
	client, _ := newFakeDevice(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotCT = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Write([]byte(`<ResponseStatus><statusCode>1</statusCode></ResponseStatus>`))
	})

	if err := client.OpenDoor(1, ""); err != nil {
		t.Fatalf("OpenDoor: %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Errorf("应为PUT请求, got %s", gotMethod)
	}
	if gotPath != "/ISAPI/AccessControl/RemoteControl/door/1" {
		t.Errorf("请求路径不符: %s", gotPath)
	}
	if gotBody != "<RemoteControlDoor><cmd>open</cmd></RemoteControlDoor>" {
		t.Errorf("控制报文不符: %s", gotBody)
	}
	if gotCT != "application/xml" {
		t.Errorf("Content-Type不符: %s", gotCT)
	}
}

func TestOpenDoorCustomCommand(t *testing.T) {
	var gotBody string
	client, _ := newFakeDevice(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
	})

	if err := client.OpenDoor(2, "alwaysOpen"); err != nil {
		t.Fatalf("OpenDoor: %v", err)
	}
	if gotBody != "<RemoteControlDoor><cmd>alwaysOpen</cmd></RemoteControlDoor>" {
		t.Errorf("控制报文不符: %s", gotBody)
	}
}

func TestOpenDoorDeviceError(t *testing.T) {
	client, _ := newFakeDevice(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`<ResponseStatus><statusString>Invalid Operation</statusString></ResponseStatus>`))
	})

	err := client.OpenDoor(1, "")
	if err == nil {
		t.Fatal("终端报错时应返回错误")
	}
	if !strings.Contains(err.Error(), "Invalid Operation") {
		t.Errorf("错误应包含终端响应体: %v", err)
	}
}

func TestSearchAcsEvents(t *testing.T) {
	var gotBody string
	client, _ := newFakeDevice(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Write([]byte(`{"AcsEvent":{"totalMatches":0}}`))
	})

	start := time.Date(2026, 8, 25, 8, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	status, body, err := client.SearchAcsEvents(start, end, 30)
	if err != nil {
		t.Fatalf("SearchAcsEvents: %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("状态码不符: %d", status)
	}
	if !strings.Contains(body, "totalMatches") {
		t.Errorf("响应体不符: %s", body)
	}
	if !strings.Contains(gotBody, `"maxResults":30`) || !strings.Contains(gotBody, "2026-08-25T08:00:00Z") {
		t.Errorf("查询条件不符: %s", gotBody)
	}
}
