package services

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/icholy/digest"
)

const (
	// 终端HTTP请求默认超时
	defaultISAPITimeout = 5 * time.Second
	// 事件流连接超时短、读取超时长
	alertStreamConnectTimeout = 5 * time.Second
	alertStreamReadTimeout    = 60 * time.Second
	// 历史事件查询超时
	acsEventSearchTimeout = 8 * time.Second
)

// InterfaceISAPIClient 定义海康ISAPI终端客户端接口
type InterfaceISAPIClient interface {
	DeviceInfo() (string, error)
	Status() (string, error)
	OpenDoor(doorNo int, cmd string) error
	AlertStream(ctx context.Context) (*http.Response, error)
	SearchAcsEvents(start, end time.Time, maxResults int) (int, string, error)
}

// ISAPIClientFactory 按终端凭据创建客户端，便于测试替换
type ISAPIClientFactory func(host, username, password string) InterfaceISAPIClient

// ISAPIClient 海康门禁终端的ISAPI客户端 (DS-K1T342MFWX-E1等型号)。
// 终端使用自签名证书，证书校验有意关闭；认证方式为HTTP摘要认证。
type ISAPIClient struct {
	baseURL      string
	client       *http.Client
	streamClient *http.Client
}

// NewISAPIClient 创建一个新的ISAPI客户端
func NewISAPIClient(host, username, password string) InterfaceISAPIClient {
	return NewISAPIClientWithTimeout(host, username, password, defaultISAPITimeout)
}

// NewISAPIClientWithTimeout 创建指定超时的ISAPI客户端
func NewISAPIClientWithTimeout(host, username, password string, timeout time.Duration) InterfaceISAPIClient {
	tlsConfig := &tls.Config{InsecureSkipVerify: true}

	// 普通请求：有界总超时
	transport := &digest.Transport{
		Username: username,
		Password: password,
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
		},
	}

	// 事件流：连接超时5秒，响应头超时60秒，不限制总时长
	streamTransport := &digest.Transport{
		Username: username,
		Password: password,
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
			DialContext: (&net.Dialer{
				Timeout: alertStreamConnectTimeout,
			}).DialContext,
			ResponseHeaderTimeout: alertStreamReadTimeout,
		},
	}

	return &ISAPIClient{
		baseURL: "http://" + host,
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		streamClient: &http.Client{
			Transport: streamTransport,
		},
	}
}

// DeviceInfo 获取终端设备信息，用于可达性探测
func (c *ISAPIClient) DeviceInfo() (string, error) {
	return c.get("/ISAPI/System/deviceInfo")
}

// Status 获取终端运行状态
func (c *ISAPIClient) Status() (string, error) {
	return c.get("/ISAPI/System/status")
}

// OpenDoor 控制终端门继电器
func (c *ISAPIClient) OpenDoor(doorNo int, cmd string) error {
	if cmd == "" {
		cmd = "open"
	}
	xml := fmt.Sprintf("<RemoteControlDoor><cmd>%s</cmd></RemoteControlDoor>", cmd)
	url := fmt.Sprintf("%s/ISAPI/AccessControl/RemoteControl/door/%d", c.baseURL, doorNo)

	req, err := http.NewRequest(http.MethodPut, url, strings.NewReader(xml))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("open door failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}

// AlertStream 建立终端实时事件流长连接，调用方负责关闭响应体。
// 该通道用于辅助轮询集成，不是推送接收的主路径。
func (c *ISAPIClient) AlertStream(ctx context.Context) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ISAPI/Event/notification/alertStream", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, fmt.Errorf("alert stream failed: %s", resp.Status)
	}
	return resp, nil
}

// SearchAcsEvents 查询终端历史门禁事件
func (c *ISAPIClient) SearchAcsEvents(start, end time.Time, maxResults int) (int, string, error) {
	payload := fmt.Sprintf(`{"AcsEventCond":{"searchID":"1","searchResultPosition":0,"maxResults":%d,"major":0,"minor":0,"startTime":%q,"endTime":%q}}`,
		maxResults, start.Format(time.RFC3339), end.Format(time.RFC3339))

	ctx, cancel := context.WithTimeout(context.Background(), acsEventSearchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ISAPI/AccessControl/AcsEvent?format=json", strings.NewReader(payload))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, string(body), nil
}

func (c *ISAPIClient) get(path string) (string, error) {
	resp, err := c.client.Get(c.baseURL + path)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("request %s failed: %s", path, resp.Status)
	}
	return string(body), nil
}
