package services

import (
	"encoding/json"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"payverify-http-service/internal/domain/models"
	"payverify-http-service/internal/infrastructure/config"
	"payverify-http-service/pkg/logger"
)

// 广播主题
const (
	// 通行判定事件主题
	TopicAccessEvents = "payverify/access/events"

	// 终端状态主题
	TopicTerminalStatus = "payverify/terminal/status"
)

// InterfaceEventPublisher 定义通行事件广播接口。
// 广播是尽力而为的：代理不可用时判定流程照常进行。
type InterfaceEventPublisher interface {
	Connect() error
	Disconnect()
	PublishAccessEvent(entry models.AccessLog)
	PublishTerminalStatus(terminal *models.Terminal)
}

// MQTTEventService 把通行判定和终端健康状态广播到大厅看板订阅的MQTT主题
type MQTTEventService struct {
	Config *config.Config
	Client mqtt.Client

	connectedMutex sync.RWMutex
	isConnected    bool
	publishMutex   sync.Mutex
}

// AccessEventMessage 通行事件消息结构
type AccessEventMessage struct {
	Type       string `json:"type"`
	TerminalID *uint  `json:"terminal_id,omitempty"`
	Code       string `json:"code"`
	Result     string `json:"result"`
	Reason     string `json:"reason,omitempty"`
	FromStatus string `json:"from_status,omitempty"`
	ToStatus   string `json:"to_status,omitempty"`
	Method     string `json:"method"`
	Timestamp  int64  `json:"timestamp"`
}

// TerminalStatusMessage 终端状态消息结构
type TerminalStatusMessage struct {
	Type       string `json:"type"`
	TerminalID uint   `json:"terminal_id"`
	Name       string `json:"name"`
	IP         string `json:"ip"`
	Reachable  bool   `json:"reachable"`
	LastError  string `json:"last_error,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// NewMQTTEventService 创建一个新的MQTT事件广播服务
func NewMQTTEventService(cfg *config.Config) InterfaceEventPublisher {
	return &MQTTEventService{
		Config: cfg,
	}
}

// Connect 连接MQTT代理
func (s *MQTTEventService) Connect() error {
	opts := mqtt.NewClientOptions().
		AddBroker(s.Config.MQTTBrokerURL).
		SetClientID(s.Config.MQTTClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second).
		SetKeepAlive(30 * time.Second)

	if s.Config.MQTTUsername != "" {
		opts.SetUsername(s.Config.MQTTUsername)
		opts.SetPassword(s.Config.MQTTPassword)
	}

	opts.OnConnect = func(client mqtt.Client) {
		s.connectedMutex.Lock()
		s.isConnected = true
		s.connectedMutex.Unlock()
		logger.Info("MQTT事件广播已连接: %s", s.Config.MQTTBrokerURL)
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		s.connectedMutex.Lock()
		s.isConnected = false
		s.connectedMutex.Unlock()
		logger.Warning("MQTT连接断开: %v", err)
	}

	s.Client = mqtt.NewClient(opts)
	token := s.Client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return mqtt.ErrNotConnected
	}
	return token.Error()
}

// Disconnect 断开MQTT连接
func (s *MQTTEventService) Disconnect() {
	if s.Client != nil && s.Client.IsConnected() {
		s.Client.Disconnect(250)
	}
	s.connectedMutex.Lock()
	s.isConnected = false
	s.connectedMutex.Unlock()
}

// PublishAccessEvent 广播一次通行判定
func (s *MQTTEventService) PublishAccessEvent(entry models.AccessLog) {
	msg := AccessEventMessage{
		Type:       "access_event",
		TerminalID: entry.TerminalID,
		Code:       entry.Code,
		Result:     string(entry.Result),
		Reason:     entry.Reason,
		FromStatus: string(entry.FromStatus),
		ToStatus:   string(entry.ToStatus),
		Method:     string(entry.Method),
		Timestamp:  entry.Timestamp.UnixMilli(),
	}
	s.publish(TopicAccessEvents, msg)
}

// PublishTerminalStatus 广播终端健康状态变化
func (s *MQTTEventService) PublishTerminalStatus(terminal *models.Terminal) {
	msg := TerminalStatusMessage{
		Type:       "terminal_status",
		TerminalID: terminal.ID,
		Name:       terminal.TerminalName,
		IP:         terminal.TerminalIP,
		Reachable:  terminal.Reachable,
		LastError:  terminal.LastError,
		Timestamp:  time.Now().UnixMilli(),
	}
	s.publish(TopicTerminalStatus, msg)
}

// publish 序列化并发布消息，失败只记日志
func (s *MQTTEventService) publish(topic string, message interface{}) {
	s.connectedMutex.RLock()
	connected := s.isConnected && s.Client != nil
	s.connectedMutex.RUnlock()
	if !connected {
		return
	}

	payload, err := json.Marshal(message)
	if err != nil {
		logger.Error("序列化MQTT消息失败: %v", err)
		return
	}

	s.publishMutex.Lock()
	defer s.publishMutex.Unlock()
	token := s.Client.Publish(topic, byte(s.Config.MQTTQoS), false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		logger.Warning("发布MQTT消息超时: %s", topic)
		return
	}
	if token.Error() != nil {
		logger.Warning("发布MQTT消息失败: %v", token.Error())
	}
}
