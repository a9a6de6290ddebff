package services

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"payverify-http-service/pkg/logger"
)

// 海康固件在multipart表单中携带事件的字段名
var eventFieldNames = []string{"AccessControllerEvent", "AcsEvent"}

// 事件体中可能携带二维码的字段名，按优先级排列
var qrFieldNames = []string{"qrCode", "qr_code", "code", "qr", "cardNumber", "card_number"}

// 部分固件发送标准解析器无法切分的multipart报文，使用该非标准边界
const mimeBoundary = "--MIME_boundary"

// InterfaceEventExtractor 定义终端事件解析服务接口
type InterfaceEventExtractor interface {
	ExtractEvents(contentType string, rawBody []byte, form url.Values) []map[string]interface{}
	FindQRCode(data interface{}) string
}

// EventExtractor 将终端推送的异构报文规整为事件对象序列。
// 无业务知识，仅做解析；解析不出事件时返回空序列而不是错误。
type EventExtractor struct{}

// NewEventExtractor 创建事件解析服务
func NewEventExtractor() InterfaceEventExtractor {
	return &EventExtractor{}
}

// ExtractEvents 依次尝试三种编码，命中第一种产出事件的编码后停止：
// 1. JSON请求体；2. multipart表单字段；3. 原始MIME边界文本扫描。
func (e *EventExtractor) ExtractEvents(contentType string, rawBody []byte, form url.Values) []map[string]interface{} {
	raw := string(rawBody)

	// 1) JSON请求体：整个报文即一个事件
	if strings.Contains(contentType, "application/json") {
		trimmed := strings.TrimSpace(raw)
		if strings.HasPrefix(trimmed, "{") {
			var data map[string]interface{}
			if err := json.Unmarshal([]byte(trimmed), &data); err == nil && len(data) > 0 {
				return []map[string]interface{}{data}
			}
		}
	}

	// 2) multipart表单字段：各字段独立解码，坏字段跳过
	if strings.Contains(strings.ToLower(contentType), "multipart") && form != nil {
		var events []map[string]interface{}
		for _, key := range eventFieldNames {
			value := form.Get(key)
			if value == "" {
				continue
			}
			var data map[string]interface{}
			if err := json.Unmarshal([]byte(value), &data); err != nil {
				continue
			}
			if len(data) > 0 {
				events = append(events, data)
			}
		}
		if len(events) > 0 {
			return events
		}
	}

	// 3) 原始MIME边界扫描：标准解析器切不开的非标准multipart报文
	if strings.Contains(raw, mimeBoundary) || strings.Contains(raw, "Content-Disposition: form-data") {
		return e.scanRawMIME(raw)
	}

	return nil
}

// scanRawMIME 按--MIME_boundary切分文本，在声明JSON内容且包含事件标记的
// 子段中提取头部之后的字面行，直到下一个边界或空行，逐段JSON解码。
func (e *EventExtractor) scanRawMIME(raw string) []map[string]interface{} {
	var events []map[string]interface{}

	parts := strings.Split(raw, mimeBoundary)
	for _, part := range parts {
		if !strings.Contains(part, "Content-Type: application/json") || !strings.Contains(part, "AccessControllerEvent") {
			continue
		}

		lines := strings.Split(part, "\n")
		var jsonLines []string
		inJSON := false

		for _, line := range lines {
			trimmed := strings.TrimSpace(line)
			if strings.Contains(line, "Content-Type: application/json") {
				inJSON = true
				continue
			}
			if inJSON && trimmed != "" && !strings.HasPrefix(line, "Content-") && !strings.HasPrefix(line, "--") {
				jsonLines = append(jsonLines, line)
				continue
			}
			if inJSON && (trimmed == mimeBoundary+"--" || trimmed == "") {
				break
			}
		}

		if len(jsonLines) == 0 {
			continue
		}

		jsonStr := strings.TrimSpace(strings.Join(jsonLines, "\n"))
		if !strings.HasPrefix(jsonStr, "{") {
			continue
		}
		var data map[string]interface{}
		if err := json.Unmarshal([]byte(jsonStr), &data); err != nil {
			logger.Info("HIK: 原始MIME片段JSON解析失败: %v", err)
			continue
		}
		if len(data) > 0 {
			events = append(events, data)
		}
	}

	return events
}

// FindQRCode 在事件对象中递归查找二维码字段
func (e *EventExtractor) FindQRCode(data interface{}) string {
	switch v := data.(type) {
	case map[string]interface{}:
		for _, key := range qrFieldNames {
			if value, ok := v[key]; ok {
				if s := stringValue(value); s != "" {
					return s
				}
			}
		}
		// 部分固件把二维码藏在嵌套对象里，递归兜底
		for _, value := range v {
			switch value.(type) {
			case map[string]interface{}, []interface{}:
				if s := e.FindQRCode(value); s != "" {
					return s
				}
			}
		}
	case []interface{}:
		for _, item := range v {
			if s := e.FindQRCode(item); s != "" {
				return s
			}
		}
	}
	return ""
}

// stringValue 将JSON标量转为非空字符串，其它类型返回空串
func stringValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	}
	return ""
}
