package models

// Integration represents an external partner authenticated by a static API token
type Integration struct {
	BaseModel
	Name     string `gorm:"type:varchar(100);unique;not null" json:"name"`      // 集成方名称，如 DMED
	APIToken string `gorm:"type:varchar(255);unique;not null" json:"api_token"` // 64位十六进制令牌，创建时生成
	IsActive bool   `json:"is_active"` // 布尔零值必须可写入，缺省值由CreateIntegration显式填充
}

// TokenPreview 返回令牌的脱敏展示形式
func (i *Integration) TokenPreview() string {
	if len(i.APIToken) < 12 {
		return "-"
	}
	return i.APIToken[:8] + "…" + i.APIToken[len(i.APIToken)-4:]
}
