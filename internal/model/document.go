// Package model 定义了与数据库表对应的 Go 结构体。
package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// 文档生命周期状态。
// PENDING -> PROCESSING -> INDEXED | ERROR，INDEXED 可由人工归档为 ARCHIVED。
const (
	DocStatusPending    = "PENDING"
	DocStatusProcessing = "PROCESSING"
	DocStatusIndexed    = "INDEXED"
	DocStatusError      = "ERROR"
	DocStatusArchived   = "ARCHIVED"
)

// Document 定义了 documents 表的 ORM 模型。
// Embedding 由索引管道整体写入，只在 status=INDEXED 时存在；
// 分类属性由分类器写入，之后可被人工编辑覆盖。
type Document struct {
	ID              string      `gorm:"type:varchar(36);primaryKey" json:"id"`
	ClientID        string      `gorm:"type:varchar(36);index" json:"clientId"`
	FileName        string      `gorm:"type:varchar(255);not null" json:"fileName"`
	FileType        string      `gorm:"type:varchar(100)" json:"fileType"` // 媒体类型，如 application/pdf
	StorageKey      string      `gorm:"type:varchar(255);not null" json:"storageKey"`
	Title           string      `gorm:"type:varchar(255)" json:"title"`
	Description     string      `gorm:"type:varchar(500)" json:"description"`
	Author          string      `gorm:"type:varchar(255)" json:"author"`
	Status          string      `gorm:"type:varchar(20);not null;default:PENDING;index" json:"status"`
	ExtractedText   string      `gorm:"type:longtext" json:"-"`
	Metadata        MetadataMap `gorm:"type:json" json:"metadata"`
	Embedding       string      `gorm:"type:longtext" json:"-"` // JSON 编码的 []float32
	DocumentType    string      `gorm:"type:varchar(50);index" json:"documentType"`
	Category        string      `gorm:"type:varchar(50);index" json:"category"`
	Tags            StringList  `gorm:"type:json" json:"tags"`
	Language        string      `gorm:"type:varchar(10)" json:"language"`
	PublishDate     *time.Time  `json:"publishDate"`
	EffectiveDate   *time.Time  `json:"effectiveDate"`
	ExpiryDate      *time.Time  `json:"expiryDate"`
	ProcessingError string      `gorm:"type:varchar(500)" json:"processingError,omitempty"`
	IndexedAt       *time.Time  `json:"indexedAt"`
	CreatedAt       time.Time   `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time   `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}

// EmbeddingVector 解码存储的向量。status != INDEXED 时返回 nil。
func (d *Document) EmbeddingVector() ([]float32, error) {
	if d.Embedding == "" {
		return nil, nil
	}
	var vec []float32
	if err := json.Unmarshal([]byte(d.Embedding), &vec); err != nil {
		return nil, fmt.Errorf("解码文档向量失败 (id=%s): %w", d.ID, err)
	}
	return vec, nil
}

// IsExpired 报告过期日期是否早于 now。
func (d *Document) IsExpired(now time.Time) bool {
	return d.ExpiryDate != nil && d.ExpiryDate.Before(now)
}

// Projection 把文档投影为 presence 规则可用的嵌套查找结构。
// 路径集合是固定的，见 KnownProjectionPaths。
func (d *Document) Projection() map[string]interface{} {
	meta := map[string]interface{}{}
	for k, v := range d.Metadata {
		meta[k] = v
	}
	return map[string]interface{}{
		"title":         d.Title,
		"fileName":      d.FileName,
		"description":   d.Description,
		"author":        d.Author,
		"documentType":  d.DocumentType,
		"category":      d.Category,
		"language":      d.Language,
		"extractedText": d.ExtractedText,
		"publishDate":   timeOrNil(d.PublishDate),
		"effectiveDate": timeOrNil(d.EffectiveDate),
		"expiryDate":    timeOrNil(d.ExpiryDate),
		"metadata":      meta,
	}
}

// KnownProjectionPaths 是 presence 规则允许引用的字段路径。
// metadata 下允许任意一级子键（如 metadata.ubo）。
var KnownProjectionPaths = map[string]struct{}{
	"title":         {},
	"fileName":      {},
	"description":   {},
	"author":        {},
	"documentType":  {},
	"category":      {},
	"language":      {},
	"extractedText": {},
	"publishDate":   {},
	"effectiveDate": {},
	"expiryDate":    {},
}

// IsKnownProjectionPath 在策略保存时校验 presence 字段路径，
// 避免评估时出现静默落空的查找。
func IsKnownProjectionPath(path string) bool {
	if _, ok := KnownProjectionPaths[path]; ok {
		return true
	}
	parts := strings.SplitN(path, ".", 3)
	return len(parts) == 2 && parts[0] == "metadata" && parts[1] != ""
}

// ResolveProjectionPath 按点分路径在投影上做嵌套查找。
// 值为 nil 或空字符串视为缺失，返回 (nil, false)。
func ResolveProjectionPath(projection map[string]interface{}, path string) (interface{}, bool) {
	var current interface{} = projection
	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	if current == nil {
		return nil, false
	}
	if s, ok := current.(string); ok && s == "" {
		return nil, false
	}
	return current, true
}

func timeOrNil(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

// StringList 是以 JSON 存储在数据库中的字符串切片。
type StringList []string

// Value 实现 driver.Valuer。
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(s))
	return string(b), err
}

// Scan 实现 sql.Scanner。
func (s *StringList) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("StringList: 不支持的数据库值类型")
	}
	if len(data) == 0 {
		*s = nil
		return nil
	}
	return json.Unmarshal(data, (*[]string)(s))
}

// MetadataMap 是以 JSON 存储在数据库中的解析元数据。
type MetadataMap map[string]interface{}

// Value 实现 driver.Valuer。
func (m MetadataMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]interface{}(m))
	return string(b), err
}

// Scan 实现 sql.Scanner。
func (m *MetadataMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("MetadataMap: 不支持的数据库值类型")
	}
	if len(data) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(data, (*map[string]interface{})(m))
}
