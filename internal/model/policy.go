package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// 规则类型是一个封闭集合，未知类型在策略保存（反序列化）时即被拒绝，
// 评估阶段不存在 "unknown checkType" 分支。
const (
	RuleKindTextMatch  = "text_match"
	RuleKindPresence   = "presence"
	RuleKindDate       = "date"
	RuleKindAIAnalysis = "ai_analysis"
)

// Policy 定义了 policies 表的 ORM 模型。
// Rules 是有序规则列表；Requirements.RequiredDocuments 描述每个客户
// 必须存在的文档类型。策略独立版本化，规则变更不回溯修改历史检查记录。
type Policy struct {
	ID           string             `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name         string             `gorm:"type:varchar(255);not null" json:"name"`
	Description  string             `gorm:"type:varchar(500)" json:"description"`
	IsActive     bool               `gorm:"not null;default:true;index" json:"isActive"`
	Rules        RuleList           `gorm:"type:json" json:"rules"`
	Requirements PolicyRequirements `gorm:"type:json" json:"requirements"`
	CreatedAt    time.Time          `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time          `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Policy) TableName() string {
	return "policies"
}

// PolicyRequirements 描述策略对文档存在性的要求。
type PolicyRequirements struct {
	RequiredDocuments []string `json:"requiredDocuments"`
}

// Value 实现 driver.Valuer。
func (r PolicyRequirements) Value() (driver.Value, error) {
	b, err := json.Marshal(r)
	return string(b), err
}

// Scan 实现 sql.Scanner。
func (r *PolicyRequirements) Scan(value interface{}) error {
	data, err := jsonColumnBytes(value)
	if err != nil {
		return fmt.Errorf("PolicyRequirements: %w", err)
	}
	if len(data) == 0 {
		*r = PolicyRequirements{}
		return nil
	}
	return json.Unmarshal(data, r)
}

// TextMatchRule 携带 text_match 规则的正则。
type TextMatchRule struct {
	Pattern string `json:"pattern"`
}

// PresenceRule 携带 presence 规则要求存在的字段路径。
type PresenceRule struct {
	Fields []string `json:"fields"`
}

// AIAnalysisRule 携带 ai_analysis 规则的自然语言要求。
type AIAnalysisRule struct {
	Requirement string `json:"requirement"`
}

// PolicyRule 是规则类型的封闭标签变体：Kind 决定哪一个 payload 非空，
// date 类型不需要额外字段。线上 JSON 形态保持
// {id, name, checkType, pattern, description} 不变。
type PolicyRule struct {
	ID          string
	Name        string
	Description string
	Kind        string

	TextMatch  *TextMatchRule
	Presence   *PresenceRule
	AIAnalysis *AIAnalysisRule
}

// ruleWire 是规则的序列化形态。
type ruleWire struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	CheckType   string `json:"checkType"`
	Pattern     string `json:"pattern,omitempty"`
	Description string `json:"description,omitempty"`
}

// UnmarshalJSON 在反序列化时完成规则校验：未知 checkType、非法正则、
// 未知 presence 字段路径都在这里被拒绝，而不是拖到评估时。
func (r *PolicyRule) UnmarshalJSON(data []byte) error {
	var w ruleWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	r.ID = w.ID
	r.Name = w.Name
	r.Description = w.Description
	r.Kind = w.CheckType
	r.TextMatch = nil
	r.Presence = nil
	r.AIAnalysis = nil

	switch w.CheckType {
	case RuleKindTextMatch:
		if w.Pattern == "" {
			return fmt.Errorf("规则 '%s': text_match 缺少 pattern", w.Name)
		}
		if _, err := regexp.Compile("(?i)" + w.Pattern); err != nil {
			return fmt.Errorf("规则 '%s': pattern 不是合法正则: %w", w.Name, err)
		}
		r.TextMatch = &TextMatchRule{Pattern: w.Pattern}
	case RuleKindPresence:
		fields := splitPresenceFields(w.Pattern)
		if len(fields) == 0 {
			return fmt.Errorf("规则 '%s': presence 缺少字段列表", w.Name)
		}
		for _, f := range fields {
			if !IsKnownProjectionPath(f) {
				return fmt.Errorf("规则 '%s': 未知的字段路径 '%s'", w.Name, f)
			}
		}
		r.Presence = &PresenceRule{Fields: fields}
	case RuleKindDate:
		// 无额外字段
	case RuleKindAIAnalysis:
		requirement := w.Description
		if requirement == "" {
			requirement = w.Name
		}
		if requirement == "" {
			return fmt.Errorf("ai_analysis 规则缺少 requirement 描述")
		}
		r.AIAnalysis = &AIAnalysisRule{Requirement: requirement}
	default:
		return fmt.Errorf("规则 '%s': 不支持的 checkType '%s'", w.Name, w.CheckType)
	}
	return nil
}

// MarshalJSON 还原线上 JSON 形态。
func (r PolicyRule) MarshalJSON() ([]byte, error) {
	w := ruleWire{
		ID:          r.ID,
		Name:        r.Name,
		CheckType:   r.Kind,
		Description: r.Description,
	}
	switch r.Kind {
	case RuleKindTextMatch:
		if r.TextMatch != nil {
			w.Pattern = r.TextMatch.Pattern
		}
	case RuleKindPresence:
		if r.Presence != nil {
			w.Pattern = strings.Join(r.Presence.Fields, ",")
		}
	}
	return json.Marshal(w)
}

func splitPresenceFields(pattern string) []string {
	var fields []string
	for _, f := range strings.Split(pattern, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

// RuleList 是以 JSON 存储在数据库中的有序规则列表。
type RuleList []PolicyRule

// Value 实现 driver.Valuer。
func (l RuleList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]PolicyRule(l))
	return string(b), err
}

// Scan 实现 sql.Scanner。
func (l *RuleList) Scan(value interface{}) error {
	data, err := jsonColumnBytes(value)
	if err != nil {
		return fmt.Errorf("RuleList: %w", err)
	}
	if len(data) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(data, (*[]PolicyRule)(l))
}

func jsonColumnBytes(value interface{}) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, errors.New("不支持的数据库值类型")
	}
}
