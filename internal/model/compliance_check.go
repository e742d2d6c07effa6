package model

import "time"

// 合规检查状态。
// PENDING 表示"未定义"（例如策略没有任何规则），与 NON_COMPLIANT 的"失败"严格区分；
// NEEDS_REVIEW 表示系统缺乏信心，与发现实际违规的 NON_COMPLIANT 也严格区分。
const (
	CheckStatusCompliant    = "COMPLIANT"
	CheckStatusNonCompliant = "NON_COMPLIANT"
	CheckStatusNeedsReview  = "NEEDS_REVIEW"
	CheckStatusPending      = "PENDING"
)

// ComplianceCheck 定义了 compliance_checks 表的 ORM 模型。
// 记录一次"某文档对某策略"的评估事实，创建后不可变：
// 重新检查总是插入新行，历史保留用于审计。
type ComplianceCheck struct {
	ID          string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	DocumentID  string     `gorm:"type:varchar(36);not null;index:idx_doc_policy" json:"documentId"`
	PolicyID    string     `gorm:"type:varchar(36);not null;index:idx_doc_policy" json:"policyId"`
	PolicyName  string     `gorm:"type:varchar(255)" json:"policyName"`
	Requirement string     `gorm:"type:varchar(500)" json:"requirement"`
	Status      string     `gorm:"type:varchar(20);not null" json:"status"`
	Score       float64    `gorm:"not null" json:"score"`
	Evidence    StringList `gorm:"type:json" json:"evidence"`
	Gaps        StringList `gorm:"type:json" json:"gaps"`
	Notes       string     `gorm:"type:varchar(1000)" json:"notes"`
	CheckedAt   time.Time  `gorm:"autoCreateTime;index" json:"checkedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ComplianceCheck) TableName() string {
	return "compliance_checks"
}

// RuleResult 是单条规则的评估结果。
type RuleResult struct {
	RuleID      string   `json:"ruleId"`
	Requirement string   `json:"requirement"`
	Status      string   `json:"status"`
	Score       float64  `json:"score"`
	Evidence    []string `json:"evidence,omitempty"`
	Gaps        []string `json:"gaps,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

// PolicyEvaluation 是一次策略评估的聚合结果（所有规则的合并视图）。
type PolicyEvaluation struct {
	PolicyID    string       `json:"policyId"`
	PolicyName  string       `json:"policyName"`
	Requirement string       `json:"requirement"`
	Status      string       `json:"status"`
	Score       float64      `json:"score"`
	Evidence    []string     `json:"evidence,omitempty"`
	Gaps        []string     `json:"gaps,omitempty"`
	Notes       string       `json:"notes,omitempty"`
	RuleResults []RuleResult `json:"ruleResults,omitempty"`
}

// ComplianceStatus 是文档当前合规状态的读时投影：
// 每个策略取最近一次检查记录后重新聚合，不维护可变的"当前状态"字段。
type ComplianceStatus struct {
	DocumentID string            `json:"documentId"`
	Overall    string            `json:"overall"`
	Score      float64           `json:"score"`
	Checks     []ComplianceCheck `json:"checks"`
	Gaps       []string          `json:"gaps"`
}
