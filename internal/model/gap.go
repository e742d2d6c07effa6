package model

// 差距类型与严重级别，按分析运行实时物化，不作为一等评估结果持久化。
const (
	GapTypeMissingDocument = "missing_document"
	GapTypeNonCompliant    = "non_compliant"
	GapTypeExpired         = "expired"
	GapTypeMissingField    = "missing_field"
	GapTypePolicyViolation = "policy_violation"
)

const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// Gap 是一条可操作的合规缺陷。
type Gap struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	Severity       string `json:"severity"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	DocumentID     string `json:"documentId,omitempty"`
	PolicyID       string `json:"policyId,omitempty"`
	Requirement    string `json:"requirement,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
}

// GapSummary 按严重级别和类型统计差距数量。
type GapSummary struct {
	Total  int            `json:"total"`
	High   int            `json:"high"`
	Medium int            `json:"medium"`
	Low    int            `json:"low"`
	ByType map[string]int `json:"byType"`
}

// GapAnalysisResult 是一次差距分析运行的完整输出。
// Recommendations 永远非空：没有任何差距时给出一条"完全合规"的结论。
type GapAnalysisResult struct {
	ClientID        string     `json:"clientId,omitempty"`
	DocumentID      string     `json:"documentId,omitempty"`
	Gaps            []Gap      `json:"gaps"`
	Summary         GapSummary `json:"summary"`
	Recommendations []string   `json:"recommendations"`
}
