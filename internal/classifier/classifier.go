// Package classifier 负责从解析后的文本推断文档类型、分类、日期与标签。
//
// 两套策略：确定性规则（纯函数，可复现，单元测试的基准）和 AI 辅助分类。
// AI 分类对调用方永不抛错：模型超时、配额耗尽、输出格式非法一律降级为
// 确定性结果并打低置信度。
package classifier

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"aifm-comply-go/internal/model"
	"aifm-comply-go/pkg/embedding"
	"aifm-comply-go/pkg/llm"
	"aifm-comply-go/pkg/log"
)

// 置信度档位：仅规则 0.6，AI 合并 0.8，AI 失败降级 0.5。
const (
	ConfidenceRuleBased  = 0.6
	ConfidenceAIMerged   = 0.8
	ConfidenceDegradedAI = 0.5
)

// Result 是分类结果。可选属性用指针表达：
// nil 表示"未能推断"，合并时按 AI 值 -> 规则值 -> nil 的优先级取值。
type Result struct {
	DocumentType  *string
	Category      *string
	Title         *string
	Description   *string
	Author        *string
	PublishDate   *time.Time
	EffectiveDate *time.Time
	ExpiryDate    *time.Time
	Tags          []string
	Language      string
	Confidence    float64
}

// Classifier 按配置选择分类策略。
type Classifier struct {
	llmClient llm.Client
	useAI     bool
}

// New 创建一个新的 Classifier 实例。useAI 为 false 或 llmClient 为 nil 时
// 只使用确定性规则。
func New(llmClient llm.Client, useAI bool) *Classifier {
	return &Classifier{llmClient: llmClient, useAI: useAI && llmClient != nil}
}

// Classify 对一份文档做分类。
func (c *Classifier) Classify(ctx context.Context, fileName, text string, metadata model.MetadataMap) Result {
	deterministic := ClassifySimple(fileName, text, metadata)
	if !c.useAI {
		return deterministic
	}

	aiResult, err := c.classifyWithAI(ctx, fileName, text, metadata)
	if err != nil {
		// 契约：AI 分类失败不向上传播，降级到确定性结果并降低置信度
		log.Warnf("[Classifier] AI 分类失败，降级为规则分类: %v", err)
		deterministic.Confidence = ConfidenceDegradedAI
		return deterministic
	}

	return merge(aiResult, deterministic)
}

// ClassifySimple 是确定性规则分类：同样的 (fileName, text) 输入
// 永远得到同样的结果。
func ClassifySimple(fileName, text string, metadata model.MetadataMap) Result {
	publish, effective, expiry := ExtractDates(text)
	result := Result{
		DocumentType:  optional(ExtractDocumentType(fileName, text)),
		Category:      optional(ExtractCategory(text)),
		PublishDate:   publish,
		EffectiveDate: effective,
		ExpiryDate:    expiry,
		Language:      metadataString(metadata, "language", "sv"),
		Confidence:    ConfidenceRuleBased,
	}
	if title := metadataString(metadata, "title", ""); title != "" {
		result.Title = &title
	} else {
		result.Title = &fileName
	}
	if author := metadataString(metadata, "author", ""); author != "" {
		result.Author = &author
	}
	return result
}

// aiClassification 是要求语言模型输出的结构化 JSON 形态。
type aiClassification struct {
	DocumentType  string   `json:"documentType"`
	Category      string   `json:"category"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Author        string   `json:"author"`
	PublishDate   string   `json:"publishDate"`
	EffectiveDate string   `json:"effectiveDate"`
	ExpiryDate    string   `json:"expiryDate"`
	Tags          []string `json:"tags"`
	Language      string   `json:"language"`
}

func (c *Classifier) classifyWithAI(ctx context.Context, fileName, text string, metadata model.MetadataMap) (*aiClassification, error) {
	preview := embedding.Truncate(text, 1000)
	prompt := fmt.Sprintf(`Analyze this document and provide structured classification:

Filename: %s
Text Preview: %s

Please classify this document and return JSON with:
- documentType: one of "policy", "regulation", "report", "contract", "evidence", "compliance", "financial", "legal", or ""
- category: one of "compliance", "legal", "financial", "tax", "risk", "operational", or ""
- title: extracted or inferred title
- description: brief summary (max 200 chars)
- author: author name if found
- publishDate, effectiveDate, expiryDate: ISO dates (YYYY-MM-DD) if found
- tags: array of relevant tags (max 5)
- language: "sv" or "en"

Return only valid JSON, no markdown or extra text.`, fileName, preview)

	messages := []llm.Message{
		{Role: "system", Content: "You are a document classification expert. Analyze documents and return structured JSON classification data."},
		{Role: "user", Content: prompt},
	}

	var out aiClassification
	if err := c.llmClient.CompleteJSON(ctx, messages, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// merge 把 AI 结果按属性优先级合并到确定性结果上。
func merge(ai *aiClassification, deterministic Result) Result {
	merged := deterministic
	merged.Confidence = ConfidenceAIMerged

	if v := optional(ai.DocumentType); v != nil {
		merged.DocumentType = v
	}
	if v := optional(ai.Category); v != nil {
		merged.Category = v
	}
	if v := optional(ai.Title); v != nil {
		merged.Title = v
	}
	if v := optional(ai.Description); v != nil {
		merged.Description = v
	}
	if v := optional(ai.Author); v != nil {
		merged.Author = v
	}
	if t := parseISODate(ai.PublishDate); t != nil {
		merged.PublishDate = t
	}
	if t := parseISODate(ai.EffectiveDate); t != nil {
		merged.EffectiveDate = t
	}
	if t := parseISODate(ai.ExpiryDate); t != nil {
		merged.ExpiryDate = t
	}
	if len(ai.Tags) > 0 {
		tags := ai.Tags
		if len(tags) > 5 {
			tags = tags[:5]
		}
		merged.Tags = tags
	}
	if ai.Language == "sv" || ai.Language == "en" {
		merged.Language = ai.Language
	}
	return merged
}

// 文件名与正文中用于类型判定的关键词，含瑞典语写法。
var typeKeywords = []struct {
	docType  string
	keywords []string
}{
	{"policy", []string{"policy"}},
	{"regulation", []string{"regulation", "regel", "förordning"}},
	{"report", []string{"report", "rapport"}},
	{"contract", []string{"contract", "avtal"}},
	{"compliance", []string{"compliance", "efterlevnad"}},
}

// ExtractDocumentType 先查文件名再查正文，返回第一个命中的类型；
// 未命中返回空串。
func ExtractDocumentType(fileName, text string) string {
	lowerName := strings.ToLower(fileName)
	for _, t := range typeKeywords {
		for _, kw := range t.keywords {
			if strings.Contains(lowerName, kw) {
				return t.docType
			}
		}
	}
	lowerText := strings.ToLower(text)
	for _, t := range typeKeywords {
		for _, kw := range t.keywords {
			if strings.Contains(lowerText, kw) {
				return t.docType
			}
		}
	}
	return ""
}

var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{"financial", []string{"financial", "finansiell"}},
	{"legal", []string{"legal", "juridisk"}},
	{"compliance", []string{"compliance", "efterlevnad"}},
	{"tax", []string{"tax", "skatt"}},
	{"risk", []string{"risk"}},
}

// ExtractCategory 从正文关键词推断分类，未命中返回空串。
func ExtractCategory(text string) string {
	lowerText := strings.ToLower(text)
	for _, c := range categoryKeywords {
		for _, kw := range c.keywords {
			if strings.Contains(lowerText, kw) {
				return c.category
			}
		}
	}
	return ""
}

var (
	isoDateRe    = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	slashDateRe  = regexp.MustCompile(`\b(\d{2})/(\d{2})/(\d{4})\b`)
	svMonthRe    = regexp.MustCompile(`(?i)\b(\d{1,2})\s+(januari|februari|mars|april|maj|juni|juli|augusti|september|oktober|november|december)\s+(\d{4})\b`)
	swedishMonth = map[string]time.Month{
		"januari": time.January, "februari": time.February, "mars": time.March,
		"april": time.April, "maj": time.May, "juni": time.June,
		"juli": time.July, "augusti": time.August, "september": time.September,
		"oktober": time.October, "november": time.November, "december": time.December,
	}
)

// ExtractDates 按出现顺序提取正文中的日期，前三个依次作为
// 发布日 / 生效日 / 过期日的候选。识别 YYYY-MM-DD、DD/MM/YYYY
// 和瑞典语月份写法。
func ExtractDates(text string) (publish, effective, expiry *time.Time) {
	var dates []time.Time

	for _, m := range isoDateRe.FindAllString(text, -1) {
		if t, err := time.Parse("2006-01-02", m); err == nil {
			dates = append(dates, t)
		}
	}
	for _, m := range slashDateRe.FindAllStringSubmatch(text, -1) {
		if t, err := time.Parse("02/01/2006", m[0]); err == nil {
			dates = append(dates, t)
		}
	}
	for _, m := range svMonthRe.FindAllStringSubmatch(text, -1) {
		month, ok := swedishMonth[strings.ToLower(m[2])]
		if !ok {
			continue
		}
		var day, year int
		fmt.Sscanf(m[1], "%d", &day)
		fmt.Sscanf(m[3], "%d", &year)
		t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		if t.Day() == day {
			dates = append(dates, t)
		}
	}

	if len(dates) > 0 {
		publish = &dates[0]
	}
	if len(dates) > 1 {
		effective = &dates[1]
	}
	if len(dates) > 2 {
		expiry = &dates[2]
	}
	return publish, effective, expiry
}

func parseISODate(s string) *time.Time {
	if s == "" {
		return nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return &t
	}
	return nil
}

func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

func metadataString(metadata model.MetadataMap, key, fallback string) string {
	if metadata == nil {
		return fallback
	}
	if v, ok := metadata[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
