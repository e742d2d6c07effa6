package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"aifm-comply-go/internal/model"
	"aifm-comply-go/internal/repository"
	"aifm-comply-go/pkg/llm"
	"aifm-comply-go/pkg/log"

	"github.com/google/uuid"
)

// 单条 text_match 规则最多保留的证据条数。
const maxTextMatchEvidence = 3

// AI 规则分析时送入模型的文档文本上限。
const aiExcerptChars = 2000

// ComplianceService 对文档执行策略规则评估，并把每次评估结果
// 作为不可变事实追加到检查历史。
type ComplianceService struct {
	docRepo    repository.DocumentRepository
	policyRepo repository.PolicyRepository
	checkRepo  repository.ComplianceCheckRepository
	auditRepo  repository.AuditRepository
	llmClient  llm.Client
}

// NewComplianceService 创建合规检查服务实例。
func NewComplianceService(
	docRepo repository.DocumentRepository,
	policyRepo repository.PolicyRepository,
	checkRepo repository.ComplianceCheckRepository,
	auditRepo repository.AuditRepository,
	llmClient llm.Client,
) *ComplianceService {
	return &ComplianceService{
		docRepo:    docRepo,
		policyRepo: policyRepo,
		checkRepo:  checkRepo,
		auditRepo:  auditRepo,
		llmClient:  llmClient,
	}
}

// EvaluatePolicy 对单个文档评估单个策略，并持久化一条检查记录。
// 规则按策略内顺序依次评估，单条规则的失败不会中止整个策略。
func (s *ComplianceService) EvaluatePolicy(ctx context.Context, documentID, policyID string) (*model.PolicyEvaluation, error) {
	doc, err := s.docRepo.FindByID(documentID)
	if err != nil {
		return nil, fmt.Errorf("查询文档失败 (id=%s): %w", documentID, err)
	}
	policy, err := s.policyRepo.FindByID(policyID)
	if err != nil {
		return nil, fmt.Errorf("查询策略失败 (id=%s): %w", policyID, err)
	}

	evaluation := s.evaluate(ctx, doc, policy)
	if err := s.persist(doc.ID, evaluation); err != nil {
		return nil, err
	}
	return evaluation, nil
}

// EvaluateAllPolicies 对文档评估全部激活策略。每个策略产生一条独立的
// 检查记录；单个策略评估失败只记录日志，不影响其余策略。
func (s *ComplianceService) EvaluateAllPolicies(ctx context.Context, documentID string) ([]model.PolicyEvaluation, error) {
	doc, err := s.docRepo.FindByID(documentID)
	if err != nil {
		return nil, fmt.Errorf("查询文档失败 (id=%s): %w", documentID, err)
	}
	policies, err := s.policyRepo.FindActive()
	if err != nil {
		return nil, fmt.Errorf("查询激活策略失败: %w", err)
	}

	evaluations := make([]model.PolicyEvaluation, 0, len(policies))
	for i := range policies {
		evaluation := s.evaluate(ctx, doc, &policies[i])
		if err := s.persist(doc.ID, evaluation); err != nil {
			log.Errorf("[ComplianceService] 保存检查记录失败, PolicyID: %s, err: %v", policies[i].ID, err)
			continue
		}
		evaluations = append(evaluations, *evaluation)
	}
	return evaluations, nil
}

// CurrentStatus 是文档当前合规状态的读时投影：每个策略取最近一次
// 检查记录后重新聚合。没有任何检查记录时为 PENDING / 0。
func (s *ComplianceService) CurrentStatus(documentID string) (*model.ComplianceStatus, error) {
	latest, err := s.checkRepo.FindLatestPerPolicy(documentID)
	if err != nil {
		return nil, fmt.Errorf("查询检查历史失败: %w", err)
	}

	status := &model.ComplianceStatus{
		DocumentID: documentID,
		Overall:    model.CheckStatusPending,
		Checks:     latest,
		Gaps:       []string{},
	}
	if len(latest) == 0 {
		return status, nil
	}

	var sum float64
	statuses := make([]string, 0, len(latest))
	for _, c := range latest {
		sum += c.Score
		statuses = append(statuses, c.Status)
		status.Gaps = append(status.Gaps, c.Gaps...)
	}
	status.Score = sum / float64(len(latest))
	status.Overall = aggregateStatus(statuses)
	return status, nil
}

// evaluate 执行策略的全部规则并聚合结果，不做持久化。
func (s *ComplianceService) evaluate(ctx context.Context, doc *model.Document, policy *model.Policy) *model.PolicyEvaluation {
	evaluation := &model.PolicyEvaluation{
		PolicyID:    policy.ID,
		PolicyName:  policy.Name,
		Requirement: policy.Description,
		Status:      model.CheckStatusPending,
	}
	if len(policy.Rules) == 0 {
		return evaluation
	}

	var sum float64
	statuses := make([]string, 0, len(policy.Rules))
	for _, rule := range policy.Rules {
		result := s.evaluateRule(ctx, doc, rule)
		sum += result.Score
		statuses = append(statuses, result.Status)
		evaluation.Evidence = append(evaluation.Evidence, result.Evidence...)
		evaluation.Gaps = append(evaluation.Gaps, result.Gaps...)
		if result.Notes != "" {
			if evaluation.Notes != "" {
				evaluation.Notes += "; "
			}
			evaluation.Notes += result.Notes
		}
		evaluation.RuleResults = append(evaluation.RuleResults, result)
	}

	evaluation.Score = sum / float64(len(policy.Rules))
	evaluation.Status = aggregateStatus(statuses)
	return evaluation
}

// aggregateStatus 合并规则状态：任一 NON_COMPLIANT 则整体 NON_COMPLIANT，
// 全部 COMPLIANT 则整体 COMPLIANT，否则 NEEDS_REVIEW。
func aggregateStatus(statuses []string) string {
	if len(statuses) == 0 {
		return model.CheckStatusPending
	}
	allCompliant := true
	for _, st := range statuses {
		if st == model.CheckStatusNonCompliant {
			return model.CheckStatusNonCompliant
		}
		if st != model.CheckStatusCompliant {
			allCompliant = false
		}
	}
	if allCompliant {
		return model.CheckStatusCompliant
	}
	return model.CheckStatusNeedsReview
}

// evaluateRule 按规则类型分发。Kind 在策略保存时已校验，落到 default
// 分支说明存储层数据被手工破坏。
func (s *ComplianceService) evaluateRule(ctx context.Context, doc *model.Document, rule model.PolicyRule) model.RuleResult {
	result := model.RuleResult{
		RuleID:      rule.ID,
		Requirement: rule.Name,
	}

	switch rule.Kind {
	case model.RuleKindTextMatch:
		s.evaluateTextMatch(doc, rule, &result)
	case model.RuleKindPresence:
		s.evaluatePresence(doc, rule, &result)
	case model.RuleKindDate:
		s.evaluateDate(doc, &result)
	case model.RuleKindAIAnalysis:
		s.evaluateAIAnalysis(ctx, doc, rule, &result)
	default:
		result.Status = model.CheckStatusNeedsReview
		result.Score = 0.5
		result.Notes = fmt.Sprintf("Unknown rule kind: %s", rule.Kind)
	}
	return result
}

// evaluateTextMatch 对提取文本做忽略大小写的正则匹配。
func (s *ComplianceService) evaluateTextMatch(doc *model.Document, rule model.PolicyRule, result *model.RuleResult) {
	re, err := regexp.Compile("(?i)" + rule.TextMatch.Pattern)
	if err != nil {
		result.Status = model.CheckStatusNeedsReview
		result.Score = 0.5
		result.Notes = fmt.Sprintf("Invalid pattern: %v", err)
		return
	}

	matches := re.FindAllString(doc.ExtractedText, maxTextMatchEvidence)
	if len(matches) > 0 {
		result.Status = model.CheckStatusCompliant
		result.Score = 1.0
		result.Evidence = matches
		return
	}
	result.Status = model.CheckStatusNonCompliant
	result.Score = 0
	result.Gaps = []string{fmt.Sprintf("Pattern \"%s\" not found in document", rule.TextMatch.Pattern)}
}

// evaluatePresence 检查要求的字段路径在文档投影上是否有值。
// 得分是存在字段数与要求字段数之比。
func (s *ComplianceService) evaluatePresence(doc *model.Document, rule model.PolicyRule, result *model.RuleResult) {
	projection := doc.Projection()
	var missing []string
	for _, field := range rule.Presence.Fields {
		if _, ok := model.ResolveProjectionPath(projection, field); !ok {
			missing = append(missing, field)
		}
	}

	required := len(rule.Presence.Fields)
	found := required - len(missing)
	result.Score = float64(found) / float64(required)
	if len(missing) == 0 {
		result.Status = model.CheckStatusCompliant
		result.Evidence = []string{fmt.Sprintf("All required fields present: %s", strings.Join(rule.Presence.Fields, ", "))}
		return
	}
	result.Status = model.CheckStatusNonCompliant
	result.Gaps = []string{fmt.Sprintf("Missing fields: %s", strings.Join(missing, ", "))}
}

// evaluateDate 检查文档的生命周期日期。过期是确定的违规；
// 生效日在未来或日期缺失只降级为待复核。
func (s *ComplianceService) evaluateDate(doc *model.Document, result *model.RuleResult) {
	now := time.Now()
	if doc.IsExpired(now) {
		result.Status = model.CheckStatusNonCompliant
		result.Score = 0
		result.Gaps = []string{fmt.Sprintf("Document expired on %s", doc.ExpiryDate.Format("2006-01-02"))}
		return
	}
	if doc.EffectiveDate != nil && doc.EffectiveDate.After(now) {
		result.Status = model.CheckStatusNeedsReview
		result.Score = 0.5
		result.Notes = fmt.Sprintf("Document not yet effective, effective date is %s", doc.EffectiveDate.Format("2006-01-02"))
		return
	}
	if doc.PublishDate != nil && doc.EffectiveDate != nil {
		result.Status = model.CheckStatusCompliant
		result.Score = 1.0
		result.Evidence = []string{fmt.Sprintf("Valid dates: published %s, effective %s",
			doc.PublishDate.Format("2006-01-02"), doc.EffectiveDate.Format("2006-01-02"))}
		return
	}
	result.Status = model.CheckStatusNeedsReview
	result.Score = 0.5
	result.Notes = "Document dates are incomplete"
}

// aiRuleVerdict 是 AI 规则分析的 JSON 响应结构。
type aiRuleVerdict struct {
	Compliant bool     `json:"compliant"`
	Score     float64  `json:"score"`
	Evidence  []string `json:"evidence"`
	Gaps      []string `json:"gaps"`
}

// evaluateAIAnalysis 用大模型判断文档是否满足自然语言要求。
// 任何失败（调用、解码、越界得分）都降级为 NEEDS_REVIEW，绝不向上传播：
// AI 不可用时检查流程继续，结论只是不确定。
func (s *ComplianceService) evaluateAIAnalysis(ctx context.Context, doc *model.Document, rule model.PolicyRule, result *model.RuleResult) {
	degrade := func(cause error) {
		log.Warnf("[ComplianceService] AI 规则分析失败, RuleID: %s, err: %v", rule.ID, cause)
		result.Status = model.CheckStatusNeedsReview
		result.Score = 0.5
		result.Notes = fmt.Sprintf("AI analysis failed: %v", cause)
	}

	if s.llmClient == nil {
		degrade(fmt.Errorf("LLM 客户端未配置"))
		return
	}

	excerpt := doc.ExtractedText
	if runes := []rune(excerpt); len(runes) > aiExcerptChars {
		excerpt = string(runes[:aiExcerptChars])
	}

	systemPrompt := "You are a compliance analyst. Judge whether the document excerpt satisfies the requirement. " +
		"Respond with JSON: {\"compliant\": boolean, \"score\": number between 0 and 1, " +
		"\"evidence\": [strings], \"gaps\": [strings]}."
	userPrompt := fmt.Sprintf("Requirement: %s\n\nDocument excerpt:\n%s", rule.AIAnalysis.Requirement, excerpt)

	var verdict aiRuleVerdict
	err := s.llmClient.CompleteJSON(ctx, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}, nil, &verdict)
	if err != nil {
		degrade(err)
		return
	}
	if verdict.Score < 0 || verdict.Score > 1 {
		degrade(fmt.Errorf("得分越界: %v", verdict.Score))
		return
	}

	result.Score = verdict.Score
	result.Evidence = verdict.Evidence
	result.Gaps = verdict.Gaps
	if verdict.Compliant {
		result.Status = model.CheckStatusCompliant
	} else {
		result.Status = model.CheckStatusNonCompliant
	}
}

// persist 把一次策略评估追加为不可变检查记录并写审计事件。
func (s *ComplianceService) persist(documentID string, evaluation *model.PolicyEvaluation) error {
	check := &model.ComplianceCheck{
		ID:          uuid.NewString(),
		DocumentID:  documentID,
		PolicyID:    evaluation.PolicyID,
		PolicyName:  evaluation.PolicyName,
		Requirement: evaluation.Requirement,
		Status:      evaluation.Status,
		Score:       evaluation.Score,
		Evidence:    evaluation.Evidence,
		Gaps:        evaluation.Gaps,
		Notes:       evaluation.Notes,
	}
	if err := s.checkRepo.Create(check); err != nil {
		return fmt.Errorf("保存检查记录失败: %w", err)
	}

	event := &model.AuditLog{
		Actor:   "compliance",
		Action:  model.AuditActionCheckCreated,
		RefType: "ComplianceCheck",
		RefID:   check.ID,
		After:   check.Status,
		Detail:  fmt.Sprintf("document=%s policy=%s score=%.2f", documentID, check.PolicyID, check.Score),
	}
	if err := s.auditRepo.Record(event); err != nil {
		log.Warnf("[ComplianceService] 写入审计事件失败, CheckID: %s, err: %v", check.ID, err)
	}
	return nil
}
