package service

import (
	"fmt"
	"strings"
	"time"

	"aifm-comply-go/internal/model"
	"aifm-comply-go/internal/repository"

	"github.com/google/uuid"
)

// noGapsRecommendation 是没有任何差距时的固定结论，保证推荐列表永远非空。
const noGapsRecommendation = "No gaps found. All documents are compliant."

// GapService 从已持久化的检查历史和文档属性实时物化可操作的合规差距。
// 差距不落库，每次分析都反映当前语料与检查历史的最新状态。
type GapService struct {
	docRepo    repository.DocumentRepository
	policyRepo repository.PolicyRepository
	checkRepo  repository.ComplianceCheckRepository
}

// NewGapService 创建差距分析服务实例。
func NewGapService(
	docRepo repository.DocumentRepository,
	policyRepo repository.PolicyRepository,
	checkRepo repository.ComplianceCheckRepository,
) *GapService {
	return &GapService{docRepo: docRepo, policyRepo: policyRepo, checkRepo: checkRepo}
}

// AnalyzeDocument 分析单个文档。
func (s *GapService) AnalyzeDocument(documentID string) (*model.GapAnalysisResult, error) {
	doc, err := s.docRepo.FindByID(documentID)
	if err != nil {
		return nil, fmt.Errorf("查询文档失败 (id=%s): %w", documentID, err)
	}
	gaps, err := s.documentGaps([]model.Document{*doc})
	if err != nil {
		return nil, err
	}
	result := buildResult(gaps)
	result.DocumentID = documentID
	return result, nil
}

// AnalyzeClient 分析某客户的全部文档，并对照激活策略的必备文档类型
// 报告缺失的文档。
func (s *GapService) AnalyzeClient(clientID string) (*model.GapAnalysisResult, error) {
	docs, err := s.docRepo.FindByClient(clientID)
	if err != nil {
		return nil, fmt.Errorf("查询客户文档失败: %w", err)
	}

	gaps, err := s.documentGaps(docs)
	if err != nil {
		return nil, err
	}
	missing, err := s.missingDocumentGaps(docs)
	if err != nil {
		return nil, err
	}
	gaps = append(gaps, missing...)

	result := buildResult(gaps)
	result.ClientID = clientID
	return result, nil
}

// AnalyzeCorpus 分析全部未归档文档。
func (s *GapService) AnalyzeCorpus() (*model.GapAnalysisResult, error) {
	all, err := s.docRepo.List("", "", "")
	if err != nil {
		return nil, fmt.Errorf("查询文档失败: %w", err)
	}
	docs := make([]model.Document, 0, len(all))
	for _, d := range all {
		if d.Status != model.DocStatusArchived {
			docs = append(docs, d)
		}
	}
	gaps, err := s.documentGaps(docs)
	if err != nil {
		return nil, err
	}
	return buildResult(gaps), nil
}

// documentGaps 收集每个文档自身的差距：策略违规、过期、元数据缺失。
// ARCHIVED 文档不参与分析。
func (s *GapService) documentGaps(docs []model.Document) ([]model.Gap, error) {
	now := time.Now()
	var gaps []model.Gap
	for i := range docs {
		doc := &docs[i]
		if doc.Status == model.DocStatusArchived {
			continue
		}

		latest, err := s.checkRepo.FindLatestPerPolicy(doc.ID)
		if err != nil {
			return nil, fmt.Errorf("查询检查历史失败 (document=%s): %w", doc.ID, err)
		}
		for _, check := range latest {
			if check.Status != model.CheckStatusNonCompliant || len(check.Gaps) == 0 {
				continue
			}
			// 每条未满足的规则差距单独成项，汇总计数按规则粒度统计
			for _, gapText := range check.Gaps {
				gaps = append(gaps, model.Gap{
					ID:             uuid.NewString(),
					Type:           model.GapTypePolicyViolation,
					Severity:       severityFromScore(check.Score),
					Title:          fmt.Sprintf("Policy violation: %s", check.PolicyName),
					Description:    gapText,
					DocumentID:     doc.ID,
					PolicyID:       check.PolicyID,
					Requirement:    check.Requirement,
					Recommendation: fmt.Sprintf("Review document \"%s\" against policy \"%s\" and remediate the listed gaps", doc.FileName, check.PolicyName),
				})
			}
		}

		if doc.IsExpired(now) {
			gaps = append(gaps, model.Gap{
				ID:             uuid.NewString(),
				Type:           model.GapTypeExpired,
				Severity:       model.SeverityHigh,
				Title:          fmt.Sprintf("Expired document: %s", doc.FileName),
				Description:    fmt.Sprintf("Document expired on %s", doc.ExpiryDate.Format("2006-01-02")),
				DocumentID:     doc.ID,
				Recommendation: "Replace or renew the expired document",
			})
		}

		if missing := missingMetadataFields(doc); len(missing) > 0 {
			gaps = append(gaps, model.Gap{
				ID:             uuid.NewString(),
				Type:           model.GapTypeMissingField,
				Severity:       model.SeverityMedium,
				Title:          fmt.Sprintf("Incomplete metadata: %s", doc.FileName),
				Description:    fmt.Sprintf("Missing fields: %s", strings.Join(missing, ", ")),
				DocumentID:     doc.ID,
				Recommendation: "Complete the document metadata or reindex the document",
			})
		}
	}
	return gaps, nil
}

// missingDocumentGaps 对照激活策略的必备文档类型，报告客户缺失的文档。
// 只有 INDEXED 文档算作"存在"。
func (s *GapService) missingDocumentGaps(docs []model.Document) ([]model.Gap, error) {
	policies, err := s.policyRepo.FindActive()
	if err != nil {
		return nil, fmt.Errorf("查询激活策略失败: %w", err)
	}

	present := make(map[string]bool)
	for i := range docs {
		if docs[i].Status == model.DocStatusIndexed && docs[i].DocumentType != "" {
			present[docs[i].DocumentType] = true
		}
	}

	var gaps []model.Gap
	reported := make(map[string]bool)
	for _, policy := range policies {
		for _, docType := range policy.Requirements.RequiredDocuments {
			if present[docType] || reported[docType] {
				continue
			}
			reported[docType] = true
			gaps = append(gaps, model.Gap{
				ID:             uuid.NewString(),
				Type:           model.GapTypeMissingDocument,
				Severity:       model.SeverityHigh,
				Title:          fmt.Sprintf("Missing required document: %s", docType),
				Description:    fmt.Sprintf("Policy \"%s\" requires a document of type \"%s\" but none is indexed", policy.Name, docType),
				PolicyID:       policy.ID,
				Recommendation: fmt.Sprintf("Upload a document of type \"%s\"", docType),
			})
		}
	}
	return gaps, nil
}

// severityFromScore 把检查得分映射为差距严重级别。
func severityFromScore(score float64) string {
	if score < 0.3 {
		return model.SeverityHigh
	}
	if score < 0.7 {
		return model.SeverityMedium
	}
	return model.SeverityLow
}

// missingMetadataFields 返回文档缺失的核心元数据字段。
func missingMetadataFields(doc *model.Document) []string {
	var missing []string
	if doc.Title == "" {
		missing = append(missing, "title")
	}
	if doc.ExtractedText == "" {
		missing = append(missing, "extractedText")
	}
	if doc.DocumentType == "" {
		missing = append(missing, "documentType")
	}
	if doc.Category == "" {
		missing = append(missing, "category")
	}
	return missing
}

// buildResult 汇总差距并按固定顺序生成建议。
func buildResult(gaps []model.Gap) *model.GapAnalysisResult {
	summary := model.GapSummary{ByType: map[string]int{}}
	missingTypes := make([]string, 0)
	for _, g := range gaps {
		summary.Total++
		switch g.Severity {
		case model.SeverityHigh:
			summary.High++
		case model.SeverityMedium:
			summary.Medium++
		case model.SeverityLow:
			summary.Low++
		}
		summary.ByType[g.Type]++
		if g.Type == model.GapTypeMissingDocument {
			name := strings.TrimPrefix(g.Title, "Missing required document: ")
			missingTypes = append(missingTypes, name)
		}
	}

	var recommendations []string
	if summary.High > 0 {
		recommendations = append(recommendations,
			fmt.Sprintf("Prioritize resolving %d high-severity gap(s) immediately", summary.High))
	}
	if len(missingTypes) > 0 {
		recommendations = append(recommendations,
			fmt.Sprintf("Upload the missing required documents: %s", strings.Join(missingTypes, ", ")))
	}
	if summary.ByType[model.GapTypePolicyViolation] > 0 {
		recommendations = append(recommendations, "Review and remediate the policy violations flagged by compliance checks")
	}
	if summary.ByType[model.GapTypeMissingField] > 0 {
		recommendations = append(recommendations, "Complete missing document metadata, reindex documents if needed")
	}
	if summary.ByType[model.GapTypeExpired] > 0 {
		recommendations = append(recommendations, "Replace or renew expired documents")
	}
	if len(recommendations) == 0 {
		recommendations = []string{noGapsRecommendation}
	}

	if gaps == nil {
		gaps = []model.Gap{}
	}
	return &model.GapAnalysisResult{
		Gaps:            gaps,
		Summary:         summary,
		Recommendations: recommendations,
	}
}
