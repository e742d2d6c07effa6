package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"aifm-comply-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textMatchRule(id, name, pattern string) model.PolicyRule {
	return model.PolicyRule{
		ID: id, Name: name, Kind: model.RuleKindTextMatch,
		TextMatch: &model.TextMatchRule{Pattern: pattern},
	}
}

func presenceRule(id string, fields ...string) model.PolicyRule {
	return model.PolicyRule{
		ID: id, Name: "Obligatoriska fält", Kind: model.RuleKindPresence,
		Presence: &model.PresenceRule{Fields: fields},
	}
}

func newComplianceFixture(doc *model.Document, policy *model.Policy, llmFake *fakeLLM) (*ComplianceService, *fakeCheckRepo, *fakeAuditRepo) {
	checkRepo := &fakeCheckRepo{}
	auditRepo := &fakeAuditRepo{}
	svc := NewComplianceService(
		newFakeDocRepo(doc),
		newFakePolicyRepo(policy),
		checkRepo,
		auditRepo,
		llmFake,
	)
	return svc, checkRepo, auditRepo
}

func TestEvaluatePolicy_TextMatchCompliant(t *testing.T) {
	doc := &model.Document{ID: "d1", FileName: "avtal.pdf", ExtractedText: "Detta avtal är försett med SIGNATUR av båda parter."}
	policy := &model.Policy{ID: "p1", Name: "Signaturkrav", IsActive: true,
		Rules: model.RuleList{textMatchRule("r1", "Signatur", "signatur")}}
	svc, checkRepo, auditRepo := newComplianceFixture(doc, policy, &fakeLLM{})

	evaluation, err := svc.EvaluatePolicy(context.Background(), "d1", "p1")
	require.NoError(t, err)
	assert.Equal(t, model.CheckStatusCompliant, evaluation.Status)
	assert.Equal(t, 1.0, evaluation.Score)
	require.Len(t, evaluation.Evidence, 1)
	assert.Equal(t, "SIGNATUR", evaluation.Evidence[0])

	// 检查记录被追加，并带审计事件
	require.Len(t, checkRepo.checks, 1)
	assert.Equal(t, model.CheckStatusCompliant, checkRepo.checks[0].Status)
	require.Len(t, auditRepo.events, 1)
	assert.Equal(t, model.AuditActionCheckCreated, auditRepo.events[0].Action)
}

func TestEvaluatePolicy_TextMatchNotFound(t *testing.T) {
	doc := &model.Document{ID: "d1", ExtractedText: "helt annat innehåll"}
	policy := &model.Policy{ID: "p1", Name: "Signaturkrav",
		Rules: model.RuleList{textMatchRule("r1", "Signatur", "signatur")}}
	svc, _, _ := newComplianceFixture(doc, policy, &fakeLLM{})

	evaluation, err := svc.EvaluatePolicy(context.Background(), "d1", "p1")
	require.NoError(t, err)
	assert.Equal(t, model.CheckStatusNonCompliant, evaluation.Status)
	assert.Equal(t, 0.0, evaluation.Score)
	require.Len(t, evaluation.Gaps, 1)
	assert.Contains(t, evaluation.Gaps[0], `Pattern "signatur" not found`)
}

func TestEvaluatePolicy_PresencePartialScore(t *testing.T) {
	doc := &model.Document{ID: "d1", Title: "KYC", DocumentType: ""}
	policy := &model.Policy{ID: "p1", Name: "Metadata",
		Rules: model.RuleList{presenceRule("r1", "title", "documentType")}}
	svc, _, _ := newComplianceFixture(doc, policy, &fakeLLM{})

	evaluation, err := svc.EvaluatePolicy(context.Background(), "d1", "p1")
	require.NoError(t, err)
	assert.Equal(t, model.CheckStatusNonCompliant, evaluation.Status)
	assert.Equal(t, 0.5, evaluation.Score)
	assert.Contains(t, evaluation.Gaps[0], "documentType")
}

func TestEvaluatePolicy_DateExpiredDominates(t *testing.T) {
	past := time.Now().AddDate(-1, 0, 0)
	publish := time.Now().AddDate(-2, 0, 0)
	doc := &model.Document{ID: "d1", ExtractedText: "signatur finns",
		PublishDate: &publish, EffectiveDate: &publish, ExpiryDate: &past}
	policy := &model.Policy{ID: "p1", Name: "Kombinerad",
		Rules: model.RuleList{
			textMatchRule("r1", "Signatur", "signatur"),
			{ID: "r2", Name: "Giltighet", Kind: model.RuleKindDate},
		}}
	svc, _, _ := newComplianceFixture(doc, policy, &fakeLLM{})

	evaluation, err := svc.EvaluatePolicy(context.Background(), "d1", "p1")
	require.NoError(t, err)
	// 过期是确定的违规，盖过其他规则的 COMPLIANT
	assert.Equal(t, model.CheckStatusNonCompliant, evaluation.Status)
	assert.Equal(t, 0.5, evaluation.Score)
	assert.Contains(t, evaluation.Gaps[0], "expired")
}

func TestEvaluatePolicy_DateNotYetEffective(t *testing.T) {
	future := time.Now().AddDate(0, 1, 0)
	doc := &model.Document{ID: "d1", EffectiveDate: &future}
	policy := &model.Policy{ID: "p1", Name: "Giltighet",
		Rules: model.RuleList{{ID: "r1", Name: "Datum", Kind: model.RuleKindDate}}}
	svc, _, _ := newComplianceFixture(doc, policy, &fakeLLM{})

	evaluation, err := svc.EvaluatePolicy(context.Background(), "d1", "p1")
	require.NoError(t, err)
	assert.Equal(t, model.CheckStatusNeedsReview, evaluation.Status)
	assert.Equal(t, 0.5, evaluation.Score)
}

func TestEvaluatePolicy_AIAnalysisFailureDegrades(t *testing.T) {
	doc := &model.Document{ID: "d1", ExtractedText: "innehåll"}
	policy := &model.Policy{ID: "p1", Name: "AI-krav",
		Rules: model.RuleList{{ID: "r1", Name: "Eskalering", Kind: model.RuleKindAIAnalysis,
			AIAnalysis: &model.AIAnalysisRule{Requirement: "Dokumentet ska beskriva eskalering"}}}}
	svc, _, _ := newComplianceFixture(doc, policy, &fakeLLM{err: errors.New("timeout")})

	evaluation, err := svc.EvaluatePolicy(context.Background(), "d1", "p1")
	require.NoError(t, err)
	assert.Equal(t, model.CheckStatusNeedsReview, evaluation.Status)
	assert.Equal(t, 0.5, evaluation.Score)
	assert.Contains(t, evaluation.Notes, "AI analysis failed")
}

func TestEvaluatePolicy_AIAnalysisVerdict(t *testing.T) {
	doc := &model.Document{ID: "d1", ExtractedText: "eskaleringsprocessen beskrivs i avsnitt 4"}
	policy := &model.Policy{ID: "p1", Name: "AI-krav",
		Rules: model.RuleList{{ID: "r1", Name: "Eskalering", Kind: model.RuleKindAIAnalysis,
			AIAnalysis: &model.AIAnalysisRule{Requirement: "Dokumentet ska beskriva eskalering"}}}}
	llmFake := &fakeLLM{response: `{"compliant":true,"score":0.9,"evidence":["avsnitt 4"],"gaps":[]}`}
	svc, _, _ := newComplianceFixture(doc, policy, llmFake)

	evaluation, err := svc.EvaluatePolicy(context.Background(), "d1", "p1")
	require.NoError(t, err)
	assert.Equal(t, model.CheckStatusCompliant, evaluation.Status)
	assert.Equal(t, 0.9, evaluation.Score)
	assert.Equal(t, []string{"avsnitt 4"}, evaluation.Evidence)
}

func TestEvaluatePolicy_AIAnalysisOutOfRangeScoreDegrades(t *testing.T) {
	doc := &model.Document{ID: "d1", ExtractedText: "text"}
	policy := &model.Policy{ID: "p1", Name: "AI-krav",
		Rules: model.RuleList{{ID: "r1", Name: "Krav", Kind: model.RuleKindAIAnalysis,
			AIAnalysis: &model.AIAnalysisRule{Requirement: "krav"}}}}
	llmFake := &fakeLLM{response: `{"compliant":true,"score":42,"evidence":[],"gaps":[]}`}
	svc, _, _ := newComplianceFixture(doc, policy, llmFake)

	evaluation, err := svc.EvaluatePolicy(context.Background(), "d1", "p1")
	require.NoError(t, err)
	assert.Equal(t, model.CheckStatusNeedsReview, evaluation.Status)
	assert.Equal(t, 0.5, evaluation.Score)
}

func TestEvaluatePolicy_NoRulesIsPending(t *testing.T) {
	doc := &model.Document{ID: "d1"}
	policy := &model.Policy{ID: "p1", Name: "Tom policy"}
	svc, _, _ := newComplianceFixture(doc, policy, &fakeLLM{})

	evaluation, err := svc.EvaluatePolicy(context.Background(), "d1", "p1")
	require.NoError(t, err)
	assert.Equal(t, model.CheckStatusPending, evaluation.Status)
	assert.Equal(t, 0.0, evaluation.Score)
}

func TestAggregateStatus_TruthTable(t *testing.T) {
	cases := []struct {
		statuses []string
		want     string
	}{
		{[]string{model.CheckStatusCompliant, model.CheckStatusCompliant}, model.CheckStatusCompliant},
		{[]string{model.CheckStatusCompliant, model.CheckStatusNonCompliant, model.CheckStatusNeedsReview}, model.CheckStatusNonCompliant},
		{[]string{model.CheckStatusCompliant, model.CheckStatusNeedsReview}, model.CheckStatusNeedsReview},
		{[]string{model.CheckStatusNeedsReview}, model.CheckStatusNeedsReview},
		{nil, model.CheckStatusPending},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, aggregateStatus(tc.statuses), "statuses=%v", tc.statuses)
	}
}

func TestEvaluateAllPolicies_OneCheckPerActivePolicy(t *testing.T) {
	doc := &model.Document{ID: "d1", ExtractedText: "signatur"}
	checkRepo := &fakeCheckRepo{}
	policyRepo := newFakePolicyRepo(
		&model.Policy{ID: "p1", Name: "Aktiv", IsActive: true,
			Rules: model.RuleList{textMatchRule("r1", "Signatur", "signatur")}},
		&model.Policy{ID: "p2", Name: "Inaktiv", IsActive: false,
			Rules: model.RuleList{textMatchRule("r1", "Signatur", "signatur")}},
		&model.Policy{ID: "p3", Name: "Aktiv utan träff", IsActive: true,
			Rules: model.RuleList{textMatchRule("r1", "Stämpel", "stämpel")}},
	)
	svc := NewComplianceService(newFakeDocRepo(doc), policyRepo, checkRepo, &fakeAuditRepo{}, &fakeLLM{})

	evaluations, err := svc.EvaluateAllPolicies(context.Background(), "d1")
	require.NoError(t, err)
	assert.Len(t, evaluations, 2)
	assert.Len(t, checkRepo.checks, 2)
}

func TestCurrentStatus_LatestPerPolicyProjection(t *testing.T) {
	doc := &model.Document{ID: "d1", ExtractedText: "nu finns signatur här"}
	policy := &model.Policy{ID: "p1", Name: "Signaturkrav", IsActive: true,
		Rules: model.RuleList{textMatchRule("r1", "Signatur", "signatur")}}
	checkRepo := &fakeCheckRepo{}
	svc := NewComplianceService(newFakeDocRepo(doc), newFakePolicyRepo(policy), checkRepo, &fakeAuditRepo{}, &fakeLLM{})

	// 先写入一条旧的 NON_COMPLIANT 记录，再运行一次新的检查
	require.NoError(t, checkRepo.Create(&model.ComplianceCheck{
		ID: "old", DocumentID: "d1", PolicyID: "p1",
		Status: model.CheckStatusNonCompliant, Score: 0,
		Gaps: model.StringList{"Pattern \"signatur\" not found in document"},
	}))
	_, err := svc.EvaluatePolicy(context.Background(), "d1", "p1")
	require.NoError(t, err)

	status, err := svc.CurrentStatus("d1")
	require.NoError(t, err)
	// 只有最近一次记录参与投影
	assert.Equal(t, model.CheckStatusCompliant, status.Overall)
	assert.Equal(t, 1.0, status.Score)
	assert.Len(t, status.Checks, 1)
	assert.Empty(t, status.Gaps)

	// 历史仍然保留两条
	history, err := checkRepo.FindByDocument("d1")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestCurrentStatus_NoChecksIsPending(t *testing.T) {
	svc := NewComplianceService(newFakeDocRepo(), newFakePolicyRepo(), &fakeCheckRepo{}, &fakeAuditRepo{}, &fakeLLM{})

	status, err := svc.CurrentStatus("unknown")
	require.NoError(t, err)
	assert.Equal(t, model.CheckStatusPending, status.Overall)
	assert.Equal(t, 0.0, status.Score)
	assert.Empty(t, status.Checks)
}
