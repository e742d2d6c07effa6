package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"aifm-comply-go/internal/model"
	"aifm-comply-go/pkg/llm"
)

// 内存版的仓库与客户端替身，供本包的服务测试共用。

type fakeDocRepo struct {
	docs map[string]*model.Document
}

func newFakeDocRepo(docs ...*model.Document) *fakeDocRepo {
	r := &fakeDocRepo{docs: map[string]*model.Document{}}
	for _, d := range docs {
		r.docs[d.ID] = d
	}
	return r
}

func (r *fakeDocRepo) Create(doc *model.Document) error {
	r.docs[doc.ID] = doc
	return nil
}

func (r *fakeDocRepo) FindByID(id string) (*model.Document, error) {
	doc, ok := r.docs[id]
	if !ok {
		return nil, fmt.Errorf("document not found: %s", id)
	}
	return doc, nil
}

func (r *fakeDocRepo) Save(doc *model.Document) error {
	r.docs[doc.ID] = doc
	return nil
}

func (r *fakeDocRepo) UpdateStatus(id, status, processingError string) error {
	doc, ok := r.docs[id]
	if !ok {
		return fmt.Errorf("document not found: %s", id)
	}
	doc.Status = status
	doc.ProcessingError = processingError
	return nil
}

func (r *fakeDocRepo) FindIndexed(filters model.SearchFilters) ([]model.Document, error) {
	allowed := map[string]bool{}
	for _, id := range filters.DocumentIDs {
		allowed[id] = true
	}
	var out []model.Document
	for _, d := range r.docs {
		if d.Status != model.DocStatusIndexed || d.Embedding == "" {
			continue
		}
		if filters.ClientID != "" && d.ClientID != filters.ClientID {
			continue
		}
		if filters.Category != "" && d.Category != filters.Category {
			continue
		}
		if filters.DocumentType != "" && d.DocumentType != filters.DocumentType {
			continue
		}
		if len(allowed) > 0 && !allowed[d.ID] {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeDocRepo) FindByClient(clientID string) ([]model.Document, error) {
	var out []model.Document
	for _, d := range r.docs {
		if d.ClientID == clientID && d.Status != model.DocStatusArchived {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeDocRepo) FindAllByStatus(status string) ([]model.Document, error) {
	var out []model.Document
	for _, d := range r.docs {
		if d.Status == status {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (r *fakeDocRepo) List(status, documentType, clientID string) ([]model.Document, error) {
	var out []model.Document
	for _, d := range r.docs {
		if status != "" && d.Status != status {
			continue
		}
		if documentType != "" && d.DocumentType != documentType {
			continue
		}
		if clientID != "" && d.ClientID != clientID {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeDocRepo) Stats() (*model.DocumentStats, error) {
	stats := &model.DocumentStats{ByStatus: map[string]int64{}, ByType: map[string]int64{}}
	for _, d := range r.docs {
		stats.Total++
		stats.ByStatus[d.Status]++
		if d.DocumentType != "" {
			stats.ByType[d.DocumentType]++
		}
	}
	return stats, nil
}

type fakePolicyRepo struct {
	policies map[string]*model.Policy
}

func newFakePolicyRepo(policies ...*model.Policy) *fakePolicyRepo {
	r := &fakePolicyRepo{policies: map[string]*model.Policy{}}
	for _, p := range policies {
		r.policies[p.ID] = p
	}
	return r
}

func (r *fakePolicyRepo) Create(policy *model.Policy) error {
	r.policies[policy.ID] = policy
	return nil
}

func (r *fakePolicyRepo) Save(policy *model.Policy) error {
	r.policies[policy.ID] = policy
	return nil
}

func (r *fakePolicyRepo) FindByID(id string) (*model.Policy, error) {
	p, ok := r.policies[id]
	if !ok {
		return nil, fmt.Errorf("policy not found: %s", id)
	}
	return p, nil
}

func (r *fakePolicyRepo) FindActive() ([]model.Policy, error) {
	var out []model.Policy
	for _, p := range r.policies {
		if p.IsActive {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakePolicyRepo) List() ([]model.Policy, error) {
	var out []model.Policy
	for _, p := range r.policies {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakePolicyRepo) Delete(id string) error {
	delete(r.policies, id)
	return nil
}

type fakeCheckRepo struct {
	checks []model.ComplianceCheck
}

func (r *fakeCheckRepo) Create(check *model.ComplianceCheck) error {
	r.checks = append(r.checks, *check)
	return nil
}

func (r *fakeCheckRepo) FindByDocument(documentID string) ([]model.ComplianceCheck, error) {
	// 追加顺序即时间顺序，最近的在前
	var out []model.ComplianceCheck
	for i := len(r.checks) - 1; i >= 0; i-- {
		if r.checks[i].DocumentID == documentID {
			out = append(out, r.checks[i])
		}
	}
	return out, nil
}

func (r *fakeCheckRepo) FindByDocumentAndPolicy(documentID, policyID string) ([]model.ComplianceCheck, error) {
	var out []model.ComplianceCheck
	for i := len(r.checks) - 1; i >= 0; i-- {
		if r.checks[i].DocumentID == documentID && r.checks[i].PolicyID == policyID {
			out = append(out, r.checks[i])
		}
	}
	return out, nil
}

func (r *fakeCheckRepo) FindLatestPerPolicy(documentID string) ([]model.ComplianceCheck, error) {
	all, _ := r.FindByDocument(documentID)
	seen := map[string]bool{}
	var latest []model.ComplianceCheck
	for _, c := range all {
		if seen[c.PolicyID] {
			continue
		}
		seen[c.PolicyID] = true
		latest = append(latest, c)
	}
	return latest, nil
}

type fakeAuditRepo struct {
	events []model.AuditLog
}

func (r *fakeAuditRepo) Record(event *model.AuditLog) error {
	r.events = append(r.events, *event)
	return nil
}

func (r *fakeAuditRepo) FindByRef(refID string) ([]model.AuditLog, error) {
	var out []model.AuditLog
	for _, e := range r.events {
		if e.RefID == refID {
			out = append(out, e)
		}
	}
	return out, nil
}

// fakeEmbedder 返回预设向量，按文本关键词区分。
type fakeEmbedder struct {
	vectors        map[string][]float32
	fallbackVector []float32
	err            error
	calls          int
}

func (f *fakeEmbedder) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	for key, vec := range f.vectors {
		if strings.Contains(text, key) {
			return vec, nil
		}
	}
	if f.fallbackVector != nil {
		return f.fallbackVector, nil
	}
	return []float32{1, 0, 0}, nil
}

// fakeLLM 返回预设回答或错误。
type fakeLLM struct {
	response string
	err      error
	calls    int
}

func (f *fakeLLM) Complete(_ context.Context, _ []llm.Message, _ *llm.GenerationParams) (string, error) {
	f.calls++
	return f.response, f.err
}

func (f *fakeLLM) CompleteJSON(_ context.Context, _ []llm.Message, _ *llm.GenerationParams, out interface{}) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.response), out)
}

// vectorJSON 把向量编码为文档存储形态。
func vectorJSON(vec []float32) string {
	b, _ := json.Marshal(vec)
	return string(b)
}
