package service

import (
	"fmt"

	"aifm-comply-go/internal/model"
	"aifm-comply-go/internal/repository"

	"github.com/google/uuid"
)

// PolicyService 负责策略的增删改查。规则合法性在 JSON 反序列化时
// 已经校验过，到这里的策略规则都是结构良好的。
type PolicyService struct {
	policyRepo repository.PolicyRepository
}

// NewPolicyService 创建策略服务实例。
func NewPolicyService(policyRepo repository.PolicyRepository) *PolicyService {
	return &PolicyService{policyRepo: policyRepo}
}

// Create 保存一个新策略，规则内没有 id 的自动补全。
func (s *PolicyService) Create(policy *model.Policy) error {
	if policy.Name == "" {
		return fmt.Errorf("策略缺少名称")
	}
	if policy.ID == "" {
		policy.ID = uuid.NewString()
	}
	for i := range policy.Rules {
		if policy.Rules[i].ID == "" {
			policy.Rules[i].ID = uuid.NewString()
		}
	}
	return s.policyRepo.Create(policy)
}

// Update 整体替换策略内容，规则列表有序且全量更新。
func (s *PolicyService) Update(policy *model.Policy) error {
	existing, err := s.policyRepo.FindByID(policy.ID)
	if err != nil {
		return fmt.Errorf("查询策略失败 (id=%s): %w", policy.ID, err)
	}
	existing.Name = policy.Name
	existing.Description = policy.Description
	existing.IsActive = policy.IsActive
	existing.Rules = policy.Rules
	existing.Requirements = policy.Requirements
	for i := range existing.Rules {
		if existing.Rules[i].ID == "" {
			existing.Rules[i].ID = uuid.NewString()
		}
	}
	return s.policyRepo.Save(existing)
}

// Get 返回单个策略。
func (s *PolicyService) Get(policyID string) (*model.Policy, error) {
	return s.policyRepo.FindByID(policyID)
}

// List 返回全部策略。
func (s *PolicyService) List() ([]model.Policy, error) {
	return s.policyRepo.List()
}

// ListActive 返回激活策略，按创建时间升序。
func (s *PolicyService) ListActive() ([]model.Policy, error) {
	return s.policyRepo.FindActive()
}

// SetActive 切换策略的激活状态。停用的策略不再参与自动检查和差距分析，
// 其历史检查记录保留。
func (s *PolicyService) SetActive(policyID string, active bool) error {
	policy, err := s.policyRepo.FindByID(policyID)
	if err != nil {
		return fmt.Errorf("查询策略失败 (id=%s): %w", policyID, err)
	}
	policy.IsActive = active
	return s.policyRepo.Save(policy)
}

// Delete 删除策略。历史检查记录带有策略名快照，不受删除影响。
func (s *PolicyService) Delete(policyID string) error {
	return s.policyRepo.Delete(policyID)
}
