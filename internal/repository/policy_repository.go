package repository

import (
	"aifm-comply-go/internal/model"

	"gorm.io/gorm"
)

// PolicyRepository 接口定义了策略相关的数据持久化操作。
// 规则校验发生在 RuleList 反序列化阶段（见 model.PolicyRule），
// 保存接口拿到的策略里不会有未知 checkType 或非法字段路径。
type PolicyRepository interface {
	Create(policy *model.Policy) error
	Save(policy *model.Policy) error
	FindByID(id string) (*model.Policy, error)
	FindActive() ([]model.Policy, error)
	List() ([]model.Policy, error)
	Delete(id string) error
}

// policyRepository 是 PolicyRepository 接口的 GORM 实现。
type policyRepository struct {
	db *gorm.DB
}

// NewPolicyRepository 创建一个新的 PolicyRepository 实例。
func NewPolicyRepository(db *gorm.DB) PolicyRepository {
	return &policyRepository{db: db}
}

func (r *policyRepository) Create(policy *model.Policy) error {
	return r.db.Create(policy).Error
}

func (r *policyRepository) Save(policy *model.Policy) error {
	return r.db.Save(policy).Error
}

func (r *policyRepository) FindByID(id string) (*model.Policy, error) {
	var policy model.Policy
	if err := r.db.Where("id = ?", id).First(&policy).Error; err != nil {
		return nil, err
	}
	return &policy, nil
}

// FindActive 返回所有激活的策略，按创建时间升序。
func (r *policyRepository) FindActive() ([]model.Policy, error) {
	var policies []model.Policy
	err := r.db.Where("is_active = ?", true).Order("created_at asc").Find(&policies).Error
	return policies, err
}

func (r *policyRepository) List() ([]model.Policy, error) {
	var policies []model.Policy
	err := r.db.Order("created_at asc").Find(&policies).Error
	return policies, err
}

func (r *policyRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&model.Policy{}).Error
}
