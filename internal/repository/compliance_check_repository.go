package repository

import (
	"aifm-comply-go/internal/model"

	"gorm.io/gorm"
)

// ComplianceCheckRepository 接口定义了合规检查记录的持久化操作。
// 表是只追加的：没有 Update / Delete，重新检查产生新行，历史保留用于审计。
type ComplianceCheckRepository interface {
	Create(check *model.ComplianceCheck) error
	// FindByDocument 返回文档的全部检查历史，最近的在前
	// （checked_at 降序，checked_at 相同时按 id 降序保证读回顺序稳定）。
	FindByDocument(documentID string) ([]model.ComplianceCheck, error)
	FindByDocumentAndPolicy(documentID, policyID string) ([]model.ComplianceCheck, error)
	// FindLatestPerPolicy 是"当前状态"的读时投影：
	// 每个策略只取最近一次的检查记录。
	FindLatestPerPolicy(documentID string) ([]model.ComplianceCheck, error)
}

// complianceCheckRepository 是 ComplianceCheckRepository 接口的 GORM 实现。
type complianceCheckRepository struct {
	db *gorm.DB
}

// NewComplianceCheckRepository 创建一个新的 ComplianceCheckRepository 实例。
func NewComplianceCheckRepository(db *gorm.DB) ComplianceCheckRepository {
	return &complianceCheckRepository{db: db}
}

func (r *complianceCheckRepository) Create(check *model.ComplianceCheck) error {
	return r.db.Create(check).Error
}

func (r *complianceCheckRepository) FindByDocument(documentID string) ([]model.ComplianceCheck, error) {
	var checks []model.ComplianceCheck
	err := r.db.Where("document_id = ?", documentID).
		Order("checked_at desc, id desc").Find(&checks).Error
	return checks, err
}

func (r *complianceCheckRepository) FindByDocumentAndPolicy(documentID, policyID string) ([]model.ComplianceCheck, error) {
	var checks []model.ComplianceCheck
	err := r.db.Where("document_id = ? AND policy_id = ?", documentID, policyID).
		Order("checked_at desc, id desc").Find(&checks).Error
	return checks, err
}

// FindLatestPerPolicy 读取全部历史后在内存里按策略去重。
// 历史按最近优先排序，每个策略保留遇到的第一条即可。
func (r *complianceCheckRepository) FindLatestPerPolicy(documentID string) ([]model.ComplianceCheck, error) {
	all, err := r.FindByDocument(documentID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(all))
	latest := make([]model.ComplianceCheck, 0, len(all))
	for _, c := range all {
		if _, ok := seen[c.PolicyID]; ok {
			continue
		}
		seen[c.PolicyID] = struct{}{}
		latest = append(latest, c)
	}
	return latest, nil
}
