package repository

import (
	"aifm-comply-go/internal/model"

	"gorm.io/gorm"
)

// AuditRepository 是审计事件的落地接口（审计接收端）。
// 每次文档状态迁移和每条合规检查的创建各写入一条事件。
type AuditRepository interface {
	Record(event *model.AuditLog) error
	FindByRef(refID string) ([]model.AuditLog, error)
}

// auditRepository 是 AuditRepository 接口的 GORM 实现。
type auditRepository struct {
	db *gorm.DB
}

// NewAuditRepository 创建一个新的 AuditRepository 实例。
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Record(event *model.AuditLog) error {
	return r.db.Create(event).Error
}

func (r *auditRepository) FindByRef(refID string) ([]model.AuditLog, error) {
	var events []model.AuditLog
	err := r.db.Where("ref_id = ?", refID).Order("created_at desc").Find(&events).Error
	return events, err
}
