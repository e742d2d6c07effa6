package model

import "time"

// 审计动作类型。
const (
	AuditActionStatusChange = "STATUS_CHANGE"
	AuditActionCheckCreated = "CHECK_CREATED"
)

// AuditLog 定义了 audit_logs 表的 ORM 模型。
// 每次文档状态迁移和每条合规检查的创建各产生一条事件。
type AuditLog struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Actor     string    `gorm:"type:varchar(100)" json:"actor"` // 触发者，人或 "pipeline"
	Action    string    `gorm:"type:varchar(50);not null" json:"action"`
	RefType   string    `gorm:"type:varchar(50);not null" json:"refType"` // Document / ComplianceCheck
	RefID     string    `gorm:"type:varchar(36);not null;index" json:"refId"`
	Before    string    `gorm:"type:varchar(50)" json:"before"`
	After     string    `gorm:"type:varchar(50)" json:"after"`
	Detail    string    `gorm:"type:varchar(500)" json:"detail"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (AuditLog) TableName() string {
	return "audit_logs"
}
