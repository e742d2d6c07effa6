// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"aifm-comply-go/internal/model"

	"gorm.io/gorm"
)

// DocumentRepository 接口定义了文档相关的数据持久化操作。
type DocumentRepository interface {
	Create(doc *model.Document) error
	FindByID(id string) (*model.Document, error)
	Save(doc *model.Document) error
	UpdateStatus(id, status, processingError string) error
	// FindIndexed 返回匹配过滤条件的所有 INDEXED 文档，按 id 升序。
	// ARCHIVED / ERROR / 处理中的文档不会出现在结果里。
	FindIndexed(filters model.SearchFilters) ([]model.Document, error)
	FindByClient(clientID string) ([]model.Document, error)
	FindAllByStatus(status string) ([]model.Document, error)
	List(status, documentType, clientID string) ([]model.Document, error)
	Stats() (*model.DocumentStats, error)
}

// documentRepository 是 DocumentRepository 接口的 GORM 实现。
type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Create 在数据库中创建一条新的文档记录。
func (r *documentRepository) Create(doc *model.Document) error {
	return r.db.Create(doc).Error
}

// FindByID 根据 id 检索文档记录。
func (r *documentRepository) FindByID(id string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.Where("id = ?", id).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// Save 整体保存文档记录（分类与向量字段总是整体替换）。
func (r *documentRepository) Save(doc *model.Document) error {
	return r.db.Save(doc).Error
}

// UpdateStatus 只更新文档的状态与处理错误字段。
func (r *documentRepository) UpdateStatus(id, status, processingError string) error {
	return r.db.Model(&model.Document{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":           status,
			"processing_error": processingError,
		}).Error
}

// FindIndexed 返回匹配过滤条件的所有 INDEXED 文档。
// 按 id 升序返回，保证相同相似度得分时排序稳定。
func (r *documentRepository) FindIndexed(filters model.SearchFilters) ([]model.Document, error) {
	q := r.db.Where("status = ?", model.DocStatusIndexed).Where("embedding <> ''")
	if filters.ClientID != "" {
		q = q.Where("client_id = ?", filters.ClientID)
	}
	if filters.Category != "" {
		q = q.Where("category = ?", filters.Category)
	}
	if filters.DocumentType != "" {
		q = q.Where("document_type = ?", filters.DocumentType)
	}
	if len(filters.DocumentIDs) > 0 {
		q = q.Where("id IN ?", filters.DocumentIDs)
	}
	var docs []model.Document
	err := q.Order("id asc").Find(&docs).Error
	return docs, err
}

// FindByClient 返回某客户的全部文档（不含 ARCHIVED）。
func (r *documentRepository) FindByClient(clientID string) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.Where("client_id = ?", clientID).
		Where("status <> ?", model.DocStatusArchived).
		Order("id asc").Find(&docs).Error
	return docs, err
}

// FindAllByStatus 返回指定状态的全部文档。
func (r *documentRepository) FindAllByStatus(status string) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.Where("status = ?", status).Order("id asc").Find(&docs).Error
	return docs, err
}

// List 按可选的状态/类型/客户条件列出文档。
func (r *documentRepository) List(status, documentType, clientID string) ([]model.Document, error) {
	q := r.db.Model(&model.Document{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if documentType != "" {
		q = q.Where("document_type = ?", documentType)
	}
	if clientID != "" {
		q = q.Where("client_id = ?", clientID)
	}
	var docs []model.Document
	err := q.Order("created_at desc").Find(&docs).Error
	return docs, err
}

// Stats 按状态和类型统计文档数量。
func (r *documentRepository) Stats() (*model.DocumentStats, error) {
	stats := &model.DocumentStats{
		ByStatus: map[string]int64{},
		ByType:   map[string]int64{},
	}
	if err := r.db.Model(&model.Document{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	type bucket struct {
		Key   string
		Count int64
	}
	var byStatus []bucket
	if err := r.db.Model(&model.Document{}).
		Select("status as `key`, count(*) as count").Group("status").
		Scan(&byStatus).Error; err != nil {
		return nil, err
	}
	for _, b := range byStatus {
		stats.ByStatus[b.Key] = b.Count
	}

	var byType []bucket
	if err := r.db.Model(&model.Document{}).
		Select("document_type as `key`, count(*) as count").
		Where("document_type <> ''").Group("document_type").
		Scan(&byType).Error; err != nil {
		return nil, err
	}
	for _, b := range byType {
		stats.ByType[b.Key] = b.Count
	}
	return stats, nil
}
