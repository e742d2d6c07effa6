package service

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"aifm-comply-go/internal/config"
	"aifm-comply-go/internal/model"
	"aifm-comply-go/internal/repository"
	"aifm-comply-go/pkg/es"
	"aifm-comply-go/pkg/kafka"
	"aifm-comply-go/pkg/log"
	"aifm-comply-go/pkg/storage"
	"aifm-comply-go/pkg/tasks"

	"github.com/google/uuid"
)

// DocumentService 负责文档的上传、重索引、归档和查询。
// 上传只落存储和元数据行，解析/分类/向量化由消费端的索引管道异步完成。
type DocumentService struct {
	docRepo   repository.DocumentRepository
	auditRepo repository.AuditRepository
}

// NewDocumentService 创建文档服务实例。
func NewDocumentService(docRepo repository.DocumentRepository, auditRepo repository.AuditRepository) *DocumentService {
	return &DocumentService{docRepo: docRepo, auditRepo: auditRepo}
}

// UploadRequest 是一次文档上传的入参。
type UploadRequest struct {
	ClientID    string
	FileName    string
	ContentType string
	Content     []byte
	Actor       string
}

// Upload 把文件写入对象存储，创建 PENDING 文档行，并投递索引任务。
// 任务投递失败时文档保持 PENDING，可以之后用 Reindex 重试。
func (s *DocumentService) Upload(ctx context.Context, req UploadRequest) (*model.Document, error) {
	if len(req.Content) == 0 {
		return nil, fmt.Errorf("文件内容为空")
	}
	if req.ClientID == "" {
		return nil, fmt.Errorf("缺少 clientId")
	}

	id := uuid.NewString()
	storageKey := path.Join(req.ClientID, id, req.FileName)

	bucket := config.Conf.MinIO.BucketName
	if err := storage.PutFile(ctx, bucket, storageKey, req.ContentType,
		bytes.NewReader(req.Content), int64(len(req.Content))); err != nil {
		return nil, fmt.Errorf("上传文件到对象存储失败: %w", err)
	}

	doc := &model.Document{
		ID:         id,
		ClientID:   req.ClientID,
		FileName:   req.FileName,
		FileType:   req.ContentType,
		StorageKey: storageKey,
		Status:     model.DocStatusPending,
	}
	if err := s.docRepo.Create(doc); err != nil {
		return nil, fmt.Errorf("创建文档记录失败: %w", err)
	}
	s.recordTransition(req.Actor, doc.ID, "", model.DocStatusPending, "uploaded "+req.FileName)

	if err := kafka.ProduceIndexTask(tasks.DocumentIndexTask{
		DocumentID: doc.ID,
		ClientID:   doc.ClientID,
		FileName:   doc.FileName,
		StorageKey: doc.StorageKey,
	}); err != nil {
		log.Errorf("[DocumentService] 投递索引任务失败, DocumentID: %s, err: %v", doc.ID, err)
	}
	return doc, nil
}

// Reindex 对已有文档重新投递索引任务，全量重算文本、分类和向量。
// ARCHIVED 文档需要先恢复再重索引。
func (s *DocumentService) Reindex(documentID string) error {
	doc, err := s.docRepo.FindByID(documentID)
	if err != nil {
		return fmt.Errorf("查询文档失败 (id=%s): %w", documentID, err)
	}
	if doc.Status == model.DocStatusArchived {
		return fmt.Errorf("文档已归档, 不能重索引")
	}
	if doc.Status == model.DocStatusProcessing {
		return fmt.Errorf("文档正在处理中")
	}

	if err := kafka.ProduceIndexTask(tasks.DocumentIndexTask{
		DocumentID: doc.ID,
		ClientID:   doc.ClientID,
		FileName:   doc.FileName,
		StorageKey: doc.StorageKey,
		Reindex:    true,
	}); err != nil {
		return fmt.Errorf("投递索引任务失败: %w", err)
	}
	return nil
}

// Archive 把文档移出活跃语料：不再参与检索、问答和差距分析，
// 同时从全文索引删除。历史检查记录保留。
func (s *DocumentService) Archive(ctx context.Context, documentID, actor string) error {
	doc, err := s.docRepo.FindByID(documentID)
	if err != nil {
		return fmt.Errorf("查询文档失败 (id=%s): %w", documentID, err)
	}
	if doc.Status == model.DocStatusArchived {
		return nil
	}
	prev := doc.Status
	doc.Status = model.DocStatusArchived
	if err := s.docRepo.Save(doc); err != nil {
		return fmt.Errorf("归档文档失败: %w", err)
	}
	s.recordTransition(actor, doc.ID, prev, model.DocStatusArchived, "")

	if err := es.DeleteDocument(ctx, config.Conf.Elasticsearch.IndexName, doc.ID); err != nil {
		log.Warnf("[DocumentService] 从全文索引删除失败, DocumentID: %s, err: %v", doc.ID, err)
	}
	return nil
}

// Get 返回单个文档。
func (s *DocumentService) Get(documentID string) (*model.Document, error) {
	return s.docRepo.FindByID(documentID)
}

// List 按可选条件列出文档。
func (s *DocumentService) List(status, documentType, clientID string) ([]model.Document, error) {
	return s.docRepo.List(status, documentType, clientID)
}

// Stats 返回语料统计。
func (s *DocumentService) Stats() (*model.DocumentStats, error) {
	return s.docRepo.Stats()
}

// History 返回文档的审计事件。
func (s *DocumentService) History(documentID string) ([]model.AuditLog, error) {
	return s.auditRepo.FindByRef(documentID)
}

func (s *DocumentService) recordTransition(actor, documentID, before, after, detail string) {
	if actor == "" {
		actor = "api"
	}
	event := &model.AuditLog{
		Actor:   actor,
		Action:  model.AuditActionStatusChange,
		RefType: "Document",
		RefID:   documentID,
		Before:  before,
		After:   after,
		Detail:  detail,
	}
	if err := s.auditRepo.Record(event); err != nil {
		log.Warnf("[DocumentService] 写入审计事件失败, DocumentID: %s, err: %v", documentID, err)
	}
}
