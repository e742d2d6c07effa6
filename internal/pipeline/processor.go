// Package pipeline 定义了文档索引的核心流程。
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"aifm-comply-go/internal/classifier"
	"aifm-comply-go/internal/model"
	"aifm-comply-go/internal/parser"
	"aifm-comply-go/internal/repository"
	"aifm-comply-go/pkg/embedding"
	"aifm-comply-go/pkg/log"
	"aifm-comply-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
)

// pipelineActor 是管道产生的审计事件的触发者标识。
const pipelineActor = "pipeline"

// 同一文档的索引锁最长持有时间。超时自动释放，
// 被放弃的处理不会让文档永远占着锁。
const lockTTL = 10 * time.Minute

// BlobStore 抽象了文档二进制内容的读取（§6 blob store）。
type BlobStore interface {
	GetFile(ctx context.Context, key string) ([]byte, error)
}

// TextIndex 抽象了全文索引写入（Elasticsearch 关键词检索通道）。
type TextIndex interface {
	Index(ctx context.Context, doc model.EsDocument) error
}

// ComplianceChecker 抽象了索引完成后的自动合规检查。
type ComplianceChecker interface {
	EvaluateAllPolicies(ctx context.Context, documentID string) ([]model.PolicyEvaluation, error)
}

// DocLocker 按文档 id 串行化索引写入：并发的重索引请求不会交错半更新。
type DocLocker interface {
	Acquire(ctx context.Context, documentID string) (bool, error)
	Release(ctx context.Context, documentID string) error
}

// redisLocker 是 DocLocker 的 Redis SETNX 实现。
type redisLocker struct {
	rdb *redis.Client
}

// NewRedisLocker 创建一个基于 Redis 的文档锁。
func NewRedisLocker(rdb *redis.Client) DocLocker {
	return &redisLocker{rdb: rdb}
}

func (l *redisLocker) Acquire(ctx context.Context, documentID string) (bool, error) {
	return l.rdb.SetNX(ctx, "index:lock:"+documentID, 1, lockTTL).Result()
}

func (l *redisLocker) Release(ctx context.Context, documentID string) error {
	return l.rdb.Del(ctx, "index:lock:"+documentID).Err()
}

// Processor 封装了文档索引管道的所有依赖和逻辑。
type Processor struct {
	parser          *parser.Parser
	classifier      *classifier.Classifier
	embeddingClient embedding.Client
	docRepo         repository.DocumentRepository
	auditRepo       repository.AuditRepository
	blob            BlobStore
	textIndex       TextIndex
	locker          DocLocker
	checker         ComplianceChecker
	autoCheck       bool
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	p *parser.Parser,
	c *classifier.Classifier,
	embeddingClient embedding.Client,
	docRepo repository.DocumentRepository,
	auditRepo repository.AuditRepository,
	blob BlobStore,
	textIndex TextIndex,
	locker DocLocker,
	checker ComplianceChecker,
	autoCheck bool,
) *Processor {
	return &Processor{
		parser:          p,
		classifier:      c,
		embeddingClient: embeddingClient,
		docRepo:         docRepo,
		auditRepo:       auditRepo,
		blob:            blob,
		textIndex:       textIndex,
		locker:          locker,
		checker:         checker,
		autoCheck:       autoCheck,
	}
}

// Process 是文档索引的主函数，驱动状态机
// PENDING/ERROR/INDEXED --> PROCESSING --> INDEXED | ERROR。
// 单个文档内部各阶段严格串行；解析或向量化失败时文档置为 ERROR 并中止，
// 不做部分索引。重索引总是从 PROCESSING 全量重算文本、分类和向量。
func (p *Processor) Process(ctx context.Context, task tasks.DocumentIndexTask) error {
	log.Infof("[Processor] 开始处理文档, DocumentID: %s, FileName: %s", task.DocumentID, task.FileName)

	acquired, err := p.locker.Acquire(ctx, task.DocumentID)
	if err != nil {
		return fmt.Errorf("获取文档锁失败: %w", err)
	}
	if !acquired {
		return fmt.Errorf("文档 %s 正在被其他索引任务处理", task.DocumentID)
	}
	defer func() {
		if err := p.locker.Release(context.Background(), task.DocumentID); err != nil {
			log.Warnf("[Processor] 释放文档锁失败, DocumentID: %s, err: %v", task.DocumentID, err)
		}
	}()

	doc, err := p.docRepo.FindByID(task.DocumentID)
	if err != nil {
		return fmt.Errorf("查询文档记录失败 (id=%s): %w", task.DocumentID, err)
	}

	// 进入 PROCESSING，向量和错误信息整体清空
	prevStatus := doc.Status
	doc.Status = model.DocStatusProcessing
	doc.ProcessingError = ""
	doc.Embedding = ""
	doc.IndexedAt = nil
	if err := p.docRepo.Save(doc); err != nil {
		return fmt.Errorf("更新文档为 PROCESSING 失败: %w", err)
	}
	p.recordTransition(doc.ID, prevStatus, model.DocStatusProcessing, "")

	// 1. 从 blob store 下载文件
	log.Infof("[Processor] 步骤1: 下载文件, StorageKey: %s", doc.StorageKey)
	content, err := p.blob.GetFile(ctx, doc.StorageKey)
	if err != nil {
		return p.fail(doc.ID, fmt.Errorf("下载文件失败: %w", err))
	}
	log.Infof("[Processor] 步骤1: 文件下载成功, 大小: %d 字节", len(content))

	// 2. 解析文本
	log.Info("[Processor] 步骤2: 提取文本内容")
	parsed, err := p.parser.Parse(ctx, content, doc.FileType)
	if err != nil {
		return p.fail(doc.ID, err)
	}
	log.Infof("[Processor] 步骤2: 文本提取成功, 长度: %d 字符", len(parsed.Text))

	// 3. 分类（确定性或 AI 辅助，永不失败）
	log.Info("[Processor] 步骤3: 文档分类")
	classification := p.classifier.Classify(ctx, doc.FileName, parsed.Text, parsed.Metadata)
	if classification.Confidence <= classifier.ConfidenceDegradedAI {
		log.Warnf("[Processor] 分类置信度降级, DocumentID: %s, confidence: %.2f", doc.ID, classification.Confidence)
	}

	// 4. 向量化
	log.Info("[Processor] 步骤4: 生成文档向量")
	vector, err := p.embeddingClient.CreateEmbedding(ctx, parsed.Text)
	if err != nil {
		return p.fail(doc.ID, fmt.Errorf("向量化失败: %w", err))
	}
	vectorJSON, err := json.Marshal(vector)
	if err != nil {
		return p.fail(doc.ID, fmt.Errorf("编码向量失败: %w", err))
	}
	log.Infof("[Processor] 步骤4: 向量化成功, 维度: %d", len(vector))

	// 5. 整体写回文本、分类与向量，进入 INDEXED
	applyClassification(doc, classification)
	doc.ExtractedText = parsed.Text
	doc.Metadata = parsed.Metadata
	doc.Embedding = string(vectorJSON)
	doc.Status = model.DocStatusIndexed
	now := time.Now()
	doc.IndexedAt = &now
	if err := p.docRepo.Save(doc); err != nil {
		return p.fail(doc.ID, fmt.Errorf("保存索引结果失败: %w", err))
	}
	p.recordTransition(doc.ID, model.DocStatusProcessing, model.DocStatusIndexed, "")
	log.Infof("[Processor] 文档索引完成, DocumentID: %s", doc.ID)

	// 6. 写入全文索引（关键词检索通道，失败不影响文档状态）
	if p.textIndex != nil {
		esDoc := model.EsDocument{
			DocumentID:   doc.ID,
			ClientID:     doc.ClientID,
			FileName:     doc.FileName,
			Title:        doc.Title,
			TextContent:  parsed.Text,
			DocumentType: doc.DocumentType,
			Category:     doc.Category,
			Tags:         doc.Tags,
			Language:     doc.Language,
		}
		if err := p.textIndex.Index(ctx, esDoc); err != nil {
			log.Errorf("[Processor] 写入全文索引失败, DocumentID: %s, err: %v", doc.ID, err)
		}
	}

	// 7. 自动合规检查（失败只记录，不影响索引结果）
	if p.autoCheck && p.checker != nil {
		if _, err := p.checker.EvaluateAllPolicies(ctx, doc.ID); err != nil {
			log.Errorf("[Processor] 自动合规检查失败, DocumentID: %s, err: %v", doc.ID, err)
		}
	}

	return nil
}

// applyClassification 把分类结果写入文档：有推断值则覆盖，否则保留既有值
// （既有值可能来自人工编辑）。
func applyClassification(doc *model.Document, c classifier.Result) {
	if c.DocumentType != nil {
		doc.DocumentType = *c.DocumentType
	}
	if c.Category != nil {
		doc.Category = *c.Category
	}
	if c.Title != nil {
		doc.Title = *c.Title
	}
	if c.Description != nil {
		doc.Description = *c.Description
	}
	if c.Author != nil {
		doc.Author = *c.Author
	}
	if c.PublishDate != nil {
		doc.PublishDate = c.PublishDate
	}
	if c.EffectiveDate != nil {
		doc.EffectiveDate = c.EffectiveDate
	}
	if c.ExpiryDate != nil {
		doc.ExpiryDate = c.ExpiryDate
	}
	if len(c.Tags) > 0 {
		doc.Tags = c.Tags
	}
	if c.Language != "" {
		doc.Language = c.Language
	}
}

// fail 把文档置为 ERROR 并记录触发错误，返回原始错误供消费者重试策略使用。
func (p *Processor) fail(documentID string, cause error) error {
	log.Errorf("[Processor] 文档处理失败, DocumentID: %s, Error: %v", documentID, cause)
	msg := embedding.Truncate(cause.Error(), 500)
	if err := p.docRepo.UpdateStatus(documentID, model.DocStatusError, msg); err != nil {
		log.Errorf("[Processor] 更新文档为 ERROR 失败, DocumentID: %s, err: %v", documentID, err)
	}
	p.recordTransition(documentID, model.DocStatusProcessing, model.DocStatusError, msg)
	return cause
}

// recordTransition 向审计接收端写入一条状态迁移事件。
func (p *Processor) recordTransition(documentID, before, after, detail string) {
	event := &model.AuditLog{
		Actor:   pipelineActor,
		Action:  model.AuditActionStatusChange,
		RefType: "Document",
		RefID:   documentID,
		Before:  before,
		After:   after,
		Detail:  detail,
	}
	if err := p.auditRepo.Record(event); err != nil {
		log.Errorf("[Processor] 写入审计事件失败, DocumentID: %s, err: %v", documentID, err)
	}
}
