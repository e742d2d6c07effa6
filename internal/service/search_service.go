package service

import (
	"context"
	"fmt"
	"sort"

	"aifm-comply-go/internal/config"
	"aifm-comply-go/internal/model"
	"aifm-comply-go/internal/repository"
	"aifm-comply-go/pkg/embedding"
	"aifm-comply-go/pkg/es"
	"aifm-comply-go/pkg/log"
)

const defaultTopK = 5

// snippetChars 是搜索结果中返回的文本片段长度。
const snippetChars = 300

// SearchService 提供向量检索和关键词检索两条通道。
type SearchService struct {
	docRepo         repository.DocumentRepository
	embeddingClient embedding.Client
}

// NewSearchService 创建搜索服务实例。
func NewSearchService(docRepo repository.DocumentRepository, embeddingClient embedding.Client) *SearchService {
	return &SearchService{docRepo: docRepo, embeddingClient: embeddingClient}
}

// RankedDocument 是向量检索命中的文档及其相似度得分。
type RankedDocument struct {
	Doc   *model.Document
	Score float64
}

// VectorSearchDocuments 对候选集做余弦相似度的全量线性扫描。
// 查询只向量化一次；结果按相似度降序、同分按文档 id 升序，保证同一语料上
// 的同一查询返回确定的排序。候选集为空或全部无向量时返回空结果，不报错。
func (s *SearchService) VectorSearchDocuments(ctx context.Context, query string, topK int, filters model.SearchFilters) ([]RankedDocument, error) {
	if topK <= 0 {
		topK = defaultTopK
	}

	queryVector, err := s.embeddingClient.CreateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("查询向量化失败: %w", err)
	}

	docs, err := s.docRepo.FindIndexed(filters)
	if err != nil {
		return nil, fmt.Errorf("查询候选文档失败: %w", err)
	}

	ranked := make([]RankedDocument, 0, len(docs))
	for i := range docs {
		doc := &docs[i]
		vector, err := doc.EmbeddingVector()
		if err != nil || len(vector) == 0 {
			log.Warnf("[SearchService] 文档向量无效, DocumentID: %s", doc.ID)
			continue
		}
		ranked = append(ranked, RankedDocument{
			Doc:   doc,
			Score: embedding.Cosine(queryVector, vector),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Doc.ID < ranked[j].Doc.ID
	})

	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked, nil
}

// VectorSearch 返回带文本片段的向量检索结果。
func (s *SearchService) VectorSearch(ctx context.Context, query string, topK int, filters model.SearchFilters) ([]model.SearchResult, error) {
	ranked, err := s.VectorSearchDocuments(ctx, query, topK, filters)
	if err != nil {
		return nil, err
	}
	results := make([]model.SearchResult, 0, len(ranked))
	for _, r := range ranked {
		results = append(results, model.SearchResult{
			DocumentID:   r.Doc.ID,
			FileName:     r.Doc.FileName,
			Title:        r.Doc.Title,
			DocumentType: r.Doc.DocumentType,
			Category:     r.Doc.Category,
			Text:         snippet(r.Doc.ExtractedText, snippetChars),
			Score:        r.Score,
		})
	}
	return results, nil
}

// KeywordSearch 走 Elasticsearch 的 BM25 全文检索通道。
func (s *SearchService) KeywordSearch(ctx context.Context, query string, topK int, filters model.SearchFilters) ([]model.SearchResult, error) {
	if topK <= 0 {
		topK = defaultTopK
	}

	hits, err := es.KeywordSearch(ctx, config.Conf.Elasticsearch.IndexName, query, topK, filters)
	if err != nil {
		return nil, fmt.Errorf("全文检索失败: %w", err)
	}

	results := make([]model.SearchResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, model.SearchResult{
			DocumentID:   hit.Source.DocumentID,
			FileName:     hit.Source.FileName,
			Title:        hit.Source.Title,
			DocumentType: hit.Source.DocumentType,
			Category:     hit.Source.Category,
			Text:         snippet(hit.Source.TextContent, snippetChars),
			Score:        hit.Score,
		})
	}
	return results, nil
}

// snippet 按 rune 截取文本前缀，避免切断多字节字符。
func snippet(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars]) + "..."
}
