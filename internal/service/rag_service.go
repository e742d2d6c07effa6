package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"aifm-comply-go/internal/model"
	"aifm-comply-go/pkg/llm"
	"aifm-comply-go/pkg/log"
)

const (
	defaultMaxSources = 5
	// 白名单过滤时先取一个宽候选集，再在内存里裁剪。
	allowListCandidates = 100
	contextExcerptChars = 500
	sourceExcerptChars  = 300
)

// noAnswerFallback 是检索不到任何相关文档时的固定回答，不触发大模型调用。
const noAnswerFallback = "I could not find any relevant documents to answer your question. Please try rephrasing or upload relevant documents first."

// citationRe 从回答文本里提取 "Document N" / "Dokument N" 形式的引用标记。
var citationRe = regexp.MustCompile(`(?i)(?:Document|Dokument)\s+(\d+)`)

// RAGError 表示检索成功但生成阶段失败。
type RAGError struct {
	Err error
}

func (e *RAGError) Error() string {
	return fmt.Sprintf("生成回答失败: %v", e.Err)
}

func (e *RAGError) Unwrap() error { return e.Err }

// RAGService 实现检索增强问答：向量检索相关文档，拼装受限上下文，
// 由大模型生成带引用的回答。
type RAGService struct {
	searchService *SearchService
	llmClient     llm.Client
}

// NewRAGService 创建 RAG 服务实例。
func NewRAGService(searchService *SearchService, llmClient llm.Client) *RAGService {
	return &RAGService{searchService: searchService, llmClient: llmClient}
}

// Answer 回答一个问题。检索不到文档时返回固定兜底回答；
// 大模型调用失败时返回 *RAGError。引用列表只包含回答文本中
// 实际出现的 "Document N" 标记对应的文件名，去重且保序。
func (s *RAGService) Answer(ctx context.Context, question string, filters model.SearchFilters, maxSources int) (*model.RAGAnswer, error) {
	if maxSources <= 0 {
		maxSources = defaultMaxSources
	}

	ranked, err := s.retrieve(ctx, question, filters, maxSources)
	if err != nil {
		return nil, err
	}

	if len(ranked) == 0 {
		log.Warnf("[RAGService] 未检索到相关文档, question: %s", question)
		return &model.RAGAnswer{
			Answer:    noAnswerFallback,
			Sources:   []model.RAGSource{},
			Citations: []string{},
		}, nil
	}

	answer, err := s.generate(ctx, question, ranked)
	if err != nil {
		return nil, &RAGError{Err: err}
	}

	sources := make([]model.RAGSource, 0, len(ranked))
	for _, r := range ranked {
		sources = append(sources, model.RAGSource{
			DocumentID: r.Doc.ID,
			FileName:   r.Doc.FileName,
			Excerpt:    snippet(r.Doc.ExtractedText, sourceExcerptChars),
			Score:      r.Score,
		})
	}

	return &model.RAGAnswer{
		Answer:    answer,
		Sources:   sources,
		Citations: extractCitations(answer, ranked),
	}, nil
}

// retrieve 取回答案所依据的候选文档。指定了文档白名单时会先取宽候选集，
// 白名单过滤已在存储层完成，这里只裁剪数量。
func (s *RAGService) retrieve(ctx context.Context, question string, filters model.SearchFilters, maxSources int) ([]RankedDocument, error) {
	topK := maxSources
	if len(filters.DocumentIDs) > 0 && allowListCandidates > topK {
		topK = allowListCandidates
	}
	ranked, err := s.searchService.VectorSearchDocuments(ctx, question, topK, filters)
	if err != nil {
		return nil, err
	}
	if len(ranked) > maxSources {
		ranked = ranked[:maxSources]
	}
	return ranked, nil
}

// generate 拼装上下文并调用大模型生成回答。
func (s *RAGService) generate(ctx context.Context, question string, ranked []RankedDocument) (string, error) {
	blocks := make([]string, 0, len(ranked))
	for i, r := range ranked {
		blocks = append(blocks, fmt.Sprintf("[Document %d: %s]\n%s",
			i+1, r.Doc.FileName, snippet(r.Doc.ExtractedText, contextExcerptChars)))
	}
	contextText := strings.Join(blocks, "\n---\n\n")

	systemPrompt := "You are a compliance assistant for Swedish AIFM (alternative investment fund manager) companies. " +
		"Answer questions based ONLY on the provided document context. " +
		"When you use information from a document, cite it as \"Document N\". " +
		"If the context does not contain the answer, say so clearly. " +
		"Answer in Swedish if the question is in Swedish, otherwise answer in English."

	userPrompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextText, question)

	return s.llmClient.Complete(ctx, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}, nil)
}

// extractCitations 把回答中的 "Document N" 标记映射为文件名，越界序号忽略。
func extractCitations(answer string, ranked []RankedDocument) []string {
	matches := citationRe.FindAllStringSubmatch(answer, -1)
	seen := make(map[string]bool, len(matches))
	citations := make([]string, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(ranked) {
			continue
		}
		fileName := ranked[n-1].Doc.FileName
		if seen[fileName] {
			continue
		}
		seen[fileName] = true
		citations = append(citations, fileName)
	}
	return citations
}
