package model

// SearchFilters 是向量/关键词搜索的属性过滤条件。
// DocumentIDs 非空时检索范围被限制为显式的文档 id 白名单。
type SearchFilters struct {
	ClientID     string   `json:"clientId,omitempty"`
	Category     string   `json:"category,omitempty"`
	DocumentType string   `json:"documentType,omitempty"`
	DocumentIDs  []string `json:"documentIds,omitempty"`
}

// SearchResult 定义了返回给前端的搜索结果结构。
type SearchResult struct {
	DocumentID   string  `json:"documentId"`
	FileName     string  `json:"fileName"`
	Title        string  `json:"title"`
	DocumentType string  `json:"documentType"`
	Category     string  `json:"category"`
	Text         string  `json:"text"`
	Score        float64 `json:"score"`
}

// RAGSource 是一次问答引用的来源文档摘要。
type RAGSource struct {
	DocumentID string  `json:"documentId"`
	FileName   string  `json:"fileName"`
	Excerpt    string  `json:"excerpt"`
	Score      float64 `json:"score"`
}

// RAGAnswer 是 RAG 问答的完整响应。
type RAGAnswer struct {
	Answer    string      `json:"answer"`
	Sources   []RAGSource `json:"sources"`
	Citations []string    `json:"citations"`
}

// EsDocument 定义了存储在 Elasticsearch 中的文档结构（全文检索用）。
type EsDocument struct {
	DocumentID   string   `json:"document_id"`
	ClientID     string   `json:"client_id"`
	FileName     string   `json:"file_name"`
	Title        string   `json:"title"`
	TextContent  string   `json:"text_content"`
	DocumentType string   `json:"document_type"`
	Category     string   `json:"category"`
	Tags         []string `json:"tags"`
	Language     string   `json:"language"`
}

// DocumentStats 按状态和类型统计文档数量。
type DocumentStats struct {
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"byStatus"`
	ByType   map[string]int64 `json:"byType"`
}
