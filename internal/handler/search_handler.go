package handler

import (
	"net/http"
	"strconv"

	"aifm-comply-go/internal/model"
	"aifm-comply-go/internal/service"
	"aifm-comply-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SearchHandler 结构体定义了搜索相关的处理器。
type SearchHandler struct {
	searchService *service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService *service.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

// VectorSearch 是处理语义搜索请求的 Gin 处理函数。
func (h *SearchHandler) VectorSearch(c *gin.Context) {
	query := c.Query("query")
	log.Infof("[SearchHandler] 收到语义搜索请求, query: %s", query)

	if query == "" {
		log.Warnf("[SearchHandler] 搜索请求失败: query 参数为空")
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的查询参数"})
		return
	}
	topK := parseTopK(c, 5)
	filters := parseFilters(c)

	results, err := h.searchService.VectorSearch(c.Request.Context(), query, topK, filters)
	if err != nil {
		log.Errorf("[SearchHandler] 语义搜索服务返回错误, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "搜索失败"})
		return
	}

	log.Infof("[SearchHandler] 语义搜索成功, query: '%s', 返回 %d 条结果", query, len(results))
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": results, "message": "success"})
}

// KeywordSearch 是处理全文关键词搜索请求的 Gin 处理函数。
func (h *SearchHandler) KeywordSearch(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的查询参数"})
		return
	}
	topK := parseTopK(c, 10)
	filters := parseFilters(c)

	results, err := h.searchService.KeywordSearch(c.Request.Context(), query, topK, filters)
	if err != nil {
		log.Errorf("[SearchHandler] 关键词搜索服务返回错误, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "搜索失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": results, "message": "success"})
}

func parseTopK(c *gin.Context, fallback int) int {
	topK, err := strconv.Atoi(c.DefaultQuery("topK", strconv.Itoa(fallback)))
	if err != nil || topK <= 0 {
		return fallback
	}
	return topK
}

func parseFilters(c *gin.Context) model.SearchFilters {
	return model.SearchFilters{
		ClientID:     c.Query("clientId"),
		Category:     c.Query("category"),
		DocumentType: c.Query("documentType"),
	}
}
