package handler

import (
	"errors"
	"net/http"

	"aifm-comply-go/internal/model"
	"aifm-comply-go/internal/service"
	"aifm-comply-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// RAGHandler 负责处理文档问答请求。
type RAGHandler struct {
	ragService *service.RAGService
}

// NewRAGHandler 创建一个新的 RAGHandler 实例。
func NewRAGHandler(ragService *service.RAGService) *RAGHandler {
	return &RAGHandler{ragService: ragService}
}

// AskRequest 定义了问答 API 的请求体结构。
type AskRequest struct {
	Question    string   `json:"question" binding:"required"`
	ClientID    string   `json:"clientId"`
	Category    string   `json:"category"`
	DocumentIDs []string `json:"documentIds"`
	MaxSources  int      `json:"maxSources"`
}

// Ask 处理一次问答请求，返回完整回答和引用来源。
func (h *RAGHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}
	log.Infof("[RAGHandler] 收到问答请求, question: %s", req.Question)

	answer, err := h.ragService.Answer(c.Request.Context(), req.Question, model.SearchFilters{
		ClientID:    req.ClientID,
		Category:    req.Category,
		DocumentIDs: req.DocumentIDs,
	}, req.MaxSources)
	if err != nil {
		var ragErr *service.RAGError
		if errors.As(err, &ragErr) {
			log.Errorf("[RAGHandler] 生成回答失败, error: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "生成回答失败"})
			return
		}
		log.Errorf("[RAGHandler] 问答失败, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "问答失败"})
		return
	}

	log.Infof("[RAGHandler] 问答成功, 引用 %d 个来源", len(answer.Sources))
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": answer, "message": "success"})
}
