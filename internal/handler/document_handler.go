// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"io"
	"net/http"

	"aifm-comply-go/internal/service"
	"aifm-comply-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 负责处理所有与文档相关的 API 请求。
type DocumentHandler struct {
	documentService *service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(documentService *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService}
}

// Upload 处理 multipart 文档上传请求。
func (h *DocumentHandler) Upload(c *gin.Context) {
	clientID := c.PostForm("clientId")
	if clientID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 clientId"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少文件"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取文件失败"})
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取文件失败"})
		return
	}

	log.Infof("[DocumentHandler] 收到上传请求, clientId: %s, fileName: %s, size: %d",
		clientID, fileHeader.Filename, len(content))

	doc, err := h.documentService.Upload(c.Request.Context(), service.UploadRequest{
		ClientID:    clientID,
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Content:     content,
		Actor:       c.GetHeader("X-Actor"),
	})
	if err != nil {
		log.Errorf("[DocumentHandler] 上传失败, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "上传失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": doc, "message": "success"})
}

// Get 返回单个文档。
func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.documentService.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "文档不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": doc, "message": "success"})
}

// List 按可选条件列出文档。
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.documentService.List(c.Query("status"), c.Query("documentType"), c.Query("clientId"))
	if err != nil {
		log.Errorf("[DocumentHandler] 查询文档列表失败, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": docs, "message": "success"})
}

// Reindex 重新投递文档的索引任务。
func (h *DocumentHandler) Reindex(c *gin.Context) {
	if err := h.documentService.Reindex(c.Param("id")); err != nil {
		log.Errorf("[DocumentHandler] 重索引失败, id: %s, error: %v", c.Param("id"), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "success"})
}

// Archive 归档文档，移出活跃语料。
func (h *DocumentHandler) Archive(c *gin.Context) {
	if err := h.documentService.Archive(c.Request.Context(), c.Param("id"), c.GetHeader("X-Actor")); err != nil {
		log.Errorf("[DocumentHandler] 归档失败, id: %s, error: %v", c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "归档失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "success"})
}

// Stats 返回语料统计。
func (h *DocumentHandler) Stats(c *gin.Context) {
	stats, err := h.documentService.Stats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": stats, "message": "success"})
}

// History 返回文档的审计事件列表。
func (h *DocumentHandler) History(c *gin.Context) {
	events, err := h.documentService.History(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": events, "message": "success"})
}
