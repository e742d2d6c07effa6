package handler

import (
	"net/http"

	"aifm-comply-go/internal/model"
	"aifm-comply-go/internal/service"
	"aifm-comply-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ComplianceHandler 负责处理合规检查与差距分析相关的 API 请求。
type ComplianceHandler struct {
	complianceService *service.ComplianceService
	gapService        *service.GapService
}

// NewComplianceHandler 创建一个新的 ComplianceHandler 实例。
func NewComplianceHandler(complianceService *service.ComplianceService, gapService *service.GapService) *ComplianceHandler {
	return &ComplianceHandler{complianceService: complianceService, gapService: gapService}
}

// CheckPolicy 对文档评估单个策略。
func (h *ComplianceHandler) CheckPolicy(c *gin.Context) {
	documentID := c.Param("id")
	policyID := c.Param("policyId")
	log.Infof("[ComplianceHandler] 收到合规检查请求, document: %s, policy: %s", documentID, policyID)

	evaluation, err := h.complianceService.EvaluatePolicy(c.Request.Context(), documentID, policyID)
	if err != nil {
		log.Errorf("[ComplianceHandler] 合规检查失败, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "合规检查失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": evaluation, "message": "success"})
}

// CheckAll 对文档评估全部激活策略。
func (h *ComplianceHandler) CheckAll(c *gin.Context) {
	documentID := c.Param("id")
	evaluations, err := h.complianceService.EvaluateAllPolicies(c.Request.Context(), documentID)
	if err != nil {
		log.Errorf("[ComplianceHandler] 合规检查失败, document: %s, error: %v", documentID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "合规检查失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": evaluations, "message": "success"})
}

// Status 返回文档当前合规状态（每个策略最近一次检查的聚合视图）。
func (h *ComplianceHandler) Status(c *gin.Context) {
	status, err := h.complianceService.CurrentStatus(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": status, "message": "success"})
}

// AnalyzeGaps 执行差距分析。scope 由查询参数决定：
// documentId 优先，其次 clientId，都缺省时分析全部语料。
func (h *ComplianceHandler) AnalyzeGaps(c *gin.Context) {
	documentID := c.Query("documentId")
	clientID := c.Query("clientId")

	var (
		result *model.GapAnalysisResult
		err    error
	)
	switch {
	case documentID != "":
		result, err = h.gapService.AnalyzeDocument(documentID)
	case clientID != "":
		result, err = h.gapService.AnalyzeClient(clientID)
	default:
		result, err = h.gapService.AnalyzeCorpus()
	}
	if err != nil {
		log.Errorf("[ComplianceHandler] 差距分析失败, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "差距分析失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": result, "message": "success"})
}
