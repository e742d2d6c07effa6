package handler

import (
	"net/http"

	"aifm-comply-go/internal/model"
	"aifm-comply-go/internal/service"
	"aifm-comply-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// PolicyHandler 负责处理所有与策略相关的 API 请求。
// 规则校验发生在请求体反序列化时：未知 checkType、非法正则、
// 未知字段路径都在这里被 400 拒绝，不会存入非法策略。
type PolicyHandler struct {
	policyService *service.PolicyService
}

// NewPolicyHandler 创建一个新的 PolicyHandler 实例。
func NewPolicyHandler(policyService *service.PolicyService) *PolicyHandler {
	return &PolicyHandler{policyService: policyService}
}

// Create 处理策略创建请求。
func (h *PolicyHandler) Create(c *gin.Context) {
	var policy model.Policy
	if err := c.ShouldBindJSON(&policy); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.policyService.Create(&policy); err != nil {
		log.Errorf("[PolicyHandler] 创建策略失败, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "创建策略失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": policy, "message": "success"})
}

// Update 处理策略更新请求。
func (h *PolicyHandler) Update(c *gin.Context) {
	var policy model.Policy
	if err := c.ShouldBindJSON(&policy); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	policy.ID = c.Param("id")
	if err := h.policyService.Update(&policy); err != nil {
		log.Errorf("[PolicyHandler] 更新策略失败, id: %s, error: %v", policy.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "更新策略失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": policy, "message": "success"})
}

// Get 返回单个策略。
func (h *PolicyHandler) Get(c *gin.Context) {
	policy, err := h.policyService.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "策略不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": policy, "message": "success"})
}

// List 返回全部策略。
func (h *PolicyHandler) List(c *gin.Context) {
	policies, err := h.policyService.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": policies, "message": "success"})
}

// SetActive 切换策略的激活状态。
func (h *PolicyHandler) SetActive(c *gin.Context) {
	var req struct {
		IsActive *bool `json:"isActive" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}
	if err := h.policyService.SetActive(c.Param("id"), *req.IsActive); err != nil {
		log.Errorf("[PolicyHandler] 切换策略状态失败, id: %s, error: %v", c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "更新策略失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "success"})
}

// Delete 删除策略。
func (h *PolicyHandler) Delete(c *gin.Context) {
	if err := h.policyService.Delete(c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除策略失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "success"})
}
