package controllers

import (
	"net/http"

	"github.com/aihub/policyqa-go/app/bootstrap"
)

// HealthController 健康检查接口
type HealthController struct {
	BaseController
}

// Health 服务健康状态
// GET /health
func (c *HealthController) Health() {
	app := bootstrap.GetApp()
	if app == nil {
		c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"status": "starting",
		})
		return
	}

	status := "healthy"
	if !app.GetPipeline().Ready() {
		status = "degraded"
	}
	c.JSON(http.StatusOK, map[string]interface{}{
		"status":  status,
		"service": "policyqa",
	})
}

// RootController 根路径
type RootController struct {
	BaseController
}

// Index 服务信息
// GET /
func (c *RootController) Index() {
	c.JSONSuccess(map[string]interface{}{
		"service": "policyqa",
		"message": "Policy document question answering service",
	})
}
