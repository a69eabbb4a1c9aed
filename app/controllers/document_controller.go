package controllers

import (
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/aihub/policyqa-go/app/bootstrap"
	"github.com/aihub/policyqa-go/internal/logger"
)

// DocumentController 文档摄取与管理接口
type DocumentController struct {
	BaseController
}

// maxUploadSize 上传文件大小上限（32MB）
const maxUploadSize = 32 << 20

// Upload 上传并摄取文档
// POST /api/v1/documents
func (c *DocumentController) Upload() {
	app := bootstrap.GetApp()
	if app == nil {
		c.JSONError(http.StatusServiceUnavailable, "service not initialized")
		return
	}

	file, header, err := c.GetFile("file")
	if err != nil {
		c.JSONError(http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	if header.Size > maxUploadSize {
		c.JSONError(http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	content, err := io.ReadAll(io.LimitReader(file, maxUploadSize))
	if err != nil {
		c.JSONError(http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	// async=true时后台摄取，返回任务ID供轮询
	if c.GetString("async") == "true" {
		task, err := app.GetPipeline().IngestDocumentAsync(c.Ctx.Request.Context(), header.Filename, content)
		if err != nil {
			c.JSONAppError(err)
			return
		}
		c.JSON(http.StatusAccepted, map[string]interface{}{
			"success": true,
			"data":    task,
		})
		return
	}

	result, err := app.GetPipeline().IngestDocument(c.Ctx.Request.Context(), header.Filename, content)
	if err != nil {
		logger.Error("文档摄取请求失败", zap.String("filename", header.Filename), zap.Error(err))
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(result)
}

// List 列出索引中的文档
// GET /api/v1/documents
func (c *DocumentController) List() {
	app := bootstrap.GetApp()
	if app == nil {
		c.JSONError(http.StatusServiceUnavailable, "service not initialized")
		return
	}

	documents, err := app.GetPipeline().ListDocuments(c.Ctx.Request.Context())
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"documents": documents,
		"count":     len(documents),
	})
}

// Delete 删除文档及其全部向量，幂等
// DELETE /api/v1/documents/:id
func (c *DocumentController) Delete() {
	app := bootstrap.GetApp()
	if app == nil {
		c.JSONError(http.StatusServiceUnavailable, "service not initialized")
		return
	}

	documentID := c.Ctx.Input.Param(":id")
	if err := app.GetPipeline().DeleteDocument(c.Ctx.Request.Context(), documentID); err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"document_id": documentID,
		"deleted":     true,
	})
}

// GetTask 查询摄取任务状态
// GET /api/v1/tasks/:id
func (c *DocumentController) GetTask() {
	app := bootstrap.GetApp()
	if app == nil {
		c.JSONError(http.StatusServiceUnavailable, "service not initialized")
		return
	}

	taskID := c.Ctx.Input.Param(":id")
	task, err := app.GetPipeline().GetTask(c.Ctx.Request.Context(), taskID)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(task)
}

// Stats 索引统计
// GET /api/v1/stats
func (c *DocumentController) Stats() {
	app := bootstrap.GetApp()
	if app == nil {
		c.JSONError(http.StatusServiceUnavailable, "service not initialized")
		return
	}

	stats, err := app.GetPipeline().Stats(c.Ctx.Request.Context())
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(stats)
}
