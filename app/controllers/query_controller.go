package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aihub/policyqa-go/app/bootstrap"
	"github.com/aihub/policyqa-go/internal/logger"
)

var validate = validator.New()

// QueryController 问答与反馈接口
type QueryController struct {
	BaseController
}

// QueryRequest 问答请求
type QueryRequest struct {
	Query string `json:"query" validate:"required,min=1,max=2000"`
}

// FeedbackRequest 反馈请求
type FeedbackRequest struct {
	Query   string `json:"query" validate:"required"`
	Answer  string `json:"answer"`
	Helpful bool   `json:"helpful"`
	Comment string `json:"comment" validate:"max=2000"`
}

// Query 执行一次策略问答
// POST /api/v1/query
func (c *QueryController) Query() {
	app := bootstrap.GetApp()
	if app == nil {
		c.JSONError(http.StatusServiceUnavailable, "service not initialized")
		return
	}

	var req QueryRequest
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.JSONError(http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		c.JSONError(http.StatusBadRequest, "query is required (1-2000 characters)")
		return
	}

	result, err := app.GetPipeline().Query(c.Ctx.Request.Context(), req.Query)
	if err != nil {
		logger.Error("问答请求失败", zap.String("query", req.Query), zap.Error(err))
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(result)
}

// Feedback 提交用户反馈
// POST /api/v1/feedback
func (c *QueryController) Feedback() {
	app := bootstrap.GetApp()
	if app == nil {
		c.JSONError(http.StatusServiceUnavailable, "service not initialized")
		return
	}

	var req FeedbackRequest
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.JSONError(http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		c.JSONError(http.StatusBadRequest, "query is required")
		return
	}

	if err := app.GetPipeline().SubmitFeedback(req.Query, req.Answer, req.Helpful, req.Comment); err != nil {
		logger.Warn("记录反馈失败", zap.Error(err))
		c.JSONError(http.StatusInternalServerError, "failed to record feedback")
		return
	}
	c.JSONSuccess(map[string]interface{}{"recorded": true})
}
