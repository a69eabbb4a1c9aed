package controllers

import (
	"net/http"

	"github.com/beego/beego/v2/server/web"

	"github.com/aihub/policyqa-go/internal/errors"
)

// BaseController 提供统一的JSON响应辅助方法
type BaseController struct {
	web.Controller
}

// JSON 以指定HTTP状态码写JSON响应
func (c *BaseController) JSON(status int, payload interface{}) {
	c.Ctx.Output.SetStatus(status)
	c.Data["json"] = payload
	c.ServeJSON()
}

// JSONSuccess 写标准成功信封
func (c *BaseController) JSONSuccess(data interface{}) {
	c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// JSONError 写错误信封
func (c *BaseController) JSONError(status int, message string) {
	c.JSON(status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// JSONAppError 根据AppError映射HTTP状态码并携带错误码
func (c *BaseController) JSONAppError(err error) {
	appErr := errors.GetAppError(err)
	status := appErr.HTTPCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.JSON(status, map[string]interface{}{
		"success": false,
		"error":   appErr.Message,
		"code":    appErr.Code,
	})
}
