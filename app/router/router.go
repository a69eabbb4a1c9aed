package router

import (
	"github.com/beego/beego/v2/server/web"

	"github.com/aihub/policyqa-go/app/controllers"
)

// Init 注册全部路由，须在配置加载后调用
func Init() {
	web.Router("/", &controllers.RootController{}, "get:Index")
	web.Router("/health", &controllers.HealthController{}, "get:Health")

	documentController := &controllers.DocumentController{}
	web.Router("/api/v1/documents", documentController, "get:List;post:Upload")
	web.Router("/api/v1/documents/:id", documentController, "delete:Delete")
	web.Router("/api/v1/tasks/:id", documentController, "get:GetTask")
	web.Router("/api/v1/stats", documentController, "get:Stats")

	queryController := &controllers.QueryController{}
	web.Router("/api/v1/query", queryController, "post:Query")
	web.Router("/api/v1/feedback", queryController, "post:Feedback")
}
