package bootstrap

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/aihub/policyqa-go/internal/config"
	"github.com/aihub/policyqa-go/internal/dashscope"
	"github.com/aihub/policyqa-go/internal/di"
	"github.com/aihub/policyqa-go/internal/logger"
	"github.com/aihub/policyqa-go/internal/services"
)

// App 封装需要在关闭时清理的生命周期资源
type App struct {
	cleanupTasks []func() error
	pipeline     *services.PipelineService
}

// 全局app实例，供控制器访问管道服务
var globalApp *App

// GetApp 获取全局app实例
func GetApp() *App {
	return globalApp
}

// SetGlobalApp 设置全局app实例
func SetGlobalApp(app *App) {
	globalApp = app
}

// GetPipeline 获取管道服务
func (a *App) GetPipeline() *services.PipelineService {
	return a.pipeline
}

// Init 初始化配置、日志、依赖注入容器等共享基础设施
func Init() (*App, error) {
	// 加载.env文件（缺失时非致命）
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// 初始化结构化日志
	if err := logger.InitLogger(); err != nil {
		return nil, err
	}

	// 加载配置
	if err := config.LoadConfig(); err != nil {
		return nil, err
	}

	app := &App{}

	// 初始化全局DashScope服务（可选）
	if apiKey := os.Getenv("DASHSCOPE_API_KEY"); apiKey != "" {
		dashscope.InitGlobalService(apiKey)
		logger.Info("Global DashScope service initialized")
	}

	// 构建依赖注入容器并取出管道服务
	container := di.InitContainer()
	if err := di.RegisterProviders(container); err != nil {
		return nil, err
	}
	if err := di.Invoke(func(pipeline *services.PipelineService) {
		app.pipeline = pipeline
	}); err != nil {
		return nil, err
	}

	logger.Info("application bootstrap completed",
		zap.String("env", config.AppConfig.Server.Env),
		zap.String("vector_store", config.AppConfig.VectorStore.Provider),
		zap.String("embedding_provider", config.AppConfig.Embedding.Provider))

	return app, nil
}

// AddCleanup 注册关闭时的清理任务
func (a *App) AddCleanup(fn func() error) {
	a.cleanupTasks = append(a.cleanupTasks, fn)
}

// Shutdown 按注册的逆序执行清理并刷新日志
func (a *App) Shutdown() {
	for i := len(a.cleanupTasks) - 1; i >= 0; i-- {
		if err := a.cleanupTasks[i](); err != nil {
			log.Printf("Cleanup error: %v\n", err)
		}
	}
	logger.Sync()
}
