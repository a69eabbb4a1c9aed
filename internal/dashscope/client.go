package dashscope

import "sync"

var (
	globalService *Service
	globalOnce    sync.Once
)

// InitGlobalService 初始化全局DashScope服务
func InitGlobalService(apiKey string) {
	globalOnce.Do(func() {
		globalService = NewService(apiKey)
	})
}

// GetGlobalService 获取全局DashScope服务实例
func GetGlobalService() *Service {
	return globalService
}

// IsGlobalServiceReady 检查全局服务是否可用
func IsGlobalServiceReady() bool {
	return globalService != nil && globalService.Ready()
}
