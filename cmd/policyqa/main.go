package main

import (
	"log"
	"os"
	"strconv"

	"github.com/beego/beego/v2/server/web"
	"go.uber.org/zap"

	"github.com/aihub/policyqa-go/app/bootstrap"
	"github.com/aihub/policyqa-go/app/router"
	"github.com/aihub/policyqa-go/internal/logger"
)

func main() {
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8002"
	}
	if p, err := strconv.Atoi(port); err == nil {
		web.BConfig.Listen.HTTPPort = p
	} else {
		web.BConfig.Listen.HTTPPort = 8002
	}

	app, err := bootstrap.Init()
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer app.Shutdown()
	bootstrap.SetGlobalApp(app)

	router.Init()

	web.BConfig.AppName = "PolicyQA Service"
	web.BConfig.CopyRequestBody = true

	logger.Info("🚀 Starting PolicyQA Service", zap.Int("port", web.BConfig.Listen.HTTPPort))
	web.Run()
}
