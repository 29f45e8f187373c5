package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"chat-core/internal/action"
	chatmsg "chat-core/internal/chat/message"

	"chat-core/internal/chat/authz"
	"chat-core/internal/platform/config"
	"chat-core/internal/platform/driver"
	"chat-core/internal/platform/logger"
	"chat-core/internal/platform/server"
	"chat-core/internal/storage/database"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
)

func main() {
	if err := mainNoExit(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// mainNoExit 分離主要邏輯以避免 exitAfterDefer 問題，確保 defer 函數正常執行.
func mainNoExit() error {
	// 載入 .env（不存在時忽略）.
	_ = godotenv.Load()

	// 初始化日誌.
	if err := logger.InitLogger(); err != nil {
		return err
	}
	defer logger.CloseLogger()

	ctx := context.Background()

	// 載入配置.
	if err := config.Load(); err != nil {
		return err
	}
	cfg := config.Get()
	logger.Infof(ctx, "設定載入成功，環境: %s", config.GetEnv())

	// 連接資料庫.
	if err := driver.ConnectMongo(); err != nil {
		return err
	}
	defer func() {
		if err := driver.CloseMongo(); err != nil {
			logger.Errorf(ctx, "關閉 MongoDB 連接失敗: %v", err)
		}
	}()

	// 設置 MongoDB 連接到 database 包
	database.SetMongoDB(driver.GetMongoDatabase())

	// 初始化 Repository.
	clock := clockwork.NewRealClock()
	repos := database.NewRepositories(clock)

	// 組裝消息服務與動作分發器.
	var svcOpts []chatmsg.ServiceOption
	if cfg.Dispatch.PageSize > 0 {
		svcOpts = append(svcOpts, chatmsg.WithPageSize(cfg.Dispatch.PageSize))
	}
	if cfg.Dispatch.NearbyWindow > 0 {
		svcOpts = append(svcOpts, chatmsg.WithNearbyWindow(cfg.Dispatch.NearbyWindow))
	}
	svc := chatmsg.NewService(repos.Message, repos.Receipt, authz.AllowAll{}, clock, svcOpts...)

	var regOpts []action.Option
	if cfg.Dispatch.InvokeTimeoutSeconds > 0 {
		regOpts = append(regOpts, action.WithInvokeTimeout(time.Duration(cfg.Dispatch.InvokeTimeoutSeconds)*time.Second))
	}
	registry := action.NewRegistry(regOpts...)
	svc.Register(registry)

	logger.Info(ctx, "[System] 動作分發器組裝完成",
		logger.WithDetails(map[string]interface{}{"actions": registry.Names()}))

	// 啟動 HTTP 服務器（阻塞到收到關閉信號）.
	return server.Start(registry, repos)
}
