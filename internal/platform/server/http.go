package server

import (
	"net/http"
	"time"

	"chat-core/internal/action"
	"chat-core/internal/constants"
	"chat-core/internal/httputil"
	"chat-core/internal/platform/config"
	"chat-core/internal/platform/health"
	"chat-core/internal/platform/middleware"
	"chat-core/internal/storage/database"

	"github.com/gin-gonic/gin"
)

// securityHeadersMiddleware 添加安全標頭
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 防止點擊劫持
		c.Header("X-Frame-Options", "DENY")

		// 防止 MIME 類型嗅探
		c.Header("X-Content-Type-Options", "nosniff")

		// 啟用 XSS 保護
		c.Header("X-XSS-Protection", "1; mode=block")

		// 內容安全策略
		c.Header("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none';")

		// 推薦政策
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		c.Next()
	}
}

// Router 設定路由.
// 所有消息操作走統一的分發入口 POST /api/chat/message/:action，
// 動作名與請求體一起交給 registry，HTTP 層不認識具體動作.
func Router(registry *action.Registry, repos *database.Repositories) *gin.Engine {
	r := gin.Default()

	// 添加安全的 CORS 中間件
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// 只允許特定的來源（生產環境應該從配置文件讀取）
		allowedOrigins := map[string]bool{
			"http://localhost:3000": true, // 開發環境前端
			"http://localhost:8080": true, // 本地測試
			"http://127.0.0.1:8080": true, // 本地測試 (127.0.0.1)
		}

		if allowedOrigins[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400") // 預檢請求緩存 24 小時

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// 添加請求 ID 中間件（最優先）
	r.Use(middleware.RequestIDMiddleware())

	// 添加安全標頭中間件
	r.Use(securityHeadersMiddleware())

	// 添加請求元數據中間件（提取 IP、User-Agent）
	r.Use(middleware.RequestMetadataMiddleware())

	// 從配置讀取限制參數
	cfg := config.Get()

	// 添加請求大小限制（防止大請求體攻擊）
	maxBodySize := int64(constants.DefaultMaxRequestBodySize)
	if cfg != nil && cfg.Limits.Request.MaxBodySize > 0 {
		maxBodySize = cfg.Limits.Request.MaxBodySize
	}
	r.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
		c.Next()
	})

	// 創建 Rate Limiter
	defaultLimit := constants.DefaultRateLimitPerMinute
	if cfg != nil && cfg.Limits.RateLimiting.DefaultPerMinute > 0 {
		defaultLimit = cfg.Limits.RateLimiting.DefaultPerMinute
	}
	rateLimiter := middleware.NewPerEndpointRateLimiter(defaultLimit)

	// 消息分發入口壓較低的上限，防止刷屏
	if cfg != nil && cfg.Limits.RateLimiting.Enabled {
		messagesPerMin := constants.DefaultMessageRateLimit
		if cfg.Limits.RateLimiting.MessagesPerMin > 0 {
			messagesPerMin = cfg.Limits.RateLimiting.MessagesPerMin
		}
		rateLimiter.SetLimit("/api/chat/message/:action", messagesPerMin)
	}

	// 應用 Rate Limiting 中間件
	r.Use(rateLimiter.Middleware())

	// 創建處理器
	healthHandler := health.NewHealthHandler()

	// health check
	r.GET("/health", healthHandler.HealthCheck)

	// 消息動作分發
	chat := r.Group("/api/chat", middleware.ActorMiddleware())
	chat.POST("/message/:action", dispatchAction(registry))
	chat.GET("/message/fetchConverseMessage", fetchConverseMessages(registry))

	// 管理端
	adminHash := ""
	if cfg != nil {
		adminHash = cfg.Auth.AdminTokenBcrypt
	}
	admin := r.Group("/api/admin", middleware.AdminAuthMiddleware(adminHash))
	admin.GET("/message/count/summary", messageCountSummary(repos))

	return r
}

// dispatchAction 把 URL 上的動作名和 JSON 請求體交給分發器.
func dispatchAction(registry *action.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload := action.Payload{}
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&payload); err != nil {
				httputil.BadRequest(c, httputil.InvalidParameter)
				return
			}
		}

		name := action.Name("chat.message." + c.Param("action"))
		ctx := action.WithActor(c.Request.Context(), middleware.GetUserID(c))

		result, err := registry.Invoke(ctx, name, payload)
		if err != nil {
			httputil.WriteError(c, err)
			return
		}

		c.JSON(http.StatusOK, httputil.NewSuccessResponse(httputil.ActionCompleted, result))
	}
}

// fetchConverseMessages 只讀便捷端點，等價於分發 fetchConverseMessage.
func fetchConverseMessages(registry *action.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload := action.Payload{
			"converseId": c.Query("converseId"),
		}
		if startID := c.Query("startId"); startID != "" {
			payload["startId"] = startID
		}

		ctx := action.WithActor(c.Request.Context(), middleware.GetUserID(c))
		result, err := registry.Invoke(ctx, action.MessageFetchConverse, payload)
		if err != nil {
			httputil.WriteError(c, err)
			return
		}

		c.JSON(http.StatusOK, httputil.NewSuccessResponse(httputil.DataRetrieved, result))
	}
}

// messageCountSummary 返回最近 14 天每天的消息量，缺數據的天補零.
func messageCountSummary(repos *database.Repositories) gin.HandlerFunc {
	const summaryDays = 14

	return func(c *gin.Context) {
		now := time.Now().UTC()
		until := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
		since := until.AddDate(0, 0, -summaryDays)

		counts, err := repos.Message.CountByDay(c.Request.Context(), since, until)
		if err != nil {
			httputil.InternalServerError(c, err)
			return
		}

		byDate := make(map[string]int, len(counts))
		for _, dc := range counts {
			byDate[dc.Date] = dc.Count
		}

		summary := make([]gin.H, 0, summaryDays)
		for day := since; day.Before(until); day = day.AddDate(0, 0, 1) {
			date := day.Format("2006-01-02")
			summary = append(summary, gin.H{
				"date":  date,
				"count": byDate[date],
			})
		}

		c.JSON(http.StatusOK, httputil.NewSuccessResponse(httputil.DataRetrieved, summary))
	}
}
