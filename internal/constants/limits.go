package constants

// HTTP 請求相關常數
const (
	DefaultMaxRequestBodySize = 1 << 20 // 1MB
	DefaultRequestTimeout     = 30      // 秒
)

// 分頁相關常數
const (
	DefaultPageSize     = 50
	DefaultNearbyWindow = 15
)

// 訊息相關常數
const (
	DefaultMaxMessageLength = 10000
	MaxEmojiLength          = 64
)

// Rate Limiting 默認值
const (
	DefaultRateLimitPerMinute = 100
	DefaultMessageRateLimit   = 30
)

// 用戶 ID 相關常數
const (
	MaxUserIDLength = 100
)

// 分發器相關常數
const (
	DefaultInvokeTimeoutSeconds = 10
)
