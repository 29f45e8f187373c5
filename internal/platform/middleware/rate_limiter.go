package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// PerEndpointRateLimiter 按 (IP, 路徑) 限流.
// 底層用 token bucket（golang.org/x/time/rate），
// 每分鐘配額換算為補充速率，burst 即配額本身.
type PerEndpointRateLimiter struct {
	mu             sync.Mutex
	limiters       map[string]*visitorLimiter
	defaultPerMin  int
	perPathPerMin  map[string]int
	cleanupEvery   time.Duration
	visitorMaxIdle time.Duration
}

type visitorLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewPerEndpointRateLimiter 創建限流器.
func NewPerEndpointRateLimiter(defaultPerMin int) *PerEndpointRateLimiter {
	rl := &PerEndpointRateLimiter{
		limiters:       make(map[string]*visitorLimiter),
		defaultPerMin:  defaultPerMin,
		perPathPerMin:  make(map[string]int),
		cleanupEvery:   10 * time.Minute,
		visitorMaxIdle: 10 * time.Minute,
	}
	go rl.cleanupLoop()
	return rl
}

// SetLimit 為特定路徑設置獨立配額.
func (rl *PerEndpointRateLimiter) SetLimit(path string, perMin int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.perPathPerMin[path] = perMin
}

// Middleware 返回 Gin 中間件.
func (rl *PerEndpointRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP(), c.FullPath()) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "請求過於頻繁，請稍後再試",
				"success": false,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// allow 檢查是否放行.
func (rl *PerEndpointRateLimiter) allow(ip, path string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	perMin := rl.defaultPerMin
	if v, ok := rl.perPathPerMin[path]; ok {
		perMin = v
	}
	if perMin <= 0 {
		return true
	}

	key := ip + "|" + path
	v, ok := rl.limiters[key]
	if !ok {
		v = &visitorLimiter{
			limiter: rate.NewLimiter(rate.Limit(float64(perMin)/60.0), perMin),
		}
		rl.limiters[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter.Allow()
}

// cleanupLoop 定期清理閒置訪問者，避免 map 無限增長.
func (rl *PerEndpointRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupEvery)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		cutoff := time.Now().Add(-rl.visitorMaxIdle)
		for key, v := range rl.limiters {
			if v.lastSeen.Before(cutoff) {
				delete(rl.limiters, key)
			}
		}
		rl.mu.Unlock()
	}
}
