package middleware

import (
	"strings"

	"chat-core/internal/constants"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const userIDKey = "user_id"

// ActorMiddleware 從 Bearer token 提取操作者身份.
// token 驗證本身委託給外部的 user 服務；這裡只負責把身份
// 放進請求 context，未帶身份的請求由下游以 Forbidden 拒絕.
// 目前 user 服務尚未接入，token 直接承載用戶 ID.
func ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(401, gin.H{"error": "無效的認證格式"})
			c.Abort()
			return
		}

		userID := strings.TrimSpace(parts[1])
		if userID == "" || len(userID) > constants.MaxUserIDLength || strings.ContainsAny(userID, "\x00${}[]") {
			c.JSON(401, gin.H{"error": "無效的用戶身份"})
			c.Abort()
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// GetUserID 從 gin context 取出操作者身份.
func GetUserID(c *gin.Context) string {
	if userID, exists := c.Get(userIDKey); exists {
		if id, ok := userID.(string); ok {
			return id
		}
	}
	return ""
}

// AdminAuthMiddleware 管理端認證.
// 配置中只保存管理 token 的 bcrypt 雜湊，請求帶明文 token，
// 比對通過才放行；未配置雜湊時管理端一律拒絕.
func AdminAuthMiddleware(adminTokenBcrypt string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminTokenBcrypt == "" {
			c.JSON(401, gin.H{"error": "管理端未配置"})
			c.Abort()
			return
		}

		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(401, gin.H{"error": "未提供認證 token"})
			c.Abort()
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(adminTokenBcrypt), []byte(parts[1])); err != nil {
			c.JSON(401, gin.H{"error": "認證失敗"})
			c.Abort()
			return
		}

		c.Next()
	}
}
