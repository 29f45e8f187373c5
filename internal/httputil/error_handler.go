package httputil

import (
	"fmt"
	"net/http"
	"strings"

	"chat-core/internal/chaterr"
	"chat-core/internal/platform/logger"
	"chat-core/internal/platform/middleware"

	"github.com/gin-gonic/gin"
)

// WriteError 把正規化後的失敗類型映射為 HTTP 回應.
// 失敗類型是封閉集合，因此這裡的映射是窮舉的；
// 不屬於集合的錯誤一律按 Conflict 處理，細節只進日誌不出介面.
func WriteError(c *gin.Context, err error) {
	kind := chaterr.KindOf(err)

	status := http.StatusConflict
	code := ErrorCodeConflict
	switch kind {
	case chaterr.KindValidation:
		status = http.StatusBadRequest
		code = ErrorCodeInvalidParameter
	case chaterr.KindNotFound:
		status = http.StatusNotFound
		code = ErrorCodeRecordNotFound
	case chaterr.KindForbidden:
		status = http.StatusForbidden
		code = ErrorCodeForbidden
	case chaterr.KindConflict:
		status = http.StatusConflict
		code = ErrorCodeConflict
	case chaterr.KindTimeout:
		status = http.StatusGatewayTimeout
		code = ErrorCodeTimeout
	case chaterr.KindUnknownAction:
		status = http.StatusNotFound
		code = ErrorCodeUnknownAction
	}

	requestID := middleware.GetRequestID(c)
	logger.Error(c.Request.Context(), fmt.Sprintf("API Error: %v", err),
		logger.WithDetails(map[string]interface{}{
			"request_id": requestID,
			"path":       c.Request.URL.Path,
			"method":     c.Request.Method,
			"status":     status,
			"kind":       string(kind),
		}))

	message := "請求處理失敗"
	if shouldShowError(err) {
		message = err.Error()
	}

	c.JSON(status, gin.H{
		"error":      message,
		"kind":       string(kind),
		"code":       code,
		"success":    false,
		"request_id": requestID,
	})
}

// shouldShowError 判斷是否可以向用戶顯示錯誤詳情
func shouldShowError(err error) bool {
	if err == nil {
		return false
	}

	// 不應顯示的錯誤關鍵字（可能洩露敏感信息）
	dangerousKeywords := []string{
		"mongo",
		"database",
		"connection",
		"password",
		"token",
		"secret",
		"credential",
		"internal",
		"stack",
		"panic",
	}

	lowerMsg := strings.ToLower(err.Error())
	for _, keyword := range dangerousKeywords {
		if strings.Contains(lowerMsg, keyword) {
			return false
		}
	}

	return true
}

// InternalServerError 內部服務器錯誤
func InternalServerError(c *gin.Context, err error) {
	requestID := middleware.GetRequestID(c)
	logger.Error(c.Request.Context(), fmt.Sprintf("API Error: %v", err),
		logger.WithDetails(map[string]interface{}{
			"request_id": requestID,
			"path":       c.Request.URL.Path,
			"method":     c.Request.Method,
		}))
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":      "服務器內部錯誤，請稍後再試",
		"code":       ErrorCodeProcessingFailed,
		"success":    false,
		"request_id": requestID,
	})
}

// BadRequest 錯誤的請求
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":      message,
		"success":    false,
		"request_id": middleware.GetRequestID(c),
	})
}
