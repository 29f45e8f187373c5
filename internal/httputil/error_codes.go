package httputil

// API 錯誤代碼常數.
const (
	// 2000-2999: 參數相關錯誤 (400 Bad Request).
	ErrorCodeInvalidParameter = 2001

	// 3000-3999: 權限相關錯誤 (403 Forbidden).
	ErrorCodeForbidden = 3001

	// 4000-4999: 資源相關錯誤 (404 Not Found / 409 Conflict).
	ErrorCodeRecordNotFound = 4001
	ErrorCodeConflict       = 4002

	// 5000-5999: 處理相關錯誤 (500 / 504).
	ErrorCodeProcessingFailed = 5001
	ErrorCodeTimeout          = 5002
	ErrorCodeUnknownAction    = 5003
)
