package httputil

// 成功訊息常數.
const (
	DataRetrieved   = "Data retrieved successfully"
	ActionCompleted = "Action completed successfully"
)

// 錯誤訊息常數.
const (
	InvalidParameter = "Invalid parameter"
)

// SuccessResponse 成功回應結構.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// NewSuccessResponse 創建成功回應.
func NewSuccessResponse(message string, data interface{}) *SuccessResponse {
	return &SuccessResponse{
		Success: true,
		Message: message,
		Data:    data,
	}
}
