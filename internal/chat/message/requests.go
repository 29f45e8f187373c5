package message

import (
	"strings"

	"chat-core/internal/chaterr"
	"chat-core/internal/constants"
	"chat-core/internal/storage/database"
)

// SendRequest 發送消息請求.
// Token 為可選的冪等令牌：客戶端在超時重試時帶同一令牌，
// 服務端據此折疊重複提交.
type SendRequest struct {
	ConverseID string   `json:"converseId"`
	GroupID    string   `json:"groupId,omitempty"`
	Content    string   `json:"content"`
	Plain      string   `json:"plain,omitempty"`
	Mentions   []string `json:"mentions,omitempty"`
	Token      string   `json:"token,omitempty"`
}

// ValidateSendRequest 驗證發送消息請求.
func ValidateSendRequest(req *SendRequest) error {
	if strings.TrimSpace(req.ConverseID) == "" {
		return chaterr.New(chaterr.KindValidation, "converseId cannot be empty")
	}
	if strings.TrimSpace(req.Content) == "" {
		return chaterr.New(chaterr.KindValidation, "content cannot be empty")
	}
	if len(req.Content) > constants.DefaultMaxMessageLength {
		return chaterr.Newf(chaterr.KindValidation, "content exceeds %d bytes", constants.DefaultMaxMessageLength)
	}
	return nil
}

// validateEmoji 驗證表情欄位.
func validateEmoji(emoji string) error {
	if emoji == "" {
		return chaterr.New(chaterr.KindValidation, "emoji cannot be empty")
	}
	if len(emoji) > constants.MaxEmojiLength {
		return chaterr.Newf(chaterr.KindValidation, "emoji exceeds %d bytes", constants.MaxEmojiLength)
	}
	return nil
}

// LastMessage 會話最後一條消息的引用，用於會話列表預覽.
type LastMessage struct {
	ConverseID    string `json:"converseId"`
	LastMessageID string `json:"lastMessageId"`
}

// validateMessageID 驗證消息 ID / 游標格式，不合法以 ValidationError 回報.
func validateMessageID(id string) error {
	if err := database.ValidateObjectID(id); err != nil {
		return chaterr.Newf(chaterr.KindValidation, "invalid message id %q", id)
	}
	return nil
}
