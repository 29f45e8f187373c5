package client

import (
	"chat-core/internal/storage/database/message"
)

// Entry 時間線條目.
// 明確的標籤聯合：本地佔位與服務端確認的消息是兩個不同的變體，
// 渲染與對賬代碼必須窮舉處理，而不是靠可選欄位嗅探.
type Entry interface {
	// EntryID 返回條目在時間線中的識別（佔位 ID 或持久 ID）.
	EntryID() string

	sealed()
}

// SendPayload 一次邏輯發送的內容.
// Token 在首次發送時鑄造，重試時原樣重用，服務端據此折疊重複提交.
type SendPayload struct {
	ConverseID string
	GroupID    string
	Content    string
	Plain      string
	Mentions   []string
	Token      string
}

// LocalEcho 本地佔位：尚未得到服務端確認的樂觀條目.
type LocalEcho struct {
	// PlaceholderID 客戶端生成的臨時 ID，確認後被持久 ID 取代.
	PlaceholderID string
	// Payload 發送中的請求內容，重試時原樣重用（含冪等令牌）.
	Payload SendPayload
	// SendFailed 確認未到達或為否定時置真，佔位保留供重試/丟棄.
	SendFailed bool
}

// EntryID 返回佔位 ID.
func (e *LocalEcho) EntryID() string { return e.PlaceholderID }

func (*LocalEcho) sealed() {}

// Confirmed 服務端已提交的消息.
type Confirmed struct {
	Message *message.Message
}

// EntryID 返回持久消息 ID.
func (e *Confirmed) EntryID() string { return e.Message.ID }

func (*Confirmed) sealed() {}
