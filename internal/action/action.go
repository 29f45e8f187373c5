package action

import (
	"context"
)

// Name action 名稱，分發的唯一鍵.
type Name string

// 消息相關 action 名稱常數.
const (
	MessageSend                 Name = "chat.message.sendMessage"
	MessageRecall               Name = "chat.message.recallMessage"
	MessageDelete               Name = "chat.message.deleteMessage"
	MessageAddReaction          Name = "chat.message.addReaction"
	MessageRemoveReaction       Name = "chat.message.removeReaction"
	MessageFetchConverse        Name = "chat.message.fetchConverseMessage"
	MessageFetchNearby          Name = "chat.message.fetchNearbyMessage"
	MessageFetchConverseLastIDs Name = "chat.message.fetchConverseLastMessages"
)

// Handler action 處理函數，所有業務邏輯通過這個簽名暴露給分發器.
type Handler func(ctx context.Context, payload Payload) (interface{}, error)

type actorKey struct{}

// WithActor 將操作者身份寫入 context，分發器沿調用鏈傳遞.
func WithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actorKey{}, userID)
}

// ActorFrom 從 context 取出操作者身份.
func ActorFrom(ctx context.Context) string {
	if userID, ok := ctx.Value(actorKey{}).(string); ok {
		return userID
	}
	return ""
}
