package message

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Message 消息數據模型.
// ID 由存儲層在提交時分配（ObjectID hex，時間有序），客戶端永遠不指定.
// Content 只能通過撤回被標記，不存在靜默編輯；DeletedAt 非空表示墓碑，
// 墓碑化後不允許任何再修改.
type Message struct {
	ID         string     `bson:"_id,omitempty" json:"id"`
	ConverseID string     `bson:"converse_id" json:"converseId"`
	GroupID    string     `bson:"group_id,omitempty" json:"groupId,omitempty"`
	Author     string     `bson:"author" json:"author"`
	Content    string     `bson:"content" json:"content"`
	Plain      string     `bson:"plain,omitempty" json:"plain,omitempty"`
	Mentions   []string   `bson:"mentions,omitempty" json:"mentions,omitempty"`
	Reactions  []Reaction `bson:"reactions" json:"reactions"`
	HasRecall  bool       `bson:"has_recall" json:"hasRecall"`
	CreatedAt  time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt  time.Time  `bson:"updated_at" json:"updatedAt"`
	DeletedAt  *time.Time `bson:"deleted_at,omitempty" json:"-"`
}

// Reaction 單個用戶對消息的單個表情行為.
// (emoji, user_id) 在一條消息內唯一，集合語義由存儲層保證.
type Reaction struct {
	Emoji     string    `bson:"emoji" json:"emoji"`
	UserID    string    `bson:"user_id" json:"userId"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

// ReactionGroup 按 emoji 聚合的表情視圖，供 API 回應使用.
type ReactionGroup struct {
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// GroupedReactions 把表情集合按 emoji 分組，保持首次出現順序.
func (m *Message) GroupedReactions() []ReactionGroup {
	index := make(map[string]int)
	groups := make([]ReactionGroup, 0)
	for _, r := range m.Reactions {
		i, ok := index[r.Emoji]
		if !ok {
			i = len(groups)
			index[r.Emoji] = i
			groups = append(groups, ReactionGroup{Emoji: r.Emoji})
		}
		groups[i].Count++
		groups[i].Users = append(groups[i].Users, r.UserID)
	}
	return groups
}

// HasReaction 檢查 (emoji, userID) 是否已存在.
func (m *Message) HasReaction(emoji, userID string) bool {
	for _, r := range m.Reactions {
		if r.Emoji == emoji && r.UserID == userID {
			return true
		}
	}
	return false
}

// NewID 生成一個新的時間有序消息 ID.
func NewID() string {
	return bson.NewObjectID().Hex()
}

// DayCount 單日消息計數.
type DayCount struct {
	Date  string `bson:"date" json:"date"`
	Count int    `bson:"count" json:"count"`
}

// Repository 消息倉儲接口.
// 讀取是快照式的，不阻塞在途寫入；寫入全部以消息 ID 為鍵，
// 且在同一 ID 上併發調用必須安全（條件式原子更新或互斥）.
type Repository interface {
	// Insert 提交消息，分配 ID 與 CreatedAt.
	Insert(ctx context.Context, msg *Message) error
	// GetByID 獲取單條消息，墓碑化或不存在返回 NotFound.
	GetByID(ctx context.Context, id string) (*Message, error)
	// FetchByConversation 按會話分頁讀取，新消息在前.
	// startID 為排他游標（嚴格早於游標的消息），空字串表示從最新開始.
	FetchByConversation(ctx context.Context, converseID, startID string, limit int) ([]*Message, error)
	// FetchNearby 以錨點消息為中心讀取前後各 window 條，舊消息在前.
	// 錨點靠近歷史邊緣時返回短頁而非錯誤.
	FetchNearby(ctx context.Context, converseID, anchorID string, window int) ([]*Message, error)
	// FetchLastPerConversation 返回每個會話最後一條存活消息的 ID，
	// 沒有存活消息的會話不出現在結果中.
	FetchLastPerConversation(ctx context.Context, converseIDs []string) (map[string]string, error)
	// CountByDay 按天統計創建時間落在 [since, until) 的存活消息數.
	CountByDay(ctx context.Context, since, until time.Time) ([]DayCount, error)
	// SetRecalled 標記撤回，冪等；墓碑化或不存在返回 NotFound.
	SetRecalled(ctx context.Context, id string) error
	// Tombstone 墓碑化，永久移出所有後續讀取；重複調用返回 NotFound.
	Tombstone(ctx context.Context, id string) error
	// AddReaction 添加 (emoji, userID)，重複添加為 no-op.
	AddReaction(ctx context.Context, id, emoji, userID string) error
	// RemoveReaction 移除 (emoji, userID)，移除不存在的配對為 no-op.
	RemoveReaction(ctx context.Context, id, emoji, userID string) error
}
