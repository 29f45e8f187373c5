package message

import (
	"context"
	"sync"
	"time"

	"chat-core/internal/chaterr"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// SendReceipt 發送回執，記錄 (author, converse_id, token) 對應的已提交消息.
// 超時後客戶端帶同一令牌重試時，服務端用回執折疊重複提交，
// 保證同一邏輯發送最多產生一條持久消息.
type SendReceipt struct {
	Author     string    `bson:"author" json:"author"`
	ConverseID string    `bson:"converse_id" json:"converseId"`
	Token      string    `bson:"token" json:"token"`
	MessageID  string    `bson:"message_id" json:"messageId"`
	CreatedAt  time.Time `bson:"created_at" json:"createdAt"`
	ExpiresAt  time.Time `bson:"expires_at" json:"expiresAt"`
}

// ReceiptRepository 發送回執倉儲接口.
type ReceiptRepository interface {
	// Get 查找回執，不存在返回 NotFound.
	Get(ctx context.Context, author, converseID, token string) (*SendReceipt, error)
	// Put 寫入回執，(author, converse_id, token) 已存在時返回 Conflict.
	Put(ctx context.Context, receipt *SendReceipt) error
}

// 回執保留時間，超過後允許令牌重用（此時重試已無意義）.
const receiptTTL = 24 * time.Hour

// MongoReceiptStore 回執存儲的 MongoDB 實作.
// 唯一索引保證兩個帶同一令牌的併發提交最多一個寫入成功.
type MongoReceiptStore struct {
	collection *mongo.Collection
	clock      clockwork.Clock
}

// NewMongoReceiptStore 創建回執存儲.
func NewMongoReceiptStore(db *mongo.Database, clock clockwork.Clock) *MongoReceiptStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MongoReceiptStore{
		collection: db.Collection("send_receipts"),
		clock:      clock,
	}
}

// Get 查找回執.
func (s *MongoReceiptStore) Get(ctx context.Context, author, converseID, token string) (*SendReceipt, error) {
	var receipt SendReceipt
	err := s.collection.FindOne(ctx, bson.M{
		"author":      author,
		"converse_id": converseID,
		"token":       token,
	}).Decode(&receipt)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, chaterr.New(chaterr.KindNotFound, "send receipt not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "get send receipt")
	}
	return &receipt, nil
}

// Put 寫入回執.
func (s *MongoReceiptStore) Put(ctx context.Context, receipt *SendReceipt) error {
	now := s.clock.Now().UTC()
	receipt.CreatedAt = now
	receipt.ExpiresAt = now.Add(receiptTTL)

	_, err := s.collection.InsertOne(ctx, receipt)
	if mongo.IsDuplicateKeyError(err) {
		return chaterr.Wrap(err, chaterr.KindConflict, "send receipt already exists")
	}
	if err != nil {
		return errors.Wrap(err, "put send receipt")
	}
	return nil
}

// MemoryReceiptStore 回執存儲的記憶體實作.
type MemoryReceiptStore struct {
	mu       sync.Mutex
	receipts map[receiptKey]*SendReceipt
	clock    clockwork.Clock
}

type receiptKey struct {
	author     string
	converseID string
	token      string
}

// NewMemoryReceiptStore 創建記憶體回執存儲.
func NewMemoryReceiptStore(clock clockwork.Clock) *MemoryReceiptStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryReceiptStore{
		receipts: make(map[receiptKey]*SendReceipt),
		clock:    clock,
	}
}

// Get 查找回執.
func (s *MemoryReceiptStore) Get(ctx context.Context, author, converseID, token string) (*SendReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	receipt, ok := s.receipts[receiptKey{author, converseID, token}]
	if !ok || s.clock.Now().After(receipt.ExpiresAt) {
		return nil, chaterr.New(chaterr.KindNotFound, "send receipt not found")
	}
	clone := *receipt
	return &clone, nil
}

// Put 寫入回執.
func (s *MemoryReceiptStore) Put(ctx context.Context, receipt *SendReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := receiptKey{receipt.Author, receipt.ConverseID, receipt.Token}
	if existing, ok := s.receipts[key]; ok && s.clock.Now().Before(existing.ExpiresAt) {
		return chaterr.New(chaterr.KindConflict, "send receipt already exists")
	}

	now := s.clock.Now().UTC()
	receipt.CreatedAt = now
	receipt.ExpiresAt = now.Add(receiptTTL)
	clone := *receipt
	s.receipts[key] = &clone
	return nil
}
