package database

import (
	"context"

	"chat-core/internal/platform/logger"
	"chat-core/internal/storage/database/message"

	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Repositories 倉儲集合.
type Repositories struct {
	Message message.Repository
	Receipt message.ReceiptRepository
}

// NewRepositories 創建倉儲集合.
func NewRepositories(clock clockwork.Clock) *Repositories {
	db := mongoDB
	if db == nil {
		return nil
	}

	// 創建索引以保證分頁查詢與冪等令牌唯一性
	ctx := context.Background()
	if err := message.CreateIndexes(ctx, db); err != nil {
		logger.Warningf(ctx, "創建索引失敗: %v", err)
	}

	return &Repositories{
		Message: message.NewMongoStore(db, clock),
		Receipt: message.NewMongoReceiptStore(db, clock),
	}
}

// NewMemoryRepositories 創建記憶體倉儲集合（測試與無資料庫的本地開發）.
func NewMemoryRepositories(clock clockwork.Clock) *Repositories {
	return &Repositories{
		Message: message.NewMemoryStore(clock),
		Receipt: message.NewMemoryReceiptStore(clock),
	}
}

// 全局變數，用於存儲 MongoDB 連接
var mongoDB *mongo.Database

// SetMongoDB 設置 MongoDB 連接.
func SetMongoDB(db *mongo.Database) {
	mongoDB = db
}
