package message

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// CreateIndexes 創建消息相關集合的索引.
func CreateIndexes(ctx context.Context, db *mongo.Database) error {
	messages := db.Collection("messages")

	// 會話分頁與 nearby 查詢走這個索引
	converseIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "converse_id", Value: 1},
			{Key: "_id", Value: -1},
		},
		Options: options.Index().SetName("converse_idx"),
	}

	// 管理端按天統計
	createdAtIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "created_at", Value: -1},
		},
		Options: options.Index().SetName("created_at_idx"),
	}

	if _, err := messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		converseIndex,
		createdAtIndex,
	}); err != nil {
		return err
	}

	receipts := db.Collection("send_receipts")

	// 冪等令牌唯一性：同一 (author, converse_id, token) 最多一條回執
	tokenIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "author", Value: 1},
			{Key: "converse_id", Value: 1},
			{Key: "token", Value: 1},
		},
		Options: options.Index().SetName("send_token_idx").SetUnique(true),
	}

	// 過期回執由 MongoDB TTL 自動清理
	expiryIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "expires_at", Value: 1},
		},
		Options: options.Index().SetName("receipt_ttl_idx").SetExpireAfterSeconds(0),
	}

	_, err := receipts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		tokenIndex,
		expiryIndex,
	})
	return err
}
