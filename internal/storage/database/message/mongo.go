package message

import (
	"context"
	"time"

	"chat-core/internal/chaterr"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoStore 消息存儲的 MongoDB 實作.
// 單一 ID 上的併發安全由條件式單文檔原子更新保證：
// 所有寫入都帶 deleted_at == null 過濾，墓碑永遠是終局狀態.
type MongoStore struct {
	collection *mongo.Collection
	clock      clockwork.Clock
}

// NewMongoStore 創建新的消息存儲.
func NewMongoStore(db *mongo.Database, clock clockwork.Clock) *MongoStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MongoStore{
		collection: db.Collection("messages"),
		clock:      clock,
	}
}

// liveFilter 只匹配未墓碑化的文檔.
func liveFilter(extra bson.M) bson.M {
	filter := bson.M{"deleted_at": nil}
	for k, v := range extra {
		filter[k] = v
	}
	return filter
}

// Insert 提交消息，在此處分配 ID 與創建時間.
func (s *MongoStore) Insert(ctx context.Context, msg *Message) error {
	now := s.clock.Now().UTC()
	msg.ID = NewID()
	msg.CreatedAt = now
	msg.UpdatedAt = now
	if msg.Reactions == nil {
		msg.Reactions = []Reaction{}
	}

	if _, err := s.collection.InsertOne(ctx, msg); err != nil {
		return errors.Wrap(err, "insert message")
	}
	return nil
}

// GetByID 根據 ID 獲取消息，墓碑化視為不存在.
func (s *MongoStore) GetByID(ctx context.Context, id string) (*Message, error) {
	var msg Message
	err := s.collection.FindOne(ctx, liveFilter(bson.M{"_id": id})).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, chaterr.Newf(chaterr.KindNotFound, "message %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get message")
	}
	return &msg, nil
}

// FetchByConversation 按會話分頁讀取，新消息在前.
// 游標基於 _id（與創建時間同序），因此游標之外的併發插入不會影響本頁.
func (s *MongoStore) FetchByConversation(ctx context.Context, converseID, startID string, limit int) ([]*Message, error) {
	filter := liveFilter(bson.M{"converse_id": converseID})
	if startID != "" {
		filter["_id"] = bson.M{"$lt": startID}
	}

	opts := options.Find()
	opts.SetLimit(int64(limit))
	opts.SetSort(bson.D{{Key: "_id", Value: -1}})

	return s.find(ctx, filter, opts)
}

// FetchNearby 以錨點為中心讀取，舊消息在前.
func (s *MongoStore) FetchNearby(ctx context.Context, converseID, anchorID string, window int) ([]*Message, error) {
	anchor, err := s.GetByID(ctx, anchorID)
	if err != nil {
		return nil, err
	}
	if anchor.ConverseID != converseID {
		return nil, chaterr.Newf(chaterr.KindNotFound, "message %s not in conversation %s", anchorID, converseID)
	}

	// 錨點之前的 window 條（降序取出後反轉）
	beforeOpts := options.Find()
	beforeOpts.SetLimit(int64(window))
	beforeOpts.SetSort(bson.D{{Key: "_id", Value: -1}})
	before, err := s.find(ctx, liveFilter(bson.M{
		"converse_id": converseID,
		"_id":         bson.M{"$lt": anchorID},
	}), beforeOpts)
	if err != nil {
		return nil, err
	}

	// 錨點之後的 window 條
	afterOpts := options.Find()
	afterOpts.SetLimit(int64(window))
	afterOpts.SetSort(bson.D{{Key: "_id", Value: 1}})
	after, err := s.find(ctx, liveFilter(bson.M{
		"converse_id": converseID,
		"_id":         bson.M{"$gt": anchorID},
	}), afterOpts)
	if err != nil {
		return nil, err
	}

	result := make([]*Message, 0, len(before)+1+len(after))
	for i := len(before) - 1; i >= 0; i-- {
		result = append(result, before[i])
	}
	result = append(result, anchor)
	result = append(result, after...)
	return result, nil
}

// FetchLastPerConversation 取每個會話最後一條存活消息的 ID.
func (s *MongoStore) FetchLastPerConversation(ctx context.Context, converseIDs []string) (map[string]string, error) {
	result := make(map[string]string)
	if len(converseIDs) == 0 {
		return result, nil
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"converse_id": bson.M{"$in": converseIDs},
			"deleted_at":  nil,
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: -1}}}},
		{{Key: "$group", Value: bson.M{
			"_id":             "$converse_id",
			"last_message_id": bson.M{"$first": "$_id"},
		}}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errors.Wrap(err, "aggregate last messages")
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var row struct {
			ConverseID    string `bson:"_id"`
			LastMessageID string `bson:"last_message_id"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, errors.Wrap(err, "decode last message row")
		}
		result[row.ConverseID] = row.LastMessageID
	}
	return result, cursor.Err()
}

// CountByDay 按天統計 [since, until) 內的存活消息數.
func (s *MongoStore) CountByDay(ctx context.Context, since, until time.Time) ([]DayCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"created_at": bson.M{"$gte": since, "$lt": until},
			"deleted_at": nil,
		}}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{"$dateToString": bson.M{
				"format": "%Y-%m-%d",
				"date":   "$created_at",
			}},
			"count": bson.M{"$sum": 1},
		}}},
		{{Key: "$project", Value: bson.M{
			"date":  "$_id",
			"count": "$count",
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "date", Value: 1}}}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errors.Wrap(err, "aggregate day counts")
	}
	defer cursor.Close(ctx)

	var counts []DayCount
	for cursor.Next(ctx) {
		var row DayCount
		if err := cursor.Decode(&row); err != nil {
			return nil, errors.Wrap(err, "decode day count")
		}
		counts = append(counts, row)
	}
	return counts, cursor.Err()
}

// SetRecalled 標記撤回.
// 過濾條件只要求存活，對已撤回消息重複設置是 no-op，因此天然冪等.
func (s *MongoStore) SetRecalled(ctx context.Context, id string) error {
	res, err := s.collection.UpdateOne(ctx,
		liveFilter(bson.M{"_id": id}),
		bson.M{"$set": bson.M{"has_recall": true, "updated_at": s.clock.Now().UTC()}})
	if err != nil {
		return errors.Wrap(err, "set recalled")
	}
	if res.MatchedCount == 0 {
		return chaterr.Newf(chaterr.KindNotFound, "message %s not found", id)
	}
	return nil
}

// Tombstone 墓碑化消息.
// 條件更新保證兩個併發刪除最多一個成功，落敗方觀察到 NotFound.
func (s *MongoStore) Tombstone(ctx context.Context, id string) error {
	now := s.clock.Now().UTC()
	res, err := s.collection.UpdateOne(ctx,
		liveFilter(bson.M{"_id": id}),
		bson.M{"$set": bson.M{"deleted_at": now, "updated_at": now}})
	if err != nil {
		return errors.Wrap(err, "tombstone message")
	}
	if res.MatchedCount == 0 {
		return chaterr.Newf(chaterr.KindNotFound, "message %s not found", id)
	}
	return nil
}

// AddReaction 添加表情.
// 過濾條件排除已含該 (emoji, user) 配對的文檔，$push 因此不會產生重複；
// 未匹配時需要區分「目標不存在」與「重複添加」.
func (s *MongoStore) AddReaction(ctx context.Context, id, emoji, userID string) error {
	reaction := Reaction{Emoji: emoji, UserID: userID, CreatedAt: s.clock.Now().UTC()}
	filter := liveFilter(bson.M{
		"_id": id,
		"reactions": bson.M{"$not": bson.M{"$elemMatch": bson.M{
			"emoji":   emoji,
			"user_id": userID,
		}}},
	})
	res, err := s.collection.UpdateOne(ctx, filter, bson.M{
		"$push": bson.M{"reactions": reaction},
		"$set":  bson.M{"updated_at": reaction.CreatedAt},
	})
	if err != nil {
		return errors.Wrap(err, "add reaction")
	}
	if res.MatchedCount == 0 {
		// 配對已存在時消息本身仍可讀到，此時為冪等 no-op
		if _, err := s.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// RemoveReaction 移除表情，移除不存在的配對是 no-op.
func (s *MongoStore) RemoveReaction(ctx context.Context, id, emoji, userID string) error {
	res, err := s.collection.UpdateOne(ctx,
		liveFilter(bson.M{"_id": id}),
		bson.M{
			"$pull": bson.M{"reactions": bson.M{"emoji": emoji, "user_id": userID}},
			"$set":  bson.M{"updated_at": s.clock.Now().UTC()},
		})
	if err != nil {
		return errors.Wrap(err, "remove reaction")
	}
	if res.MatchedCount == 0 {
		return chaterr.Newf(chaterr.KindNotFound, "message %s not found", id)
	}
	return nil
}

// find 執行查詢並解碼結果.
func (s *MongoStore) find(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]*Message, error) {
	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find messages")
	}
	defer cursor.Close(ctx)

	var messages []*Message
	for cursor.Next(ctx) {
		var msg Message
		if err := cursor.Decode(&msg); err != nil {
			return nil, errors.Wrap(err, "decode message")
		}
		messages = append(messages, &msg)
	}
	return messages, cursor.Err()
}
