package message

import (
	"context"
	"testing"

	"chat-core/internal/action"
	"chat-core/internal/chat/authz"
	"chat-core/internal/chaterr"
	"chat-core/internal/storage/database/message"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyReceipts 包裝回執存儲，讓下一次 Put 失敗一次.
type flakyReceipts struct {
	message.ReceiptRepository
	failNext bool
}

func (r *flakyReceipts) Put(ctx context.Context, receipt *message.SendReceipt) error {
	if r.failNext {
		r.failNext = false
		return errors.New("simulated receipt outage")
	}
	return r.ReceiptRepository.Put(ctx, receipt)
}

const missingID = "aaaaaaaaaaaaaaaaaaaaaaaa"

func newTestService(t *testing.T, az authz.Authorizer, opts ...ServiceOption) *Service {
	t.Helper()
	clock := clockwork.NewFakeClock()
	store := message.NewMemoryStore(clock)
	receipts := message.NewMemoryReceiptStore(clock)
	return NewService(store, receipts, az, clock, opts...)
}

func actorCtx(userID string) context.Context {
	return action.WithActor(context.Background(), userID)
}

func TestSendMessage(t *testing.T) {
	svc := newTestService(t, authz.AllowAll{})
	ctx := actorCtx("u1")

	msg, err := svc.SendMessage(ctx, &SendRequest{
		ConverseID: "c1",
		Content:    "  hello  ",
		Mentions:   []string{"u2"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "u1", msg.Author)
	assert.Equal(t, "hello", msg.Content, "content should be trimmed")
	assert.Equal(t, []string{"u2"}, msg.Mentions)
	assert.False(t, msg.CreatedAt.IsZero())
}

func TestSendMessageValidation(t *testing.T) {
	svc := newTestService(t, authz.AllowAll{})
	ctx := actorCtx("u1")

	_, err := svc.SendMessage(ctx, &SendRequest{ConverseID: "", Content: "hi"})
	assert.True(t, chaterr.Is(err, chaterr.KindValidation))

	_, err = svc.SendMessage(ctx, &SendRequest{ConverseID: "c1", Content: "   "})
	assert.True(t, chaterr.Is(err, chaterr.KindValidation))

	// 缺少操作者身份
	_, err = svc.SendMessage(context.Background(), &SendRequest{ConverseID: "c1", Content: "hi"})
	assert.True(t, chaterr.Is(err, chaterr.KindForbidden))
}

func TestSendMessageIdempotentToken(t *testing.T) {
	svc := newTestService(t, authz.AllowAll{})
	ctx := actorCtx("u1")

	first, err := svc.SendMessage(ctx, &SendRequest{ConverseID: "c1", Content: "hi", Token: "tok-1"})
	require.NoError(t, err)

	// 同一令牌重試返回首次提交的消息
	again, err := svc.SendMessage(ctx, &SendRequest{ConverseID: "c1", Content: "hi", Token: "tok-1"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	// 存儲裡只有一條持久消息
	page, err := svc.FetchConverseMessage(ctx, "c1", "")
	require.NoError(t, err)
	assert.Len(t, page, 1)

	// 不同作者帶同一令牌互不折疊
	other, err := svc.SendMessage(actorCtx("u2"), &SendRequest{ConverseID: "c1", Content: "hi", Token: "tok-1"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestSendMessageReceiptWriteFailure(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := message.NewMemoryStore(clock)
	receipts := &flakyReceipts{
		ReceiptRepository: message.NewMemoryReceiptStore(clock),
		failNext:          true,
	}
	svc := NewService(store, receipts, authz.AllowAll{}, clock)
	ctx := actorCtx("u1")

	// 回執寫失敗時插入被收回，提交整體失敗
	_, err := svc.SendMessage(ctx, &SendRequest{ConverseID: "c1", Content: "hi", Token: "tok-1"})
	require.Error(t, err)

	// 同令牌重試成功，且存儲裡只有一條持久消息
	retried, err := svc.SendMessage(ctx, &SendRequest{ConverseID: "c1", Content: "hi", Token: "tok-1"})
	require.NoError(t, err)

	page, err := svc.FetchConverseMessage(ctx, "c1", "")
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, retried.ID, page[0].ID)
}

func TestSendMessageAuthorization(t *testing.T) {
	members := authz.NewMemberList()
	members.AddMember("c1", "u1")
	svc := newTestService(t, members)

	_, err := svc.SendMessage(actorCtx("u1"), &SendRequest{ConverseID: "c1", Content: "hi"})
	require.NoError(t, err)

	_, err = svc.SendMessage(actorCtx("outsider"), &SendRequest{ConverseID: "c1", Content: "hi"})
	assert.True(t, chaterr.Is(err, chaterr.KindForbidden))
}

func TestRecallMessage(t *testing.T) {
	svc := newTestService(t, authz.AllowAll{})
	ctx := actorCtx("u1")

	msg, err := svc.SendMessage(ctx, &SendRequest{ConverseID: "c1", Content: "oops"})
	require.NoError(t, err)

	recalled, err := svc.RecallMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, recalled.HasRecall)
	assert.Equal(t, "oops", recalled.Content, "recall marks, never erases")

	// 重複撤回是 no-op 成功
	again, err := svc.RecallMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, again.HasRecall)

	// 撤回後消息仍然可讀、可加表情
	require.NoError(t, svc.AddReaction(ctx, msg.ID, "👍"))

	_, err = svc.RecallMessage(ctx, missingID)
	assert.True(t, chaterr.Is(err, chaterr.KindNotFound))

	_, err = svc.RecallMessage(ctx, "not-an-id")
	assert.True(t, chaterr.Is(err, chaterr.KindValidation))
}

func TestRecallAuthorization(t *testing.T) {
	members := authz.NewMemberList()
	members.AddMember("c1", "u1")
	members.AddMember("c1", "u2")
	members.Elevate("admin")
	svc := newTestService(t, members)

	msg, err := svc.SendMessage(actorCtx("u1"), &SendRequest{ConverseID: "c1", Content: "hi"})
	require.NoError(t, err)

	// 非作者不能撤回
	_, err = svc.RecallMessage(actorCtx("u2"), msg.ID)
	assert.True(t, chaterr.Is(err, chaterr.KindForbidden))

	// elevated 用戶可以
	_, err = svc.RecallMessage(actorCtx("admin"), msg.ID)
	require.NoError(t, err)
}

func TestDeleteMessageFinality(t *testing.T) {
	svc := newTestService(t, authz.AllowAll{})
	ctx := actorCtx("u1")

	msg, err := svc.SendMessage(ctx, &SendRequest{ConverseID: "c1", Content: "hi"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteMessage(ctx, msg.ID))

	// 墓碑終局：任何後續操作落在 NotFound
	assert.True(t, chaterr.Is(svc.DeleteMessage(ctx, msg.ID), chaterr.KindNotFound))
	_, err = svc.RecallMessage(ctx, msg.ID)
	assert.True(t, chaterr.Is(err, chaterr.KindNotFound))
	assert.True(t, chaterr.Is(svc.AddReaction(ctx, msg.ID, "👍"), chaterr.KindNotFound))

	page, err := svc.FetchConverseMessage(ctx, "c1", "")
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestReactions(t *testing.T) {
	svc := newTestService(t, authz.AllowAll{})
	ctx := actorCtx("u1")

	msg, err := svc.SendMessage(ctx, &SendRequest{ConverseID: "c1", Content: "hi"})
	require.NoError(t, err)

	require.NoError(t, svc.AddReaction(ctx, msg.ID, "👍"))
	require.NoError(t, svc.AddReaction(ctx, msg.ID, "👍"))
	require.NoError(t, svc.AddReaction(actorCtx("u2"), msg.ID, "👍"))

	page, err := svc.FetchConverseMessage(ctx, "c1", "")
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Len(t, page[0].Reactions, 2, "same (emoji, user) pair collapses")

	// 移除不存在的配對是 no-op
	require.NoError(t, svc.RemoveReaction(actorCtx("u9"), msg.ID, "👍"))
	require.NoError(t, svc.RemoveReaction(ctx, msg.ID, "👍"))

	page, _ = svc.FetchConverseMessage(ctx, "c1", "")
	assert.Len(t, page[0].Reactions, 1)

	assert.True(t, chaterr.Is(svc.AddReaction(ctx, msg.ID, ""), chaterr.KindValidation))
}

func TestFetchConverseMessagePaging(t *testing.T) {
	svc := newTestService(t, authz.AllowAll{}, WithPageSize(2))
	ctx := actorCtx("u1")

	var ids []string
	for i := 0; i < 5; i++ {
		msg, err := svc.SendMessage(ctx, &SendRequest{ConverseID: "c1", Content: "m"})
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}

	// 固定頁大小，新消息在前
	page, err := svc.FetchConverseMessage(ctx, "c1", "")
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[4], page[0].ID)
	assert.Equal(t, ids[3], page[1].ID)

	// 排他游標翻頁，無重複無遺漏
	var walked []string
	cursor := ""
	for {
		page, err := svc.FetchConverseMessage(ctx, "c1", cursor)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, m := range page {
			walked = append(walked, m.ID)
		}
		cursor = page[len(page)-1].ID
	}
	require.Len(t, walked, 5)
	for i, id := range walked {
		assert.Equal(t, ids[4-i], id)
	}

	_, err = svc.FetchConverseMessage(ctx, "", "")
	assert.True(t, chaterr.Is(err, chaterr.KindValidation))
}

func TestFetchConverseMessageCursorStableUnderSends(t *testing.T) {
	svc := newTestService(t, authz.AllowAll{}, WithPageSize(2))
	ctx := actorCtx("u1")

	for i := 0; i < 4; i++ {
		_, err := svc.SendMessage(ctx, &SendRequest{ConverseID: "c1", Content: "m"})
		require.NoError(t, err)
	}

	first, err := svc.FetchConverseMessage(ctx, "c1", "")
	require.NoError(t, err)
	require.Len(t, first, 2)
	cursor := first[len(first)-1].ID

	before, err := svc.FetchConverseMessage(ctx, "c1", cursor)
	require.NoError(t, err)
	require.Len(t, before, 2)

	// 取得游標後的新消息不改變該游標翻出的頁
	_, err = svc.SendMessage(ctx, &SendRequest{ConverseID: "c1", Content: "late"})
	require.NoError(t, err)

	after, err := svc.FetchConverseMessage(ctx, "c1", cursor)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestFetchNearbyMessage(t *testing.T) {
	svc := newTestService(t, authz.AllowAll{}, WithNearbyWindow(1))
	ctx := actorCtx("u1")

	var ids []string
	for i := 0; i < 3; i++ {
		msg, err := svc.SendMessage(ctx, &SendRequest{ConverseID: "c1", Content: "m"})
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}

	// 舊消息在前
	got, err := svc.FetchNearbyMessage(ctx, "c1", ids[1])
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, ids[0], got[0].ID)
	assert.Equal(t, ids[2], got[2].ID)

	_, err = svc.FetchNearbyMessage(ctx, "c1", missingID)
	assert.True(t, chaterr.Is(err, chaterr.KindNotFound))
}

func TestFetchConverseLastMessages(t *testing.T) {
	svc := newTestService(t, authz.AllowAll{})
	ctx := actorCtx("u1")

	// 空輸入返回空結果而非錯誤
	got, err := svc.FetchConverseLastMessages(ctx, nil)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	m1, err := svc.SendMessage(ctx, &SendRequest{ConverseID: "c1", Content: "a"})
	require.NoError(t, err)
	m2, err := svc.SendMessage(ctx, &SendRequest{ConverseID: "c1", Content: "b"})
	require.NoError(t, err)
	m3, err := svc.SendMessage(ctx, &SendRequest{ConverseID: "c2", Content: "c"})
	require.NoError(t, err)

	// 保持輸入順序，無存活消息的會話被省略
	got, err = svc.FetchConverseLastMessages(ctx, []string{"c2", "c1", "empty"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, LastMessage{ConverseID: "c2", LastMessageID: m3.ID}, got[0])
	assert.Equal(t, LastMessage{ConverseID: "c1", LastMessageID: m2.ID}, got[1])

	// 刪除最後一條後回退到前一條
	require.NoError(t, svc.DeleteMessage(ctx, m2.ID))
	got, err = svc.FetchConverseLastMessages(ctx, []string{"c1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, m1.ID, got[0].LastMessageID)
}
