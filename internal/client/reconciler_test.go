package client

import (
	"context"
	"testing"
	"time"

	"chat-core/internal/action"
	chatmsg "chat-core/internal/chat/message"

	"chat-core/internal/chat/authz"
	"chat-core/internal/chaterr"
	"chat-core/internal/storage/database/message"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unstableStore 包裝消息存儲，按測試腳本讓 Insert 失敗或阻塞.
type unstableStore struct {
	message.Repository
	failNext bool
	blockCh  chan struct{}
}

func (s *unstableStore) Insert(ctx context.Context, msg *message.Message) error {
	if s.blockCh != nil {
		<-s.blockCh
	}
	if s.failNext {
		s.failNext = false
		return errors.New("simulated storage outage")
	}
	return s.Repository.Insert(ctx, msg)
}

func newTestStack(t *testing.T) (*action.Registry, *unstableStore) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	store := &unstableStore{Repository: message.NewMemoryStore(clock)}
	svc := chatmsg.NewService(store, message.NewMemoryReceiptStore(clock), authz.AllowAll{}, clock)

	registry := action.NewRegistry()
	svc.Register(registry)
	return registry, store
}

func TestSendConfirmsInPlace(t *testing.T) {
	registry, _ := newTestStack(t)
	rec := NewReconciler(registry, "c1", "g1")
	ctx := action.WithActor(context.Background(), "u1")

	placeholderID, err := rec.Send(ctx, "hello", []string{"u2"})
	require.NoError(t, err)
	assert.NotEmpty(t, placeholderID)

	timeline := rec.Timeline()
	require.Len(t, timeline, 1)

	// 佔位被持久消息原位取代
	confirmed, ok := timeline[0].(*Confirmed)
	require.True(t, ok, "entry should be confirmed, got %T", timeline[0])
	assert.Equal(t, "hello", confirmed.Message.Content)
	assert.Equal(t, "u1", confirmed.Message.Author)
	assert.NotEqual(t, placeholderID, confirmed.Message.ID)
}

func TestSendFailureKeepsPlaceholder(t *testing.T) {
	registry, store := newTestStack(t)
	rec := NewReconciler(registry, "c1", "")
	ctx := action.WithActor(context.Background(), "u1")

	store.failNext = true
	placeholderID, err := rec.Send(ctx, "hello", nil)
	require.Error(t, err)

	// 失敗的佔位留在時間線上，帶失敗標記
	timeline := rec.Timeline()
	require.Len(t, timeline, 1)
	echo, ok := timeline[0].(*LocalEcho)
	require.True(t, ok)
	assert.True(t, echo.SendFailed)
	assert.Equal(t, placeholderID, echo.EntryID())
}

func TestRetryReusesToken(t *testing.T) {
	registry, store := newTestStack(t)
	rec := NewReconciler(registry, "c1", "")
	ctx := action.WithActor(context.Background(), "u1")

	store.failNext = true
	placeholderID, err := rec.Send(ctx, "hello", nil)
	require.Error(t, err)

	require.NoError(t, rec.Retry(ctx, placeholderID))

	timeline := rec.Timeline()
	require.Len(t, timeline, 1)
	confirmed, ok := timeline[0].(*Confirmed)
	require.True(t, ok)

	// 同一令牌保證重試後持久世界裡只有一條消息
	result, err := registry.Invoke(ctx, action.MessageFetchConverse, action.Payload{"converseId": "c1"})
	require.NoError(t, err)
	page := result.([]*message.Message)
	require.Len(t, page, 1)
	assert.Equal(t, confirmed.Message.ID, page[0].ID)

	// 成功後不再有可重試的佔位
	err = rec.Retry(ctx, placeholderID)
	assert.True(t, chaterr.Is(err, chaterr.KindNotFound))
}

func TestDiscardFailedPlaceholder(t *testing.T) {
	registry, store := newTestStack(t)
	rec := NewReconciler(registry, "c1", "")
	ctx := action.WithActor(context.Background(), "u1")

	store.failNext = true
	placeholderID, err := rec.Send(ctx, "hello", nil)
	require.Error(t, err)

	require.NoError(t, rec.Discard(placeholderID))
	assert.Empty(t, rec.Timeline())

	// 佔位從未被提交，丟棄後持久世界也是空的
	result, err := registry.Invoke(ctx, action.MessageFetchConverse, action.Payload{"converseId": "c1"})
	require.NoError(t, err)
	assert.Empty(t, result.([]*message.Message))

	assert.True(t, chaterr.Is(rec.Discard(placeholderID), chaterr.KindNotFound))
}

func TestSingleSendInFlight(t *testing.T) {
	registry, store := newTestStack(t)
	rec := NewReconciler(registry, "c1", "")
	ctx := action.WithActor(context.Background(), "u1")

	store.blockCh = make(chan struct{})

	firstDone := make(chan error, 1)
	go func() {
		_, err := rec.Send(ctx, "first", nil)
		firstDone <- err
	}()

	// 等第一個發送進入在途狀態
	deadline := time.After(2 * time.Second)
	for len(rec.Timeline()) == 0 {
		select {
		case <-deadline:
			t.Fatal("first send never materialized its placeholder")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// 第二個發送被拒絕而非交錯
	_, err := rec.Send(ctx, "second", nil)
	assert.True(t, chaterr.Is(err, chaterr.KindConflict))

	close(store.blockCh)
	require.NoError(t, <-firstDone)

	timeline := rec.Timeline()
	require.Len(t, timeline, 1)
	_, ok := timeline[0].(*Confirmed)
	assert.True(t, ok)
}
