package client

import (
	"context"
	"sync"

	"chat-core/internal/action"
	"chat-core/internal/chaterr"
	"chat-core/internal/storage/database/message"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Reconciler 客戶端樂觀對賬器.
// 為外發消息分配臨時本地身份、立即插入可見時間線，
// 服務端確認後原位替換為持久消息；失敗時佔位保留供顯式重試.
// 分發器句柄在構造時注入，對賬器從不直接觸碰存儲.
type Reconciler struct {
	mu         sync.Mutex
	registry   *action.Registry
	converseID string
	groupID    string
	timeline   []Entry
	// 同一時間最多一個在途發送；第二個發送被拒絕而非靜默交錯
	pending string
}

// NewReconciler 創建指定會話的對賬器.
func NewReconciler(registry *action.Registry, converseID, groupID string) *Reconciler {
	return &Reconciler{
		registry:   registry,
		converseID: converseID,
		groupID:    groupID,
	}
}

// Timeline 返回當前時間線的快照.
func (r *Reconciler) Timeline() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.timeline...)
}

// Send 發送消息.
// 先物化佔位條目再發起調用；返回前佔位要麼被確認消息原位取代，
// 要麼帶 SendFailed 標記保留. 已有在途發送時以 Conflict 拒絕.
func (r *Reconciler) Send(ctx context.Context, content string, mentions []string) (string, error) {
	r.mu.Lock()
	if r.pending != "" {
		r.mu.Unlock()
		return "", chaterr.New(chaterr.KindConflict, "a send is already in flight")
	}

	echo := &LocalEcho{
		PlaceholderID: "local-" + uuid.New().String(),
		Payload: SendPayload{
			ConverseID: r.converseID,
			GroupID:    r.groupID,
			Content:    content,
			Mentions:   mentions,
			Token:      uuid.New().String(),
		},
	}
	r.timeline = append(r.timeline, echo)
	r.pending = echo.PlaceholderID
	r.mu.Unlock()

	return echo.PlaceholderID, r.deliver(ctx, echo.PlaceholderID)
}

// Retry 重試一個失敗的佔位.
// 重用同一冪等令牌，因此對同一邏輯發送調用兩次也只產生一條持久消息.
func (r *Reconciler) Retry(ctx context.Context, placeholderID string) error {
	r.mu.Lock()
	if r.pending != "" {
		r.mu.Unlock()
		return chaterr.New(chaterr.KindConflict, "a send is already in flight")
	}
	echo, _ := r.findLocal(placeholderID)
	if echo == nil || !echo.SendFailed {
		r.mu.Unlock()
		return chaterr.Newf(chaterr.KindNotFound, "no failed placeholder %s", placeholderID)
	}
	echo.SendFailed = false
	r.pending = placeholderID
	r.mu.Unlock()

	return r.deliver(ctx, placeholderID)
}

// Discard 丟棄一個失敗的佔位.
// 佔位從未被持久提交，移除本地視圖即可，不需要服務端補償.
func (r *Reconciler) Discard(placeholderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	echo, idx := r.findLocal(placeholderID)
	if echo == nil || !echo.SendFailed {
		return chaterr.Newf(chaterr.KindNotFound, "no failed placeholder %s", placeholderID)
	}
	r.timeline = append(r.timeline[:idx], r.timeline[idx+1:]...)
	return nil
}

// deliver 執行實際的 sendMessage 調用並對賬.
func (r *Reconciler) deliver(ctx context.Context, placeholderID string) error {
	r.mu.Lock()
	echo, _ := r.findLocal(placeholderID)
	if echo == nil {
		r.mu.Unlock()
		return errors.Errorf("placeholder %s vanished", placeholderID)
	}
	payload := echo.Payload
	r.mu.Unlock()

	result, err := r.registry.Invoke(ctx, action.MessageSend, action.Payload{
		"converseId": payload.ConverseID,
		"groupId":    payload.GroupID,
		"content":    payload.Content,
		"plain":      payload.Plain,
		"mentions":   payload.Mentions,
		"token":      payload.Token,
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = ""

	echo, idx := r.findLocal(placeholderID)
	if echo == nil {
		// 對賬期間佔位被丟棄
		return nil
	}

	if err != nil {
		// 超時視為結果不明確；令牌保證重試不會產生重複提交
		echo.SendFailed = true
		return err
	}

	msg, ok := result.(*message.Message)
	if !ok {
		echo.SendFailed = true
		return errors.Errorf("unexpected sendMessage result %T", result)
	}

	// 原位替換，保持渲染槽位穩定
	r.timeline[idx] = &Confirmed{Message: msg}
	return nil
}

// findLocal 查找本地佔位，呼叫方必須持有鎖.
func (r *Reconciler) findLocal(placeholderID string) (*LocalEcho, int) {
	for i, entry := range r.timeline {
		if echo, ok := entry.(*LocalEcho); ok && echo.PlaceholderID == placeholderID {
			return echo, i
		}
	}
	return nil, -1
}
