package action

import (
	"context"
	"time"

	"chat-core/internal/chaterr"
	"chat-core/internal/constants"
	"chat-core/internal/platform/logger"

	"github.com/pkg/errors"
)

const defaultInvokeTimeout = constants.DefaultInvokeTimeoutSeconds * time.Second

// Registry action 註冊表與分發器.
// 純粹的間接層：不承載業務規則，只負責解析名稱、套用超時、
// 把 handler 的失敗統一成封閉的失敗類型集合.
type Registry struct {
	handlers map[Name]Handler
	timeout  time.Duration
}

// Option Registry 選項.
type Option func(*Registry)

// WithInvokeTimeout 設定單次調用的超時上限.
func WithInvokeTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRegistry 創建空的註冊表.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		handlers: make(map[Name]Handler),
		timeout:  defaultInvokeTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register 註冊 handler，名稱重複視為啟動期配置錯誤.
func (r *Registry) Register(name Name, handler Handler) error {
	if handler == nil {
		return errors.Errorf("nil handler for action %q", name)
	}
	if _, exists := r.handlers[name]; exists {
		return errors.Errorf("action %q already registered", name)
	}
	r.handlers[name] = handler
	return nil
}

// MustRegister 註冊 handler，失敗時 panic，僅供啟動期使用.
func (r *Registry) MustRegister(name Name, handler Handler) {
	if err := r.Register(name, handler); err != nil {
		panic(err)
	}
}

// Names 列出已註冊的 action 名稱.
func (r *Registry) Names() []Name {
	names := make([]Name, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// Invoke 解析名稱並調用 handler.
// 未註冊的名稱返回 UnknownAction；handler 的任何錯誤都被正規化為
// 封閉集合中的一種，呼叫方永遠看不到原始傳輸層異常.
func (r *Registry) Invoke(ctx context.Context, name Name, payload Payload) (interface{}, error) {
	handler, ok := r.handlers[name]
	if !ok {
		logger.Warning(ctx, "action not registered", logger.WithAction(string(name)))
		return nil, chaterr.Newf(chaterr.KindUnknownAction, "action %q is not registered", name)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	result, err := handler(ctx, payload)
	elapsed := time.Since(start)

	if err != nil {
		err = normalize(ctx, err)
		logger.Warning(ctx, "action failed",
			logger.WithAction(string(name)),
			logger.WithUserID(ActorFrom(ctx)),
			logger.WithDetails(map[string]interface{}{
				"kind":       string(chaterr.KindOf(err)),
				"elapsed_ms": elapsed.Milliseconds(),
			}))
		return nil, err
	}

	logger.Debug(ctx, "action completed",
		logger.WithAction(string(name)),
		logger.WithUserID(ActorFrom(ctx)),
		logger.WithDetails(map[string]interface{}{
			"elapsed_ms": elapsed.Milliseconds(),
		}))
	return result, nil
}

// normalize 把任意錯誤收斂到封閉失敗集合.
// context 超時一律視為 Timeout（結果不明確，由呼叫方決定是否重試）.
func normalize(ctx context.Context, err error) error {
	var typed *chaterr.Error
	if errors.As(err, &typed) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return chaterr.Wrap(err, chaterr.KindTimeout, "action exceeded its deadline")
	}
	return chaterr.Wrap(err, chaterr.KindConflict, "action failed")
}
