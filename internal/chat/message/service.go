package message

import (
	"context"
	"strings"

	"chat-core/internal/action"
	"chat-core/internal/chat/authz"
	"chat-core/internal/chaterr"
	"chat-core/internal/constants"
	"chat-core/internal/platform/logger"
	"chat-core/internal/storage/database/message"

	"github.com/jonboulle/clockwork"
)

// Service 消息服務.
// 實作發送/撤回/刪除/表情/讀取的完整生命週期；
// 所有寫入前先過授權方，單一消息上的寫入以 per-id 互斥串行化.
type Service struct {
	messages message.Repository
	receipts message.ReceiptRepository
	authz    authz.Authorizer
	clock    clockwork.Clock
	locks    *keyedMutex

	pageSize     int
	nearbyWindow int
}

// ServiceOption 服務選項.
type ServiceOption func(*Service)

// WithPageSize 設定會話分頁的頁大小.
func WithPageSize(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithNearbyWindow 設定 nearby 查詢的半窗大小.
func WithNearbyWindow(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.nearbyWindow = n
		}
	}
}

// NewService 創建消息服務.
func NewService(messages message.Repository, receipts message.ReceiptRepository, az authz.Authorizer, clock clockwork.Clock, opts ...ServiceOption) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Service{
		messages:     messages,
		receipts:     receipts,
		authz:        az,
		clock:        clock,
		locks:        newKeyedMutex(),
		pageSize:     constants.DefaultPageSize,
		nearbyWindow: constants.DefaultNearbyWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// actor 取出操作者身份，缺失視為未授權.
func actor(ctx context.Context) (string, error) {
	userID := action.ActorFrom(ctx)
	if userID == "" {
		return "", chaterr.New(chaterr.KindForbidden, "request carries no actor identity")
	}
	return userID, nil
}

// SendMessage 發送消息.
// 帶冪等令牌時，同一 (author, converseId, token) 的重試返回首次提交的消息，
// 不產生第二條持久消息.
func (s *Service) SendMessage(ctx context.Context, req *SendRequest) (*message.Message, error) {
	userID, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := ValidateSendRequest(req); err != nil {
		return nil, err
	}

	allowed, err := s.authz.CanPost(ctx, userID, req.ConverseID)
	if err != nil {
		return nil, chaterr.Wrap(err, chaterr.KindConflict, "authorization check failed")
	}
	if !allowed {
		return nil, chaterr.Newf(chaterr.KindForbidden, "user %s cannot post to conversation %s", userID, req.ConverseID)
	}

	// 冪等令牌命中：直接返回已提交的消息
	if req.Token != "" {
		if receipt, err := s.receipts.Get(ctx, userID, req.ConverseID, req.Token); err == nil {
			return s.messages.GetByID(ctx, receipt.MessageID)
		} else if !chaterr.Is(err, chaterr.KindNotFound) {
			return nil, err
		}
	}

	msg := &message.Message{
		ConverseID: req.ConverseID,
		GroupID:    req.GroupID,
		Author:     userID,
		Content:    strings.TrimSpace(req.Content),
		Plain:      req.Plain,
		Mentions:   req.Mentions,
	}
	if err := s.messages.Insert(ctx, msg); err != nil {
		return nil, err
	}

	if req.Token != "" {
		// 插入與回執必須一起可見：回執寫入不受呼叫方取消影響，
		// 否則截止時間在兩步之間觸發會留下無回執的消息，令同令牌重試再插一條
		putCtx := context.WithoutCancel(ctx)
		err := s.receipts.Put(putCtx, &message.SendReceipt{
			Author:     userID,
			ConverseID: req.ConverseID,
			Token:      req.Token,
			MessageID:  msg.ID,
		})
		if chaterr.Is(err, chaterr.KindConflict) {
			// 兩個帶同一令牌的提交競速：落敗方收回自己的插入，返回勝出方的消息
			if tombErr := s.messages.Tombstone(putCtx, msg.ID); tombErr != nil {
				logger.Warningf(ctx, "收回重複提交失敗: %v", tombErr)
			}
			receipt, getErr := s.receipts.Get(putCtx, userID, req.ConverseID, req.Token)
			if getErr != nil {
				return nil, chaterr.Wrap(getErr, chaterr.KindConflict, "duplicate send raced and receipt is unreadable")
			}
			return s.messages.GetByID(putCtx, receipt.MessageID)
		}
		if err != nil {
			// 回執寫失敗時收回本次插入，讓同令牌重試至多產生一條消息
			if tombErr := s.messages.Tombstone(putCtx, msg.ID); tombErr != nil {
				logger.Warningf(ctx, "收回無回執的提交失敗: %v", tombErr)
			}
			return nil, err
		}
	}

	logger.Info(ctx, "message sent",
		logger.WithUserID(userID),
		logger.WithConverseID(msg.ConverseID),
		logger.WithMessageID(msg.ID),
		logger.WithAction(string(action.MessageSend)))
	return msg, nil
}

// RecallMessage 撤回消息.
// 對已撤回消息重複調用是 no-op 成功；墓碑化或不存在返回 NotFound.
func (s *Service) RecallMessage(ctx context.Context, messageID string) (*message.Message, error) {
	userID, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateMessageID(messageID); err != nil {
		return nil, err
	}

	s.locks.lock(messageID)
	defer s.locks.unlock(messageID)

	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.requireManage(ctx, userID, msg.Author); err != nil {
		return nil, err
	}
	if err := s.messages.SetRecalled(ctx, messageID); err != nil {
		return nil, err
	}

	logger.Info(ctx, "message recalled",
		logger.WithUserID(userID),
		logger.WithMessageID(messageID),
		logger.WithAction(string(action.MessageRecall)))
	return s.messages.GetByID(ctx, messageID)
}

// DeleteMessage 永久刪除消息（墓碑化）.
func (s *Service) DeleteMessage(ctx context.Context, messageID string) error {
	userID, err := actor(ctx)
	if err != nil {
		return err
	}
	if err := validateMessageID(messageID); err != nil {
		return err
	}

	s.locks.lock(messageID)
	defer s.locks.unlock(messageID)

	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.requireManage(ctx, userID, msg.Author); err != nil {
		return err
	}
	if err := s.messages.Tombstone(ctx, messageID); err != nil {
		return err
	}

	logger.Info(ctx, "message deleted",
		logger.WithUserID(userID),
		logger.WithMessageID(messageID),
		logger.WithAction(string(action.MessageDelete)))
	return nil
}

// AddReaction 添加表情，冪等；對已撤回但未刪除的消息允許.
func (s *Service) AddReaction(ctx context.Context, messageID, emoji string) error {
	userID, err := actor(ctx)
	if err != nil {
		return err
	}
	if err := validateMessageID(messageID); err != nil {
		return err
	}
	if err := validateEmoji(emoji); err != nil {
		return err
	}

	s.locks.lock(messageID)
	defer s.locks.unlock(messageID)

	return s.messages.AddReaction(ctx, messageID, emoji, userID)
}

// RemoveReaction 移除表情，移除不存在的配對是 no-op.
func (s *Service) RemoveReaction(ctx context.Context, messageID, emoji string) error {
	userID, err := actor(ctx)
	if err != nil {
		return err
	}
	if err := validateMessageID(messageID); err != nil {
		return err
	}
	if err := validateEmoji(emoji); err != nil {
		return err
	}

	s.locks.lock(messageID)
	defer s.locks.unlock(messageID)

	return s.messages.RemoveReaction(ctx, messageID, emoji, userID)
}

// FetchConverseMessage 按會話分頁讀取，固定頁大小，新消息在前.
func (s *Service) FetchConverseMessage(ctx context.Context, converseID, startID string) ([]*message.Message, error) {
	if strings.TrimSpace(converseID) == "" {
		return nil, chaterr.New(chaterr.KindValidation, "converseId cannot be empty")
	}
	if startID != "" {
		if err := validateMessageID(startID); err != nil {
			return nil, err
		}
	}
	return s.messages.FetchByConversation(ctx, converseID, startID, s.pageSize)
}

// FetchNearbyMessage 以指定消息為中心讀取上下文.
func (s *Service) FetchNearbyMessage(ctx context.Context, converseID, messageID string) ([]*message.Message, error) {
	if strings.TrimSpace(converseID) == "" {
		return nil, chaterr.New(chaterr.KindValidation, "converseId cannot be empty")
	}
	if err := validateMessageID(messageID); err != nil {
		return nil, err
	}
	return s.messages.FetchNearby(ctx, converseID, messageID, s.nearbyWindow)
}

// FetchConverseLastMessages 取每個會話最後一條消息的 ID.
// 空的輸入列表返回空結果而非錯誤.
func (s *Service) FetchConverseLastMessages(ctx context.Context, converseIDs []string) ([]LastMessage, error) {
	result := make([]LastMessage, 0, len(converseIDs))
	if len(converseIDs) == 0 {
		return result, nil
	}

	last, err := s.messages.FetchLastPerConversation(ctx, converseIDs)
	if err != nil {
		return nil, err
	}
	// 保持輸入順序，沒有存活消息的會話被省略
	for _, converseID := range converseIDs {
		if messageID, ok := last[converseID]; ok {
			result = append(result, LastMessage{ConverseID: converseID, LastMessageID: messageID})
		}
	}
	return result, nil
}

// requireManage 檢查撤回/刪除權限.
func (s *Service) requireManage(ctx context.Context, userID, author string) error {
	allowed, err := s.authz.CanManage(ctx, userID, author)
	if err != nil {
		return chaterr.Wrap(err, chaterr.KindConflict, "authorization check failed")
	}
	if !allowed {
		return chaterr.Newf(chaterr.KindForbidden, "user %s cannot manage this message", userID)
	}
	return nil
}
