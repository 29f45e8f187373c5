package message

import (
	"context"

	"chat-core/internal/action"
)

// Register 把消息服務的操作綁定到分發器.
// handler 只做 payload 到類型化請求的翻譯，業務規則全部留在服務內.
func (s *Service) Register(registry *action.Registry) {
	registry.MustRegister(action.MessageSend, s.handleSend)
	registry.MustRegister(action.MessageRecall, s.handleRecall)
	registry.MustRegister(action.MessageDelete, s.handleDelete)
	registry.MustRegister(action.MessageAddReaction, s.handleAddReaction)
	registry.MustRegister(action.MessageRemoveReaction, s.handleRemoveReaction)
	registry.MustRegister(action.MessageFetchConverse, s.handleFetchConverse)
	registry.MustRegister(action.MessageFetchNearby, s.handleFetchNearby)
	registry.MustRegister(action.MessageFetchConverseLastIDs, s.handleFetchConverseLast)
}

func (s *Service) handleSend(ctx context.Context, payload action.Payload) (interface{}, error) {
	converseID, err := payload.String("converseId")
	if err != nil {
		return nil, err
	}
	content, err := payload.String("content")
	if err != nil {
		return nil, err
	}
	mentions, err := payload.StringSlice("mentions")
	if err != nil {
		return nil, err
	}
	meta, err := payload.StringMap("meta")
	if err != nil {
		return nil, err
	}
	req := &SendRequest{
		ConverseID: converseID,
		GroupID:    payload.OptionalString("groupId"),
		Content:    content,
		Plain:      payload.OptionalString("plain"),
		Mentions:   mentions,
		Token:      payload.OptionalString("token"),
	}
	if meta != nil && req.Mentions == nil {
		req.Mentions, err = action.Payload(meta).StringSlice("mentions")
		if err != nil {
			return nil, err
		}
	}
	return s.SendMessage(ctx, req)
}

func (s *Service) handleRecall(ctx context.Context, payload action.Payload) (interface{}, error) {
	messageID, err := payload.String("messageId")
	if err != nil {
		return nil, err
	}
	return s.RecallMessage(ctx, messageID)
}

func (s *Service) handleDelete(ctx context.Context, payload action.Payload) (interface{}, error) {
	messageID, err := payload.String("messageId")
	if err != nil {
		return nil, err
	}
	if err := s.DeleteMessage(ctx, messageID); err != nil {
		return nil, err
	}
	return true, nil
}

func (s *Service) handleAddReaction(ctx context.Context, payload action.Payload) (interface{}, error) {
	messageID, err := payload.String("messageId")
	if err != nil {
		return nil, err
	}
	emoji, err := payload.String("emoji")
	if err != nil {
		return nil, err
	}
	if err := s.AddReaction(ctx, messageID, emoji); err != nil {
		return nil, err
	}
	return true, nil
}

func (s *Service) handleRemoveReaction(ctx context.Context, payload action.Payload) (interface{}, error) {
	messageID, err := payload.String("messageId")
	if err != nil {
		return nil, err
	}
	emoji, err := payload.String("emoji")
	if err != nil {
		return nil, err
	}
	if err := s.RemoveReaction(ctx, messageID, emoji); err != nil {
		return nil, err
	}
	return true, nil
}

func (s *Service) handleFetchConverse(ctx context.Context, payload action.Payload) (interface{}, error) {
	converseID, err := payload.String("converseId")
	if err != nil {
		return nil, err
	}
	return s.FetchConverseMessage(ctx, converseID, payload.OptionalString("startId"))
}

func (s *Service) handleFetchNearby(ctx context.Context, payload action.Payload) (interface{}, error) {
	converseID, err := payload.String("converseId")
	if err != nil {
		return nil, err
	}
	messageID, err := payload.String("messageId")
	if err != nil {
		return nil, err
	}
	return s.FetchNearbyMessage(ctx, converseID, messageID)
}

func (s *Service) handleFetchConverseLast(ctx context.Context, payload action.Payload) (interface{}, error) {
	converseIDs, err := payload.StringSlice("converseIds")
	if err != nil {
		return nil, err
	}
	return s.FetchConverseLastMessages(ctx, converseIDs)
}
