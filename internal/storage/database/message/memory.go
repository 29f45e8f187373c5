package message

import (
	"context"
	"sort"
	"sync"
	"time"

	"chat-core/internal/chaterr"

	"github.com/jonboulle/clockwork"
)

// MemoryStore 消息存儲的記憶體實作.
// 供單元測試與無資料庫的本地開發使用，語義與 MongoStore 一致：
// 墓碑終局、表情集合語義、基於 ID 的排他游標.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string]*Message
	clock    clockwork.Clock
}

// NewMemoryStore 創建記憶體消息存儲.
func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		messages: make(map[string]*Message),
		clock:    clock,
	}
}

// Insert 提交消息.
func (s *MemoryStore) Insert(ctx context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().UTC()
	msg.ID = NewID()
	msg.CreatedAt = now
	msg.UpdatedAt = now
	if msg.Reactions == nil {
		msg.Reactions = []Reaction{}
	}

	clone := *msg
	s.messages[msg.ID] = &clone
	return nil
}

// GetByID 獲取單條消息.
func (s *MemoryStore) GetByID(ctx context.Context, id string) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, err := s.getLive(id)
	if err != nil {
		return nil, err
	}
	return copyOf(msg), nil
}

// FetchByConversation 按會話分頁讀取，新消息在前.
func (s *MemoryStore) FetchByConversation(ctx context.Context, converseID, startID string, limit int) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	live := s.liveByConversation(converseID)
	// 新消息在前
	sort.Slice(live, func(i, j int) bool { return live[i].ID > live[j].ID })

	result := make([]*Message, 0, limit)
	for _, msg := range live {
		if startID != "" && msg.ID >= startID {
			continue
		}
		result = append(result, copyOf(msg))
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

// FetchNearby 以錨點為中心讀取，舊消息在前.
func (s *MemoryStore) FetchNearby(ctx context.Context, converseID, anchorID string, window int) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	anchor, err := s.getLive(anchorID)
	if err != nil {
		return nil, err
	}
	if anchor.ConverseID != converseID {
		return nil, chaterr.Newf(chaterr.KindNotFound, "message %s not in conversation %s", anchorID, converseID)
	}

	live := s.liveByConversation(converseID)
	sort.Slice(live, func(i, j int) bool { return live[i].ID < live[j].ID })

	idx := -1
	for i, msg := range live {
		if msg.ID == anchorID {
			idx = i
			break
		}
	}

	lo := idx - window
	if lo < 0 {
		lo = 0
	}
	hi := idx + window + 1
	if hi > len(live) {
		hi = len(live)
	}

	result := make([]*Message, 0, hi-lo)
	for _, msg := range live[lo:hi] {
		result = append(result, copyOf(msg))
	}
	return result, nil
}

// FetchLastPerConversation 取每個會話最後一條存活消息的 ID.
func (s *MemoryStore) FetchLastPerConversation(ctx context.Context, converseIDs []string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]string)
	for _, converseID := range converseIDs {
		for _, msg := range s.liveByConversation(converseID) {
			if last, ok := result[converseID]; !ok || msg.ID > last {
				result[converseID] = msg.ID
			}
		}
	}
	return result, nil
}

// CountByDay 按天統計存活消息數.
func (s *MemoryStore) CountByDay(ctx context.Context, since, until time.Time) ([]DayCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byDay := make(map[string]int)
	for _, msg := range s.messages {
		if msg.DeletedAt != nil {
			continue
		}
		if msg.CreatedAt.Before(since) || !msg.CreatedAt.Before(until) {
			continue
		}
		byDay[msg.CreatedAt.UTC().Format("2006-01-02")]++
	}

	dates := make([]string, 0, len(byDay))
	for date := range byDay {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	counts := make([]DayCount, 0, len(dates))
	for _, date := range dates {
		counts = append(counts, DayCount{Date: date, Count: byDay[date]})
	}
	return counts, nil
}

// SetRecalled 標記撤回，冪等.
func (s *MemoryStore) SetRecalled(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, err := s.getLive(id)
	if err != nil {
		return err
	}
	msg.HasRecall = true
	msg.UpdatedAt = s.clock.Now().UTC()
	return nil
}

// Tombstone 墓碑化消息.
func (s *MemoryStore) Tombstone(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, err := s.getLive(id)
	if err != nil {
		return err
	}
	now := s.clock.Now().UTC()
	msg.DeletedAt = &now
	msg.UpdatedAt = now
	return nil
}

// AddReaction 添加表情，重複添加為 no-op.
func (s *MemoryStore) AddReaction(ctx context.Context, id, emoji, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, err := s.getLive(id)
	if err != nil {
		return err
	}
	if msg.HasReaction(emoji, userID) {
		return nil
	}
	msg.Reactions = append(msg.Reactions, Reaction{
		Emoji:     emoji,
		UserID:    userID,
		CreatedAt: s.clock.Now().UTC(),
	})
	msg.UpdatedAt = s.clock.Now().UTC()
	return nil
}

// RemoveReaction 移除表情，移除不存在的配對為 no-op.
func (s *MemoryStore) RemoveReaction(ctx context.Context, id, emoji, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, err := s.getLive(id)
	if err != nil {
		return err
	}
	kept := msg.Reactions[:0]
	for _, r := range msg.Reactions {
		if r.Emoji == emoji && r.UserID == userID {
			continue
		}
		kept = append(kept, r)
	}
	msg.Reactions = kept
	msg.UpdatedAt = s.clock.Now().UTC()
	return nil
}

// getLive 取出存活消息，呼叫方必須持有鎖.
func (s *MemoryStore) getLive(id string) (*Message, error) {
	msg, ok := s.messages[id]
	if !ok || msg.DeletedAt != nil {
		return nil, chaterr.Newf(chaterr.KindNotFound, "message %s not found", id)
	}
	return msg, nil
}

// liveByConversation 列出會話內的存活消息，呼叫方必須持有鎖.
func (s *MemoryStore) liveByConversation(converseID string) []*Message {
	var live []*Message
	for _, msg := range s.messages {
		if msg.ConverseID == converseID && msg.DeletedAt == nil {
			live = append(live, msg)
		}
	}
	return live
}

// copyOf 返回消息的淺拷貝加表情切片拷貝，避免讀取方看到在途寫入.
func copyOf(msg *Message) *Message {
	clone := *msg
	clone.Reactions = append([]Reaction(nil), msg.Reactions...)
	return &clone
}
