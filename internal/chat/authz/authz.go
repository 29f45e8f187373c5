package authz

import (
	"context"
	"sync"
)

// Authorizer 授權方接口.
// 消息服務把授權視為外部協作者提供的不透明判定，
// 在任何會寫存儲的操作之前調用；拒絕以 Forbidden 浮現給呼叫方.
type Authorizer interface {
	// CanPost 判斷 userID 是否可以向會話發消息.
	CanPost(ctx context.Context, userID, converseID string) (bool, error)
	// CanManage 判斷 userID 是否可以撤回/刪除指定作者的消息.
	// 作者本人總是允許；elevated 角色（管理員）也允許.
	CanManage(ctx context.Context, userID, author string) (bool, error)
}

// AllowAll 全部放行的授權方，供測試與單機開發使用.
type AllowAll struct{}

// CanPost 總是允許.
func (AllowAll) CanPost(ctx context.Context, userID, converseID string) (bool, error) {
	return true, nil
}

// CanManage 總是允許.
func (AllowAll) CanManage(ctx context.Context, userID, author string) (bool, error) {
	return true, nil
}

// MemberList 基於成員名單的授權方：
// 只有會話成員可以發消息，只有作者本人或 elevated 用戶可以撤回/刪除.
type MemberList struct {
	mu       sync.RWMutex
	members  map[string]map[string]bool
	elevated map[string]bool
}

// NewMemberList 創建成員名單授權方.
func NewMemberList() *MemberList {
	return &MemberList{
		members:  make(map[string]map[string]bool),
		elevated: make(map[string]bool),
	}
}

// AddMember 把用戶加入會話.
func (a *MemberList) AddMember(converseID, userID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.members[converseID] == nil {
		a.members[converseID] = make(map[string]bool)
	}
	a.members[converseID][userID] = true
}

// Elevate 授予用戶 elevated 角色.
func (a *MemberList) Elevate(userID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.elevated[userID] = true
}

// CanPost 只有成員可以發消息.
func (a *MemberList) CanPost(ctx context.Context, userID, converseID string) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.members[converseID][userID], nil
}

// CanManage 作者本人或 elevated 用戶可以撤回/刪除.
func (a *MemberList) CanManage(ctx context.Context, userID, author string) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return userID == author || a.elevated[userID], nil
}
