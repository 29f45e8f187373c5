package message

import (
	"context"
	"testing"
	"time"

	"chat-core/internal/chaterr"

	"github.com/jonboulle/clockwork"
)

func TestReceiptRoundTrip(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewMemoryReceiptStore(clock)
	ctx := context.Background()

	if err := store.Put(ctx, &SendReceipt{
		Author:     "u1",
		ConverseID: "c1",
		Token:      "tok-1",
		MessageID:  "m1",
	}); err != nil {
		t.Fatal(err)
	}

	receipt, err := store.Get(ctx, "u1", "c1", "tok-1")
	if err != nil {
		t.Fatal(err)
	}
	if receipt.MessageID != "m1" {
		t.Errorf("MessageID = %s, want m1", receipt.MessageID)
	}

	// 同一鍵第二次寫入衝突，這是競速時的裁決依據
	err = store.Put(ctx, &SendReceipt{Author: "u1", ConverseID: "c1", Token: "tok-1", MessageID: "m2"})
	if !chaterr.Is(err, chaterr.KindConflict) {
		t.Fatalf("duplicate put should yield Conflict, got %v", err)
	}

	// 不同的 (author, converse, token) 互不干擾
	if _, err := store.Get(ctx, "u2", "c1", "tok-1"); !chaterr.Is(err, chaterr.KindNotFound) {
		t.Errorf("foreign author should yield NotFound, got %v", err)
	}
}

func TestReceiptExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewMemoryReceiptStore(clock)
	ctx := context.Background()

	if err := store.Put(ctx, &SendReceipt{Author: "u1", ConverseID: "c1", Token: "tok-1", MessageID: "m1"}); err != nil {
		t.Fatal(err)
	}

	// 保留期過後回執消失，令牌可以重用
	clock.Advance(receiptTTL + time.Minute)

	if _, err := store.Get(ctx, "u1", "c1", "tok-1"); !chaterr.Is(err, chaterr.KindNotFound) {
		t.Errorf("expired receipt should yield NotFound, got %v", err)
	}
	if err := store.Put(ctx, &SendReceipt{Author: "u1", ConverseID: "c1", Token: "tok-1", MessageID: "m9"}); err != nil {
		t.Errorf("token reuse after expiry should succeed, got %v", err)
	}
}
