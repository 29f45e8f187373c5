package action

import (
	"context"
	"testing"
	"time"

	"chat-core/internal/chaterr"

	"github.com/pkg/errors"
)

func TestInvokeUnknownAction(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Invoke(context.Background(), Name("chat.message.doesNotExist"), Payload{})
	if !chaterr.Is(err, chaterr.KindUnknownAction) {
		t.Fatalf("unknown action should yield UnknownAction, got %v", err)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	registry := NewRegistry()
	handler := func(ctx context.Context, payload Payload) (interface{}, error) { return nil, nil }

	if err := registry.Register(MessageSend, handler); err != nil {
		t.Fatal(err)
	}
	if err := registry.Register(MessageSend, handler); err == nil {
		t.Fatal("duplicate registration should fail")
	}
}

func TestInvokeNormalizesUntypedError(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(MessageSend, func(ctx context.Context, payload Payload) (interface{}, error) {
		return nil, errors.New("raw driver failure")
	})

	_, err := registry.Invoke(context.Background(), MessageSend, Payload{})
	if !chaterr.Is(err, chaterr.KindConflict) {
		t.Fatalf("untyped error should normalize to Conflict, got %v", err)
	}
}

func TestInvokePassesTypedErrorThrough(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(MessageRecall, func(ctx context.Context, payload Payload) (interface{}, error) {
		return nil, chaterr.New(chaterr.KindNotFound, "message gone")
	})

	_, err := registry.Invoke(context.Background(), MessageRecall, Payload{})
	if !chaterr.Is(err, chaterr.KindNotFound) {
		t.Fatalf("typed error should pass through, got %v", err)
	}
}

func TestInvokeTimeout(t *testing.T) {
	registry := NewRegistry(WithInvokeTimeout(20 * time.Millisecond))
	registry.MustRegister(MessageSend, func(ctx context.Context, payload Payload) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, err := registry.Invoke(context.Background(), MessageSend, Payload{})
	if !chaterr.Is(err, chaterr.KindTimeout) {
		t.Fatalf("deadline overrun should yield Timeout, got %v", err)
	}
}

func TestActorRoundTrip(t *testing.T) {
	ctx := WithActor(context.Background(), "user-1")
	if got := ActorFrom(ctx); got != "user-1" {
		t.Errorf("ActorFrom() = %q, want user-1", got)
	}
	if got := ActorFrom(context.Background()); got != "" {
		t.Errorf("ActorFrom() on bare context = %q, want empty", got)
	}
}

func TestPayloadString(t *testing.T) {
	payload := Payload{"converseId": "c1", "blank": "   "}

	if v, err := payload.String("converseId"); err != nil || v != "c1" {
		t.Errorf("String(converseId) = %q, %v", v, err)
	}
	if _, err := payload.String("missing"); !chaterr.Is(err, chaterr.KindValidation) {
		t.Errorf("missing field should yield ValidationError, got %v", err)
	}
	if _, err := payload.String("blank"); !chaterr.Is(err, chaterr.KindValidation) {
		t.Errorf("blank field should yield ValidationError, got %v", err)
	}
}

func TestPayloadStringSlice(t *testing.T) {
	// JSON 解碼後陣列是 []interface{}
	payload := Payload{
		"decoded": []interface{}{"u1", "u2"},
		"typed":   []string{"u3"},
		"bad":     []interface{}{"u1", 42},
	}

	got, err := payload.StringSlice("decoded")
	if err != nil || len(got) != 2 || got[0] != "u1" {
		t.Errorf("StringSlice(decoded) = %v, %v", got, err)
	}
	if got, err := payload.StringSlice("typed"); err != nil || len(got) != 1 {
		t.Errorf("StringSlice(typed) = %v, %v", got, err)
	}
	if got, err := payload.StringSlice("missing"); err != nil || got != nil {
		t.Errorf("missing slice should be nil without error, got %v, %v", got, err)
	}
	if _, err := payload.StringSlice("bad"); !chaterr.Is(err, chaterr.KindValidation) {
		t.Errorf("mixed array should yield ValidationError, got %v", err)
	}
}
