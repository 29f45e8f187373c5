package authz

import (
	"context"
	"testing"
)

func TestMemberList(t *testing.T) {
	ctx := context.Background()
	az := NewMemberList()
	az.AddMember("c1", "u1")
	az.Elevate("admin")

	testCases := []struct {
		name string
		got  bool
		want bool
	}{
		{"Member can post", canPost(t, az, ctx, "u1", "c1"), true},
		{"Outsider cannot post", canPost(t, az, ctx, "u2", "c1"), false},
		{"Unknown conversation rejects", canPost(t, az, ctx, "u1", "c9"), false},
		{"Author can manage own message", canManage(t, az, ctx, "u1", "u1"), true},
		{"Others cannot manage", canManage(t, az, ctx, "u2", "u1"), false},
		{"Elevated can manage any", canManage(t, az, ctx, "admin", "u1"), true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Errorf("got %v, want %v", tc.got, tc.want)
			}
		})
	}
}

func canPost(t *testing.T, az Authorizer, ctx context.Context, userID, converseID string) bool {
	t.Helper()
	ok, err := az.CanPost(ctx, userID, converseID)
	if err != nil {
		t.Fatal(err)
	}
	return ok
}

func canManage(t *testing.T, az Authorizer, ctx context.Context, userID, author string) bool {
	t.Helper()
	ok, err := az.CanManage(ctx, userID, author)
	if err != nil {
		t.Fatal(err)
	}
	return ok
}
