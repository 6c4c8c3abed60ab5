package tools

import (
	"context"
	"testing"
)

func TestCallerFromContext(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want Caller
	}{
		{"zero when unset", context.Background(), Caller{}},
		{
			"round trip",
			WithCaller(context.Background(), Caller{BusinessID: "salon-1", UserID: "5511999990000", RequestID: "req-1"}),
			Caller{BusinessID: "salon-1", UserID: "5511999990000", RequestID: "req-1"},
		},
		{
			"privileged preserved",
			WithCaller(context.Background(), Caller{UserID: "owner", Privileged: true}),
			Caller{UserID: "owner", Privileged: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CallerFromContext(tt.ctx); got != tt.want {
				t.Errorf("CallerFromContext() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestWithCaller_InnerWins(t *testing.T) {
	ctx := WithCaller(context.Background(), Caller{UserID: "a", Privileged: true})
	ctx = WithCaller(ctx, Caller{UserID: "b"})

	got := CallerFromContext(ctx)
	if got.UserID != "b" || got.Privileged {
		t.Errorf("CallerFromContext() = %+v, want user b without privilege", got)
	}
}
