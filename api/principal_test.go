package api

import (
	"context"
	"testing"
)

func TestPrincipalContextRoundTrip(t *testing.T) {
	ctx := WithPrincipal(context.Background(), &Principal{ID: "  user-1  "})
	p := PrincipalFromContext(ctx)
	if p == nil || p.ID != "user-1" {
		t.Fatalf("principal = %+v, want trimmed user-1", p)
	}
}

func TestPrincipalContextEmpty(t *testing.T) {
	if p := PrincipalFromContext(context.Background()); p != nil {
		t.Fatalf("principal = %+v, want nil", p)
	}
	ctx := WithPrincipal(context.Background(), &Principal{ID: "   "})
	if p := PrincipalFromContext(ctx); p != nil {
		t.Fatalf("blank principal = %+v, want nil", p)
	}
}
