package kit

import (
	"context"
	"errors"
	"testing"
)

func TestChain_Order(t *testing.T) {
	var order []string

	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				order = append(order, name+"_before")
				resp, err := next(ctx, req)
				order = append(order, name+"_after")
				return resp, err
			}
		}
	}

	base := func(_ context.Context, _ any) (any, error) {
		order = append(order, "endpoint")
		return "ok", nil
	}

	chained := Chain(mw("a"), mw("b"), mw("c"))(base)
	resp, err := chained(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp != "ok" {
		t.Fatalf("response: got %v", resp)
	}

	expected := []string{"a_before", "b_before", "c_before", "endpoint", "c_after", "b_after", "a_after"}
	if len(order) != len(expected) {
		t.Fatalf("order length: got %d, want %d", len(order), len(expected))
	}
	for i, v := range expected {
		if order[i] != v {
			t.Fatalf("order[%d]: got %q, want %q", i, order[i], v)
		}
	}
}

func TestChain_ErrorPropagation(t *testing.T) {
	errFail := errors.New("fail")
	base := func(_ context.Context, _ any) (any, error) {
		return nil, errFail
	}

	noop := func(next Endpoint) Endpoint { return next }
	chained := Chain(noop)(base)

	_, err := chained(context.Background(), nil)
	if !errors.Is(err, errFail) {
		t.Fatalf("error: got %v, want %v", err, errFail)
	}
}

func TestContext_Transport_Default(t *testing.T) {
	ctx := context.Background()
	if v := GetTransport(ctx); v != "http" {
		t.Fatalf("default transport: got %q, want 'http'", v)
	}
}

func TestContext_Transport_Set(t *testing.T) {
	ctx := WithTransport(context.Background(), "mcp")
	if v := GetTransport(ctx); v != "mcp" {
		t.Fatalf("transport: got %q", v)
	}
}

func TestContext_TraceID(t *testing.T) {
	ctx := WithTraceID(context.Background(), "trc_xyz")
	if v := GetTraceID(ctx); v != "trc_xyz" {
		t.Fatalf("trace_id: got %q", v)
	}
	if v := GetTraceID(context.Background()); v != "" {
		t.Fatalf("trace_id default: got %q", v)
	}
}

func TestScope_Restricted(t *testing.T) {
	// WHAT: A restricted scope only allows the listed projects.
	// WHY: Every project operation is authorized through it.
	s := GetScope(WithProjectScope(context.Background(), "p1", "", "p2"))
	if !s.Allows("p1") || !s.Allows("p2") {
		t.Fatal("listed projects must be allowed")
	}
	if s.Allows("p3") || s.Allows("") {
		t.Fatal("unlisted project allowed")
	}
	if s.Unrestricted() {
		t.Fatal("restricted scope reports unrestricted")
	}

	s.Grant("p3")
	if !s.Allows("p3") {
		t.Fatal("granted project not allowed")
	}
}

func TestScope_Unrestricted(t *testing.T) {
	s := GetScope(WithUnrestrictedScope(context.Background()))
	if !s.Allows("anything") || !s.Unrestricted() {
		t.Fatal("unrestricted scope must allow every project")
	}
}

func TestScope_Missing(t *testing.T) {
	s := GetScope(context.Background())
	if s != nil {
		t.Fatal("expected nil scope")
	}
	if s.Allows("p1") {
		t.Fatal("nil scope must allow nothing")
	}
	s.Grant("p1") // must not panic
}
