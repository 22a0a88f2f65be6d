package actor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddlewareAttachesActor(t *testing.T) {
	var got string
	var ok bool
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(Header, "  alice ")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if !ok || got != "alice" {
		t.Fatalf("expected actor alice, got %q (ok=%v)", got, ok)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if ok {
		t.Fatalf("expected no actor without header, got %q", got)
	}
}

func TestOrSystem(t *testing.T) {
	if got := OrSystem(context.Background()); got != System {
		t.Errorf("OrSystem() = %q, want %q", got, System)
	}
	if got := OrSystem(WithActor(context.Background(), "bob")); got != "bob" {
		t.Errorf("OrSystem() = %q, want bob", got)
	}
}
