package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
)

func TestOpenResolver(t *testing.T) {
	r := NewResolver(nil)
	if !r.Open() {
		t.Fatal("resolver without keys should be open")
	}
	id, err := r.Resolve(httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id.Subject != Anonymous {
		t.Errorf("subject: got %q, want %q", id.Subject, Anonymous)
	}
}

func TestResolveKeys(t *testing.T) {
	r := NewResolver(map[string]string{"k-alice": "alice", "k-bob": "bob", " ": "ignored"})
	if r.Open() {
		t.Fatal("resolver with keys should not be open")
	}

	tests := []struct {
		name    string
		header  string
		value   string
		subject string
		ok      bool
	}{
		{"api key header", "X-API-Key", "k-alice", "alice", true},
		{"bearer", "Authorization", "Bearer k-bob", "bob", true},
		{"bearer lower case", "Authorization", "bearer k-bob", "bob", true},
		{"wrong key", "X-API-Key", "k-eve", "", false},
		{"basic auth", "Authorization", "Basic k-bob", "", false},
		{"no header", "", "", "", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/", nil)
		if tt.header != "" {
			req.Header.Set(tt.header, tt.value)
		}
		id, err := r.Resolve(req)
		if !tt.ok {
			if !errors.Is(err, ErrUnauthenticated) {
				t.Errorf("%s: got %v, want ErrUnauthenticated", tt.name, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if id.Subject != tt.subject {
			t.Errorf("%s: subject %q, want %q", tt.name, id.Subject, tt.subject)
		}
	}
}

func TestContext(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Error("empty context should carry no identity")
	}
	id, ok := FromContext(WithIdentity(context.Background(), Identity{Subject: "alice"}))
	if !ok || id.Subject != "alice" {
		t.Errorf("FromContext: got %+v, %v", id, ok)
	}
}
