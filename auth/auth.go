// Package auth resolves the caller identity of an API request. Identity is
// used only to decide who may generate certificates and whose drafts a
// caller may see; the pipeline itself never looks at it.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"
	"sort"
	"strings"
)

// Anonymous is the subject used when no API keys are configured.
const Anonymous = "anonymous"

// ErrUnauthenticated is returned for a missing or unknown API key.
var ErrUnauthenticated = errors.New("missing or invalid API key")

// Identity is a resolved caller.
type Identity struct {
	Subject string `json:"subject"`
}

type credential struct {
	digest  [32]byte
	subject string
}

// Resolver maps API keys to subjects.
type Resolver struct {
	creds []credential
}

// NewResolver builds a resolver from key → subject pairs. With no keys the
// resolver is open: every request resolves to Anonymous.
func NewResolver(keys map[string]string) *Resolver {
	r := &Resolver{}
	for k, subject := range keys {
		if strings.TrimSpace(k) == "" {
			continue
		}
		r.creds = append(r.creds, credential{digest: sha256.Sum256([]byte(k)), subject: subject})
	}
	sort.Slice(r.creds, func(i, j int) bool { return r.creds[i].subject < r.creds[j].subject })
	return r
}

// Open reports whether the resolver accepts unauthenticated callers.
func (r *Resolver) Open() bool {
	return len(r.creds) == 0
}

// Resolve reads the key from X-API-Key or an Authorization bearer token.
func (r *Resolver) Resolve(req *http.Request) (Identity, error) {
	if r.Open() {
		return Identity{Subject: Anonymous}, nil
	}
	key := req.Header.Get("X-API-Key")
	if key == "" {
		if h := req.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
			key = strings.TrimSpace(h[7:])
		}
	}
	if key == "" {
		return Identity{}, ErrUnauthenticated
	}
	digest := sha256.Sum256([]byte(key))
	for _, c := range r.creds {
		if subtle.ConstantTimeCompare(digest[:], c.digest[:]) == 1 {
			return Identity{Subject: c.subject}, nil
		}
	}
	return Identity{}, ErrUnauthenticated
}

type ctxKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
