// Package auth resolves API credentials presented by HTTP callers.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
)

// Principal identifies an authenticated caller
type Principal struct {
	Name string
}

// Store looks up the principal owning a token
type Store interface {
	Lookup(token string) (Principal, bool)
}

type key struct {
	name   string
	digest [sha256.Size]byte
}

// KeyStore is a fixed set of API keys held as digests
type KeyStore struct {
	keys []key
}

// NewKeyStore builds a store from configured keys. A key may be given as
// "name:secret"; bare secrets are named key-1, key-2 and so on. Blank
// entries are ignored.
func NewKeyStore(entries []string) *KeyStore {
	s := &KeyStore{}

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		name := fmt.Sprintf("key-%d", len(s.keys)+1)
		secret := entry

		if i := strings.Index(entry, ":"); i > 0 && i < len(entry)-1 {
			name, secret = entry[:i], entry[i+1:]
		}

		s.keys = append(s.keys, key{name: name, digest: sha256.Sum256([]byte(secret))})
	}

	return s
}

// Len returns the number of configured keys
func (s *KeyStore) Len() int {
	return len(s.keys)
}

// Lookup compares the token against every key in constant time
func (s *KeyStore) Lookup(token string) (Principal, bool) {
	if token == "" {
		return Principal{}, false
	}

	digest := sha256.Sum256([]byte(token))

	var (
		match Principal
		found int
	)

	for _, k := range s.keys {
		eq := subtle.ConstantTimeCompare(digest[:], k.digest[:])
		if eq == 1 && found == 0 {
			match = Principal{Name: k.name}
		}

		found |= eq
	}

	return match, found == 1
}

// TokenFromRequest reads "Authorization: Bearer <token>", falling back to X-API-Key
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}

		return ""
	}

	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

type contextKey struct{}

// WithPrincipal stores the caller in ctx
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the caller stored in ctx
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}
