package web

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"
)

const (
	hashIterations = 10000
	hashKeyLength  = 32
	hashSaltLength = 16

	defaultTokenTTL = 24 * time.Hour
)

// HashPassword derives a "salt:hash" string for password, both parts base64
// encoded, using PBKDF2-SHA256
func HashPassword(password string) (string, error) {
	salt := make([]byte, hashSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	hash := pbkdf2.Key([]byte(password), salt, hashIterations, hashKeyLength, sha256.New)
	return base64.StdEncoding.EncodeToString(salt) + ":" + base64.StdEncoding.EncodeToString(hash), nil
}

// VerifyPassword checks password against a hash produced by HashPassword.
// Malformed hashes never verify.
func VerifyPassword(password, stored string) bool {
	saltPart, hashPart, ok := strings.Cut(stored, ":")
	if !ok {
		return false
	}
	salt, err := base64.StdEncoding.DecodeString(saltPart)
	if err != nil {
		return false
	}
	want, err := base64.StdEncoding.DecodeString(hashPart)
	if err != nil {
		return false
	}
	got := pbkdf2.Key([]byte(password), salt, hashIterations, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}

// Authenticator issues and validates bearer tokens for the management API
type Authenticator struct {
	hash  string
	plain string
	ttl   time.Duration

	mu     sync.Mutex
	tokens map[string]time.Time // token -> expiry
	now    func() time.Time
}

// NewAuthenticator creates an authenticator. hash takes precedence over the
// plain password; with neither configured every login fails.
func NewAuthenticator(hash, plain string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Authenticator{
		hash:   hash,
		plain:  plain,
		ttl:    ttl,
		tokens: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Login returns a new token when password is correct
func (a *Authenticator) Login(password string) (string, bool) {
	if !a.check(password) {
		return "", false
	}

	token := uuid.NewString()
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	for t, exp := range a.tokens {
		if now.After(exp) {
			delete(a.tokens, t)
		}
	}
	a.tokens[token] = now.Add(a.ttl)
	return token, true
}

func (a *Authenticator) check(password string) bool {
	switch {
	case a.hash != "":
		return VerifyPassword(password, a.hash)
	case a.plain != "":
		return subtle.ConstantTimeCompare([]byte(password), []byte(a.plain)) == 1
	default:
		return false
	}
}

// Valid reports whether token was issued and has not expired
func (a *Authenticator) Valid(token string) bool {
	if token == "" {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	exp, ok := a.tokens[token]
	if !ok {
		return false
	}
	if a.now().After(exp) {
		delete(a.tokens, token)
		return false
	}
	return true
}

// Require wraps next so it only runs for requests carrying a valid
// "Authorization: Bearer <token>" header
func (a *Authenticator) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		if !a.Valid(token) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
