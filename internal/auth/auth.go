// Package auth authenticates HTTP Basic credentials against an htpasswd file
// and derives the opaque owner id the fragment core partitions by.
package auth

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadHtpasswd  = errors.New("malformed htpasswd entry")
)

// User is an authenticated principal.
type User struct {
	Username string
	// OwnerID is HashOwner(Username).
	OwnerID string
}

// HashOwner derives the owner id from a username (usually an email). The raw
// credential never reaches storage.
func HashOwner(username string) string {
	sum := sha256.Sum256([]byte(username))
	return hex.EncodeToString(sum[:])
}

// AuthManager verifies credentials against bcrypt htpasswd entries.
type AuthManager struct {
	mu     sync.RWMutex
	hashes map[string][]byte
}

// NewAuthManager returns a manager with no users.
func NewAuthManager() *AuthManager {
	return &AuthManager{hashes: make(map[string][]byte)}
}

// LoadHtpasswdFile reads an htpasswd file into a new manager.
func LoadHtpasswdFile(path string) (*AuthManager, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open htpasswd: %w", err)
	}
	defer f.Close()
	m := NewAuthManager()
	if err := m.Load(f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Load parses "user:bcrypt-hash" lines, replacing existing users on name
// collision. Blank lines and # comments are skipped.
//
// Only bcrypt entries ($2a$, $2b$, $2y$, as written by htpasswd -B) are
// accepted. Apache MD5 ($apr1$), {SHA} and crypt entries fail the whole load
// with ErrBadHtpasswd.
func (m *AuthManager) Load(r io.Reader) error {
	parsed := make(map[string][]byte)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		user, hash, ok := strings.Cut(text, ":")
		if !ok || user == "" {
			return fmt.Errorf("%w: line %d", ErrBadHtpasswd, line)
		}
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return fmt.Errorf("%w: line %d: only bcrypt hashes are supported", ErrBadHtpasswd, line)
		}
		parsed[user] = []byte(hash)
	}
	if err := sc.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for user, hash := range parsed {
		m.hashes[user] = hash
	}
	return nil
}

// AddUser registers username with a freshly hashed password.
func (m *AuthManager) AddUser(username, password string, cost int) error {
	if username == "" || strings.Contains(username, ":") {
		return fmt.Errorf("invalid username %q", username)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.hashes[username] = hash
	m.mu.Unlock()
	return nil
}

// Len returns the number of known users.
func (m *AuthManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hashes)
}

// Authenticate checks a username and password.
func (m *AuthManager) Authenticate(username, password string) (User, error) {
	m.mu.RLock()
	hash, ok := m.hashes[username]
	m.mu.RUnlock()
	if !ok {
		return User{}, ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return User{}, ErrUnauthorized
	}
	return User{Username: username, OwnerID: HashOwner(username)}, nil
}

type ctxKey struct{}

// WithUser stores u in ctx.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFromCtx returns the user set by Basic.
func UserFromCtx(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(ctxKey{}).(User)
	return u, ok
}

// Basic requires valid Basic credentials. Failures go to deny, which must
// write the response.
func (m *AuthManager) Basic(realm string, deny func(http.ResponseWriter, *http.Request), next http.Handler) http.Handler {
	challenge := fmt.Sprintf("Basic realm=%q", realm)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", challenge)
			deny(w, r)
			return
		}
		u, err := m.Authenticate(username, password)
		if err != nil {
			w.Header().Set("WWW-Authenticate", challenge)
			deny(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}
