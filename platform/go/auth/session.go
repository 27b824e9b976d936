package auth

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"

	"github.com/vendapro/vendapro-saas/platform/go/tenant/resolver"
)

// ErrInvalidSession indicates the token failed validation or the session was revoked.
var ErrInvalidSession = errors.New("auth: invalid session")

const minSecretLen = 32

// Claims are the signed session claims. The token stays opaque in effect:
// it carries only identifiers, never connection parameters; the pool handle
// reference lives server-side in the Manager.
type Claims struct {
	TenantID string `json:"tid"`
	Schema   string `json:"sch"`
	jwt.RegisteredClaims
}

type sessionEntry struct {
	session   *resolver.Session
	expiresAt time.Time
}

// Manager mints session tokens for resolved sessions and maps presented
// tokens back to them. Revocation removes the server-side entry, so a signed
// but revoked token no longer resolves.
type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration

	mu       sync.RWMutex
	sessions map[string]sessionEntry
}

func NewManager(secret, issuer string, ttl time.Duration) (*Manager, error) {
	if len(secret) < minSecretLen {
		return nil, errors.New("session secret must be at least 32 bytes")
	}
	if strings.TrimSpace(issuer) == "" {
		return nil, errors.New("issuer is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be greater than zero")
	}
	return &Manager{
		secret:   []byte(secret),
		issuer:   issuer,
		ttl:      ttl,
		sessions: make(map[string]sessionEntry),
	}, nil
}

// Create signs a token for the session and registers it server-side.
func (m *Manager) Create(s *resolver.Session) (string, time.Time, error) {
	if s == nil {
		return "", time.Time{}, errors.New("session is required")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(m.ttl)
	jti := ulid.Make().String()

	claims := Claims{
		TenantID: s.TenantID.String(),
		Schema:   s.Schema,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   s.User.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        jti,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	m.mu.Lock()
	m.sessions[jti] = sessionEntry{session: s, expiresAt: expiresAt}
	m.mu.Unlock()

	return signed, expiresAt, nil
}

// Resolve validates the token and returns the live session it is bound to.
func (m *Manager) Resolve(token string) (*resolver.Session, error) {
	claims, err := m.parse(token)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	entry, ok := m.sessions[claims.ID]
	m.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, ErrInvalidSession
	}
	return entry.session, nil
}

// Revoke removes the session bound to the token. A bad token is a no-op.
func (m *Manager) Revoke(token string) {
	claims, err := m.parse(token)
	if err != nil {
		return
	}
	m.mu.Lock()
	delete(m.sessions, claims.ID)
	m.mu.Unlock()
}

// PurgeExpired drops expired entries and reports how many were removed.
// Called periodically so revocation maps do not grow without bound.
func (m *Manager) PurgeExpired(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for jti, entry := range m.sessions {
		if now.After(entry.expiresAt) {
			delete(m.sessions, jti)
			removed++
		}
	}
	return removed
}

// Len reports live sessions; used by tests and diagnostics.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) parse(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidSession
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidSession
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidSession
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Issuer != m.issuer || claims.ID == "" {
		return nil, ErrInvalidSession
	}
	return claims, nil
}
