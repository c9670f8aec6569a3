package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is what a logged-in browser is bound to.
type Session struct {
	ProfileID   uuid.UUID `json:"profile_id"`
	AccessToken string    `json:"access_token,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// SessionStore keeps sessions in Redis. The cookie token is never stored as
// is; keys are derived from sha256(token + secret).
type SessionStore struct {
	rdb *redis.Client
	// secret is used only to hash session tokens (SECRET_KEY).
	secret string
	ttl    time.Duration
}

func NewSessionStore(rdb *redis.Client, secret string, ttl time.Duration) *SessionStore {
	return &SessionStore{rdb: rdb, secret: secret, ttl: ttl}
}

func (s *SessionStore) key(token string) string { return sessionKey(token, s.secret) }

func sessionKey(token, secret string) string {
	sum := sha256.Sum256([]byte(token + ":" + secret))
	return "session:" + hex.EncodeToString(sum[:])
}

// Create stores a new session and returns the opaque cookie token.
func (s *SessionStore) Create(ctx context.Context, profileID uuid.UUID, accessToken string) (string, error) {
	token, err := randomToken(32)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(Session{ProfileID: profileID, AccessToken: accessToken, CreatedAt: time.Now().UTC()})
	if err != nil {
		return "", err
	}
	if err := s.rdb.Set(ctx, s.key(token), b, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	return token, nil
}

func (s *SessionStore) Get(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}
	raw, err := s.rdb.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

func (s *SessionStore) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.rdb.Del(ctx, s.key(token)).Err()
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
