package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrStateNotFound = errors.New("oidc state not found")

// AuthState is remembered between /oidc/authenticate/ and /oidc/callback/.
type AuthState struct {
	Nonce string `json:"nonce"`
	Next  string `json:"next,omitempty"`
}

// OIDCStateStore holds single-use login states.
type OIDCStateStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewOIDCStateStore(rdb *redis.Client, ttl time.Duration) *OIDCStateStore {
	return &OIDCStateStore{rdb: rdb, ttl: ttl}
}

func (s *OIDCStateStore) key(state string) string { return "oidc_state:" + state }

// Begin creates a fresh state and nonce pair.
func (s *OIDCStateStore) Begin(ctx context.Context, next string) (state string, st AuthState, err error) {
	if state, err = randomToken(24); err != nil {
		return "", AuthState{}, err
	}
	nonce, err := randomToken(24)
	if err != nil {
		return "", AuthState{}, err
	}
	st = AuthState{Nonce: nonce, Next: next}
	b, err := json.Marshal(st)
	if err != nil {
		return "", AuthState{}, err
	}
	if err := s.rdb.Set(ctx, s.key(state), b, s.ttl).Err(); err != nil {
		return "", AuthState{}, err
	}
	return state, st, nil
}

// Consume returns and deletes the state; a second call fails.
func (s *OIDCStateStore) Consume(ctx context.Context, state string) (AuthState, error) {
	if state == "" {
		return AuthState{}, ErrStateNotFound
	}
	raw, err := s.rdb.GetDel(ctx, s.key(state)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return AuthState{}, ErrStateNotFound
		}
		return AuthState{}, err
	}
	var st AuthState
	if err := json.Unmarshal(raw, &st); err != nil {
		return AuthState{}, err
	}
	return st, nil
}
