// Package session keeps short-lived state in Redis: WebAuthn ceremony data
// between the begin and finish calls, and the login sessions behind the
// app_session cookie.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound means the key expired or never existed.
var ErrNotFound = errors.New("session not found")

const keyPrefix = "toolhub:"

// CeremonyStore holds webauthn.SessionData for registration and login
// ceremonies.
type CeremonyStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewCeremonyStore(rdb redis.Cmdable, ttl time.Duration) *CeremonyStore {
	return &CeremonyStore{rdb: rdb, ttl: ttl}
}

func regKey(username string) string   { return fmt.Sprintf(keyPrefix+"webauthn:reg:%s", username) }
func regTokenKey(token string) string { return fmt.Sprintf(keyPrefix+"webauthn:reg:inv:%s", token) }
func authKey(sid string) string       { return fmt.Sprintf(keyPrefix+"webauthn:auth:%s", sid) }

// SaveReg stores data for adding a passkey to a signed-in account.
func (s *CeremonyStore) SaveReg(ctx context.Context, username string, sd *webauthn.SessionData) error {
	return s.save(ctx, regKey(username), sd)
}

func (s *CeremonyStore) LoadReg(ctx context.Context, username string) (*webauthn.SessionData, error) {
	return s.load(ctx, regKey(username))
}

func (s *CeremonyStore) DelReg(ctx context.Context, username string) { s.del(ctx, regKey(username)) }

// SaveRegByToken stores data for first registration through an invite.
func (s *CeremonyStore) SaveRegByToken(ctx context.Context, token string, sd *webauthn.SessionData) error {
	return s.save(ctx, regTokenKey(token), sd)
}

func (s *CeremonyStore) LoadRegByToken(ctx context.Context, token string) (*webauthn.SessionData, error) {
	return s.load(ctx, regTokenKey(token))
}

func (s *CeremonyStore) DelRegByToken(ctx context.Context, token string) { s.del(ctx, regTokenKey(token)) }

func (s *CeremonyStore) SaveAuth(ctx context.Context, sid string, sd *webauthn.SessionData) error {
	return s.save(ctx, authKey(sid), sd)
}

func (s *CeremonyStore) LoadAuth(ctx context.Context, sid string) (*webauthn.SessionData, error) {
	return s.load(ctx, authKey(sid))
}

func (s *CeremonyStore) DelAuth(ctx context.Context, sid string) { s.del(ctx, authKey(sid)) }

func (s *CeremonyStore) save(ctx context.Context, key string, sd *webauthn.SessionData) error {
	b, err := json.Marshal(sd)
	if err != nil {
		return fmt.Errorf("encode ceremony: %w", err)
	}
	return s.rdb.Set(ctx, key, b, s.ttl).Err()
}

func (s *CeremonyStore) load(ctx context.Context, key string) (*webauthn.SessionData, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var sd webauthn.SessionData
	if err := json.Unmarshal(b, &sd); err != nil {
		return nil, fmt.Errorf("decode ceremony: %w", err)
	}
	return &sd, nil
}

// del is best effort; an undeleted ceremony expires with its TTL.
func (s *CeremonyStore) del(ctx context.Context, key string) { _ = s.rdb.Del(ctx, key).Err() }
