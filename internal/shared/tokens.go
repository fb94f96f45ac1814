package shared

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TokenStore issues and resolves opaque bearer tokens backed by Redis.
// Tokens expire after the configured TTL; revocation deletes the key.
type TokenStore struct {
	client *redis.Client
	ttl    time.Duration
}

type tokenPayload struct {
	PrincipalID int64     `json:"principal_id"`
	Handle      string    `json:"handle"`
	IssuedAt    time.Time `json:"issued_at"`
}

// NewTokenStore constructs a TokenStore.
func NewTokenStore(client *redis.Client, ttl time.Duration) *TokenStore {
	return &TokenStore{client: client, ttl: ttl}
}

// Issue creates a token for the principal and persists it with the store TTL.
func (ts *TokenStore) Issue(ctx context.Context, principalID int64, handle string) (string, error) {
	if ts == nil || ts.client == nil {
		return "", errors.New("token store not initialised")
	}
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(tokenPayload{
		PrincipalID: principalID,
		Handle:      handle,
		IssuedAt:    time.Now().UTC(),
	})
	if err != nil {
		return "", err
	}
	if err := ts.client.Set(ctx, tokenKey(token), data, ts.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Resolve returns the actor bound to the token. A missing or expired token
// resolves to ErrNotFound.
func (ts *TokenStore) Resolve(ctx context.Context, token string) (Actor, error) {
	if ts == nil || ts.client == nil {
		return Actor{}, errors.New("token store not initialised")
	}
	raw, err := ts.client.Get(ctx, tokenKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Actor{}, ErrNotFound
		}
		return Actor{}, err
	}
	var payload tokenPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Actor{}, err
	}
	return Actor{ID: payload.PrincipalID, Handle: payload.Handle}, nil
}

// Revoke deletes the token. Revoking an unknown token is a no-op.
func (ts *TokenStore) Revoke(ctx context.Context, token string) error {
	if ts == nil || ts.client == nil {
		return errors.New("token store not initialised")
	}
	if err := ts.client.Del(ctx, tokenKey(token)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// TTL exposes the configured token lifetime.
func (ts *TokenStore) TTL() time.Duration {
	return ts.ttl
}

func tokenKey(token string) string {
	return "token:" + token
}

// generateToken never degrades to a predictable value: when neither
// randomness source is available the issue fails outright.
func generateToken() (string, error) {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String(), nil
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("shared: generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
