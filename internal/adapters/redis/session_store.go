package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fatchip/computop-checkout/internal/domain/models"
)

// Config holds Redis connection settings
type Config struct {
	Addr     string
	Username string
	Password string
	DB       int

	// SessionTTL bounds how long a prepared checkout may sit before the
	// shopper returns from the gateway.
	SessionTTL time.Duration
}

// SessionStore implements ports.SessionStore on Redis. Sessions expire on
// their own, so an abandoned redirect never leaves state behind.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore connects to Redis and verifies the connection
func NewSessionStore(ctx context.Context, cfg Config) (*SessionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SessionStore{client: client, ttl: ttl}, nil
}

// Close releases the underlying connection pool
func (s *SessionStore) Close() error {
	return s.client.Close()
}

// Client exposes the underlying connection for health checks
func (s *SessionStore) Client() *redis.Client {
	return s.client
}

func sessionKey(id string) string {
	return "checkout:session:" + id
}

func suppressKey(addressID int64) string {
	return fmt.Sprintf("checkout:risk:suppress:%d", addressID)
}

// Put stores the session context under its session id with the store TTL
func (s *SessionStore) Put(ctx context.Context, sctx *models.PaymentSessionContext) error {
	if sctx.SessionID == "" {
		return errors.New("session id is empty")
	}
	data, err := json.Marshal(sctx)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(sctx.SessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// Get loads a session context. A missing or expired session returns (nil, nil).
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*models.PaymentSessionContext, error) {
	data, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var sctx models.PaymentSessionContext
	if err := json.Unmarshal(data, &sctx); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sctx, nil
}

// Clear removes a session context once the flow has resolved
func (s *SessionStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// SetSuppressInvalidation sets the one-shot flag for an auto-corrected
// address. The flag has a short TTL of its own so a crash between the
// correction and the change event cannot suppress a later, unrelated edit.
func (s *SessionStore) SetSuppressInvalidation(ctx context.Context, addressID int64) error {
	if err := s.client.Set(ctx, suppressKey(addressID), "1", 5*time.Minute).Err(); err != nil {
		return fmt.Errorf("set suppress flag: %w", err)
	}
	return nil
}

// ConsumeSuppressInvalidation reads and removes the flag atomically
func (s *SessionStore) ConsumeSuppressInvalidation(ctx context.Context, addressID int64) (bool, error) {
	err := s.client.GetDel(ctx, suppressKey(addressID)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("consume suppress flag: %w", err)
	}
	return true, nil
}
