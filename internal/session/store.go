package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CredentialsPrefix is the Redis key prefix for persisted credential hashes.
const CredentialsPrefix = "chatclient:credentials:"

// Credentials are what survives a restart: the bearer token and the user it
// was issued to.
type Credentials struct {
	Token   string `redis:"token"`
	UserID  string `redis:"user_id"`
	Email   string `redis:"email"`
	SavedAt int64  `redis:"saved_at"` // unix timestamp
}

// CredentialStore persists Credentials between runs. Load reports found=false
// when nothing is stored.
type CredentialStore interface {
	Load(ctx context.Context) (creds Credentials, found bool, err error)
	Save(ctx context.Context, creds Credentials, ttl time.Duration) error
	Clear(ctx context.Context) error
}

// RedisCredentials keeps credentials in a Redis hash, one per profile.
type RedisCredentials struct {
	client *redis.Client
	key    string
}

// DialRedis connects to Redis and verifies the connection.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("session: redis connection failed: %w", err)
	}
	return client, nil
}

// NewRedisCredentials stores credentials for profile under
// CredentialsPrefix+profile.
func NewRedisCredentials(client *redis.Client, profile string) *RedisCredentials {
	return &RedisCredentials{client: client, key: CredentialsPrefix + profile}
}

// Load reads the stored credentials.
func (s *RedisCredentials) Load(ctx context.Context) (Credentials, bool, error) {
	var creds Credentials
	if err := s.client.HGetAll(ctx, s.key).Scan(&creds); err != nil {
		return Credentials{}, false, fmt.Errorf("session: load credentials: %w", err)
	}
	if creds.Token == "" {
		return Credentials{}, false, nil
	}
	return creds, true, nil
}

// Save replaces the stored credentials. A positive ttl expires the hash with
// the token; zero keeps it until Clear.
func (s *RedisCredentials) Save(ctx context.Context, creds Credentials, ttl time.Duration) error {
	if creds.SavedAt == 0 {
		creds.SavedAt = time.Now().Unix()
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key)
	pipe.HSet(ctx, s.key, map[string]interface{}{
		"token":    creds.Token,
		"user_id":  creds.UserID,
		"email":    creds.Email,
		"saved_at": creds.SavedAt,
	})
	if ttl > 0 {
		pipe.Expire(ctx, s.key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: save credentials: %w", err)
	}
	return nil
}

// Clear removes the stored credentials.
func (s *RedisCredentials) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("session: clear credentials: %w", err)
	}
	return nil
}

// MemoryCredentials is a process-local CredentialStore.
type MemoryCredentials struct {
	mu      sync.Mutex
	creds   *Credentials
	expires time.Time
	now     func() time.Time
}

// NewMemoryCredentials creates an empty in-memory store.
func NewMemoryCredentials() *MemoryCredentials {
	return &MemoryCredentials{now: time.Now}
}

func (m *MemoryCredentials) Load(_ context.Context) (Credentials, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds == nil {
		return Credentials{}, false, nil
	}
	if !m.expires.IsZero() && !m.now().Before(m.expires) {
		m.creds = nil
		return Credentials{}, false, nil
	}
	return *m.creds, true, nil
}

func (m *MemoryCredentials) Save(_ context.Context, creds Credentials, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if creds.SavedAt == 0 {
		creds.SavedAt = m.now().Unix()
	}
	m.creds = &creds
	m.expires = time.Time{}
	if ttl > 0 {
		m.expires = m.now().Add(ttl)
	}
	return nil
}

func (m *MemoryCredentials) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = nil
	m.expires = time.Time{}
	return nil
}
