package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"termslens/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionRepo stores analysis sessions. Sessions are working state for a
// browser tab and expire after the repo's TTL.
type SessionRepo interface {
	Create(ctx context.Context, s *models.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	Update(ctx context.Context, s *models.Session) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ──── In-memory ────

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

type MemorySessionRepo struct {
	mu      sync.Mutex
	entries map[uuid.UUID]memoryEntry
	ttl     time.Duration
	now     func() time.Time
	stop    chan struct{}
}

const defaultSessionTTL = 2 * time.Hour

func NewMemorySessionRepo(ttl time.Duration) *MemorySessionRepo {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	repo := &MemorySessionRepo{
		entries: make(map[uuid.UUID]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
		stop:    make(chan struct{}),
	}

	// Cleanup goroutine
	go func() {
		ticker := time.NewTicker(ttl)
		defer ticker.Stop()
		for {
			select {
			case <-repo.stop:
				return
			case <-ticker.C:
				repo.sweep()
			}
		}
	}()

	return repo
}

func (r *MemorySessionRepo) Close() {
	close(r.stop)
}

func (r *MemorySessionRepo) Create(ctx context.Context, s *models.Session) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.now()
	}
	return r.put(s)
}

func (r *MemorySessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	r.mu.Lock()
	entry, ok := r.entries[id]
	r.mu.Unlock()

	if !ok || r.now().After(entry.expiresAt) {
		return nil, ErrSessionNotFound
	}

	// Stored as JSON so callers never share state with the repo.
	var s models.Session
	if err := json.Unmarshal(entry.data, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &s, nil
}

func (r *MemorySessionRepo) Update(ctx context.Context, s *models.Session) error {
	r.mu.Lock()
	_, ok := r.entries[s.ID]
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	return r.put(s)
}

func (r *MemorySessionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
	return nil
}

func (r *MemorySessionRepo) put(s *models.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[s.ID] = memoryEntry{data: data, expiresAt: r.now().Add(r.ttl)}
	return nil
}

func (r *MemorySessionRepo) sweep() {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, entry := range r.entries {
		if now.After(entry.expiresAt) {
			delete(r.entries, id)
		}
	}
}

// ──── Redis ────

type RedisSessionRepo struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSessionRepo(client *redis.Client, ttl time.Duration) *RedisSessionRepo {
	return &RedisSessionRepo{client: client, ttl: ttl}
}

func sessionKey(id uuid.UUID) string {
	return "session:" + id.String()
}

func (r *RedisSessionRepo) Create(ctx context.Context, s *models.Session) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	if err := r.client.Set(ctx, sessionKey(s.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("store session %s: %w", s.ID, err)
	}
	return nil
}

func (r *RedisSessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	var s models.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &s, nil
}

// Update overwrites an existing session and refreshes its TTL.
func (r *RedisSessionRepo) Update(ctx context.Context, s *models.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.ID, err)
	}

	ok, err := r.client.SetXX(ctx, sessionKey(s.ID), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("update session %s: %w", s.ID, err)
	}
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}

func (r *RedisSessionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}
