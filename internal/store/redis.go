package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"quad/internal/models"

	"github.com/redis/go-redis/v9"
)

// SnapshotTTL bounds how stale a persisted cache snapshot may be before the
// next launch falls back to a cold start.
const SnapshotTTL = 24 * time.Hour

const (
	summariesSnapshotKey = "quad:cache:summaries"
	messagesSnapshotKey  = "quad:cache:messages:"
)

// Persistence writes best-effort snapshots of the store to Redis so the app
// can render the chat list and recent conversations immediately on the next
// launch, before the first authoritative fetch. A nil client disables it.
type Persistence struct {
	client *redis.Client
	logger *slog.Logger
}

// NewPersistence returns a snapshot writer over the given client.
func NewPersistence(client *redis.Client, logger *slog.Logger) *Persistence {
	if logger == nil {
		logger = slog.Default()
	}
	return &Persistence{client: client, logger: logger}
}

// OpenRedis connects to addr (host:port or redis:// URL). Connection failures
// are logged and return nil: the cache works without persistence.
func OpenRedis(ctx context.Context, addr string, logger *slog.Logger) *redis.Client {
	if logger == nil {
		logger = slog.Default()
	}
	var opts *redis.Options
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			logger.Warn("invalid redis url, continuing without cache persistence", slog.String("error", err.Error()))
			return nil
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, continuing without cache persistence", slog.String("error", err.Error()))
		return nil
	}
	return client
}

func (p *Persistence) getJSON(ctx context.Context, key string, dest any) (bool, error) {
	if p.client == nil {
		return false, nil
	}
	s, err := p.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(s), dest); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Persistence) setJSON(ctx context.Context, key string, v any) error {
	if p.client == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.client.Set(ctx, key, b, SnapshotTTL).Err()
}

// SaveSummaries snapshots the default (empty-filter) chat list.
func (p *Persistence) SaveSummaries(ctx context.Context, s *Store) {
	list, ok := s.Summaries("")
	if !ok {
		return
	}
	if err := p.setJSON(ctx, summariesSnapshotKey, list); err != nil {
		p.logger.Warn("summary snapshot write failed", slog.String("error", err.Error()))
	}
}

// SaveMessages snapshots one chat's message list.
func (p *Persistence) SaveMessages(ctx context.Context, s *Store, chatID string) {
	msgs, ok := s.Messages(chatID)
	if !ok {
		return
	}
	if err := p.setJSON(ctx, messagesSnapshotKey+chatID, msgs); err != nil {
		p.logger.Warn("message snapshot write failed",
			slog.String("chat_id", chatID),
			slog.String("error", err.Error()),
		)
	}
}

// Hydrate loads persisted snapshots into an empty store. Missing or corrupt
// snapshots are skipped; the first authoritative fetch supersedes whatever
// was restored.
func (p *Persistence) Hydrate(ctx context.Context, s *Store) {
	var summaries []models.ChatSummary
	found, err := p.getJSON(ctx, summariesSnapshotKey, &summaries)
	if err != nil {
		p.logger.Warn("summary snapshot read failed", slog.String("error", err.Error()))
		return
	}
	if !found {
		return
	}
	s.SetSummaries("", summaries)

	for _, summary := range summaries {
		var msgs []models.ChatMessage
		found, err := p.getJSON(ctx, messagesSnapshotKey+summary.Chat.ID, &msgs)
		if err != nil || !found {
			continue
		}
		s.SetMessages(summary.Chat.ID, msgs)
	}
}
