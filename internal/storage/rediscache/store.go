// Package rediscache puts a Redis read-through cache in front of the link
// lookup of a shortener.Store. Links never change after creation, so entries
// are never invalidated; the TTL only bounds memory.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sundayezeilo/linkstat/internal/shortener"
)

const (
	DefaultTTL     = 24 * time.Hour
	DefaultTimeout = 100 * time.Millisecond
	keyPrefix      = "link:"
)

// Lookup results passed to Config.Observe.
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
)

// Config holds configuration for the cache.
type Config struct {
	TTL time.Duration
	// Timeout bounds each Redis call. On expiry the lookup falls back to the
	// wrapped store.
	Timeout time.Duration
	Logger  *slog.Logger
	// Observe, if set, is called once per cached lookup with its result.
	Observe func(result string)
}

// Store decorates a shortener.Store. Every method other than InsertLink and
// GetLinkByCode passes straight through. A Redis failure is logged and the
// call falls back to the wrapped store.
type Store struct {
	shortener.Store
	rdb     redis.Cmdable
	ttl     time.Duration
	timeout time.Duration
	logger  *slog.Logger
	observe func(result string)
}

// New wraps next. With a nil client next is returned unchanged.
func New(next shortener.Store, rdb redis.Cmdable, cfg Config) shortener.Store {
	if rdb == nil {
		return next
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observe == nil {
		cfg.Observe = func(string) {}
	}
	return &Store{
		Store:   next,
		rdb:     rdb,
		ttl:     cfg.TTL,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
		observe: cfg.Observe,
	}
}

type cachedLink struct {
	ID          uuid.UUID `json:"id"`
	ShortCode   string    `json:"short_code"`
	OriginalURL string    `json:"original_url"`
	CreatedAt   time.Time `json:"created_at"`
}

func key(shortCode string) string { return keyPrefix + shortCode }

// InsertLink writes through so the first redirect is already a hit.
func (s *Store) InsertLink(ctx context.Context, shortCode, originalURL string) (shortener.ShortLink, error) {
	link, err := s.Store.InsertLink(ctx, shortCode, originalURL)
	if err != nil {
		return link, err
	}
	s.set(ctx, link)
	return link, nil
}

func (s *Store) GetLinkByCode(ctx context.Context, shortCode string) (shortener.ShortLink, error) {
	if link, ok := s.get(ctx, shortCode); ok {
		return link, nil
	}

	link, err := s.Store.GetLinkByCode(ctx, shortCode)
	if err != nil {
		return link, err
	}
	s.set(ctx, link)
	return link, nil
}

func (s *Store) get(ctx context.Context, shortCode string) (shortener.ShortLink, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, err := s.rdb.Get(ctx, key(shortCode)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.observe(ResultMiss)
		} else {
			s.observe(ResultError)
			s.logger.WarnContext(ctx, "link cache read failed",
				"short_code", shortCode,
				"error", err.Error(),
			)
		}
		return shortener.ShortLink{}, false
	}

	var c cachedLink
	if err := json.Unmarshal(data, &c); err != nil {
		s.observe(ResultError)
		s.logger.WarnContext(ctx, "link cache entry unreadable",
			"short_code", shortCode,
			"error", err.Error(),
		)
		return shortener.ShortLink{}, false
	}
	s.observe(ResultHit)

	return shortener.ShortLink{
		ID:          c.ID,
		ShortCode:   c.ShortCode,
		OriginalURL: c.OriginalURL,
		CreatedAt:   c.CreatedAt.UTC(),
	}, true
}

func (s *Store) set(ctx context.Context, link shortener.ShortLink) {
	data, err := json.Marshal(cachedLink{
		ID:          link.ID,
		ShortCode:   link.ShortCode,
		OriginalURL: link.OriginalURL,
		CreatedAt:   link.CreatedAt,
	})
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.rdb.Set(ctx, key(link.ShortCode), data, s.ttl).Err(); err != nil {
		s.logger.WarnContext(ctx, "link cache write failed",
			"short_code", link.ShortCode,
			"error", err.Error(),
		)
	}
}
