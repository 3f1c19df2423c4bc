// Package memory is an in-process shortener.Store. It keeps the same error
// contract as the postgres store and is used for local runs and tests.
package memory

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/sundayezeilo/linkstat/internal/errx"
	"github.com/sundayezeilo/linkstat/internal/idgen"
	"github.com/sundayezeilo/linkstat/internal/shortener"
)

var (
	errCodeExists  = errors.New("short code already exists")
	errLinkMissing = errors.New("link does not exist")
)

// Store is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	links  []shortener.ShortLink // creation order
	byCode map[string]int
	byID   map[uuid.UUID]int
	clicks []shortener.ClickEvent
	counts map[uuid.UUID]int64

	ids idgen.Generator
	now func() time.Time
}

type Option func(*Store)

// WithClock overrides the time source for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides the generator for link and click ids.
func WithIDGenerator(g idgen.Generator) Option {
	return func(s *Store) {
		if g != nil {
			s.ids = g
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		byCode: make(map[string]int),
		byID:   make(map[uuid.UUID]int),
		counts: make(map[uuid.UUID]int64),
		ids:    idgen.NewV7(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) InsertLink(ctx context.Context, shortCode, originalURL string) (shortener.ShortLink, error) {
	const op = "memory.InsertLink"

	if err := ctx.Err(); err != nil {
		return shortener.ShortLink{}, errx.E(op, errx.Unavailable, err)
	}

	id, err := s.ids.Generate()
	if err != nil {
		return shortener.ShortLink{}, errx.E(op, errx.Internal, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check and insert under one lock.
	if _, exists := s.byCode[shortCode]; exists {
		return shortener.ShortLink{}, errx.E(op, errx.Conflict, errCodeExists)
	}

	link := shortener.ShortLink{
		ID:          id,
		ShortCode:   shortCode,
		OriginalURL: originalURL,
		CreatedAt:   s.now().UTC(),
	}
	s.links = append(s.links, link)
	s.byCode[shortCode] = len(s.links) - 1
	s.byID[id] = len(s.links) - 1

	return link, nil
}

func (s *Store) GetLinkByCode(ctx context.Context, shortCode string) (shortener.ShortLink, error) {
	const op = "memory.GetLinkByCode"

	if err := ctx.Err(); err != nil {
		return shortener.ShortLink{}, errx.E(op, errx.Unavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byCode[shortCode]
	if !ok {
		return shortener.ShortLink{}, errx.E(op, errx.NotFound, errLinkMissing)
	}
	return s.links[idx], nil
}

// ListLinks returns links newest first.
func (s *Store) ListLinks(ctx context.Context) ([]shortener.ShortLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, errx.E("memory.ListLinks", errx.Unavailable, err)
	}

	s.mu.RLock()
	out := slices.Clone(s.links)
	s.mu.RUnlock()

	slices.Reverse(out)
	return out, nil
}

func (s *Store) CountLinks(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, errx.E("memory.CountLinks", errx.Unavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.links)), nil
}

func (s *Store) InsertClick(ctx context.Context, click shortener.NewClick) (shortener.ClickEvent, error) {
	const op = "memory.InsertClick"

	if err := ctx.Err(); err != nil {
		return shortener.ClickEvent{}, errx.E(op, errx.Unavailable, err)
	}

	id, err := s.ids.Generate()
	if err != nil {
		return shortener.ClickEvent{}, errx.E(op, errx.Internal, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[click.URLID]; !ok {
		return shortener.ClickEvent{}, errx.E(op, errx.NotFound, errLinkMissing)
	}

	event := shortener.ClickEvent{
		ID:        id,
		URLID:     click.URLID,
		ClickedAt: click.ClickedAt.UTC(),
		UserAgent: shortener.OptionalString(click.UserAgent),
		Referrer:  shortener.OptionalString(click.Referrer),
	}
	s.clicks = append(s.clicks, event)
	s.counts[click.URLID]++

	return event, nil
}

func (s *Store) CountClicksForURL(ctx context.Context, urlID uuid.UUID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, errx.E("memory.CountClicksForURL", errx.Unavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts[urlID], nil
}

func (s *Store) CountAllClicks(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, errx.E("memory.CountAllClicks", errx.Unavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.clicks)), nil
}

// ListClicksSince returns clicks with ClickedAt >= since, oldest first.
func (s *Store) ListClicksSince(ctx context.Context, since time.Time) ([]shortener.ClickEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, errx.E("memory.ListClicksSince", errx.Unavailable, err)
	}

	s.mu.RLock()
	out := lo.Filter(s.clicks, func(c shortener.ClickEvent, _ int) bool {
		return !c.ClickedAt.Before(since)
	})
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b shortener.ClickEvent) int {
		return a.ClickedAt.Compare(b.ClickedAt)
	})
	return out, nil
}

var _ shortener.Store = (*Store)(nil)
