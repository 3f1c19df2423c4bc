// Package analytics computes click statistics over the link and click stores.
// Every call reads the stores afresh; nothing is cached, and the figures of
// separate calls are not taken from a single snapshot.
package analytics

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/sundayezeilo/linkstat/internal/errx"
	"github.com/sundayezeilo/linkstat/internal/shortener"
)

const (
	DefaultWindowDays  = 7
	MaxWindowDays      = 366
	DefaultTopLimit    = 5
	MaxTopLimit        = 50
	DefaultConcurrency = 8

	dayLayout = "2006-01-02"
)

// Source is the read side of the store that the aggregator needs.
type Source interface {
	CountLinks(ctx context.Context) (int64, error)
	ListLinks(ctx context.Context) ([]shortener.ShortLink, error)
	CountAllClicks(ctx context.Context) (int64, error)
	CountClicksForURL(ctx context.Context, urlID uuid.UUID) (int64, error)
	ListClicksSince(ctx context.Context, since time.Time) ([]shortener.ClickEvent, error)
}

// Stats are the dashboard totals.
type Stats struct {
	TotalLinks       int64
	TotalClicks      int64
	AvgClicksPerLink float64
}

// DayCount is the number of clicks on one UTC calendar day.
type DayCount struct {
	Day    string // YYYY-MM-DD
	Clicks int64
}

// LinkClicks is a link with its total click count.
type LinkClicks struct {
	Link   shortener.ShortLink
	Clicks int64
}

// Dashboard bundles the three views the dashboard shows.
type Dashboard struct {
	Stats    Stats
	Daily    []DayCount
	TopLinks []LinkClicks
}

type Config struct {
	// Concurrency bounds the per-link count queries issued by TopLinks.
	Concurrency int
	Clock       func() time.Time
	Logger      *slog.Logger
}

type Aggregator struct {
	src         Source
	concurrency int
	now         func() time.Time
	logger      *slog.Logger
}

func New(src Source, cfg Config) *Aggregator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Aggregator{
		src:         src,
		concurrency: cfg.Concurrency,
		now:         cfg.Clock,
		logger:      cfg.Logger,
	}
}

// Stats returns total links, total clicks and their ratio. The ratio is 0
// when there are no links.
func (a *Aggregator) Stats(ctx context.Context) (Stats, error) {
	const op = "analytics.Stats"

	var links, clicks int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		links, err = a.src.CountLinks(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		clicks, err = a.src.CountAllClicks(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Stats{}, errx.Wrap(op, err)
	}

	s := Stats{TotalLinks: links, TotalClicks: clicks}
	if links > 0 {
		s.AvgClicksPerLink = float64(clicks) / float64(links)
	}
	return s, nil
}

// DailySeries counts clicks per UTC calendar day over a rolling window:
// every click at or after now minus windowDays*24h. The window usually
// starts part way through a day, so up to windowDays+1 days can appear, the
// first one partial. Only days with at least one click appear, in ascending
// order.
// windowDays <= 0 selects DefaultWindowDays; larger values are capped at
// MaxWindowDays.
func (a *Aggregator) DailySeries(ctx context.Context, windowDays int) ([]DayCount, error) {
	const op = "analytics.DailySeries"

	windowDays = clampWindow(windowDays)
	since := a.now().UTC().AddDate(0, 0, -windowDays)

	events, err := a.src.ListClicksSince(ctx, since)
	if err != nil {
		return nil, errx.Wrap(op, err)
	}

	perDay := make(map[string]int64)
	for _, e := range events {
		perDay[e.ClickedAt.UTC().Format(dayLayout)]++
	}

	days := lo.Keys(perDay)
	slices.Sort(days) // YYYY-MM-DD sorts chronologically

	return lo.Map(days, func(day string, _ int) DayCount {
		return DayCount{Day: day, Clicks: perDay[day]}
	}), nil
}

// TopLinks returns up to limit links ordered by click count, highest first.
// Ties go to the older link, then to the smaller id. limit <= 0 selects
// DefaultTopLimit; larger values are capped at MaxTopLimit.
func (a *Aggregator) TopLinks(ctx context.Context, limit int) ([]LinkClicks, error) {
	const op = "analytics.TopLinks"

	limit = clampLimit(limit)

	links, err := a.src.ListLinks(ctx)
	if err != nil {
		return nil, errx.Wrap(op, err)
	}

	ranked := make([]LinkClicks, len(links))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, link := range links {
		g.Go(func() error {
			n, err := a.src.CountClicksForURL(gctx, link.ID)
			if err != nil {
				return err
			}
			ranked[i] = LinkClicks{Link: link, Clicks: n}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.logger.WarnContext(ctx, "per-link click count failed",
			"links", len(links),
			"error", err.Error(),
		)
		return nil, errx.Wrap(op, err)
	}

	slices.SortFunc(ranked, compareRank)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// Dashboard gathers stats, the default daily window and the default top
// list concurrently.
func (a *Aggregator) Dashboard(ctx context.Context) (Dashboard, error) {
	var d Dashboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		d.Stats, err = a.Stats(gctx)
		return err
	})
	g.Go(func() (err error) {
		d.Daily, err = a.DailySeries(gctx, DefaultWindowDays)
		return err
	})
	g.Go(func() (err error) {
		d.TopLinks, err = a.TopLinks(gctx, DefaultTopLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}

func compareRank(x, y LinkClicks) int {
	if c := cmp.Compare(y.Clicks, x.Clicks); c != 0 {
		return c
	}
	if c := x.Link.CreatedAt.Compare(y.Link.CreatedAt); c != 0 {
		return c
	}
	return slices.Compare(x.Link.ID[:], y.Link.ID[:])
}

func clampWindow(days int) int {
	if days <= 0 {
		return DefaultWindowDays
	}
	return min(days, MaxWindowDays)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultTopLimit
	}
	return min(limit, MaxTopLimit)
}
