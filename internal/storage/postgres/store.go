// Package postgres implements shortener.Store on PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/lo"

	"github.com/sundayezeilo/linkstat/internal/errx"
	"github.com/sundayezeilo/linkstat/internal/idgen"
	"github.com/sundayezeilo/linkstat/internal/shortener"
)

const DefaultQueryTimeout = 5 * time.Second

const (
	sqlInsertLink = `
INSERT INTO urls (id, short_code, original_url)
VALUES ($1, $2, $3)
RETURNING id, short_code, original_url, created_at`

	sqlGetLinkByCode = `
SELECT id, short_code, original_url, created_at
FROM urls
WHERE short_code = $1`

	sqlListLinks = `
SELECT id, short_code, original_url, created_at
FROM urls
ORDER BY created_at DESC, id DESC`

	sqlCountLinks = `SELECT count(*) FROM urls`

	sqlInsertClick = `
INSERT INTO clicks (id, url_id, clicked_at, user_agent, referrer)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, url_id, clicked_at, user_agent, referrer`

	sqlCountClicksForURL = `SELECT count(*) FROM clicks WHERE url_id = $1`

	sqlCountAllClicks = `SELECT count(*) FROM clicks`

	sqlListClicksSince = `
SELECT id, url_id, clicked_at, user_agent, referrer
FROM clicks
WHERE clicked_at >= $1
ORDER BY clicked_at, id`
)

// DBTX is the subset of *pgxpool.Pool (or a pgx.Tx) the store uses.
type DBTX interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type linkRow struct {
	ID          uuid.UUID `db:"id"`
	ShortCode   string    `db:"short_code"`
	OriginalURL string    `db:"original_url"`
	CreatedAt   time.Time `db:"created_at"`
}

type clickRow struct {
	ID        uuid.UUID `db:"id"`
	URLID     uuid.UUID `db:"url_id"`
	ClickedAt time.Time `db:"clicked_at"`
	UserAgent *string   `db:"user_agent"`
	Referrer  *string   `db:"referrer"`
}

func (r linkRow) toDomain() shortener.ShortLink {
	return shortener.ShortLink{
		ID:          r.ID,
		ShortCode:   r.ShortCode,
		OriginalURL: r.OriginalURL,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

func (r clickRow) toDomain() shortener.ClickEvent {
	return shortener.ClickEvent{
		ID:        r.ID,
		URLID:     r.URLID,
		ClickedAt: r.ClickedAt.UTC(),
		UserAgent: r.UserAgent,
		Referrer:  r.Referrer,
	}
}

// Config holds configuration for the store.
type Config struct {
	IDGenerator  idgen.Generator
	QueryTimeout time.Duration
}

type Store struct {
	db      DBTX
	ids     idgen.Generator
	timeout time.Duration
}

// New creates a Store over db. Ids default to UUID v7.
func New(db DBTX, cfg *Config) *Store {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = idgen.NewV7(idgen.WithRetries(1))
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}

	return &Store{db: db, ids: cfg.IDGenerator, timeout: cfg.QueryTimeout}
}

func (s *Store) InsertLink(ctx context.Context, shortCode, originalURL string) (shortener.ShortLink, error) {
	const op = "postgres.InsertLink"

	id, err := s.ids.Generate()
	if err != nil {
		return shortener.ShortLink{}, errx.E(op, errx.Internal, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.Query(ctx, sqlInsertLink, id, shortCode, originalURL)
	if err != nil {
		return shortener.ShortLink{}, mapError(op, err)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[linkRow])
	if err != nil {
		return shortener.ShortLink{}, mapError(op, err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetLinkByCode(ctx context.Context, shortCode string) (shortener.ShortLink, error) {
	const op = "postgres.GetLinkByCode"

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.Query(ctx, sqlGetLinkByCode, shortCode)
	if err != nil {
		return shortener.ShortLink{}, mapError(op, err)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[linkRow])
	if err != nil {
		return shortener.ShortLink{}, mapError(op, err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListLinks(ctx context.Context) ([]shortener.ShortLink, error) {
	const op = "postgres.ListLinks"

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.Query(ctx, sqlListLinks)
	if err != nil {
		return nil, mapError(op, err)
	}
	collected, err := pgx.CollectRows(rows, pgx.RowToStructByName[linkRow])
	if err != nil {
		return nil, mapError(op, err)
	}
	return lo.Map(collected, func(r linkRow, _ int) shortener.ShortLink { return r.toDomain() }), nil
}

func (s *Store) CountLinks(ctx context.Context) (int64, error) {
	return s.count(ctx, "postgres.CountLinks", sqlCountLinks)
}

func (s *Store) InsertClick(ctx context.Context, click shortener.NewClick) (shortener.ClickEvent, error) {
	const op = "postgres.InsertClick"

	id, err := s.ids.Generate()
	if err != nil {
		return shortener.ClickEvent{}, errx.E(op, errx.Internal, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.Query(ctx, sqlInsertClick,
		id,
		click.URLID,
		click.ClickedAt.UTC(),
		shortener.OptionalString(click.UserAgent),
		shortener.OptionalString(click.Referrer),
	)
	if err != nil {
		return shortener.ClickEvent{}, mapError(op, err)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[clickRow])
	if err != nil {
		return shortener.ClickEvent{}, mapError(op, err)
	}
	return row.toDomain(), nil
}

func (s *Store) CountClicksForURL(ctx context.Context, urlID uuid.UUID) (int64, error) {
	return s.count(ctx, "postgres.CountClicksForURL", sqlCountClicksForURL, urlID)
}

func (s *Store) CountAllClicks(ctx context.Context) (int64, error) {
	return s.count(ctx, "postgres.CountAllClicks", sqlCountAllClicks)
}

func (s *Store) ListClicksSince(ctx context.Context, since time.Time) ([]shortener.ClickEvent, error) {
	const op = "postgres.ListClicksSince"

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.Query(ctx, sqlListClicksSince, since.UTC())
	if err != nil {
		return nil, mapError(op, err)
	}
	collected, err := pgx.CollectRows(rows, pgx.RowToStructByName[clickRow])
	if err != nil {
		return nil, mapError(op, err)
	}
	return lo.Map(collected, func(r clickRow, _ int) shortener.ClickEvent { return r.toDomain() }), nil
}

func (s *Store) count(ctx context.Context, op, sql string, args ...any) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var n int64
	if err := s.db.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, mapError(op, err)
	}
	return n, nil
}

var _ shortener.Store = (*Store)(nil)

// PostgreSQL error codes the store translates.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"

	shortCodeUniqueConstraint = "urls_short_code_unique"
)

func mapError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return errx.E(op, errx.NotFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == shortCodeUniqueConstraint:
			return errx.E(op, errx.Conflict, err)
		case pgErr.Code == pgForeignKeyViolation:
			// A click for a link that does not exist.
			return errx.E(op, errx.NotFound, err)
		case pgErr.Code == pgCheckViolation:
			return errx.E(op, errx.Invalid, err)
		}
	}

	return errx.E(op, errx.Unavailable, err)
}
