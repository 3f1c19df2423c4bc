package shortener

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LinkStore persists short links. Implementations must enforce short code
// uniqueness atomically on insert and report a violation as errx.Conflict.
// A missing code is errx.NotFound; transport and driver failures are
// errx.Unavailable. ListLinks returns links newest first.
type LinkStore interface {
	InsertLink(ctx context.Context, shortCode, originalURL string) (ShortLink, error)
	GetLinkByCode(ctx context.Context, shortCode string) (ShortLink, error)
	ListLinks(ctx context.Context) ([]ShortLink, error)
	CountLinks(ctx context.Context) (int64, error)
}

// ClickStore persists click events. It is an append-only log.
type ClickStore interface {
	InsertClick(ctx context.Context, click NewClick) (ClickEvent, error)
	CountClicksForURL(ctx context.Context, urlID uuid.UUID) (int64, error)
	CountAllClicks(ctx context.Context) (int64, error)
	ListClicksSince(ctx context.Context, since time.Time) ([]ClickEvent, error)
}

// Store is the full persistence contract of the service.
type Store interface {
	LinkStore
	ClickStore
}
