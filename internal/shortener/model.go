package shortener

import (
	"time"

	"github.com/google/uuid"
)

// ShortLink maps a short code to the URL it redirects to. It is created once
// and never mutated.
type ShortLink struct {
	ID          uuid.UUID
	ShortCode   string
	OriginalURL string
	CreatedAt   time.Time
}

// ClickEvent is one recorded resolution of a ShortLink.
type ClickEvent struct {
	ID        uuid.UUID
	URLID     uuid.UUID
	ClickedAt time.Time
	UserAgent *string
	Referrer  *string
}

// NewClick holds the fields a caller supplies when recording a click.
// Empty UserAgent and Referrer are stored as absent.
type NewClick struct {
	URLID     uuid.UUID
	ClickedAt time.Time
	UserAgent string
	Referrer  string
}

// ClientMeta is what the resolver captures about the requesting client.
type ClientMeta struct {
	UserAgent string
	Referrer  string
}

// LinkDetail is a link together with its total click count.
type LinkDetail struct {
	ShortLink
	Clicks int64
}

// OptionalString returns nil for the empty string.
func OptionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
