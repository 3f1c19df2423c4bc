package shortener

import "errors"

// Sentinels wrapped inside errx errors returned by Service, so callers can
// use either errx.KindOf or errors.Is.
var (
	ErrInvalidURL          = errors.New("invalid url")
	ErrInvalidCode         = errors.New("invalid short code")
	ErrCodeTaken           = errors.New("short code already taken")
	ErrGenerationExhausted = errors.New("could not generate a free short code")
	ErrNotFound            = errors.New("short link not found")
)
