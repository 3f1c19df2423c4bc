package shortener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/sundayezeilo/linkstat/codegen"
	"github.com/sundayezeilo/linkstat/internal/errx"
)

const (
	DefaultCodeLength  = codegen.DefaultLength
	DefaultMaxAttempts = 5
	MaxURLLength       = 2048
)

// CreateLinkRequest represents the parameters for creating a new link.
type CreateLinkRequest struct {
	OriginalURL string
	CustomCode  string // Optional: if empty, a code is generated
}

// Service defines the business logic operations for URL shortening.
type Service interface {
	Create(ctx context.Context, req CreateLinkRequest) (ShortLink, error)
	Resolve(ctx context.Context, code string, meta ClientMeta) (string, error)
	Get(ctx context.Context, code string) (LinkDetail, error)
	List(ctx context.Context) ([]ShortLink, error)
}

type service struct {
	store       Store
	codes       codegen.Generator
	codeLength  int
	maxAttempts int
	recorder    ClickRecorder
	logger      *slog.Logger
	now         func() time.Time
}

// ServiceConfig holds configuration for the service.
type ServiceConfig struct {
	CodeGenerator codegen.Generator
	CodeLength    int
	MaxAttempts   int // inserts tried for a generated code (default: 5)
	Recorder      ClickRecorder
	Logger        *slog.Logger
	Clock         func() time.Time
}

// NewService creates a new service instance.
func NewService(store Store, config *ServiceConfig) Service {
	if config == nil {
		config = &ServiceConfig{}
	}

	codes := config.CodeGenerator
	if codes == nil {
		codes = codegen.New()
	}

	length := config.CodeLength
	if length < 1 || length > codegen.MaxLength {
		length = DefaultCodeLength
	}

	attempts := config.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	recorder := config.Recorder
	if recorder == nil {
		recorder = NewDetachedRecorder(store, logger, DefaultWriteTimeout)
	}

	clock := config.Clock
	if clock == nil {
		clock = time.Now
	}

	return &service{
		store:       store,
		codes:       codes,
		codeLength:  length,
		maxAttempts: attempts,
		recorder:    recorder,
		logger:      logger,
		now:         clock,
	}
}

// Create stores a new short link. A custom code gets exactly one insert;
// a generated code is redrawn after every uniqueness conflict until the
// attempt budget runs out. The store's unique constraint is the only
// arbiter of whether a code is free.
func (s *service) Create(ctx context.Context, req CreateLinkRequest) (ShortLink, error) {
	const op = "shortener.service.Create"

	if err := validateURL(req.OriginalURL); err != nil {
		return ShortLink{}, errx.E(op, errx.Invalid, fmt.Errorf("%w: %w", ErrInvalidURL, err))
	}

	if req.CustomCode != "" {
		if !codegen.Valid(req.CustomCode) {
			return ShortLink{}, errx.E(op, errx.Invalid,
				fmt.Errorf("%w: must be 1-%d letters or digits", ErrInvalidCode, codegen.MaxLength))
		}

		link, err := s.store.InsertLink(ctx, req.CustomCode, req.OriginalURL)
		if err != nil {
			if errx.Is(err, errx.Conflict) {
				return ShortLink{}, errx.E(op, errx.Conflict, fmt.Errorf("%w: %w", ErrCodeTaken, err))
			}
			return ShortLink{}, errx.Wrap(op, err)
		}
		return link, nil
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		code, err := s.codes.Generate(s.codeLength)
		if err != nil {
			return ShortLink{}, errx.E(op, errx.Internal, err)
		}

		link, err := s.store.InsertLink(ctx, code, req.OriginalURL)
		if err == nil {
			return link, nil
		}
		if !errx.Is(err, errx.Conflict) {
			return ShortLink{}, errx.Wrap(op, err)
		}

		s.logger.DebugContext(ctx, "generated short code collided",
			"attempt", attempt,
			"short_code", code,
		)
	}

	s.logger.ErrorContext(ctx, "short code generation exhausted",
		"attempts", s.maxAttempts,
		"code_length", s.codeLength,
	)
	return ShortLink{}, errx.E(op, errx.Exhausted,
		fmt.Errorf("%w after %d attempts", ErrGenerationExhausted, s.maxAttempts))
}

// Resolve returns the original URL for code and hands a click to the
// recorder. The click write is never awaited.
func (s *service) Resolve(ctx context.Context, code string, meta ClientMeta) (string, error) {
	const op = "shortener.service.Resolve"

	link, err := s.lookup(ctx, op, code)
	if err != nil {
		return "", err
	}

	s.recorder.Record(NewClick{
		URLID:     link.ID,
		ClickedAt: s.now().UTC(),
		UserAgent: meta.UserAgent,
		Referrer:  meta.Referrer,
	})

	return link.OriginalURL, nil
}

func (s *service) Get(ctx context.Context, code string) (LinkDetail, error) {
	const op = "shortener.service.Get"

	link, err := s.lookup(ctx, op, code)
	if err != nil {
		return LinkDetail{}, err
	}

	clicks, err := s.store.CountClicksForURL(ctx, link.ID)
	if err != nil {
		return LinkDetail{}, errx.Wrap(op, err)
	}
	return LinkDetail{ShortLink: link, Clicks: clicks}, nil
}

func (s *service) List(ctx context.Context) ([]ShortLink, error) {
	const op = "shortener.service.List"

	links, err := s.store.ListLinks(ctx)
	if err != nil {
		return nil, errx.Wrap(op, err)
	}
	return links, nil
}

func (s *service) lookup(ctx context.Context, op, code string) (ShortLink, error) {
	// A malformed code can never have been stored.
	if !codegen.Valid(code) {
		return ShortLink{}, errx.E(op, errx.NotFound, ErrNotFound)
	}

	link, err := s.store.GetLinkByCode(ctx, code)
	if err != nil {
		if errx.Is(err, errx.NotFound) {
			return ShortLink{}, errx.E(op, errx.NotFound, fmt.Errorf("%w: %w", ErrNotFound, err))
		}
		return ShortLink{}, errx.Wrap(op, err)
	}
	return link, nil
}

func validateURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("url cannot be empty")
	}
	if len(rawURL) > MaxURLLength {
		return fmt.Errorf("url too long (max %d characters)", MaxURLLength)
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid url format")
	}
	if !parsedURL.IsAbs() {
		return errors.New("url must include scheme (http or https)")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return errors.New("url scheme must be http or https")
	}
	if parsedURL.Host == "" {
		return errors.New("url must include host")
	}
	return nil
}
