package shortener

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sundayezeilo/linkstat/codegen"
	"github.com/sundayezeilo/linkstat/internal/errx"
	"github.com/sundayezeilo/linkstat/internal/httpx"
)

// HTTPCreateLinkRequest represents the JSON request body for creating a link.
type HTTPCreateLinkRequest struct {
	URL        string `json:"url"`
	CustomCode string `json:"custom_code,omitempty"`
}

// LinkResponse represents a short link in JSON responses.
type LinkResponse struct {
	ID          string `json:"id"`
	ShortCode   string `json:"short_code"`
	OriginalURL string `json:"original_url"`
	ShortURL    string `json:"short_url"`
	CreatedAt   string `json:"created_at"`
}

// LinkDetailResponse adds the click total to LinkResponse.
type LinkDetailResponse struct {
	LinkResponse
	Clicks int64 `json:"clicks"`
}

// ListLinksResponse wraps the link listing.
type ListLinksResponse struct {
	Links []LinkResponse `json:"links"`
	Count int            `json:"count"`
}

// Handler provides HTTP handlers for the URL shortener service.
type Handler struct {
	service Service
	logger  *slog.Logger
	baseURL string
}

// HandlerConfig holds configuration for the handler.
type HandlerConfig struct {
	Service Service
	Logger  *slog.Logger
	BaseURL string // Base URL for constructing short URLs (e.g., "https://short.ly")
}

// NewHandler creates a new Handler instance.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		service: cfg.Service,
		logger:  logger,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// CreateLink handles POST requests to create a new short link.
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	req, err := httpx.DecodeJSON[HTTPCreateLinkRequest](r)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request", "error", err.Error())
		if errors.Is(err, httpx.ErrUnsupportedMediaType) {
			httpx.WriteError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", err.Error(), nil)
			return
		}
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}

	if err := validateCreateRequest(req); err != nil {
		logger.WarnContext(ctx, "request validation failed",
			"error", err.Error(),
			"url", req.URL,
			"custom_code", req.CustomCode,
		)
		var details any
		if req.CustomCode != "" {
			if suggestion := codegen.Sanitize(req.CustomCode); suggestion != "" {
				details = map[string]string{"suggestion": suggestion}
			}
		}
		httpx.WriteError(w, http.StatusBadRequest, "validation_failed", err.Error(), details)
		return
	}

	link, err := h.service.Create(ctx, CreateLinkRequest{
		OriginalURL: req.URL,
		CustomCode:  req.CustomCode,
	})
	if err != nil {
		h.handleCreateError(ctx, w, err)
		return
	}

	logger.InfoContext(ctx, "link created",
		"link_id", link.ID.String(),
		"short_code", link.ShortCode,
		"custom_code", req.CustomCode != "",
	)

	httpx.WriteJSON(w, http.StatusCreated, h.toResponse(link))
}

// ResolveLink handles GET /{code}: it redirects to the original URL.
// Click recording happens off the response path.
func (h *Handler) ResolveLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := r.PathValue("code")

	originalURL, err := h.service.Resolve(ctx, code, ClientMeta{
		UserAgent: r.UserAgent(),
		Referrer:  r.Referer(),
	})
	if err != nil {
		h.handleLookupError(ctx, w, err, code)
		return
	}

	h.requestLogger(r).DebugContext(ctx, "short code resolved",
		"short_code", code,
		"original_url", originalURL,
	)

	http.Redirect(w, r, originalURL, http.StatusFound)
}

// GetLink handles GET /api/links/{code}.
func (h *Handler) GetLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := r.PathValue("code")

	detail, err := h.service.Get(ctx, code)
	if err != nil {
		h.handleLookupError(ctx, w, err, code)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, LinkDetailResponse{
		LinkResponse: h.toResponse(detail.ShortLink),
		Clicks:       detail.Clicks,
	})
}

// ListLinks handles GET /api/links, newest first.
func (h *Handler) ListLinks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	links, err := h.service.List(ctx)
	if err != nil {
		kind := errx.KindOf(err)
		h.logger.ErrorContext(ctx, "failed to list links",
			"error", err.Error(),
			"error_kind", kind,
		)
		httpx.WriteKindError(w, err, "Unable to list links at this time")
		return
	}

	resp := ListLinksResponse{Links: make([]LinkResponse, 0, len(links)), Count: len(links)}
	for _, link := range links {
		resp.Links = append(resp.Links, h.toResponse(link))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) toResponse(link ShortLink) LinkResponse {
	return LinkResponse{
		ID:          link.ID.String(),
		ShortCode:   link.ShortCode,
		OriginalURL: link.OriginalURL,
		ShortURL:    h.baseURL + "/" + link.ShortCode,
		CreatedAt:   link.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *Handler) requestLogger(r *http.Request) *slog.Logger {
	return h.logger.With(
		"request_id", httpx.GetRequestID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
	)
}

// handleCreateError handles errors from the Create service method.
func (h *Handler) handleCreateError(ctx context.Context, w http.ResponseWriter, err error) {
	kind := errx.KindOf(err)

	logAttrs := []any{
		"error", err.Error(),
		"error_kind", kind,
		"operation", errx.OpOf(err),
	}

	switch kind {
	case errx.Conflict:
		h.logger.WarnContext(ctx, "short code conflict", logAttrs...)
		httpx.WriteError(w, http.StatusConflict, "code_taken",
			"This short code is already taken",
			map[string]string{
				"hint": "Try a different custom code or let us generate one for you",
			})

	case errx.Invalid:
		h.logger.WarnContext(ctx, "invalid link request", logAttrs...)
		code := "invalid_input"
		if errors.Is(err, ErrInvalidURL) {
			code = "invalid_url"
		}
		httpx.WriteError(w, http.StatusBadRequest, code, err.Error(), nil)

	case errx.Exhausted:
		h.logger.ErrorContext(ctx, "short code space contended", logAttrs...)
		httpx.WriteError(w, http.StatusServiceUnavailable, "generation_exhausted",
			"Unable to allocate a short code at this time. Please try again.", nil)

	case errx.Unavailable:
		h.logger.ErrorContext(ctx, "service unavailable", logAttrs...)
		httpx.WriteError(w, http.StatusServiceUnavailable, "unavailable",
			"Unable to create short link at this time. Please try again.", nil)

	default:
		h.logger.ErrorContext(ctx, "unexpected error creating link", logAttrs...)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error",
			"Unable to create short link at this time. Please try again.", nil)
	}
}

// handleLookupError handles errors from Resolve and Get.
func (h *Handler) handleLookupError(ctx context.Context, w http.ResponseWriter, err error, code string) {
	kind := errx.KindOf(err)

	logAttrs := []any{
		"error", err.Error(),
		"error_kind", kind,
		"operation", errx.OpOf(err),
		"short_code", code,
	}

	switch kind {
	case errx.NotFound:
		h.logger.InfoContext(ctx, "short code not found", logAttrs...)
		httpx.WriteError(w, http.StatusNotFound, "not_found",
			"short link doesn't exist", nil)

	case errx.Unavailable:
		h.logger.ErrorContext(ctx, "store unavailable", logAttrs...)
		httpx.WriteError(w, http.StatusServiceUnavailable, "unavailable",
			"Unable to resolve this link at this time", nil)

	default:
		h.logger.ErrorContext(ctx, "unexpected error resolving link", logAttrs...)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error",
			"Unable to resolve this link at this time", nil)
	}
}

// validateCreateRequest is the transport-level check before the service
// runs its own URL validation.
func validateCreateRequest(req HTTPCreateLinkRequest) error {
	if strings.TrimSpace(req.URL) == "" {
		return errors.New("url is required")
	}
	if req.CustomCode != "" && !codegen.Valid(req.CustomCode) {
		return errors.New("custom_code must be 1-20 letters or digits")
	}
	return nil
}
