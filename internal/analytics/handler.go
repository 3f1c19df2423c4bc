package analytics

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/samber/lo"

	"github.com/sundayezeilo/linkstat/internal/errx"
	"github.com/sundayezeilo/linkstat/internal/httpx"
)

// StatsResponse is the JSON body of GET /api/stats.
type StatsResponse struct {
	TotalLinks       int64   `json:"total_links"`
	TotalClicks      int64   `json:"total_clicks"`
	AvgClicksPerLink float64 `json:"avg_clicks_per_link"`
}

type DayCountResponse struct {
	Day    string `json:"day"`
	Clicks int64  `json:"clicks"`
}

type TopLinkResponse struct {
	ShortCode   string `json:"short_code"`
	OriginalURL string `json:"original_url"`
	Clicks      int64  `json:"clicks"`
}

type DashboardResponse struct {
	Stats    StatsResponse      `json:"stats"`
	Daily    []DayCountResponse `json:"daily"`
	TopLinks []TopLinkResponse  `json:"top_links"`
}

// Handler serves the read-only statistics endpoints.
type Handler struct {
	agg    *Aggregator
	logger *slog.Logger
}

func NewHandler(agg *Aggregator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{agg: agg, logger: logger}
}

// Stats handles GET /api/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.agg.Stats(r.Context())
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toStatsResponse(s))
}

// Daily handles GET /api/stats/daily?days=N.
func (h *Handler) Daily(w http.ResponseWriter, r *http.Request) {
	days, err := httpx.QueryInt(r, "days", DefaultWindowDays)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
		return
	}

	series, err := h.agg.DailySeries(r.Context(), days)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toDayCountResponses(series))
}

// Top handles GET /api/stats/top?limit=N.
func (h *Handler) Top(w http.ResponseWriter, r *http.Request) {
	limit, err := httpx.QueryInt(r, "limit", DefaultTopLimit)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
		return
	}

	top, err := h.agg.TopLinks(r.Context(), limit)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toTopLinkResponses(top))
}

// Dashboard handles GET /api/dashboard.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.agg.Dashboard(r.Context())
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, DashboardResponse{
		Stats:    toStatsResponse(d.Stats),
		Daily:    toDayCountResponses(d.Daily),
		TopLinks: toTopLinkResponses(d.TopLinks),
	})
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	kind := errx.KindOf(err)
	h.logger.ErrorContext(ctx, "analytics query failed",
		"request_id", httpx.GetRequestID(ctx),
		"error", err.Error(),
		"error_kind", kind,
		"operation", errx.OpOf(err),
	)
	httpx.WriteKindError(w, err, "Unable to compute statistics at this time")
}

func toStatsResponse(s Stats) StatsResponse {
	return StatsResponse{
		TotalLinks:       s.TotalLinks,
		TotalClicks:      s.TotalClicks,
		AvgClicksPerLink: s.AvgClicksPerLink,
	}
}

func toDayCountResponses(series []DayCount) []DayCountResponse {
	return lo.Map(series, func(d DayCount, _ int) DayCountResponse {
		return DayCountResponse{Day: d.Day, Clicks: d.Clicks}
	})
}

func toTopLinkResponses(top []LinkClicks) []TopLinkResponse {
	return lo.Map(top, func(lc LinkClicks, _ int) TopLinkResponse {
		return TopLinkResponse{
			ShortCode:   lc.Link.ShortCode,
			OriginalURL: lc.Link.OriginalURL,
			Clicks:      lc.Clicks,
		}
	})
}
