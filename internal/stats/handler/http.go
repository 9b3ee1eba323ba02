// Package handler exposes the stats service over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gorilla/mux"

	"community-bot/backend/internal/activity/domain"
	"community-bot/backend/internal/httpx"
	leveldomain "community-bot/backend/internal/leveling/domain"
	partdomain "community-bot/backend/internal/partition/domain"
	"community-bot/backend/internal/stats"
)

// Service is the read side used by the handler.
type Service interface {
	ActivitySeries(ctx context.Context, guildID snowflake.ID, days int) ([]domain.SeriesPoint, error)
	Leaderboard(ctx context.Context, guildID snowflake.ID, limit, offset int) ([]leveldomain.LeaderboardEntry, error)
	Partitions(ctx context.Context) ([]partdomain.Descriptor, error)
}

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the read routes on router (typically the /v1 subrouter).
func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/guilds/{guildID}/activity", h.HandleActivity).Methods(http.MethodGet)
	router.HandleFunc("/guilds/{guildID}/leaderboard", h.HandleLeaderboard).Methods(http.MethodGet)
	router.HandleFunc("/partitions", h.HandlePartitions).Methods(http.MethodGet)
}

type ActivityResponse struct {
	GuildID snowflake.ID         `json:"guild_id"`
	Days    int                  `json:"days"`
	Series  []domain.SeriesPoint `json:"series"`
}

// HandleActivity serves GET /v1/guilds/{guildID}/activity?days=30.
func (h *Handler) HandleActivity(w http.ResponseWriter, r *http.Request) {
	guildID, ok := guildParam(w, r)
	if !ok {
		return
	}
	days, err := intQuery(r, "days", stats.DefaultDays)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}
	series, err := h.svc.ActivitySeries(r.Context(), guildID, days)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, ActivityResponse{GuildID: guildID, Days: days, Series: series})
}

type LeaderboardResponse struct {
	GuildID snowflake.ID                   `json:"guild_id"`
	Limit   int                            `json:"limit"`
	Offset  int                            `json:"offset"`
	Entries []leveldomain.LeaderboardEntry `json:"entries"`
}

// HandleLeaderboard serves GET /v1/guilds/{guildID}/leaderboard?limit=10&offset=0.
func (h *Handler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	guildID, ok := guildParam(w, r)
	if !ok {
		return
	}
	limit, err := intQuery(r, "limit", stats.DefaultLimit)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}
	offset, err := intQuery(r, "offset", 0)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}
	entries, err := h.svc.Leaderboard(r.Context(), guildID, limit, offset)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []leveldomain.LeaderboardEntry{}
	}
	httpx.RespondJSON(w, http.StatusOK, LeaderboardResponse{GuildID: guildID, Limit: limit, Offset: offset, Entries: entries})
}

// HandlePartitions serves GET /v1/partitions.
func (h *Handler) HandlePartitions(w http.ResponseWriter, r *http.Request) {
	parts, err := h.svc.Partitions(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if parts == nil {
		parts = []partdomain.Descriptor{}
	}
	httpx.RespondJSON(w, http.StatusOK, map[string]any{"partitions": parts})
}

func guildParam(w http.ResponseWriter, r *http.Request) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(mux.Vars(r)["guildID"])
	if err != nil || id <= 0 {
		httpx.RespondErrorString(w, http.StatusBadRequest, "invalid guild id")
		return 0, false
	}
	return id, true
}

func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return n, nil
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, stats.ErrInvalidDays), errors.Is(err, stats.ErrInvalidLimit), errors.Is(err, stats.ErrInvalidPage):
		httpx.RespondError(w, http.StatusBadRequest, err)
	default:
		httpx.RespondErrorString(w, http.StatusInternalServerError, "internal error")
	}
}
