// Package handler exposes per-guild activity configuration over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gorilla/mux"

	"community-bot/backend/internal/activity/cooldown"
	"community-bot/backend/internal/guildconfig/domain"
	"community-bot/backend/internal/httpx"
)

const maxConfigBytes = 64 << 10

// Provider reads through and writes through the config cache.
type Provider interface {
	Get(ctx context.Context, guildID snowflake.ID) (domain.ActivityConfig, bool)
	Upsert(ctx context.Context, cfg *domain.ActivityConfig) error
}

type Handler struct {
	configs Provider
}

func NewHandler(configs Provider) *Handler {
	return &Handler{configs: configs}
}

// Register mounts the config routes on router (typically the /v1 subrouter).
func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/guilds/{guildID}/config", h.HandleGet).Methods(http.MethodGet)
	router.HandleFunc("/guilds/{guildID}/config", h.HandlePut).Methods(http.MethodPut)
}

// ConfigRequest is the body of PUT /v1/guilds/{guildID}/config. The guild comes from the path.
type ConfigRequest struct {
	AntispamTier            cooldown.Tier  `json:"antispam_tier"`
	ExcludedMessageChannels []snowflake.ID `json:"excluded_message_channels"`
	ExcludedVoiceChannels   []snowflake.ID `json:"excluded_voice_channels"`
	RemovePreviousRole      bool           `json:"remove_previous_role"`
}

// HandleGet serves GET /v1/guilds/{guildID}/config. A guild without a row gets the defaults; a
// failed lookup is reported as 503 rather than leaking the fallback config.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	guildID, ok := guildParam(w, r)
	if !ok {
		return
	}
	cfg, ok := h.configs.Get(r.Context(), guildID)
	if !ok {
		httpx.RespondErrorString(w, http.StatusServiceUnavailable, "config unavailable")
		return
	}
	httpx.RespondJSON(w, http.StatusOK, cfg)
}

// HandlePut serves PUT /v1/guilds/{guildID}/config and replaces the guild's whole config.
func (h *Handler) HandlePut(w http.ResponseWriter, r *http.Request) {
	guildID, ok := guildParam(w, r)
	if !ok {
		return
	}
	var req ConfigRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxConfigBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		httpx.RespondErrorString(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.AntispamTier == "" {
		req.AntispamTier = cooldown.DefaultTier
	}
	cfg := domain.ActivityConfig{
		GuildID:                 guildID,
		AntispamTier:            req.AntispamTier,
		ExcludedMessageChannels: req.ExcludedMessageChannels,
		ExcludedVoiceChannels:   req.ExcludedVoiceChannels,
		RemovePreviousRole:      req.RemovePreviousRole,
	}
	if err := cfg.Validate(); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.configs.Upsert(r.Context(), &cfg); err != nil {
		log.Printf("guildconfig: upsert guild %s: %v", guildID, err)
		httpx.RespondErrorString(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.RespondJSON(w, http.StatusOK, cfg)
}

func guildParam(w http.ResponseWriter, r *http.Request) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(mux.Vars(r)["guildID"])
	if err != nil || id <= 0 {
		httpx.RespondErrorString(w, http.StatusBadRequest, "invalid guild id")
		return 0, false
	}
	return id, true
}
