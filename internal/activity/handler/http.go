// Package handler accepts activity events over HTTP for bot processes that do not embed the pipeline.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"community-bot/backend/internal/activity/domain"
	"community-bot/backend/internal/activity/pipeline"
	"community-bot/backend/internal/httpx"
)

// maxEventBytes caps one envelope.
const maxEventBytes = 64 << 10

// Submitter is the pipeline's non-blocking entry point.
type Submitter interface {
	Submit(e domain.ActivityEvent) error
}

type Handler struct {
	pipeline Submitter
}

func NewHandler(p Submitter) *Handler {
	return &Handler{pipeline: p}
}

// Register mounts the ingest route on router (typically the /v1 subrouter).
func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/events", h.HandleEvent).Methods(http.MethodPost)
}

type EventResponse struct {
	Status string `json:"status"`
}

// HandleEvent serves POST /v1/events. A well-formed event is always answered with 202: a full or
// closed pipeline drops it the same way an in-process producer would. An invalid envelope, including
// a timestamp outside the pipeline's accepted window, is answered with 400.
func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	var e domain.ActivityEvent
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&e); err != nil {
		httpx.RespondErrorString(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	err := h.pipeline.Submit(e)
	switch {
	case err == nil:
		httpx.RespondJSON(w, http.StatusAccepted, EventResponse{Status: "accepted"})
	case errors.Is(err, pipeline.ErrQueueFull), errors.Is(err, pipeline.ErrClosed):
		httpx.RespondJSON(w, http.StatusAccepted, EventResponse{Status: "dropped"})
	default:
		httpx.RespondError(w, http.StatusBadRequest, err)
	}
}
