package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"community-bot/backend/internal/activity/domain"
	"community-bot/backend/internal/activity/pipeline"
)

type mockSubmitter struct {
	events []domain.ActivityEvent
	err    error
}

func (m *mockSubmitter) Submit(e domain.ActivityEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if !e.Timestamp.IsZero() {
		if err := e.CheckTimestamp(time.Now(), domain.DefaultMaxEventAge, domain.DefaultMaxEventSkew); err != nil {
			return err
		}
	}
	m.events = append(m.events, e)
	return m.err
}

func post(t *testing.T, s Submitter, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := mux.NewRouter()
	NewHandler(s).Register(router.PathPrefix("/v1").Subrouter())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(body)))
	return rec
}

func TestHandleEvent_Accepted(t *testing.T) {
	s := &mockSubmitter{}
	rec := post(t, s, `{"guild_id":"1","user_id":"2","channel_id":"3","event_type":"message","metadata":{"len":12}}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, s.events, 1)
	assert.Equal(t, domain.EventMessage, s.events[0].Type)
	assert.JSONEq(t, `{"len":12}`, string(s.events[0].Metadata))
	assert.JSONEq(t, `{"status":"accepted"}`, rec.Body.String())
}

func TestHandleEvent_RecentTimestampAccepted(t *testing.T) {
	s := &mockSubmitter{}
	ts := time.Now().Add(-time.Minute).UTC().Truncate(time.Second)
	rec := post(t, s, `{"guild_id":"1","user_id":"2","event_type":"join","timestamp":"`+ts.Format(time.RFC3339)+`"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, s.events, 1)
	assert.True(t, s.events[0].Timestamp.Equal(ts))
}

func TestHandleEvent_OutOfRangeTimestampNamesTheProblem(t *testing.T) {
	rec := post(t, &mockSubmitter{}, `{"guild_id":"1","user_id":"2","event_type":"join","timestamp":"1999-01-01T00:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "timestamp out of range")
}

func TestHandleEvent_DroppedIsStillAccepted(t *testing.T) {
	rec := post(t, &mockSubmitter{err: pipeline.ErrQueueFull}, `{"guild_id":"1","user_id":"2","event_type":"join"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"status":"dropped"}`, rec.Body.String())
}

func TestHandleEvent_BadRequests(t *testing.T) {
	for name, body := range map[string]string{
		"not json":      `{`,
		"unknown field": `{"guild_id":"1","user_id":"2","event_type":"join","extra":1}`,
		"missing user":  `{"guild_id":"1","event_type":"join"}`,
		"unknown type":  `{"guild_id":"1","user_id":"2","event_type":"reaction"}`,
		"numeric ids":   `{"guild_id":1,"user_id":2,"event_type":"join"}`,
		"ancient ts":    `{"guild_id":"1","user_id":"2","event_type":"join","timestamp":"1999-01-01T00:00:00Z"}`,
		"future ts":     `{"guild_id":"1","user_id":"2","event_type":"join","timestamp":"` + time.Now().Add(time.Hour).UTC().Format(time.RFC3339) + `"}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := post(t, &mockSubmitter{}, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}
