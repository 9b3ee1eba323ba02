package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"community-bot/backend/internal/activity/cooldown"
	"community-bot/backend/internal/guildconfig"
	"community-bot/backend/internal/guildconfig/domain"
	"community-bot/backend/internal/volatile/redisstore"
)

// memRepo is an in-memory guildconfig repository.
type memRepo struct {
	configs   map[snowflake.ID]domain.ActivityConfig
	upsertErr error
	getErr    error
}

func (m *memRepo) GetByGuildID(ctx context.Context, guildID snowflake.ID) (*domain.ActivityConfig, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	c, ok := m.configs[guildID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *memRepo) Upsert(ctx context.Context, cfg *domain.ActivityConfig) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.configs[cfg.GuildID] = *cfg
	return nil
}

func newRouter(t *testing.T, repo *memRepo) *mux.Router {
	t.Helper()
	mr := miniredis.RunT(t)
	store := redisstore.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = store.Close() })

	router := mux.NewRouter()
	NewHandler(guildconfig.NewProvider(store, repo, time.Minute)).Register(router.PathPrefix("/v1").Subrouter())
	return router
}

func do(router *mux.Router, method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rec
}

func TestHandlePut_StoresConfigAndInvalidatesCache(t *testing.T) {
	repo := &memRepo{configs: map[snowflake.ID]domain.ActivityConfig{}}
	router := newRouter(t, repo)

	// Warm the cache with the defaults.
	rec := do(router, http.MethodGet, "/v1/guilds/42/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"antispam_tier":"normal"`)

	rec = do(router, http.MethodPut, "/v1/guilds/42/config",
		`{"antispam_tier":"strict","excluded_message_channels":["7"],"remove_previous_role":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored := repo.configs[42]
	assert.Equal(t, cooldown.TierStrict, stored.AntispamTier)
	assert.Equal(t, []snowflake.ID{7}, stored.ExcludedMessageChannels)
	assert.True(t, stored.RemovePreviousRole)

	rec = do(router, http.MethodGet, "/v1/guilds/42/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"antispam_tier":"strict"`, "the next read sees the new config")
}

func TestHandlePut_EmptyTierUsesDefault(t *testing.T) {
	repo := &memRepo{configs: map[snowflake.ID]domain.ActivityConfig{}}
	rec := do(newRouter(t, repo), http.MethodPut, "/v1/guilds/42/config", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, cooldown.DefaultTier, repo.configs[42].AntispamTier)
}

func TestHandlePut_BadRequests(t *testing.T) {
	for name, tc := range map[string]struct{ target, body string }{
		"bad guild":     {"/v1/guilds/abc/config", `{"antispam_tier":"soft"}`},
		"not json":      {"/v1/guilds/42/config", `{`},
		"unknown field": {"/v1/guilds/42/config", `{"antispam_tier":"soft","xp":5}`},
		"unknown tier":  {"/v1/guilds/42/config", `{"antispam_tier":"relaxed"}`},
		"zero channel":  {"/v1/guilds/42/config", `{"excluded_voice_channels":["0"]}`},
	} {
		t.Run(name, func(t *testing.T) {
			repo := &memRepo{configs: map[snowflake.ID]domain.ActivityConfig{}}
			rec := do(newRouter(t, repo), http.MethodPut, tc.target, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, repo.configs)
		})
	}
}

func TestHandlePut_StoreFailure(t *testing.T) {
	repo := &memRepo{configs: map[snowflake.ID]domain.ActivityConfig{}, upsertErr: errors.New("db down")}
	rec := do(newRouter(t, repo), http.MethodPut, "/v1/guilds/42/config", `{"antispam_tier":"soft"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleGet_LookupFailureIsUnavailable(t *testing.T) {
	repo := &memRepo{configs: map[snowflake.ID]domain.ActivityConfig{}, getErr: errors.New("db down")}
	rec := do(newRouter(t, repo), http.MethodGet, "/v1/guilds/42/config", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
