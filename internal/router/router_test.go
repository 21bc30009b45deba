package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"haven/config"
	"haven/internal/auth"
	"haven/internal/domain"
	"haven/internal/models"
	"haven/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	t   *testing.T
	cfg *config.Config
	db  *gorm.DB
	h   http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.Defaults()
	cfg.RateLimit.GlobalPerMinute = 1000
	cfg.RateLimit.MutationPerMinute = 1000
	db := testutil.NewDB(t)
	engine, cleanup := Setup(cfg, db)
	t.Cleanup(cleanup)
	return &testServer{t: t, cfg: cfg, db: db, h: engine}
}

func (s *testServer) token(u *models.User) string {
	s.t.Helper()
	tok, err := auth.GenerateAccessToken(&s.cfg.JWT, u.ID, u.Email, u.Role)
	require.NoError(s.t, err)
	return tok
}

func (s *testServer) call(method, path, token string, body interface{}) (int, map[string]interface{}) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.h.ServeHTTP(w, req)
	out := map[string]interface{}{}
	if w.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func TestRegisterLoginRefresh(t *testing.T) {
	s := newTestServer(t)

	code, body := s.call(http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email": "Sam@Example.test", "username": "sam", "password": "long-enough", "country_code": "ke",
	})
	require.Equal(t, http.StatusCreated, code, body)
	user := body["user"].(map[string]interface{})
	assert.Equal(t, domain.RoleSeeker, user["role"])
	assert.Equal(t, "KE", user["country_code"])

	code, _ = s.call(http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email": "sam@example.test", "username": "other", "password": "long-enough",
	})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = s.call(http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email": "admin@example.test", "username": "wannabe", "password": "long-enough", "role": "ADMIN",
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.call(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "sam@example.test", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body = s.call(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "sam@example.test", "password": "long-enough"})
	require.Equal(t, http.StatusOK, code)
	tokens := body["tokens"].(map[string]interface{})

	code, body = s.call(http.MethodPost, "/api/v1/auth/refresh", "", gin.H{"refresh_token": tokens["refresh_token"]})
	require.Equal(t, http.StatusOK, code)
	access := body["tokens"].(map[string]interface{})["access_token"].(string)

	code, body = s.call(http.MethodGet, "/api/v1/me", access, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "sam", body["user"].(map[string]interface{})["username"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.call(http.MethodGet, "/api/v1/sessions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = s.call(http.MethodPost, "/api/v1/volunteers/match", "garbage", gin.H{})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestMatchEndAndRewards(t *testing.T) {
	s := newTestServer(t)
	vol := testutil.CreateVolunteer(t, s.db, testutil.VolunteerOpts{Country: "KE", ServesGlobal: true})
	seeker := testutil.CreateUser(t, s.db, domain.RoleSeeker, testutil.UserOpts{Country: "KE"})
	other := testutil.CreateUser(t, s.db, domain.RoleSeeker, testutil.UserOpts{Country: "KE"})

	// volunteers cannot request a match
	code, _ := s.call(http.MethodPost, "/api/v1/volunteers/match", s.token(vol), gin.H{})
	assert.Equal(t, http.StatusForbidden, code)

	code, body := s.call(http.MethodPost, "/api/v1/volunteers/match", s.token(seeker), gin.H{"session_type": "one_on_one"})
	require.Equal(t, http.StatusOK, code, body)
	matched := body["matched_volunteer"].(map[string]interface{})
	assert.Equal(t, float64(vol.ID), matched["volunteer_id"])
	sessionID := uint(body["session_id"].(float64))
	require.NotZero(t, sessionID)
	assert.Equal(t, 1, testutil.ActiveCount(t, s.db, vol.ID))

	code, _ = s.call(http.MethodPost, "/api/v1/volunteers/match", s.token(seeker), gin.H{})
	assert.Equal(t, http.StatusConflict, code)

	// the only volunteer is now full
	code, body = s.call(http.MethodPost, "/api/v1/volunteers/match", s.token(other), gin.H{})
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, body["matched_volunteer"])
	assert.NotEmpty(t, body["message"])
	assert.NotEmpty(t, body["retry_suggestions"])

	path := fmt.Sprintf("/api/v1/sessions/%d", sessionID)
	code, _ = s.call(http.MethodGet, path, s.token(other), nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, body = s.call(http.MethodGet, path+"/rewards", s.token(vol), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, domain.SessionStatusActive, body["status"])

	code, _ = s.call(http.MethodPost, path+"/rewards", s.token(vol), gin.H{"action": "pause"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = s.call(http.MethodPost, path+"/end", s.token(seeker), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["already_ended"])
	assert.Equal(t, 0, testutil.ActiveCount(t, s.db, vol.ID))

	code, body = s.call(http.MethodPost, path+"/end", s.token(vol), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["already_ended"])
	assert.Equal(t, 0, testutil.ActiveCount(t, s.db, vol.ID))

	code, body = s.call(http.MethodGet, "/api/v1/volunteers/earnings", s.token(vol), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["earnings"], 1)
}

func TestCreateSession_WaitsWithoutVolunteers(t *testing.T) {
	s := newTestServer(t)
	seeker := testutil.CreateUser(t, s.db, domain.RoleSeeker, testutil.UserOpts{Country: "US"})

	code, body := s.call(http.MethodPost, "/api/v1/sessions", s.token(seeker), gin.H{"language": "en", "topic": "exams"})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Nil(t, body["matched_volunteer"])
	sess := body["session"].(map[string]interface{})
	assert.Equal(t, domain.SessionStatusWaiting, sess["status"])

	code, _ = s.call(http.MethodPost, "/api/v1/sessions", s.token(seeker), gin.H{"session_type": "group", "max_participants": 30})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = s.call(http.MethodGet, "/api/v1/sessions?status=waiting", s.token(seeker), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["total"])
}

func TestVolunteerAvailabilityRoutes(t *testing.T) {
	s := newTestServer(t)
	vol := testutil.CreateUser(t, s.db, domain.RoleVolunteer, testutil.UserOpts{Country: "NG"})
	tok := s.token(vol)

	code, body := s.call(http.MethodPost, "/api/v1/volunteers/availability", tok, gin.H{
		"is_online": true, "is_available": true, "max_concurrent_sessions": 3, "preferred_regions": []string{"GH", "KE"},
	})
	require.Equal(t, http.StatusOK, code, body)
	av := body["availability"].(map[string]interface{})
	assert.Equal(t, float64(3), av["max_concurrent_sessions"])

	code, _ = s.call(http.MethodPost, "/api/v1/volunteers/availability", tok, gin.H{"max_concurrent_sessions": 11})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = s.call(http.MethodPost, "/api/v1/volunteers/heartbeat", tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, body["last_active"])
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	seeker := testutil.CreateUser(t, s.db, domain.RoleSeeker, testutil.UserOpts{})
	admin := testutil.CreateUser(t, s.db, domain.RoleAdmin, testutil.UserOpts{})

	code, _ := s.call(http.MethodGet, "/api/v1/admin/reward-settings", s.token(seeker), nil)
	assert.Equal(t, http.StatusForbidden, code)

	// a forged role claim does not get past the stored role
	forged, err := auth.GenerateAccessToken(&s.cfg.JWT, seeker.ID, seeker.Email, domain.RoleAdmin)
	require.NoError(t, err)
	code, _ = s.call(http.MethodGet, "/api/v1/admin/reward-settings", forged, nil)
	assert.Equal(t, http.StatusForbidden, code)

	tok := s.token(admin)
	code, body := s.call(http.MethodPut, "/api/v1/admin/reward-settings", tok, gin.H{
		"points_per_minute": 60, "points_to_dollar_rate": 0.05, "max_free_minutes": 10, "continuation_rate_multiplier": 2,
	})
	require.Equal(t, http.StatusOK, code, body)

	code, body = s.call(http.MethodGet, "/api/v1/admin/reward-settings", tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(60), body["settings"].(map[string]interface{})["points_per_minute"])

	code, _ = s.call(http.MethodPut, "/api/v1/admin/reward-settings", tok, gin.H{
		"points_per_minute": 60, "points_to_dollar_rate": 0.05, "max_free_minutes": 10, "continuation_rate_multiplier": 0.5,
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = s.call(http.MethodPut, "/api/v1/admin/region-currencies/ke", tok, gin.H{"currency": "kes", "exchange_rate": 129.5})
	require.Equal(t, http.StatusOK, code, body)
	code, body = s.call(http.MethodGet, "/api/v1/admin/region-currencies", tok, nil)
	require.Equal(t, http.StatusOK, code)
	list := body["currencies"].([]interface{})
	require.Len(t, list, 1)
	assert.Equal(t, "KES", list[0].(map[string]interface{})["currency"])

	code, _ = s.call(http.MethodPost, "/api/v1/admin/earnings/999/paid", tok, nil)
	assert.Equal(t, http.StatusNotFound, code)
}
