package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/bitcoinsovereign/academy/internal/config"
	"github.com/bitcoinsovereign/academy/internal/database"
)

type ApiTestSuite struct {
	suite.Suite
	api *Api
}

func (s *ApiTestSuite) SetupTest() {
	cfg := &config.Config{Env: "test", BaseURL: "http://localhost:8080"}
	cfg.Database.Type = "sqlite"
	cfg.Database.Path = filepath.Join(s.T().TempDir(), "academy_test.db")
	cfg.Auth.Secret = "test-secret"
	cfg.Auth.AdminSecret = "test-admin-secret"

	err := database.Init(cfg)
	assert.NoError(s.T(), err, "Database initialization should succeed")

	s.api, err = NewApi(cfg)
	assert.NoError(s.T(), err)
}

func (s *ApiTestSuite) TearDownTest() {
	database.Close()
}

func TestApiTestSuite(t *testing.T) {
	suite.Run(t, new(ApiTestSuite))
}

func (s *ApiTestSuite) request(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.168.1.10:55000"
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.api.Router.ServeHTTP(rec, req)
	return rec
}

func (s *ApiTestSuite) decode(rec *httptest.ResponseRecorder) map[string]interface{} {
	var body map[string]interface{}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// loginToken mints a bearer token the way a completed login would.
func (s *ApiTestSuite) loginToken(userID, email string) string {
	token, err := s.api.auth.Tokens().Generate(userID, email, "device-1", nil, time.Hour)
	s.Require().NoError(err)
	return token
}

func (s *ApiTestSuite) createUser(email string) string {
	userID := "00000000-0000-0000-0000-000000000001"
	now := time.Now()
	_, err := database.Exec(
		`INSERT INTO users (id, email, email_verified, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		userID, email, true, now, now,
	)
	s.Require().NoError(err)
	return userID
}

func (s *ApiTestSuite) TestHeartbeat() {
	rec := s.request(http.MethodGet, "/heartbeat", nil, nil)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *ApiTestSuite) TestMagicLinkRejectsBadEmail() {
	rec := s.request(http.MethodPost, "/auth/magic-link", map[string]string{"email": "not-an-email"}, nil)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ApiTestSuite) TestMagicLinkNeverRevealsRegistration() {
	first := s.request(http.MethodPost, "/auth/magic-link", map[string]string{"email": "new@example.com"}, nil)
	s.Equal(http.StatusOK, first.Code)

	// A second request for the now-registered address returns the same body.
	second := s.request(http.MethodPost, "/auth/magic-link", map[string]string{"email": "new@example.com"}, nil)
	s.Equal(http.StatusOK, second.Code)
	s.Equal(first.Body.String(), second.Body.String())
}

func (s *ApiTestSuite) TestVerifyRejectsUnknownToken() {
	rec := s.request(http.MethodGet, "/auth/verify?token=aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", nil, nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *ApiTestSuite) TestAuthRateLimit() {
	for i := 0; i < 5; i++ {
		rec := s.request(http.MethodPost, "/auth/magic-link", map[string]string{"email": "not-an-email"}, nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	}

	rec := s.request(http.MethodPost, "/auth/magic-link", map[string]string{"email": "not-an-email"}, nil)
	s.Equal(http.StatusTooManyRequests, rec.Code)
	s.NotEmpty(rec.Header().Get("Retry-After"))
}

func (s *ApiTestSuite) TestMeRequiresToken() {
	rec := s.request(http.MethodGet, "/auth/me", nil, nil)
	s.Equal(http.StatusUnauthorized, rec.Code)

	rec = s.request(http.MethodGet, "/auth/me", nil, map[string]string{"Authorization": "Bearer garbage"})
	s.Equal(http.StatusUnauthorized, rec.Code)

	userID := s.createUser("alice@example.com")
	token := s.loginToken(userID, "alice@example.com")
	rec = s.request(http.MethodGet, "/auth/me", nil, map[string]string{"Authorization": "Bearer " + token})
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("alice@example.com", s.decode(rec)["email"])
}

func (s *ApiTestSuite) TestAccessCheckFreeTier() {
	rec := s.request(http.MethodGet, "/access/check?content_type=demo&content_id=bitcoin-basics", nil, nil)
	s.Equal(http.StatusOK, rec.Code)

	body := s.decode(rec)
	s.Equal(true, body["has_access"])
	s.Equal("free_tier", body["reason"])
}

func (s *ApiTestSuite) TestAccessCheckRejectsBadInput() {
	rec := s.request(http.MethodGet, "/access/check?content_type=movie&content_id=x", nil, nil)
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.request(http.MethodGet, "/access/check?content_type=demo&content_id=NOT%20VALID", nil, nil)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ApiTestSuite) TestAdminEndpointsRequireSecret() {
	grant := map[string]string{"user_id": "u", "product_id": "demo_single", "item_id": "x"}

	rec := s.request(http.MethodPost, "/admin/entitlements/grant", grant, nil)
	s.Equal(http.StatusUnauthorized, rec.Code)

	rec = s.request(http.MethodPost, "/admin/entitlements/grant", grant, map[string]string{"X-Admin-Secret": "wrong"})
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *ApiTestSuite) TestGrantCheckRevokeRoundTrip() {
	userID := s.createUser("alice@example.com")
	admin := map[string]string{"X-Admin-Secret": "test-admin-secret"}

	rec := s.request(http.MethodPost, "/admin/entitlements/grant",
		map[string]string{"user_id": userID, "product_id": "path_monthly_curious"}, admin)
	s.Equal(http.StatusOK, rec.Code)

	token := s.loginToken(userID, "alice@example.com")
	rec = s.request(http.MethodPost, "/access/check",
		map[string]string{"content_type": "module", "content_id": "curious-101-what-is-money"},
		map[string]string{"Authorization": "Bearer " + token})
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("path_access", s.decode(rec)["reason"])

	rec = s.request(http.MethodGet, "/entitlements", nil, map[string]string{"Authorization": "Bearer " + token})
	s.Equal(http.StatusOK, rec.Code)

	rec = s.request(http.MethodPost, "/admin/entitlements/revoke",
		map[string]string{"user_id": userID, "entitlement_type": "path_monthly", "item_id": "curious"}, admin)
	s.Equal(http.StatusOK, rec.Code)

	rec = s.request(http.MethodPost, "/access/check",
		map[string]string{"content_type": "module", "content_id": "curious-101-what-is-money"},
		map[string]string{"Authorization": "Bearer " + token})
	s.Equal(http.StatusForbidden, rec.Code)
	body := s.decode(rec)
	s.Equal(false, body["has_access"])
	s.Equal("no_entitlements", body["reason"])
}

func (s *ApiTestSuite) TestGrantRejectsUnknownProduct() {
	rec := s.request(http.MethodPost, "/admin/entitlements/grant",
		map[string]string{"user_id": "u", "product_id": "free_lunch"},
		map[string]string{"X-Admin-Secret": "test-admin-secret"})
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ApiTestSuite) TestBulkAccessCheck() {
	rec := s.request(http.MethodPost, "/access/check-bulk", map[string]interface{}{
		"items": []map[string]string{
			{"content_type": "demo", "content_id": "bitcoin-basics"},
			{"content_type": "module", "content_id": "curious-101-what-is-money"},
		},
	}, nil)
	s.Equal(http.StatusOK, rec.Code)

	results := s.decode(rec)["results"].(map[string]interface{})
	s.Len(results, 2)
	s.Equal("free_tier", results["bitcoin-basics"].(map[string]interface{})["reason"])

	rec = s.request(http.MethodPost, "/access/check-bulk", map[string]interface{}{"items": []map[string]string{}}, nil)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ApiTestSuite) TestLogoutRevokesBearer() {
	userID := s.createUser("alice@example.com")
	token := s.loginToken(userID, "alice@example.com")
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	rec := s.request(http.MethodGet, "/auth/me", nil, authHeader)
	s.Equal(http.StatusOK, rec.Code)

	rec = s.request(http.MethodPost, "/auth/logout", nil, authHeader)
	s.Equal(http.StatusOK, rec.Code)

	rec = s.request(http.MethodGet, "/auth/me", nil, authHeader)
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Contains(rec.Body.String(), "revoked")
}
