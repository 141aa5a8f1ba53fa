package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crm-resolver/internal/batch"
	"github.com/sells-group/crm-resolver/internal/config"
	"github.com/sells-group/crm-resolver/internal/crm"
	"github.com/sells-group/crm-resolver/internal/crm/crmtest"
	"github.com/sells-group/crm-resolver/internal/domain"
	"github.com/sells-group/crm-resolver/internal/match"
	"github.com/sells-group/crm-resolver/internal/resolver"
	"github.com/sells-group/crm-resolver/internal/review"
)

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{RatePerSec: 100, RateBurst: 100}
}

func testRouter(sc config.ServerConfig) (http.Handler, *crmtest.MemStore) {
	store := crmtest.NewMemStore()
	pipeline := resolver.New(store, domain.NewClassifier(), match.TrigramMatcher{}, 0.8)
	queue := review.NewQueue(store)
	runner := batch.NewRunner(store, pipeline, queue, nil)
	return newRouter(sc, runner, queue), store
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := testRouter(testServerConfig())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListReviewsEndpoint(t *testing.T) {
	router, store := testRouter(testServerConfig())

	dealID := store.AddDeal(crm.Deal{Company: "Acme"})
	require.NoError(t, store.UpsertPendingReview(context.Background(),
		&crm.ReviewRecord{DealID: dealID, Reason: crm.ReasonNoEmail, CompanyText: "Acme"}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/reviews", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got []crm.ReviewRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, crm.ReasonNoEmail, got[0].Reason)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/reviews?limit=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolveReviewEndpoint(t *testing.T) {
	router, store := testRouter(testServerConfig())
	ctx := context.Background()

	company := &crm.Company{Name: "Acme"}
	require.NoError(t, store.CreateCompany(ctx, company))
	contact := &crm.Contact{FirstName: "Jane", Email: "jane@acme.com", CompanyID: company.ID}
	require.NoError(t, store.CreateContact(ctx, contact))

	dealID := store.AddDeal(crm.Deal{Company: "Acme"})
	rev := &crm.ReviewRecord{DealID: dealID, Reason: crm.ReasonNoEmail}
	require.NoError(t, store.UpsertPendingReview(ctx, rev))

	body := `{"company_id":` + itoa(company.ID) + `,"contact_id":` + itoa(contact.ID) + `,"resolver":"ops@example.com","notes":"checked"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/reviews/"+itoa(rev.ID)+"/resolve", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	deal, err := store.GetDeal(ctx, dealID)
	require.NoError(t, err)
	assert.True(t, deal.Resolved())

	// Resolving again conflicts: the review is no longer pending.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/reviews/"+itoa(rev.ID)+"/resolve", strings.NewReader(body)))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestResolveReviewEndpointValidation(t *testing.T) {
	router, _ := testRouter(testServerConfig())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/reviews/abc/resolve", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/reviews/1/resolve", strings.NewReader(`not json`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/reviews/1/resolve", strings.NewReader(`{"company_id":1}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolveDealEndpoint(t *testing.T) {
	router, store := testRouter(testServerConfig())

	good := store.AddDeal(crm.Deal{Company: "Acme", ContactName: "Jane Doe", ContactEmail: "jane@acme.com"})
	bad := store.AddDeal(crm.Deal{Company: "Beta", ContactName: "Bob"})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/deals/"+itoa(good)+"/resolve", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var ok struct {
		Success   bool  `json:"success"`
		CompanyID int64 `json:"company_id"`
		ContactID int64 `json:"contact_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ok))
	assert.True(t, ok.Success)
	assert.NotZero(t, ok.CompanyID)
	assert.NotZero(t, ok.ContactID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/deals/"+itoa(bad)+"/resolve", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var flagged struct {
		Success bool   `json:"success"`
		Reason  string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &flagged))
	assert.False(t, flagged.Success)
	assert.Equal(t, string(crm.ReasonNoEmail), flagged.Reason)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/deals/abc/resolve", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/deals/999/resolve", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestResolveDealRateLimited(t *testing.T) {
	sc := testServerConfig()
	sc.RatePerSec = 1
	sc.RateBurst = 1
	router, store := testRouter(sc)
	id := store.AddDeal(crm.Deal{Company: "Acme", ContactEmail: "jane@acme.com"})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/deals/"+itoa(id)+"/resolve", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/deals/"+itoa(id)+"/resolve", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
