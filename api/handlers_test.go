package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synetech/synepoints/api"
	"github.com/synetech/synepoints/auth"
	"github.com/synetech/synepoints/points"
	"github.com/synetech/synepoints/points/store"
	"github.com/synetech/synepoints/vault"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) (http.Handler, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.PutTeam(ctx, points.Team{ID: "mobile", Name: "Mobile"}))
	users := []points.User{
		{Email: "admin@synetech.cz", FullName: "Admin", Role: points.RoleAdmin},
		{Email: "pm@synetech.cz", FullName: "PM", Role: points.RolePM, Teams: []points.TeamID{"mobile"}},
		{Email: "dev@synetech.cz", FullName: "Dev", Role: points.RoleUser},
	}
	for i := range users {
		require.NoError(t, mem.PutUser(ctx, &users[i]))
	}
	prizes := []points.Prize{
		{ID: 1, Description: "T-shirt", Price: "50", Requestable: true},
		{ID: 2, Description: "Conference", Price: "dle domluvy", Requestable: false},
	}
	for _, p := range prizes {
		require.NoError(t, mem.PutPrize(ctx, p))
	}

	v, err := vault.New([]byte("0123456789abcdef0123456789abcdef"), mem)
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)

	sessions := auth.NewSessions([]byte("test-secret"), time.Hour)
	h := api.NewHandler(mem, v, sessions, nil, log)
	h.DevIdentityHeader = true

	return api.NewRouter(h), mem
}

func doJSON(t *testing.T, router http.Handler, method, path, asEmail string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if asEmail != "" {
		req.Header.Set("X-Debug-Email", asEmail)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

// =============================================================================
// IDENTITY
// =============================================================================

func TestAPI_MissingIdentityIs401(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodGet, "/api/overview", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_SessionTokenAccepted(t *testing.T) {
	// A Bearer token issued by the session signer must authenticate
	// without the debug header.

	mem := store.NewMemory()
	ctx := context.Background()
	u := &points.User{Email: "dev@synetech.cz", FullName: "Dev", Role: points.RoleUser}
	require.NoError(t, mem.PutUser(ctx, u))

	v, err := vault.New([]byte("0123456789abcdef0123456789abcdef"), mem)
	require.NoError(t, err)
	log := logrus.New()
	log.SetOutput(io.Discard)
	sessions := auth.NewSessions([]byte("test-secret"), time.Hour)
	router := api.NewRouter(api.NewHandler(mem, v, sessions, nil, log))

	token, err := sessions.Issue("dev@synetech.cz")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/overview", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// AWARDING
// =============================================================================

func TestAPI_AwardPoints_Admin(t *testing.T) {
	router, mem := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/points/award", "admin@synetech.cz", map[string]any{
		"emails": []string{"dev@synetech.cz", "pm@synetech.cz"},
		"points": 10,
		"reason": "hackathon win",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	u, err := mem.GetUser(context.Background(), "dev@synetech.cz")
	require.NoError(t, err)
	assert.Equal(t, int64(10), u.Points)
}

func TestAPI_AwardPoints_RegularUserIs403(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/points/award", "dev@synetech.cz", map[string]any{
		"emails": []string{"pm@synetech.cz"},
		"points": 10,
		"reason": "nope",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAPI_AwardPoints_ValidationIs400(t *testing.T) {
	router, _ := newTestServer(t)

	// Missing reason and empty recipients.
	rec := doJSON(t, router, http.MethodPost, "/api/points/award", "admin@synetech.cz", map[string]any{
		"emails": []string{},
		"points": 10,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_PointRecords_OthersRequireAwardRole(t *testing.T) {
	router, _ := newTestServer(t)

	award := func() {
		rec := doJSON(t, router, http.MethodPost, "/api/points/award", "admin@synetech.cz", map[string]any{
			"emails": []string{"dev@synetech.cz"},
			"points": 5,
			"reason": "demo",
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}
	award()

	// Own records: fine.
	rec := doJSON(t, router, http.MethodGet, "/api/points/records", "dev@synetech.cz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Someone else's records as a regular user: forbidden.
	rec = doJSON(t, router, http.MethodGet, "/api/points/records?user=dev%40synetech.cz", "pm@synetech.cz", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "pm can award, so pm can inspect")

	rec = doJSON(t, router, http.MethodGet, "/api/points/records?user=pm%40synetech.cz", "dev@synetech.cz", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// =============================================================================
// OVERVIEW
// =============================================================================

func TestAPI_Overview(t *testing.T) {
	router, mem := newTestServer(t)
	require.NoError(t, mem.CreditPoints(context.Background(), "dev@synetech.cz", 75))

	rec := doJSON(t, router, http.MethodGet, "/api/overview", "dev@synetech.cz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "dev@synetech.cz", body["email"])
	assert.Equal(t, float64(75), body["points"])
	leaderboard := body["leaderboard"].([]any)
	require.Len(t, leaderboard, 3)
	top := leaderboard[0].(map[string]any)
	assert.Equal(t, "dev@synetech.cz", top["email"])
}

// =============================================================================
// PRIZES & REQUESTS
// =============================================================================

func TestAPI_ListPrizes_MarksPurchasable(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodGet, "/api/prizes/", "dev@synetech.cz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	prizes := decodeBody[[]map[string]any](t, rec)
	require.Len(t, prizes, 2)
	assert.Equal(t, true, prizes[0]["purchasable"])
	assert.Equal(t, false, prizes[1]["purchasable"])
	assert.Equal(t, "dle domluvy", prizes[1]["price"])
}

func TestAPI_RequestPrize_Lifecycle(t *testing.T) {
	// Fund, request (201), list pending as admin, grant (200), grant
	// again (409).

	router, mem := newTestServer(t)
	require.NoError(t, mem.CreditPoints(context.Background(), "dev@synetech.cz", 50))

	rec := doJSON(t, router, http.MethodPost, "/api/prizes/1/request", "dev@synetech.cz", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[map[string]string](t, rec)
	reqID := created["request_id"]
	require.NotEmpty(t, reqID)

	rec = doJSON(t, router, http.MethodGet, "/api/requests/pending", "admin@synetech.cz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decodeBody[[]map[string]any](t, rec)
	require.Len(t, pending, 1)
	assert.Equal(t, "T-shirt", pending[0]["prize_description"])

	rec = doJSON(t, router, http.MethodPost, "/api/requests/"+reqID+"/grant", "admin@synetech.cz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/requests/"+reqID+"/grant", "admin@synetech.cz", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_RequestPrize_InsufficientIs400(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/prizes/1/request", "dev@synetech.cz", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_RequestPrize_NonRequestableIs400(t *testing.T) {
	router, mem := newTestServer(t)
	require.NoError(t, mem.CreditPoints(context.Background(), "dev@synetech.cz", 1000))

	rec := doJSON(t, router, http.MethodPost, "/api/prizes/2/request", "dev@synetech.cz", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_RequestPrize_UnknownIs404(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/prizes/99/request", "dev@synetech.cz", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_CancelRequest_Refunds(t *testing.T) {
	router, mem := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, mem.CreditPoints(ctx, "dev@synetech.cz", 50))

	rec := doJSON(t, router, http.MethodPost, "/api/prizes/1/request", "dev@synetech.cz", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	reqID := decodeBody[map[string]string](t, rec)["request_id"]

	rec = doJSON(t, router, http.MethodPost, "/api/requests/"+reqID+"/cancel", "dev@synetech.cz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	u, err := mem.GetUser(ctx, "dev@synetech.cz")
	require.NoError(t, err)
	assert.Equal(t, int64(50), u.Points)
}

func TestAPI_PendingRequests_AdminOnly(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodGet, "/api/requests/pending", "pm@synetech.cz", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// =============================================================================
// DIRECTORY
// =============================================================================

func TestAPI_CreateUser_Admin(t *testing.T) {
	router, mem := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/users/", "admin@synetech.cz", map[string]any{
		"email":     "new@synetech.cz",
		"full_name": "New Hire",
		"teams":     []string{"mobile"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	u, err := mem.GetUser(context.Background(), "new@synetech.cz")
	require.NoError(t, err)
	assert.Equal(t, points.RoleUser, u.Role)
	assert.Equal(t, []points.TeamID{"mobile"}, u.Teams)
}

func TestAPI_CreateUser_BadRoleIs400(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/users/", "admin@synetech.cz", map[string]any{
		"email":     "new@synetech.cz",
		"full_name": "New Hire",
		"role":      "superuser",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_CreateUser_NonAdminIs403(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/users/", "pm@synetech.cz", map[string]any{
		"email":     "new@synetech.cz",
		"full_name": "New Hire",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAPI_FindUsers(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodGet, "/api/users/?team=mobile", "dev@synetech.cz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	users := decodeBody[[]map[string]any](t, rec)
	require.Len(t, users, 1)
	assert.Equal(t, "pm@synetech.cz", users[0]["email"])
}

// =============================================================================
// TOKENS
// =============================================================================

func TestAPI_StoreToken(t *testing.T) {
	router, mem := newTestServer(t)

	rec := doJSON(t, router, http.MethodPut, "/api/tokens/jira", "dev@synetech.cz", map[string]any{
		"token": "my-jira-token",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	u, err := mem.GetUser(context.Background(), "dev@synetech.cz")
	require.NoError(t, err)
	assert.NotEmpty(t, u.JiraToken)
	assert.NotContains(t, u.JiraToken, "my-jira-token", "only ciphertext reaches the store")
}

func TestAPI_StoreToken_UnknownKindIs400(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPut, "/api/tokens/github", "dev@synetech.cz", map[string]any{
		"token": "x",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_JiraTasks_NoTokenIs400(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodGet, "/api/jira/tasks", "dev@synetech.cz", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// REWARD CATALOG
// =============================================================================

func TestAPI_Rewards(t *testing.T) {
	router, mem := newTestServer(t)
	require.NoError(t, mem.PutRewardCategory(context.Background(), points.RewardCategory{
		Name:  "Engineering",
		Items: []points.RewardItem{{Description: "Tech talk", PointValue: 30}},
	}))

	rec := doJSON(t, router, http.MethodGet, "/api/rewards", "dev@synetech.cz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cats := decodeBody[[]map[string]any](t, rec)
	require.Len(t, cats, 1)
	assert.Equal(t, "Engineering", cats[0]["name"])
}
