package events

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormlog "gorm.io/gorm/logger"

	"github.com/arnavbhatt/rollcall/internal/gormw"
	"github.com/arnavbhatt/rollcall/internal/lifecycle"
	"github.com/arnavbhatt/rollcall/internal/registry"
	"github.com/arnavbhatt/rollcall/internal/storage"
	"github.com/arnavbhatt/rollcall/internal/token"
)

type fakeChat struct {
	mu       sync.Mutex
	grants   []string
	removals []string
}

func (f *fakeChat) SendDM(memberID, content string) error { return nil }

func (f *fakeChat) GrantRole(memberID, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grants = append(f.grants, memberID)
	return nil
}

func (f *fakeChat) RemoveMember(memberID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removals = append(f.removals, memberID)
	return nil
}

func setupTestRouter(t *testing.T) (*gin.Engine, *lifecycle.Lifecycle, *registry.Registry, *gormw.DB) {
	t.Helper()
	db, err := gormw.Open(&gormw.Config{
		LogLevel: gormlog.Silent,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())

	reg := registry.New(db, token.NewService(7))
	lc := lifecycle.New(lifecycle.Config{
		Timeout:       time.Hour,
		RoleName:      "Member",
		CommunityName: "Testville",
	}, reg, &fakeChat{})

	gin.SetMode(gin.TestMode)
	router := gin.New()
	New(lc).RegisterHandlers(router.Group("/"))

	return router, lc, reg, db
}

func postJSON(t *testing.T, router *gin.Engine, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestMemberJoinedAndPending(t *testing.T) {
	router, _, _, _ := setupTestRouter(t)

	rec := postJSON(t, router, "/events/member-joined", gin.H{"member_id": "m1"})
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin/pending", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Pending []struct {
			MemberID         string `json:"member_id"`
			RemainingSeconds int    `json:"remaining_seconds"`
		} `json:"pending"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Pending, 1)
	assert.Equal(t, "m1", body.Pending[0].MemberID)
	assert.Greater(t, body.Pending[0].RemainingSeconds, 3500)
}

func TestMemberJoined_MissingID(t *testing.T) {
	router, _, _, _ := setupTestRouter(t)

	rec := postJSON(t, router, "/events/member-joined", gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMemberLeft(t *testing.T) {
	router, lc, _, _ := setupTestRouter(t)

	postJSON(t, router, "/events/member-joined", gin.H{"member_id": "m1"})
	rec := postJSON(t, router, "/events/member-left", gin.H{"member_id": "m1"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, lc.Pending())
}

func TestVerifyAttempt(t *testing.T) {
	router, lc, reg, db := setupTestRouter(t)

	result, err := reg.Ingest([]registry.RawUserRow{
		{Line: 2, Email: "alice@example.com", Name: "Alice", College: "MIT", Branch: "CS", Year: 3},
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Added)

	user, err := storage.GetUserByEmail(db, "alice@example.com")
	require.NoError(t, err)

	postJSON(t, router, "/events/member-joined", gin.H{"member_id": "m1"})

	rec := postJSON(t, router, "/events/verify-attempt", gin.H{
		"member_id": "m1",
		"email":     "alice@example.com",
		"token":     "WRONG1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "token_mismatch")
	assert.Len(t, lc.Pending(), 1)

	rec = postJSON(t, router, "/events/verify-attempt", gin.H{
		"member_id": "m1",
		"email":     "alice@example.com",
		"token":     user.Token,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"verified"`)
	assert.Empty(t, lc.Pending())
}

func TestForceVerify(t *testing.T) {
	router, lc, _, _ := setupTestRouter(t)

	rec := postJSON(t, router, "/admin/force-verify", gin.H{"member_id": "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	postJSON(t, router, "/events/member-joined", gin.H{"member_id": "m1"})
	rec = postJSON(t, router, "/admin/force-verify", gin.H{"member_id": "m1"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, lc.Pending())
}

func TestSetTimeout(t *testing.T) {
	router, lc, _, _ := setupTestRouter(t)

	rec := postJSON(t, router, "/admin/timeout", gin.H{"seconds": 600})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10*time.Minute, lc.Timeout())

	// Out of range values are refused.
	rec = postJSON(t, router, "/admin/timeout", gin.H{"seconds": 10})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = postJSON(t, router, "/admin/timeout", gin.H{"seconds": 7200})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 10*time.Minute, lc.Timeout())
}
