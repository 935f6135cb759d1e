package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/activity-hours-api/internal/models"
	appErrors "github.com/noah-isme/activity-hours-api/pkg/errors"
)

type stubValidator struct {
	claims *models.JWTClaims
}

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return s.claims, nil
}

func newProtectedRouter(claims *models.JWTClaims, rbac gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/students/:id/hours", JWT(stubValidator{claims: claims}), rbac, func(c *gin.Context) {
		SetCacheHit(c, true)
		c.Status(http.StatusOK)
	})
	return r
}

func serve(r *gin.Engine, path, auth string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestJWTRequiresBearerToken(t *testing.T) {
	r := newProtectedRouter(&models.JWTClaims{Role: models.RoleManager}, RBAC(string(models.RoleManager)))

	assert.Equal(t, http.StatusUnauthorized, serve(r, "/students/s1/hours", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/students/s1/hours", "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/students/s1/hours", "Bearer bad").Code)

	w := serve(r, "/students/s1/hours", "Bearer good")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
}

func TestRBACSelfStudent(t *testing.T) {
	claims := &models.JWTClaims{Role: models.RoleStudent, StudentID: "s1"}
	r := newProtectedRouter(claims, RBAC(SelfStudent, string(models.RoleCoordinator)))

	assert.Equal(t, http.StatusOK, serve(r, "/students/s1/hours", "Bearer good").Code)
	assert.Equal(t, http.StatusForbidden, serve(r, "/students/s2/hours", "Bearer good").Code)
}

func TestRequireRoles(t *testing.T) {
	claims := &models.JWTClaims{Role: models.RoleCoordinator, CourseID: "c1"}
	r := newProtectedRouter(claims, RequireRoles(models.RoleManager))
	assert.Equal(t, http.StatusForbidden, serve(r, "/students/s1/hours", "Bearer good").Code)

	r = newProtectedRouter(claims, RequireRoles(models.RoleManager, models.RoleCoordinator))
	assert.Equal(t, http.StatusOK, serve(r, "/students/s1/hours", "Bearer good").Code)
}

func TestExtractMetaReportsProcessingTime(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	WithResponseMeta()(c)
	SetCacheHit(c, false)

	meta := ExtractMeta(c)
	assert.Equal(t, false, meta[cacheHitKey])
	assert.Contains(t, meta, "processing_time_ms")
	assert.NotContains(t, meta, "started_at")
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
}
