package photos

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	jwt "github.com/appleboy/gin-jwt/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgsticker_back/database"
)

func newTestModule(t *testing.T) *Module {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.Open("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	module, err := RegisterRoutes(gin.New(), nil, db, nil)
	require.NoError(t, err)
	return module
}

func newTestRouter(module *Module, userID uint64) *gin.Engine {
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("JWT_PAYLOAD", jwt.MapClaims{"user_id": float64(userID)})
		c.Next()
	})
	router.GET("/photos", module.handleList)
	router.DELETE("/photos/:id", module.handleDelete)
	return router
}

func seedReferencePhoto(t *testing.T, module *Module, userID uint64) *ReferencePhoto {
	t.Helper()
	photo := ReferencePhoto{
		UserID:  userID,
		FileKey: fmt.Sprintf("%d/references/%s.jpg", userID, uuid.NewString()),
		FileURL: "https://cdn.test/ref.jpg",
	}
	require.NoError(t, module.db.Create(&photo).Error)
	return &photo
}

func perform(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestHandleListReturnsOnlyOwnPhotos(t *testing.T) {
	module := newTestModule(t)
	seedReferencePhoto(t, module, 1)
	seedReferencePhoto(t, module, 1)
	seedReferencePhoto(t, module, 2)

	recorder := perform(newTestRouter(module, 1), http.MethodGet, "/photos")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, 2, countJSONPhotos(t, recorder))

	recorder = perform(newTestRouter(module, 3), http.MethodGet, "/photos")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, 0, countJSONPhotos(t, recorder))
}

func TestHandleDeleteRejectsForeignPhoto(t *testing.T) {
	module := newTestModule(t)
	photo := seedReferencePhoto(t, module, 2)

	recorder := perform(newTestRouter(module, 1), http.MethodDelete, fmt.Sprintf("/photos/%d", photo.ID))
	assert.Equal(t, http.StatusForbidden, recorder.Code)

	var count int64
	require.NoError(t, module.db.Model(&ReferencePhoto{}).Where("id = ?", photo.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestHandleDeleteRemovesOwnPhoto(t *testing.T) {
	module := newTestModule(t)
	photo := seedReferencePhoto(t, module, 1)

	recorder := perform(newTestRouter(module, 1), http.MethodDelete, fmt.Sprintf("/photos/%d", photo.ID))
	require.Equal(t, http.StatusOK, recorder.Code)

	var count int64
	require.NoError(t, module.db.Model(&ReferencePhoto{}).Where("id = ?", photo.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestHandleDeleteUnknownPhoto(t *testing.T) {
	module := newTestModule(t)

	recorder := perform(newTestRouter(module, 1), http.MethodDelete, "/photos/12345")
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func countJSONPhotos(t *testing.T, recorder *httptest.ResponseRecorder) int {
	t.Helper()
	var response struct {
		Photos []photoDTO `json:"photos"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	return len(response.Photos)
}
