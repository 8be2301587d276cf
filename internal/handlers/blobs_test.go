package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sudokim/skku-chat/internal/blob"
	"github.com/sudokim/skku-chat/internal/mocks"
)

func setupBlobRouter(handler *BlobHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/blobs/*path", handler.Upload)
	r.GET("/blobs/*path", handler.Serve)
	r.DELETE("/blobs/*path", handler.Delete)
	return r
}

func TestBlobUploadAndServe(t *testing.T) {
	blobs := new(mocks.BlobStoreMock)
	router := setupBlobRouter(NewBlobHandler(blobs))

	blobs.On("Upload", mock.Anything, "images/room_a/123.png", []byte("png-bytes")).Return(nil).Once()
	blobs.On("Get", mock.Anything, "images/room_a/123.png").Return([]byte("png-bytes"), nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/blobs/images/room_a/123.png", bytes.NewBufferString("png-bytes"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	get := httptest.NewRequest(http.MethodGet, "/blobs/images/room_a/123.png", nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, get)
	require.Equal(t, http.StatusOK, getRec.Code)
	require.Equal(t, "image/png", getRec.Header().Get("Content-Type"))
	require.Equal(t, "png-bytes", getRec.Body.String())
	blobs.AssertExpectations(t)
}

func TestBlobUploadEmptyBody(t *testing.T) {
	router := setupBlobRouter(NewBlobHandler(new(mocks.BlobStoreMock)))

	req := httptest.NewRequest(http.MethodPost, "/blobs/images/x.png", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBlobServeMissing(t *testing.T) {
	blobs := new(mocks.BlobStoreMock)
	router := setupBlobRouter(NewBlobHandler(blobs))

	blobs.On("Get", mock.Anything, "images/gone.png").Return([]byte(nil), blob.ErrNotFound).Once()

	req := httptest.NewRequest(http.MethodGet, "/blobs/images/gone.png", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	blobs.AssertExpectations(t)
}

func TestBlobServeDirectoryListing(t *testing.T) {
	blobs := new(mocks.BlobStoreMock)
	router := setupBlobRouter(NewBlobHandler(blobs))

	blobs.On("List", mock.Anything, "images/room_a/").Return([]string{"images/room_a/1.png", "images/room_a/2.png"}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/blobs/images/room_a/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "images/room_a/1.png")
	blobs.AssertExpectations(t)
}

func TestBlobDelete(t *testing.T) {
	blobs := new(mocks.BlobStoreMock)
	router := setupBlobRouter(NewBlobHandler(blobs))

	blobs.On("Delete", mock.Anything, "images/x.png").Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/blobs/images/x.png", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	blobs.AssertExpectations(t)
}
