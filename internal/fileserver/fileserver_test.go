package fileserver

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	root := t.TempDir()
	return New(NewLocalBlob(root), root, nil), root
}

func multipartUpload(t *testing.T, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "video.mp4")
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &body, writer.FormDataContentType()
}

func TestUpload_ThenGet_RoundTrips(t *testing.T) {
	s, root := newTestServer(t)
	router := s.Router()

	body, contentType := multipartUpload(t, []byte("fake video bytes"))
	req := httptest.NewRequest(http.MethodPost, "/upload/RAW_VIDEO/m1", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)
	assert.Contains(t, rec.Body.String(), "raw/videos/m1.mp4")
	assert.FileExists(t, filepath.Join(root, "raw", "videos", "m1.mp4"))

	getReq := httptest.NewRequest(http.MethodGet, "/files/raw/videos/m1.mp4", nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)
	assert.Equal(t, "fake video bytes", getRec.Body.String())
}

func TestUpload_BadKindIsBadRequest(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	body, contentType := multipartUpload(t, []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/upload/NOT_A_KIND/m1", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpload_BadMeetingIDIsBadRequest(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	body, contentType := multipartUpload(t, []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/upload/RAW_VIDEO/not valid!", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpload_PathTraversalRejectedAsBadRequest(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	body, contentType := multipartUpload(t, []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/upload/../etc/passwd", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetFile_PathTraversalRejectedAsForbidden(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodGet, "/files/../etc/passwd", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetFile_DotfileRejectedAsForbidden(t *testing.T) {
	s, root := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("secret"), 0o644))
	router := s.Router()

	req := httptest.NewRequest(http.MethodGet, "/files/.env", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetFile_MissingIsNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodGet, "/files/raw/videos/missing.mp4", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth_ReportsStatusAndRoot(t *testing.T) {
	s, root := newTestServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), root)
}

func TestRequestID_SetOnEveryResponse(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}
