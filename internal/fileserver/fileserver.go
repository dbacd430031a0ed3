// Package fileserver implements the remote-mode artifact endpoint:
// GET /files/<relative-path>, POST /upload/<kind>/<meetingId>,
// GET /health, routed with gorilla/mux.
package fileserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/cityhall/meetingpipe/internal/artifact"
	"github.com/cityhall/meetingpipe/internal/model"
)

// maxUploadBytes bounds a single multipart upload; raw meeting video is
// the largest artifact this endpoint ever sees.
const maxUploadBytes = 4 << 30 // 4 GiB

var meetingIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)

// Server wires the Blob persistence layer to the file server's fixed HTTP
// contract. The contract is identical regardless of which Blob backs it.
type Server struct {
	Blob      Blob
	Root      string // advertised in /health; meaningless for a MinioBlob but kept for operator visibility
	StartedAt time.Time
	Logger    *slog.Logger
}

// New builds a Server with StartedAt set to the current time.
func New(blob Blob, root string, logger *slog.Logger) *Server {
	return &Server{Blob: blob, Root: root, StartedAt: time.Now(), Logger: logger}
}

// Router builds the gorilla/mux router. SkipClean is required: the
// traversal-rejection tests depend on literal ".." segments reaching our
// own validation rather than being silently redirected away by mux's
// default path-cleaning middleware.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.SkipClean(true)
	r.Use(s.withRequestID)
	r.HandleFunc("/files/{path:.*}", s.handleGetFile).Methods(http.MethodGet)
	r.HandleFunc("/upload/{rest:.*}", s.handleUpload).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	return r
}

// withRequestID stamps every request with a uuid.New() correlation ID —
// this pipeline's queue job IDs are deterministic, so this is the only
// place a request gets a random identity — for log correlation across a
// multi-line upload/read.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		w.Header().Set("X-Request-Id", requestID)
		if s.Logger != nil {
			s.Logger.Info("request received", "request_id", requestID, "method", r.Method, "path", r.URL.Path)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	rawPath := mux.Vars(r)["path"]
	relPath, err := safeRelPath(rawPath)
	if err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	exists, err := s.Blob.Exists(r.Context(), relPath)
	if err != nil {
		s.logError("check file exists", relPath, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !exists {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	if err := s.Blob.Get(r.Context(), relPath, w); err != nil {
		s.logError("read file", relPath, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
}

// handleUpload parses {kind}/{meetingId} out of the wildcard "rest"
// segment itself (rather than two mux path variables) so a malformed
// request like "../etc/passwd" produces a 400 from our own validation
// instead of a 404 from a route that simply fails to match.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	rest := mux.Vars(r)["rest"]
	segments := strings.Split(rest, "/")
	if len(segments) != 2 || segments[0] == "" || segments[1] == "" {
		http.Error(w, "expected /upload/<kind>/<meetingId>", http.StatusBadRequest)
		return
	}
	kindStr, meetingID := segments[0], segments[1]

	kind, err := model.ParseArtifactKind(kindStr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !meetingIDPattern.MatchString(meetingID) {
		http.Error(w, fmt.Sprintf("invalid meeting id %q", meetingID), http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	relPath, err := artifact.PathFor(kind, meetingID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.Blob.Put(r.Context(), relPath, file, header.Size); err != nil {
		if err == ErrOutsideRoot {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		s.logError("write upload", relPath, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if s.Logger != nil {
		s.Logger.Info("stored artifact upload", "kind", kindStr, "meeting_id", meetingID, "path", relPath)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "path": relPath})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":          "ok",
		"storage_root":    s.Root,
		"uptime_seconds":  time.Since(s.StartedAt).Seconds(),
	})
}

func (s *Server) logError(action, relPath string, err error) {
	if s.Logger != nil {
		s.Logger.Error(action, "path", relPath, "error", err)
	}
}

// safeRelPath cleans a client-supplied path and rejects anything that
// would resolve outside the storage root or reference a dotfile.
func safeRelPath(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("empty path")
	}
	cleaned := path.Clean(strings.TrimPrefix(raw, "/"))
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("empty path")
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("path escapes storage root")
	}
	for _, segment := range strings.Split(cleaned, "/") {
		if strings.HasPrefix(segment, ".") {
			return "", fmt.Errorf("dotfiles are not served")
		}
	}
	return cleaned, nil
}
