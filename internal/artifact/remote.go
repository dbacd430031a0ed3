package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cityhall/meetingpipe/internal/model"
)

// RemoteStore implements Store against the file server's HTTP contract:
// GET /files/<relative-path> and POST /upload/<kind>/<meetingId>, so
// workers on different machines share one artifact layout without
// mounting a common filesystem.
type RemoteStore struct {
	BaseURL string
	Client  *http.Client
}

func NewRemoteStore(baseURL string) *RemoteStore {
	return &RemoteStore{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

func (s *RemoteStore) PathFor(kind model.ArtifactKind, meetingID string) string {
	return MustPathFor(kind, meetingID)
}

func (s *RemoteStore) URLFor(kind model.ArtifactKind, meetingID string) string {
	return fmt.Sprintf("%s/files/%s", s.BaseURL, s.PathFor(kind, meetingID))
}

func (s *RemoteStore) ReadInto(ctx context.Context, kind model.ArtifactKind, meetingID, localPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URLFor(kind, meetingID), nil)
	if err != nil {
		return err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch artifact: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch artifact: unexpected status %d", resp.StatusCode)
	}

	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create local path %s: %w", localPath, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("write local path %s: %w", localPath, err)
	}
	return out.Close()
}

func (s *RemoteStore) WriteFrom(ctx context.Context, localPath string, kind model.ArtifactKind, meetingID string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", localPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("build multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return err
	}

	url := fmt.Sprintf("%s/upload/%s/%s", s.BaseURL, kind, meetingID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("upload artifact: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload artifact: status %d: %s", resp.StatusCode, string(payload))
	}

	var decoded struct {
		Success bool   `json:"success"`
		Path    string `json:"path"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err == nil && !decoded.Success {
		return fmt.Errorf("upload artifact: server reported failure")
	}
	return nil
}

func (s *RemoteStore) Exists(ctx context.Context, kind model.ArtifactKind, meetingID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.URLFor(kind, meetingID), nil)
	if err != nil {
		return false, err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return false, fmt.Errorf("check artifact exists: %w", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

func (s *RemoteStore) SizeOf(ctx context.Context, kind model.ArtifactKind, meetingID string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.URLFor(kind, meetingID), nil)
	if err != nil {
		return 0, err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("size artifact: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("size artifact: unexpected status %d", resp.StatusCode)
	}
	length := resp.Header.Get("Content-Length")
	if length == "" {
		return 0, fmt.Errorf("size artifact: no Content-Length header")
	}
	return strconv.ParseInt(length, 10, 64)
}
