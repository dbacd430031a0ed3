// Package videohost is the external client interface for the third-party
// video-hosting service the upload worker publishes to. OAuth and the
// host's wire protocol are explicitly out of scope; only the
// request/response contract the upload worker depends on is modeled.
package videohost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/cityhall/meetingpipe/internal/werr"
)

// UploadRequest is everything the upload worker assembles before
// publishing: the formatted title/description, a tag list, and the
// resolved playlist identifiers.
type UploadRequest struct {
	VideoPath   string
	Title       string
	Description string
	Tags        []string
	Playlists   []string
}

// PlaylistResult reports one playlist attachment's outcome.
type PlaylistResult struct {
	PlaylistID string `json:"playlistId"`
	Added      bool   `json:"added"`
	Error      string `json:"error,omitempty"`
}

// UploadResult is the host's response: the published URL plus per-
// playlist attachment outcomes.
type UploadResult struct {
	URL              string           `json:"url"`
	PlaylistResults  []PlaylistResult `json:"playlistResults"`
}

// Client publishes a video and attaches it to zero or more playlists.
type Client interface {
	Upload(ctx context.Context, req UploadRequest) (UploadResult, error)
}

// HTTPClient is a bearer-token-authenticated multipart client against a
// generic video-host publish endpoint.
type HTTPClient struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{BaseURL: baseURL, Token: token, HTTP: &http.Client{Timeout: 10 * time.Minute}}
}

func (c *HTTPClient) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	file, err := os.Open(req.VideoPath)
	if err != nil {
		return UploadResult{}, werr.New(werr.Precondition, fmt.Errorf("open video for upload: %w", err))
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", req.VideoPath)
	if err != nil {
		return UploadResult{}, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return UploadResult{}, fmt.Errorf("build multipart body: %w", err)
	}
	_ = writer.WriteField("title", req.Title)
	_ = writer.WriteField("description", req.Description)
	for _, tag := range req.Tags {
		_ = writer.WriteField("tags", tag)
	}
	for _, playlist := range req.Playlists {
		_ = writer.WriteField("playlists", playlist)
	}
	if err := writer.Close(); err != nil {
		return UploadResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/videos", &body)
	if err != nil {
		return UploadResult{}, err
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return UploadResult{}, werr.New(werr.Transient, fmt.Errorf("upload request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return UploadResult{}, werr.New(werr.Transient, fmt.Errorf("video host: status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return UploadResult{}, werr.New(werr.Fatal, fmt.Errorf("video host: status %d: %s", resp.StatusCode, string(payload)))
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return UploadResult{}, fmt.Errorf("decode upload response: %w", err)
	}
	return result, nil
}
