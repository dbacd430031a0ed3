// Package downloader wraps the external video-download tool the download
// worker invokes. The tool's own command-line behavior is out of scope
// here; only the invocation contract is specified.
package downloader

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/cityhall/meetingpipe/internal/werr"
)

// Downloader fetches a meeting's source video to a local path.
type Downloader interface {
	Download(ctx context.Context, sourceURL, destPath string) error
}

// ExecDownloader shells out to an external tool via os/exec, the same
// pattern the other external-tool wrappers in this pipeline use.
type ExecDownloader struct {
	Path  string
	Token string
}

func NewExecDownloader(path, token string) *ExecDownloader {
	return &ExecDownloader{Path: path, Token: token}
}

// Download runs `<path> --url <sourceURL> --output <destPath>`, treating
// any non-zero exit as Transient: downloader failures are network/host
// conditions, not logical preconditions.
func (d *ExecDownloader) Download(ctx context.Context, sourceURL, destPath string) error {
	args := []string{"--url", sourceURL, "--output", destPath}
	if d.Token != "" {
		args = append(args, "--token", d.Token)
	}

	cmd := exec.CommandContext(ctx, d.Path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return werr.New(werr.Transient, fmt.Errorf("download tool: %w: %s", err, stderr.String()))
	}
	return nil
}
