// Package diarizer wraps the external speaker-diarization subprocess the
// diarize worker invokes. It owns the scratch-directory lifecycle:
// created world-writable on request, removed on every exit path.
package diarizer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/cityhall/meetingpipe/internal/werr"
)

// Diarizer runs the external tool against a local audio file and
// produces a local JSON output file.
type Diarizer interface {
	Diarize(ctx context.Context, audioPath, outputPath string) error
}

// ExecDiarizer shells out to an external tool the same way the rest of
// this pipeline's external-tool wrappers invoke os/exec.
type ExecDiarizer struct {
	Path string
}

func NewExecDiarizer(path string) *ExecDiarizer {
	return &ExecDiarizer{Path: path}
}

// Diarize runs `<path> --input <audioPath> --output <outputPath>`.
// Diarization failures are Transient: a GPU container hiccup or model
// load timeout, not a logical precondition (the precondition — audio
// missing at all — is checked by the caller before Diarize runs).
func (d *ExecDiarizer) Diarize(ctx context.Context, audioPath, outputPath string) error {
	cmd := exec.CommandContext(ctx, d.Path, "--input", audioPath, "--output", outputPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return werr.New(werr.Transient, fmt.Errorf("diarize tool: %w: %s", err, stderr.String()))
	}
	return nil
}

// ScratchDir creates and returns the unique per-job scratch directory
// "<runRoot>/diarize_<meetingId>_<timestampMillis>". The caller is
// responsible for removing it (see RemoveScratchDir) on every exit path,
// including panics recovered at the worker-pool boundary.
//
// DESIGN.md records the decision on worldWritable: default false (mode
// 0o700), true only when DIARIZE_SCRATCH_WORLD_WRITABLE is explicitly
// set, keeping the permissive mode an opt-in rather than a hard-coded
// default.
func ScratchDir(runRoot, meetingID string, timestampMillis int64, worldWritable bool) (string, error) {
	dir := filepath.Join(runRoot, fmt.Sprintf("diarize_%s_%d", meetingID, timestampMillis))

	mode := os.FileMode(0o700)
	if worldWritable {
		mode = 0o777
	}
	if err := os.MkdirAll(dir, mode); err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	if worldWritable {
		// MkdirAll applies mode before umask in some environments; force
		// it explicitly so the subordinate container user can write.
		if err := os.Chmod(dir, 0o777); err != nil {
			return "", fmt.Errorf("chmod scratch dir: %w", err)
		}
	}
	return dir, nil
}

// RemoveScratchDir is a defer-friendly cleanup that never panics itself.
func RemoveScratchDir(dir string) {
	if dir == "" {
		return
	}
	_ = os.RemoveAll(dir)
}
