// Package audioextract wraps the external ffmpeg subprocess the extract
// worker invokes to pull an audio track out of a downloaded video,
// shelling out the way an os/exec-based media pipeline does rather than
// linking a C audio codec library.
package audioextract

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// FFmpegExtractor shells out to ffmpeg, re-encoding the input video's
// audio track to AAC without touching the video stream.
type FFmpegExtractor struct {
	Path string // config.Load defaults FFMPEG_PATH to "ffmpeg"
}

func NewFFmpegExtractor(path string) *FFmpegExtractor {
	return &FFmpegExtractor{Path: path}
}

// ExtractAudio runs `ffmpeg -y -i <videoPath> -vn -c:a aac -b:a 128k
// <audioPath>`. A failure here doesn't fail the meeting outright — the
// caller treats it as a partial-upstream condition and lets the chapter
// listing still publish without diarization — this function just
// reports it.
func (e *FFmpegExtractor) ExtractAudio(ctx context.Context, videoPath, audioPath string) error {
	args := []string{"-y", "-i", videoPath, "-vn", "-c:a", "aac", "-b:a", "128k", audioPath}
	cmd := exec.CommandContext(ctx, e.Path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg audio extraction: %w: %s", err, stderr.String())
	}
	return nil
}
