package artifact

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cityhall/meetingpipe/internal/model"
)

// LocalStore implements Store directly against the filesystem under
// Root, using the same relative-path layout RemoteStore serves over
// HTTP.
type LocalStore struct {
	Root string
}

func NewLocalStore(root string) *LocalStore {
	return &LocalStore{Root: root}
}

func (s *LocalStore) PathFor(kind model.ArtifactKind, meetingID string) string {
	return MustPathFor(kind, meetingID)
}

func (s *LocalStore) URLFor(kind model.ArtifactKind, meetingID string) string {
	return "file://" + filepath.Join(s.Root, s.PathFor(kind, meetingID))
}

func (s *LocalStore) absPath(kind model.ArtifactKind, meetingID string) (string, error) {
	rel, err := PathFor(kind, meetingID)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Root, rel), nil
}

func (s *LocalStore) ReadInto(_ context.Context, kind model.ArtifactKind, meetingID, localPath string) error {
	src, err := s.absPath(kind, meetingID)
	if err != nil {
		return err
	}
	return copyFile(src, localPath)
}

func (s *LocalStore) WriteFrom(_ context.Context, localPath string, kind model.ArtifactKind, meetingID string) error {
	dst, err := s.absPath(kind, meetingID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	return copyFile(localPath, dst)
}

func (s *LocalStore) Exists(_ context.Context, kind model.ArtifactKind, meetingID string) (bool, error) {
	abs, err := s.absPath(kind, meetingID)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(abs)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *LocalStore) SizeOf(_ context.Context, kind model.ArtifactKind, meetingID string) (int64, error) {
	abs, err := s.absPath(kind, meetingID)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create destination %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s -> %s: %w", src, dst, err)
	}
	return out.Close()
}
