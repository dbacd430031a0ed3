package fileserver

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrOutsideRoot is returned by a Blob implementation when a resolved
// destination would escape its configured storage boundary.
var ErrOutsideRoot = fmt.Errorf("fileserver: resolved path escapes storage root")

// Blob is the pluggable persistence layer behind the file server's wire
// contract: the HTTP routes, request shapes, and status codes are
// identical whether blobs land on local disk or in an S3-compatible
// bucket.
type Blob interface {
	Get(ctx context.Context, relPath string, w io.Writer) error
	Put(ctx context.Context, relPath string, r io.Reader, size int64) error
	Exists(ctx context.Context, relPath string) (bool, error)
}

// LocalBlob persists under Root directly on disk, mirroring
// artifact.LocalStore's layout and copyFile approach.
type LocalBlob struct {
	Root string
}

func NewLocalBlob(root string) *LocalBlob {
	return &LocalBlob{Root: root}
}

func (b *LocalBlob) absPath(relPath string) (string, error) {
	abs := filepath.Join(b.Root, relPath)
	rootAbs, err := filepath.Abs(b.Root)
	if err != nil {
		return "", err
	}
	pathAbs, err := filepath.Abs(abs)
	if err != nil {
		return "", err
	}
	if pathAbs != rootAbs && !strings.HasPrefix(pathAbs, rootAbs+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return pathAbs, nil
}

func (b *LocalBlob) Get(_ context.Context, relPath string, w io.Writer) error {
	abs, err := b.absPath(relPath)
	if err != nil {
		return err
	}
	f, err := os.Open(abs)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

func (b *LocalBlob) Put(_ context.Context, relPath string, r io.Reader, _ int64) error {
	abs, err := b.absPath(relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}
	out, err := os.Create(abs)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return err
	}
	return out.Close()
}

func (b *LocalBlob) Exists(_ context.Context, relPath string) (bool, error) {
	abs, err := b.absPath(relPath)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(abs)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// MinioBlob persists to an S3-compatible bucket via minio-go. It lets
// the file server and the diarize worker (the heaviest artifact
// consumer) run on separate machines without a shared filesystem.
type MinioBlob struct {
	Client *minio.Client
	Bucket string
}

// NewMinioBlob dials the S3-compatible endpoint with static credentials
// and optional TLS and region.
func NewMinioBlob(endpoint, accessKey, secretKey string, useSSL bool, region, bucket string) (*MinioBlob, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio connection: %w", err)
	}
	return &MinioBlob{Client: client, Bucket: bucket}, nil
}

func (b *MinioBlob) Get(ctx context.Context, relPath string, w io.Writer) error {
	obj, err := b.Client.GetObject(ctx, b.Bucket, relPath, minio.GetObjectOptions{})
	if err != nil {
		return err
	}
	defer obj.Close()
	if _, err := obj.Stat(); err != nil {
		return err
	}
	_, err = io.Copy(w, obj)
	return err
}

func (b *MinioBlob) Put(ctx context.Context, relPath string, r io.Reader, size int64) error {
	_, err := b.Client.PutObject(ctx, b.Bucket, relPath, r, size, minio.PutObjectOptions{})
	return err
}

func (b *MinioBlob) Exists(ctx context.Context, relPath string) (bool, error) {
	_, err := b.Client.StatObject(ctx, b.Bucket, relPath, minio.StatObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
