package artifactstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	mio "github.com/you-humble/audioclip/core/libs/minio"
	"github.com/you-humble/audioclip/internal/domain"

	"github.com/minio/minio-go/v7"
)

const maxPresignTTL = 7 * 24 * time.Hour

type minioStore struct {
	db       *minio.Client
	bucket   string
	basePath string
	now      func() time.Time
}

func NewMinIOStore(ctx context.Context, cfg mio.Config) (*minioStore, error) {
	mioClient, err := mio.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	basePath := strings.Trim(cfg.BasePath, "/")
	if basePath != "" {
		basePath += "/"
	}

	return &minioStore{
		db:       mioClient,
		bucket:   cfg.Bucket,
		basePath: basePath,
		now:      time.Now,
	}, nil
}

func (s *minioStore) Put(
	ctx context.Context,
	key string,
	reader io.Reader,
	size int64,
	meta Meta,
) (Object, error) {
	select {
	case <-ctx.Done():
		return Object{}, ctx.Err()
	default:
	}

	ref, err := cleanKey(key)
	if err != nil {
		return Object{}, err
	}

	hasher := sha256.New()
	hashingReader := io.TeeReader(reader, hasher)

	putSize := size
	if putSize <= 0 {
		putSize = -1
	}

	userMeta := make(map[string]string, len(meta.Attrs)+1)
	for k, v := range meta.Attrs {
		userMeta[k] = v
	}
	if !meta.ExpiresAt.IsZero() {
		userMeta["expires-at"] = meta.ExpiresAt.UTC().Format(time.RFC3339)
	}

	info, err := s.db.PutObject(ctx, s.bucket, s.objectName(ref), hashingReader, putSize, minio.PutObjectOptions{
		ContentType:  ContentType,
		UserMetadata: userMeta,
		Expires:      meta.ExpiresAt,
	})
	if err != nil {
		// a multipart upload may have left parts behind
		s.removeQuietly(ref)
		return Object{}, fmt.Errorf("put object: %w", err)
	}

	return Object{
		Ref:       ref,
		Size:      info.Size,
		SHA256:    hex.EncodeToString(hasher.Sum(nil)),
		ExpiresAt: meta.ExpiresAt,
	}, nil
}

func (s *minioStore) Open(ctx context.Context, ref string) (io.ReadCloser, int64, error) {
	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	default:
	}

	clean, err := cleanKey(ref)
	if err != nil {
		return nil, 0, err
	}

	obj, err := s.db.GetObject(ctx, s.bucket, s.objectName(clean), minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("get object: %w", err)
	}

	st, err := obj.Stat()
	if err != nil {
		obj.Close()
		if resp := minio.ToErrorResponse(err); resp.Code == minio.NoSuchKey {
			return nil, 0, fmt.Errorf("%w: %s", domain.ErrArtifactNotFound, clean)
		}
		return nil, 0, fmt.Errorf("stat object: %w", err)
	}

	if !st.Expires.IsZero() && !s.now().Before(st.Expires) {
		obj.Close()
		return nil, 0, fmt.Errorf("%w: %s", domain.ErrArtifactExpired, clean)
	}

	return obj, st.Size, nil
}

// URL returns a presigned GET url valid for ttl, capped at the S3 maximum.
func (s *minioStore) URL(ctx context.Context, ref string, ttl time.Duration) (string, error) {
	clean, err := cleanKey(ref)
	if err != nil {
		return "", err
	}

	if ttl > maxPresignTTL {
		ttl = maxPresignTTL
	}
	if ttl < time.Second {
		return "", fmt.Errorf("%w: %s", domain.ErrArtifactExpired, clean)
	}

	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", path.Base(clean)))

	u, err := s.db.PresignedGetObject(ctx, s.bucket, s.objectName(clean), ttl, params)
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return u.String(), nil
}

func (s *minioStore) Delete(ctx context.Context, ref string) error {
	clean, err := cleanKey(ref)
	if err != nil {
		return err
	}

	if err := s.db.RemoveObject(ctx, s.bucket, s.objectName(clean), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

// CleanupOlderThan removes objects under the base path last modified before
// now-maxAge. The bucket lifecycle rule does the same at day granularity.
func (s *minioStore) CleanupOlderThan(ctx context.Context, maxAge time.Duration) error {
	border := s.now().Add(-maxAge)

	for obj := range s.db.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.basePath,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return fmt.Errorf("list objects: %w", obj.Err)
		}
		if !obj.LastModified.Before(border) {
			continue
		}
		if err := s.db.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			slog.Warn("cleanup object", slog.String("key", obj.Key), slog.String("error", err.Error()))
		}
	}

	return ctx.Err()
}

func (s *minioStore) removeQuietly(ref string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = s.db.RemoveIncompleteUpload(ctx, s.bucket, s.objectName(ref))
	_ = s.db.RemoveObject(ctx, s.bucket, s.objectName(ref), minio.RemoveObjectOptions{})
}

func (s *minioStore) objectName(ref string) string {
	return s.basePath + ref
}
