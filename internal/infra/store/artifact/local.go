package artifactstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/you-humble/audioclip/internal/domain"
)

type localStore struct {
	baseDir string
	now     func() time.Time
}

func NewLocalStore(baseDir string) (*localStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir is empty")
	}

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create base dir: %w", err)
	}

	return &localStore{baseDir: baseDir, now: time.Now}, nil
}

// Put writes through a temp file and renames it into place so readers never
// see a partial artifact.
func (s *localStore) Put(
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
	fullPath := s.fullPath(ref)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return Object{}, fmt.Errorf("mkdir: %w", err)
	}

	tempPath := fullPath + ".tmp-" + uuid.NewString()
	f, err := os.Create(tempPath)
	if err != nil {
		return Object{}, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(tempPath)
	}()

	hasher := sha256.New()
	written, err := io.Copy(f, io.TeeReader(reader, hasher))
	if err != nil {
		return Object{}, fmt.Errorf("write file: %w", err)
	}
	if size > 0 && written != size {
		return Object{}, fmt.Errorf("short write: %d of %d bytes", written, size)
	}

	if err := f.Close(); err != nil {
		return Object{}, fmt.Errorf("close file: %w", err)
	}

	if err := os.Rename(tempPath, fullPath); err != nil {
		return Object{}, fmt.Errorf("rename temp file: %w", err)
	}

	return Object{
		Ref:       ref,
		Size:      written,
		SHA256:    hex.EncodeToString(hasher.Sum(nil)),
		ExpiresAt: meta.ExpiresAt,
	}, nil
}

func (s *localStore) Open(ctx context.Context, ref string) (io.ReadCloser, int64, error) {
	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	default:
	}

	clean, err := cleanKey(ref)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Open(s.fullPath(clean))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: %s", domain.ErrArtifactNotFound, clean)
		}
		return nil, 0, fmt.Errorf("open file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stat file: %w", err)
	}

	return f, info.Size(), nil
}

func (s *localStore) URL(context.Context, string, time.Duration) (string, error) {
	return "", ErrPresignUnsupported
}

func (s *localStore) Delete(_ context.Context, ref string) error {
	clean, err := cleanKey(ref)
	if err != nil {
		return err
	}

	if err := os.Remove(s.fullPath(clean)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

func (s *localStore) CleanupOlderThan(ctx context.Context, maxAge time.Duration) error {
	border := s.now().Add(-maxAge)

	return filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(border) {
			if err := os.Remove(path); err != nil {
				slog.Warn("cleanup artifact", slog.String("path", path), slog.String("error", err.Error()))
			}
		}
		return nil
	})
}

func (s *localStore) fullPath(ref string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(strings.TrimLeft(ref, "/")))
}
