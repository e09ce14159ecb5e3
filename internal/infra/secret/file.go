package secret

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/you-humble/audioclip/internal/domain"
)

// fileProvider reads auth material from a json or yaml file on every call so
// a rotated file is picked up without a restart.
type fileProvider struct {
	path string
}

func NewFileProvider(path string) *fileProvider {
	return &fileProvider{path: path}
}

func (p *fileProvider) AuthMaterial(_ context.Context, platform string) (domain.AuthMaterial, error) {
	if platform != domain.PlatformYouTube {
		return domain.AuthMaterial{}, domain.ErrSecretNotConfigured
	}

	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.AuthMaterial{}, domain.ErrSecretNotConfigured
	}
	if err != nil {
		return domain.AuthMaterial{}, fmt.Errorf("read auth material: %w", err)
	}

	switch strings.ToLower(filepath.Ext(p.path)) {
	case ".yaml", ".yml":
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return domain.AuthMaterial{}, fmt.Errorf("decode auth material yaml: %w", err)
		}
		if data, err = json.Marshal(v); err != nil {
			return domain.AuthMaterial{}, fmt.Errorf("convert auth material: %w", err)
		}
	}

	return parse(data)
}

type noneProvider struct{}

// NewNoneProvider is used when no auth material is configured at all.
func NewNoneProvider() noneProvider {
	return noneProvider{}
}

func (noneProvider) AuthMaterial(context.Context, string) (domain.AuthMaterial, error) {
	return domain.AuthMaterial{}, domain.ErrSecretNotConfigured
}

func parse(blob []byte) (domain.AuthMaterial, error) {
	am, err := domain.ParseAuthMaterial(blob)
	if err != nil {
		return domain.AuthMaterial{}, err
	}
	if am.Empty() {
		return domain.AuthMaterial{}, domain.ErrSecretNotConfigured
	}
	return am, nil
}
