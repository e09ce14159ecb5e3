package secret

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you-humble/audioclip/internal/domain"
)

func TestFileProvider(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "cookies.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"cookies": "SID=1; HSID=2", "user_agent": "UA"}`), 0o600))

	am, err := NewFileProvider(jsonPath).AuthMaterial(ctx, domain.PlatformYouTube)
	require.NoError(t, err)
	assert.Len(t, am.Cookies, 2)
	assert.Equal(t, "UA", am.UserAgent)

	yamlPath := filepath.Join(dir, "cookies.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("cookies:\n  - name: SID\n    value: abc\n"), 0o600))

	am, err = NewFileProvider(yamlPath).AuthMaterial(ctx, domain.PlatformYouTube)
	require.NoError(t, err)
	require.Len(t, am.Cookies, 1)
	assert.Equal(t, "abc", am.Cookies[0].Value)

	_, err = NewFileProvider(filepath.Join(dir, "missing.json")).AuthMaterial(ctx, domain.PlatformYouTube)
	assert.ErrorIs(t, err, domain.ErrSecretNotConfigured)

	_, err = NewFileProvider(jsonPath).AuthMaterial(ctx, "vimeo")
	assert.ErrorIs(t, err, domain.ErrSecretNotConfigured)

	_, err = NewNoneProvider().AuthMaterial(ctx, domain.PlatformYouTube)
	assert.ErrorIs(t, err, domain.ErrSecretNotConfigured)
}

type fakeSecrets struct {
	calls int
	value *string
	err   error
}

func (f *fakeSecrets) GetSecretValue(
	context.Context,
	*secretsmanager.GetSecretValueInput,
	...func(*secretsmanager.Options),
) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: f.value}, nil
}

func TestSecretsManagerProvider(t *testing.T) {
	ctx := context.Background()

	api := &fakeSecrets{value: aws.String(`{"cookies": "SID=1"}`)}
	p := newSecretsManagerProvider(api, "audioclip/youtube-cookies")

	am, err := p.AuthMaterial(ctx, domain.PlatformYouTube)
	require.NoError(t, err)
	assert.Len(t, am.Cookies, 1)

	_, err = p.AuthMaterial(ctx, domain.PlatformYouTube)
	require.NoError(t, err)
	assert.Equal(t, 1, api.calls, "second read is served from cache")
}

func TestSecretsManagerProviderNotConfigured(t *testing.T) {
	ctx := context.Background()

	p := newSecretsManagerProvider(&fakeSecrets{err: &types.ResourceNotFoundException{}}, "x")
	_, err := p.AuthMaterial(ctx, domain.PlatformYouTube)
	assert.ErrorIs(t, err, domain.ErrSecretNotConfigured)

	p = newSecretsManagerProvider(&fakeSecrets{value: aws.String(`{"cookies": []}`)}, "x")
	_, err = p.AuthMaterial(ctx, domain.PlatformYouTube)
	assert.ErrorIs(t, err, domain.ErrSecretNotConfigured)

	p = newSecretsManagerProvider(&fakeSecrets{err: errors.New("throttled")}, "x")
	_, err = p.AuthMaterial(ctx, domain.PlatformYouTube)
	assert.ErrorContains(t, err, "throttled")
	assert.NotErrorIs(t, err, domain.ErrSecretNotConfigured)
}
