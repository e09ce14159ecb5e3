package secret

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/you-humble/audioclip/internal/domain"
)

const defaultCacheTTL = 5 * time.Minute

type secretsAPI interface {
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
}

type secretsManagerProvider struct {
	api  secretsAPI
	name string
	ttl  time.Duration
	now  func() time.Time

	mu       sync.Mutex
	cached   domain.AuthMaterial
	cachedAt time.Time
}

func NewSecretsManagerProvider(ctx context.Context, name, region string) (*secretsManagerProvider, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newSecretsManagerProvider(secretsmanager.NewFromConfig(cfg), name), nil
}

func newSecretsManagerProvider(api secretsAPI, name string) *secretsManagerProvider {
	return &secretsManagerProvider{
		api:  api,
		name: name,
		ttl:  defaultCacheTTL,
		now:  time.Now,
	}
}

func (p *secretsManagerProvider) AuthMaterial(ctx context.Context, platform string) (domain.AuthMaterial, error) {
	if platform != domain.PlatformYouTube {
		return domain.AuthMaterial{}, domain.ErrSecretNotConfigured
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.cachedAt.IsZero() && p.now().Sub(p.cachedAt) < p.ttl {
		return p.cached, nil
	}

	out, err := p.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(p.name),
	})
	if err != nil {
		var nf *types.ResourceNotFoundException
		if errors.As(err, &nf) {
			slog.Info("auth material secret not found", slog.String("secret", p.name))
			return domain.AuthMaterial{}, domain.ErrSecretNotConfigured
		}
		return domain.AuthMaterial{}, fmt.Errorf("get secret value: %w", err)
	}

	if out.SecretString == nil {
		return domain.AuthMaterial{}, domain.ErrSecretNotConfigured
	}

	am, err := parse([]byte(*out.SecretString))
	if err != nil {
		return domain.AuthMaterial{}, err
	}

	p.cached = am
	p.cachedAt = p.now()
	return am, nil
}
