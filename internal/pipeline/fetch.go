package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/you-humble/audioclip/internal/domain"
)

type ContentFetcher interface {
	Fetch(ctx context.Context, req domain.FetchRequest) (domain.FetchResult, error)
}

type SecretProvider interface {
	AuthMaterial(ctx context.Context, platform string) (domain.AuthMaterial, error)
}

// FetchPolicy fetches anonymously first and retries exactly once with
// injected auth material when the source asks for authorization.
type FetchPolicy struct {
	fetcher ContentFetcher
	secrets SecretProvider
}

func NewFetchPolicy(fetcher ContentFetcher, secrets SecretProvider) FetchPolicy {
	return FetchPolicy{fetcher: fetcher, secrets: secrets}
}

// Fetch reports whether auth material was used.
func (p FetchPolicy) Fetch(ctx context.Context, req domain.FetchRequest) (domain.FetchResult, bool, error) {
	req.Auth = nil
	res, err := p.fetcher.Fetch(ctx, req)
	if err == nil {
		return res, false, nil
	}
	if !errors.Is(err, domain.ErrUnauthorized) || ctx.Err() != nil {
		return domain.FetchResult{}, false, err
	}

	am, serr := p.secrets.AuthMaterial(ctx, domain.PlatformYouTube)
	if serr != nil {
		if !errors.Is(serr, domain.ErrSecretNotConfigured) {
			slog.Warn("auth material lookup failed", slog.String("error", serr.Error()))
		}
		return domain.FetchResult{}, false, fmt.Errorf("%w (no usable auth material: %v)", err, serr)
	}

	slog.Info("retrying fetch with auth material", slog.Int("cookies", len(am.Cookies)))

	req.Auth = &am
	res, err = p.fetcher.Fetch(ctx, req)
	if err != nil {
		return domain.FetchResult{}, true, fmt.Errorf("authenticated retry: %w", err)
	}
	return res, true, nil
}
