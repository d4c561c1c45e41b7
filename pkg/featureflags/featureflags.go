package featureflags

import (
	"context"
	"errors"

	"cashback-ranking/pkg/config"

	"github.com/Flagsmith/flagsmith-go-client/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("featureflags", fx.Provide(ProvideFeatureFlag))

// ErrNotConfigured is returned when no Flagsmith API key is set.
var ErrNotConfigured = errors.New("feature flags not configured")

type FeatureFlag interface {
	Features(ctx context.Context) ([]flagsmith.Flag, error)
	IsEnabled(ctx context.Context, name string) (bool, error)
}

type featureflag struct {
	client *flagsmith.Client
}

type FeatureParams struct {
	fx.In
	Config *config.Config
}

func ProvideFeatureFlag(p FeatureParams) FeatureFlag {
	if p.Config.Flagsmith.ApiKey == "" {
		zap.L().Info("[FeatureFlags] flagsmith disabled, using static configuration")
		return &featureflag{}
	}

	opts := []flagsmith.Option{
		flagsmith.WithBaseURL(p.Config.Flagsmith.Addr),
		flagsmith.WithAnalytics(),
	}

	return &featureflag{
		client: flagsmith.NewClient(p.Config.Flagsmith.ApiKey, opts...),
	}
}

func (s *featureflag) Features(ctx context.Context) ([]flagsmith.Flag, error) {
	if s.client == nil {
		return nil, ErrNotConfigured
	}
	flags, err := s.client.GetEnvironmentFlags()
	if err != nil {
		return nil, err
	}

	return flags.AllFlags(), nil
}

func (s *featureflag) IsEnabled(ctx context.Context, name string) (bool, error) {
	if s.client == nil {
		return false, ErrNotConfigured
	}
	flags, err := s.client.GetEnvironmentFlags()
	if err != nil {
		return false, err
	}
	return flags.IsFeatureEnabled(name)
}

// Bool returns the flag value, or fallback when the flag cannot be read.
func Bool(ctx context.Context, ff FeatureFlag, name string, fallback bool) bool {
	if ff == nil {
		return fallback
	}
	v, err := ff.IsEnabled(ctx, name)
	if err != nil {
		if !errors.Is(err, ErrNotConfigured) {
			zap.L().Debug("[FeatureFlags] flag lookup failed", zap.String("flag", name), zap.Error(err))
		}
		return fallback
	}
	return v
}
