package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	pagepick "github.com/anatolykoptev/go-pagepick"
	"github.com/anatolykoptev/go-pagepick/internal/cachestore"
	cfgpkg "github.com/anatolykoptev/go-pagepick/internal/config"
	"github.com/anatolykoptev/go-pagepick/internal/vision"
)

// buildPipeline assembles a pagepick.Config from service configuration.
// The returned func releases the cache backend.
func buildPipeline(ctx context.Context, cfg cfgpkg.Config) (*pagepick.Config, func(), error) {
	cache, closeCache, err := buildCache(ctx, cfg.Cache)
	if err != nil {
		return nil, nil, err
	}

	pp := &pagepick.Config{
		Cache:               cache,
		Classifier:          buildClassifier(cfg.Vision),
		HTTPClient:          &http.Client{},
		MinImageWidth:       cfg.Selection.MinImageWidth,
		MinImageHeight:      cfg.Selection.MinImageHeight,
		ClassifyConcurrency: cfg.Vision.Concurrency,
		ClassifyTimeout:     cfg.Vision.Timeout,
		ClassificationTTL:   cfg.Cache.TTL,
		InlineImages:        cfg.Vision.InlineImages,
		ProbeImages:         cfg.Selection.ProbeImages,
		OnPanic: func(tag string, r any) {
			log.Error().Str("stage", tag).Interface("panic", r).Msg("recovered panic")
		},
	}
	return pp, closeCache, nil
}

func buildCache(ctx context.Context, cc cfgpkg.CacheConfig) (pagepick.Cache, func(), error) {
	noop := func() {}
	switch cc.Backend {
	case "none":
		return nil, noop, nil
	case "redis":
		r, err := cachestore.NewRedis(ctx, cc.RedisURL, cc.Namespace)
		if err != nil {
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
		return r, func() { _ = r.Close() }, nil
	case "sqlite":
		s, err := cachestore.OpenSQLite(cc.SQLitePath, cc.Namespace)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite cache: %w", err)
		}
		if n, err := s.Purge(ctx); err == nil && n > 0 {
			log.Info().Int64("removed", n).Msg("purged expired cache entries")
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return cachestore.NewMemory(cc.Namespace), noop, nil
	}
}

// buildClassifier returns nil (classification disabled) when no provider
// or API key is configured.
func buildClassifier(vc cfgpkg.VisionConfig) pagepick.Classifier {
	if vc.Provider == "none" {
		return nil
	}
	if vc.APIKey == "" {
		log.Warn().Msg("ANTHROPIC_API_KEY not set: content classification disabled")
		return nil
	}
	return vision.NewAnthropicClient(vision.Options{
		APIKey:    vc.APIKey,
		Model:     vc.Model,
		BaseURL:   vc.BaseURL,
		MaxTokens: vc.MaxTokens,
	})
}
