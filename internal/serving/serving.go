// Package serving picks how frontend requests are answered: by the bundler in
// development or from the prebuilt asset directory in production.
package serving

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/jfoltran/webstart/internal/bundler"
	"github.com/jfoltran/webstart/internal/config"
	"github.com/jfoltran/webstart/internal/pipeline"
)

// Strategy answers every request not claimed by the route table.
type Strategy interface {
	pipeline.Stage
	io.Closer
}

// Select returns the strategy for the configured mode. In development it
// blocks until the bundler is ready.
func Select(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Strategy, error) {
	logger = logger.With().Str("component", "serving").Logger()

	switch cfg.Mode() {
	case config.Production:
		st, err := newStaticStrategy(cfg.Static, logger)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		logger.Info().Str("url", cfg.Bundler.URL).Bool("spawn", cfg.Bundler.Spawn).Msg("setting up bundler middleware")
		b, err := bundler.Start(ctx, cfg.Bundler, logger)
		if err != nil {
			return nil, fmt.Errorf("setup bundler: %w", err)
		}
		return b, nil
	}
}

func newStaticStrategy(cfg config.StaticConfig, logger zerolog.Logger) (*Static, error) {
	if fi, err := os.Stat(cfg.Dir); err != nil || !fi.IsDir() {
		logger.Warn().Str("dir", cfg.Dir).Msg("static directory not found; run the frontend build")
	}

	s := NewStatic(os.DirFS(cfg.Dir), cfg, logger)
	if cfg.Watch {
		if err := s.Watch(cfg.Dir); err != nil {
			return nil, err
		}
	}
	logger.Info().Str("dir", cfg.Dir).Str("index", cfg.Index).Msg("serving static assets")
	return s, nil
}
