package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfoltran/webstart/internal/config"
	"github.com/jfoltran/webstart/internal/pipeline"
	"github.com/jfoltran/webstart/internal/serving"
)

// Server owns the request pipeline, the serving strategy and the listener.
type Server struct {
	cfg    *config.Config
	logger zerolog.Logger

	mu       sync.Mutex
	addr     net.Addr
	ready    chan struct{}
	strategy serving.Strategy
	srv      *http.Server
}

// New creates a new Server. cfg must already be validated and is not modified.
func New(cfg *config.Config, logger zerolog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger.With().Str("component", "http-server").Logger(),
		ready:  make(chan struct{}),
	}
}

// Start assembles the pipeline, binds the listener and serves until ctx is
// cancelled. Any setup failure is returned after releasing what was acquired;
// no listener is left bound.
func (s *Server) Start(ctx context.Context) error {
	p := pipeline.New()

	// 1. JSON body parsing.
	p.Use(jsonBody(s.cfg.Server.BodyLimit))

	// 2. Request logging.
	rl := &requestLogger{logger: s.logger}
	p.OnEnter(rl.enter)
	p.OnFinish(rl.finish)

	// 3. Route table.
	p.Use(routes())

	// 4. Serving strategy; may block until the bundler is ready.
	strategy, err := serving.Select(ctx, s.cfg, s.logger)
	if err != nil {
		return err
	}
	p.Use(strategy)

	// 5. Terminal error handler.
	p.OnError(errorHandler(s.cfg.Mode()))

	// 6. Listen.
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		if cerr := strategy.Close(); cerr != nil {
			s.logger.Warn().Err(cerr).Msg("close serving strategy")
		}
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr(), err)
	}

	srv := &http.Server{
		Handler:           p,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(l net.Listener) context.Context {
			return ctx
		},
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.strategy = strategy
	s.srv = srv
	s.mu.Unlock()
	close(s.ready)

	s.logger.Info().Msgf("Server running in %s mode", s.cfg.EnvName())
	s.logger.Info().Msgf("Listening on port %d", ln.Addr().(*net.TCPAddr).Port)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errCh:
		if cerr := strategy.Close(); cerr != nil {
			s.logger.Warn().Err(cerr).Msg("close serving strategy")
		}
		return err
	}
}

func (s *Server) shutdown() error {
	s.logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	err := s.srv.Shutdown(ctx)
	if err != nil {
		s.srv.Close()
	}
	if cerr := s.strategy.Close(); cerr != nil {
		s.logger.Warn().Err(cerr).Msg("close serving strategy")
	}
	return err
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listener address, or nil before Ready.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
