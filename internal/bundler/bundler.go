// Package bundler attaches the server to an external frontend bundler running
// in dev-server mode. The bundler transforms and serves every asset; this
// package only starts it, waits for it and proxies to it.
package bundler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfoltran/webstart/internal/config"
	"github.com/jfoltran/webstart/internal/logging"
	"github.com/jfoltran/webstart/internal/pipeline"
)

// Bundler is a running bundler dev server and a pipeline stage proxying to it.
type Bundler struct {
	target      *url.URL
	proxy       *httputil.ReverseProxy
	logger      zerolog.Logger
	stopTimeout time.Duration

	cmd     *exec.Cmd
	out     *logging.LineWriter
	exited  chan struct{}
	waitErr error

	closeOnce sync.Once
	closeErr  error
}

type proxyErrKey struct{}

// Start launches the bundler when cfg.Spawn is set and blocks until its HMR
// endpoint accepts a connection, ctx is done, the process exits or
// cfg.ReadyTimeout elapses.
func Start(ctx context.Context, cfg config.BundlerConfig, logger zerolog.Logger) (*Bundler, error) {
	target, err := url.Parse(cfg.URL)
	if err != nil || target.Host == "" {
		return nil, fmt.Errorf("invalid bundler url %q", cfg.URL)
	}

	b := &Bundler{
		target:      target,
		logger:      logger.With().Str("component", "bundler").Logger(),
		stopTimeout: cfg.StopTimeout,
	}
	b.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if slot, ok := r.Context().Value(proxyErrKey{}).(*error); ok {
				*slot = err
			}
		},
	}

	if cfg.Spawn {
		if err := b.spawn(cfg); err != nil {
			return nil, err
		}
	}

	timeout := cfg.ReadyTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	readyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := b.waitReady(readyCtx, hmrURL(target, cfg.HMRPath)); err != nil {
		b.Close()
		return nil, fmt.Errorf("bundler not ready at %s: %w", cfg.URL, err)
	}
	b.logger.Info().Str("url", cfg.URL).Msg("bundler ready")
	return b, nil
}

func (b *Bundler) spawn(cfg config.BundlerConfig) error {
	if len(cfg.Command) == 0 {
		return fmt.Errorf("bundler command is empty")
	}
	b.out = logging.NewLineWriter(b.logger, zerolog.InfoLevel)

	cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
	cmd.Dir = cfg.Dir
	cmd.Stdout = b.out
	cmd.Stderr = b.out
	// Own process group so the whole tree (npx, node) is stopped together.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start bundler: %w", err)
	}
	b.cmd = cmd
	b.exited = make(chan struct{})
	b.logger.Info().Strs("command", cfg.Command).Int("pid", cmd.Process.Pid).Msg("bundler started")

	go func() {
		b.waitErr = cmd.Wait()
		b.out.Flush()
		close(b.exited)
	}()
	return nil
}

// Handle proxies the exchange to the bundler. The bundler answers every path,
// so the exchange is always handled.
func (b *Bundler) Handle(x *pipeline.Exchange) (pipeline.Result, error) {
	var perr error
	r := x.Request.WithContext(context.WithValue(x.Request.Context(), proxyErrKey{}, &perr))
	b.proxy.ServeHTTP(x.Response, r)
	if perr != nil {
		return pipeline.Handled, pipeline.NewError(http.StatusBadGateway, fmt.Errorf("bundler proxy: %w", perr))
	}
	return pipeline.Handled, nil
}

// Close stops a spawned bundler: SIGTERM to its process group, then SIGKILL
// after the stop timeout. It is a no-op for an attached bundler.
func (b *Bundler) Close() error {
	if b.cmd == nil {
		return nil
	}
	b.closeOnce.Do(func() {
		b.closeErr = b.stop()
	})
	return b.closeErr
}

func (b *Bundler) stop() error {
	select {
	case <-b.exited:
		return nil
	default:
	}

	pgid := b.cmd.Process.Pid
	if err := syscall.Kill(-pgid, syscall.SIGTERM); err != nil {
		b.logger.Debug().Err(err).Msg("signal bundler")
	}

	timeout := b.stopTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	select {
	case <-b.exited:
		b.logger.Info().Msg("bundler stopped")
		return nil
	case <-time.After(timeout):
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
		<-b.exited
		return fmt.Errorf("bundler did not exit within %s, killed", timeout)
	}
}
