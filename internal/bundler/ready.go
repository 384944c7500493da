package bundler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/coder/websocket"
)

// hmrProtocol is the websocket subprotocol the bundler's hot-reload socket
// accepts. On connect it sends {"type":"connected"}.
const hmrProtocol = "vite-hmr"

const (
	probeInterval = 250 * time.Millisecond
	probeTimeout  = 2 * time.Second
)

func hmrURL(target *url.URL, path string) string {
	u := *target
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if path == "" {
		path = "/"
	}
	ref, err := url.Parse(path)
	if err != nil {
		u.Path = path
		return u.String()
	}
	return u.ResolveReference(ref).String()
}

func (b *Bundler) waitReady(ctx context.Context, wsURL string) error {
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		err := probe(ctx, wsURL)
		if err == nil {
			return nil
		}
		lastErr = err
		b.logger.Debug().Err(err).Str("url", wsURL).Msg("waiting for bundler")

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w (last probe: %v)", ctx.Err(), lastErr)
		case <-b.exited:
			return fmt.Errorf("bundler exited before becoming ready: %v", b.waitErr)
		case <-ticker.C:
		}
	}
}

func probe(ctx context.Context, wsURL string) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	c, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{hmrProtocol},
	})
	if err != nil {
		return err
	}
	defer c.CloseNow()

	_, data, err := c.Read(ctx)
	if err != nil {
		return fmt.Errorf("read hmr greeting: %w", err)
	}
	var msg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("decode hmr greeting: %w", err)
	}
	if msg.Type != "connected" {
		return fmt.Errorf("unexpected hmr greeting %q", msg.Type)
	}
	c.Close(websocket.StatusNormalClosure, "")
	return nil
}
