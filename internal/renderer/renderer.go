// Package renderer captures full-page screenshots of dev-server pages
// with a shared headless browser. Snapshots pass through a scratch file
// on disk that is always deleted, matching how downstream tooling
// consumes them.
package renderer

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/kurtnissen/ai-swarm/internal/config"
	"github.com/kurtnissen/ai-swarm/internal/swarm"
)

// CookieProvider returns the session cookie value used for
// authenticated page loads.
type CookieProvider func(ctx context.Context) (string, error)

type Renderer struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	cfg      config.RendererConfig
	cookie   CookieProvider
}

func New(cfg config.RendererConfig, cookie CookieProvider) (*Renderer, error) {
	l := launcher.New().Headless(cfg.Headless)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	return &Renderer{
		browser:  browser,
		launcher: l,
		cfg:      cfg,
		cookie:   cookie,
	}, nil
}

func (r *Renderer) Close() error {
	err := r.browser.Close()
	r.launcher.Cleanup()
	return err
}

// Snapshot opens the URL in a fresh page, waits for the load event and
// returns a full-page PNG plus the page title.
func (r *Renderer) Snapshot(ctx context.Context, pageURL string, authenticated bool) (*swarm.Snapshot, error) {
	page, err := r.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer func() { _ = page.Close() }()

	timeout := r.cfg.NavTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	page = page.Context(ctx).Timeout(timeout)

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             r.cfg.ViewportWidth,
		Height:            r.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		return nil, fmt.Errorf("set viewport: %w", err)
	}

	if authenticated {
		if err := r.injectSessionCookie(ctx, page, pageURL); err != nil {
			return nil, err
		}
	}

	if err := page.Navigate(pageURL); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", pageURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait for load: %w", err)
	}

	png, err := page.Screenshot(true, nil)
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}

	img, err := scratchRoundtrip(r.cfg.ScratchDir, png)
	if err != nil {
		return nil, err
	}

	title := ""
	if info, err := page.Info(); err == nil {
		title = info.Title
	}

	return &swarm.Snapshot{Image: img, Title: title}, nil
}

func (r *Renderer) injectSessionCookie(ctx context.Context, page *rod.Page, pageURL string) error {
	if r.cookie == nil {
		return fmt.Errorf("authenticated render requested but no cookie source is configured")
	}
	value, err := r.cookie(ctx)
	if err != nil {
		return fmt.Errorf("load session cookie: %w", err)
	}

	host, err := hostOf(pageURL)
	if err != nil {
		return err
	}
	return page.SetCookies([]*proto.NetworkCookieParam{{
		Name:   r.cfg.CookieName,
		Value:  value,
		Domain: host,
		Path:   "/",
	}})
}

// scratchRoundtrip writes the PNG to a scratch file, reads it back and
// removes the file. The scratch file never outlives the call.
func scratchRoundtrip(scratchDir string, png []byte) ([]byte, error) {
	f, err := os.CreateTemp(scratchDir, "snapshot-*.png")
	if err != nil {
		return nil, fmt.Errorf("create scratch file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(png); err != nil {
		f.Close()
		return nil, fmt.Errorf("write scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close scratch file: %w", err)
	}

	img, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scratch file: %w", err)
	}
	return img, nil
}

func hostOf(pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse url %s: %w", pageURL, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("url %s has no host", pageURL)
	}
	return u.Hostname(), nil
}
