package browser

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	cu "github.com/Davincible/chromedp-undetected"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"

// ErrBlocked means every render pass came back without product markup,
// which is what an anti-bot challenge page looks like.
var ErrBlocked = errors.New("page blocked: no product markup after all render passes")

// ErrNoBrowser means Chrome could not be started because its binary is missing.
var ErrNoBrowser = errors.New("chrome binary not found")

func launchError(err error) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", ErrNoBrowser, err)
	}
	return err
}

// profileLocks holds one slot per profile directory. Chrome refuses to open
// a user data dir that another instance holds.
var profileLocks sync.Map

func lockProfile(ctx context.Context, dir string) (func(), error) {
	if dir == "" {
		return func() {}, nil
	}
	v, _ := profileLocks.LoadOrStore(filepath.Clean(dir), make(chan struct{}, 1))
	slot := v.(chan struct{})
	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for browser profile %s: %w", dir, ctx.Err())
	}
}

type Request struct {
	URL     string
	Script  string
	Timeout time.Duration
}

// Renderer loads a page, runs the injected script and returns the resulting HTML.
type Renderer interface {
	Render(ctx context.Context, req Request) (string, error)
}

type Options struct {
	ChromePath string
	UserAgent  string
	// ProfileDir keeps cookies between headed runs so clearance is reused.
	ProfileDir string
	// DebugDir receives a screenshot and the HTML of failed renders.
	DebugDir string
}

func renderActions(req Request, html *string) []chromedp.Action {
	var done bool
	return []chromedp.Action{
		chromedp.Navigate(req.URL),
		chromedp.WaitReady(`body`, chromedp.ByQuery),
		chromedp.Evaluate(req.Script, &done, func(p *cdpruntime.EvaluateParams) *cdpruntime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
		chromedp.OuterHTML(`html`, html, chromedp.ByQuery),
	}
}

// Chrome renders with a fresh headless chromedp allocator per call, so a hung
// browser never outlives its request.
type Chrome struct {
	opts Options
	log  *zap.Logger
}

func NewChrome(opts Options, log *zap.Logger) *Chrome {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	return &Chrome{opts: opts, log: log}
}

func (c *Chrome) Render(ctx context.Context, req Request) (string, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(c.opts.UserAgent),
		chromedp.WindowSize(1920, 1080),
	)
	if c.opts.ChromePath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(c.opts.ChromePath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	renderCtx, cancelRender := context.WithTimeout(browserCtx, req.Timeout)
	defer cancelRender()

	c.log.Debug("rendering headless", zap.String("url", req.URL))

	var html string
	if err := chromedp.Run(renderCtx, renderActions(req, &html)...); err != nil {
		if err := launchError(err); errors.Is(err, ErrNoBrowser) {
			return "", err
		}
		c.saveDebug(browserCtx, req.URL)
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, nil
}

func (c *Chrome) saveDebug(ctx context.Context, url string) {
	if c.opts.DebugDir == "" {
		return
	}
	debugCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := os.MkdirAll(c.opts.DebugDir, 0o755); err != nil {
		c.log.Debug("failed to create debug dir", zap.Error(err))
		return
	}
	stamp := time.Now().Format("20060102-150405")

	var buf []byte
	if err := chromedp.Run(debugCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		c.log.Debug("failed to capture screenshot", zap.Error(err))
	} else if err := os.WriteFile(filepath.Join(c.opts.DebugDir, stamp+".png"), buf, 0o644); err != nil {
		c.log.Debug("failed to write screenshot", zap.Error(err))
	}

	var html string
	if err := chromedp.Run(debugCtx, chromedp.Evaluate(`document.documentElement.outerHTML`, &html)); err != nil {
		c.log.Debug("failed to capture html", zap.Error(err))
	} else if err := os.WriteFile(filepath.Join(c.opts.DebugDir, stamp+".html"), []byte(html), 0o644); err != nil {
		c.log.Debug("failed to write html", zap.Error(err))
	}

	c.log.Info("saved debug artifacts", zap.String("url", url), zap.String("dir", c.opts.DebugDir))
}

// Undetected renders in a visible, fingerprint-patched Chrome. Without a
// display on Linux it runs under an Xvfb virtual framebuffer. Renders sharing
// a profile directory run one at a time.
type Undetected struct {
	opts Options
	log  *zap.Logger
}

func NewUndetected(opts Options, log *zap.Logger) *Undetected {
	return &Undetected{opts: opts, log: log}
}

func needsVirtualDisplay() bool {
	return runtime.GOOS == "linux" && os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == ""
}

func (u *Undetected) Render(ctx context.Context, req Request) (string, error) {
	cfgOpts := []cu.Option{
		cu.WithContext(ctx),
		cu.WithTimeout(req.Timeout),
	}
	if u.opts.ProfileDir != "" {
		if err := os.MkdirAll(u.opts.ProfileDir, 0o755); err != nil {
			return "", fmt.Errorf("create profile dir: %w", err)
		}
		cfgOpts = append(cfgOpts, cu.WithUserDataDir(u.opts.ProfileDir))
	}
	unlock, err := lockProfile(ctx, u.opts.ProfileDir)
	if err != nil {
		return "", err
	}
	defer unlock()

	if u.opts.ChromePath != "" {
		cfgOpts = append(cfgOpts, cu.WithChromeBinary(u.opts.ChromePath))
	}
	if needsVirtualDisplay() {
		u.log.Debug("no display available, using virtual framebuffer")
		cfgOpts = append(cfgOpts, cu.WithHeadless())
	}

	browserCtx, cancel, err := cu.New(cu.NewConfig(cfgOpts...))
	if err != nil {
		return "", fmt.Errorf("start undetected chrome: %w", launchError(err))
	}
	defer cancel()

	u.log.Debug("rendering headed", zap.String("url", req.URL))

	var html string
	if err := chromedp.Run(browserCtx, renderActions(req, &html)...); err != nil {
		return "", fmt.Errorf("chromedp run: %w", launchError(err))
	}
	return html, nil
}

// Pass is one step of an escalation chain.
type Pass struct {
	Name     string
	Renderer Renderer
}

// Escalation tries each pass in order and returns the first page that carries
// product markup.
type Escalation struct {
	passes []Pass
	log    *zap.Logger
	ready  func(html string) bool
}

func Escalate(log *zap.Logger, passes ...Pass) *Escalation {
	return &Escalation{passes: passes, log: log, ready: HasProductMarkup}
}

func (e *Escalation) Render(ctx context.Context, req Request) (string, error) {
	var lastErr error
	for _, pass := range e.passes {
		html, err := pass.Renderer.Render(ctx, req)
		if err != nil {
			e.log.Debug("render pass failed", zap.String("pass", pass.Name), zap.String("url", req.URL), zap.Error(err))
			lastErr = err
			continue
		}
		if e.ready(html) {
			return html, nil
		}
		e.log.Info("render pass blocked, escalating", zap.String("pass", pass.Name), zap.String("url", req.URL))
		lastErr = ErrBlocked
	}
	if lastErr == nil {
		lastErr = ErrBlocked
	}
	return "", lastErr
}
