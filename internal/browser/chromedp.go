package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"pkt.systems/mounttab/schema"
	"pkt.systems/pslog"
)

// Config selects how the chromedp driver reaches a browser.
type Config struct {
	// RemoteURL attaches to a running browser's DevTools endpoint, e.g.
	// http://127.0.0.1:9222. When empty a local browser is launched.
	RemoteURL   string
	ExecPath    string
	Headless    bool
	UserDataDir string
	// NoSandbox disables the Chromium sandbox, needed when running as root.
	NoSandbox     bool
	IgnoreSchemes []string
}

// DefaultIgnoreSchemes lists url schemes that never count as workspace tabs.
var DefaultIgnoreSchemes = []string{"devtools", "chrome-extension"}

// NewConnector returns a Connector backed by chromedp.
func NewConnector(cfg Config, logger pslog.Logger) Connector {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	if cfg.IgnoreSchemes == nil {
		cfg.IgnoreSchemes = DefaultIgnoreSchemes
	}
	return func(ctx context.Context) (Driver, error) {
		return connect(ctx, cfg, logger)
	}
}

func connect(ctx context.Context, cfg Config, logger pslog.Logger) (Driver, error) {
	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if cfg.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, cfg.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
		)
		if cfg.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
		}
		if cfg.UserDataDir != "" {
			opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
		}
		if cfg.NoSandbox {
			opts = append(opts, chromedp.NoSandbox)
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	}
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(pslog.LogLoggerWithLevel(logger, pslog.DebugLevel).Printf),
		chromedp.WithErrorf(pslog.LogLoggerWithLevel(logger, pslog.WarnLevel).Printf),
	)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: %v", schema.ErrBrowserUnavailable, err)
	}
	c := chromedp.FromContext(browserCtx)
	d := &cdpDriver{
		ctx:     browserCtx,
		cancel:  func() { browserCancel(); allocCancel() },
		browser: c.Browser,
		ignore:  cfg.IgnoreSchemes,
		aliases: make(map[target.ID]alias),
		log:     logger,
	}
	if c.Target != nil {
		d.self = c.Target.TargetID
	}
	logger.Info("browser connected", "remote", cfg.RemoteURL != "")
	return d, nil
}

// alias remembers the url a tab was opened with so the browser's normalized
// form of it (z.com becoming http://z.com/) is reported as the requested url.
type alias struct {
	requested string
	observed  string
}

type cdpDriver struct {
	ctx     context.Context
	cancel  func()
	browser *chromedp.Browser
	self    target.ID
	ignore  []string
	log     pslog.Logger

	mu      sync.Mutex
	aliases map[target.ID]alias
}

type page struct {
	id  target.ID
	url string
}

// call derives a context for one CDP command. It carries the browser session
// and is cancelled when either the session or the caller's ctx ends.
func (d *cdpDriver) call(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if err := d.ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", schema.ErrBrowserUnavailable, err)
	}
	callCtx, cancel := context.WithCancel(d.ctx)
	stop := context.AfterFunc(ctx, cancel)
	return callCtx, func() { stop(); cancel() }, nil
}

// failure reports a caller cancellation as such and everything else as a
// lost browser.
func failure(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %v", schema.ErrBrowserUnavailable, err)
}

func (d *cdpDriver) pages(ctx context.Context) ([]page, error) {
	callCtx, cancel, err := d.call(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	infos, err := chromedp.Targets(callCtx)
	if err != nil {
		return nil, failure(ctx, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	present := make(map[target.ID]struct{}, len(infos))
	var out []page
	for _, info := range infos {
		if info.Type != "page" || info.TargetID == d.self || d.ignored(info.URL) {
			continue
		}
		present[info.TargetID] = struct{}{}
		out = append(out, page{id: info.TargetID, url: d.reportedLocked(info.TargetID, info.URL)})
	}
	for id := range d.aliases {
		if _, ok := present[id]; !ok {
			delete(d.aliases, id)
		}
	}
	return out, nil
}

// reportedLocked maps the live url of a tab to the url the workspace knows it by.
func (d *cdpDriver) reportedLocked(id target.ID, url string) string {
	a, ok := d.aliases[id]
	if !ok {
		return url
	}
	if url == "" || url == "about:blank" || url == a.requested {
		return a.requested
	}
	if a.observed == "" {
		a.observed = url
		d.aliases[id] = a
		return a.requested
	}
	if url == a.observed {
		return a.requested
	}
	delete(d.aliases, id)
	return url
}

func (d *cdpDriver) ignored(url string) bool {
	scheme, _, ok := strings.Cut(url, ":")
	if !ok {
		return false
	}
	for _, ignored := range d.ignore {
		if strings.EqualFold(scheme, ignored) {
			return true
		}
	}
	return false
}

func (d *cdpDriver) Snapshot(ctx context.Context) (schema.Workspace, error) {
	pages, err := d.pages(ctx)
	if err != nil {
		return schema.Workspace{}, err
	}
	ws := schema.NewWorkspace()
	for _, p := range pages {
		if p.url == "" {
			continue
		}
		ws.Tabs = append(ws.Tabs, p.url)
	}
	return ws, nil
}

func (d *cdpDriver) OpenTab(ctx context.Context, url string) error {
	callCtx, cancel, err := d.call(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	id, err := target.CreateTarget(url).Do(cdp.WithExecutor(callCtx, d.browser))
	if err != nil {
		return failure(ctx, fmt.Errorf("open %s: %w", url, err))
	}
	d.mu.Lock()
	d.aliases[id] = alias{requested: url}
	d.mu.Unlock()
	d.log.Debug("browser tab opened", "url", url, "target", id)
	return nil
}

func (d *cdpDriver) CloseTab(ctx context.Context, url string) error {
	pages, err := d.pages(ctx)
	if err != nil {
		return err
	}
	for _, p := range pages {
		if p.url != url {
			continue
		}
		callCtx, cancel, err := d.call(ctx)
		if err != nil {
			return err
		}
		err = target.CloseTarget(p.id).Do(cdp.WithExecutor(callCtx, d.browser))
		cancel()
		if err != nil {
			return failure(ctx, fmt.Errorf("close %s: %w", url, err))
		}
		d.mu.Lock()
		delete(d.aliases, p.id)
		d.mu.Unlock()
		d.log.Debug("browser tab closed", "url", url, "target", p.id)
		return nil
	}
	d.log.Debug("browser close noop", "url", url)
	return nil
}

func (d *cdpDriver) Disconnect() error {
	d.cancel()
	return nil
}
