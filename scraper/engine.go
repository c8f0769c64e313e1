package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"reel-scout/logger"
	"reel-scout/models"
)

// ChromeOptions configures the browser behind a ChromePage.
type ChromeOptions struct {
	Headless          bool
	Proxy             string
	Width, Height     int
	NavigationTimeout time.Duration
	// Endpoints limits which responses have their bodies fetched. Empty means all.
	Endpoints []string
}

// ChromePage drives one Chrome tab over the DevTools protocol.
type ChromePage struct {
	tab        context.Context
	cancel     func()
	navTimeout time.Duration
	endpoints  []string
	log        logger.Logger

	mu       sync.RWMutex
	handlers []func(Response)
	pending  sync.Map // network.RequestID -> *network.Response
}

var _ Page = (*ChromePage)(nil)
var _ CookieJar = (*ChromePage)(nil)

// NewChromePage launches a browser and opens one tab with network events on.
func NewChromePage(opts ChromeOptions, log logger.Logger) (*ChromePage, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("enable-webgl", true),
	)
	if opts.Width > 0 && opts.Height > 0 {
		allocOpts = append(allocOpts, chromedp.WindowSize(opts.Width, opts.Height))
	}
	if opts.Proxy != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.Proxy))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tab, tabCancel := chromedp.NewContext(allocCtx)

	p := &ChromePage{
		tab:        tab,
		navTimeout: opts.NavigationTimeout,
		endpoints:  opts.Endpoints,
		log:        log,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
	}
	chromedp.ListenTarget(tab, p.onEvent)

	if err := chromedp.Run(tab, network.Enable()); err != nil {
		p.cancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return p, nil
}

// Close shuts the tab and the browser down.
func (p *ChromePage) Close() {
	p.cancel()
}

func (p *ChromePage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(p.tab, timeout)
	} else {
		runCtx, cancel = context.WithCancel(p.tab)
	}
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (p *ChromePage) Navigate(ctx context.Context, url string) error {
	err := p.run(ctx, p.navTimeout, chromedp.Navigate(url))
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: navigate %s: %v", models.ErrTransientNetwork, url, err)
	}
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (p *ChromePage) URL(ctx context.Context) (string, error) {
	var u string
	if err := p.run(ctx, 0, chromedp.Location(&u)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return u, nil
}

func (p *ChromePage) Click(ctx context.Context, selector string) error {
	if err := p.run(ctx, p.navTimeout, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

func (p *ChromePage) Exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	err := p.Evaluate(ctx, `(sel) => document.querySelector(sel) !== null`, &found, selector)
	return found, err
}

func (p *ChromePage) Fill(ctx context.Context, selector, value string) error {
	err := p.run(ctx, p.navTimeout,
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("fill %s: %w", selector, err)
	}
	return nil
}

func (p *ChromePage) PressKey(ctx context.Context, key Key) error {
	var k string
	switch key {
	case KeyArrowDown:
		k = kb.ArrowDown
	case KeyArrowRight:
		k = kb.ArrowRight
	case KeyEscape:
		k = kb.Escape
	case KeyEnter:
		k = kb.Enter
	default:
		return fmt.Errorf("unsupported key %q", key)
	}
	if err := p.run(ctx, 0, chromedp.KeyEvent(k)); err != nil {
		return fmt.Errorf("press %s: %w", key, err)
	}
	return nil
}

func (p *ChromePage) Evaluate(ctx context.Context, script string, out any, args ...any) error {
	expr := script
	if len(args) > 0 {
		encoded := make([]string, 0, len(args))
		for _, a := range args {
			b, err := json.Marshal(a)
			if err != nil {
				return fmt.Errorf("encode evaluate arg: %w", err)
			}
			encoded = append(encoded, string(b))
		}
		expr = fmt.Sprintf("(%s)(%s)", script, strings.Join(encoded, ", "))
	}
	if err := p.run(ctx, p.navTimeout, chromedp.Evaluate(expr, out)); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

func (p *ChromePage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, p.navTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return buf, nil
}

func (p *ChromePage) OnResponse(fn func(Response)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, fn)
}

func (p *ChromePage) Wait(d time.Duration) {
	time.Sleep(d)
}

func (p *ChromePage) Cookies(ctx context.Context) ([]byte, error) {
	var cookies []*network.Cookie
	err := p.run(ctx, 0, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	return json.Marshal(cookies)
}

func (p *ChromePage) SetCookies(ctx context.Context, blob []byte) error {
	var cookies []*network.Cookie
	if err := json.Unmarshal(blob, &cookies); err != nil {
		return fmt.Errorf("decode auth blob: %w", err)
	}
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: c.SameSite,
		}
		if !c.Session && c.Expires > 0 {
			exp := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			param.Expires = &exp
		}
		params = append(params, param)
	}
	err := p.run(ctx, 0, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookies(params).Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("restore cookies: %w", err)
	}
	return nil
}

// onEvent runs on the chromedp event loop and must not block.
func (p *ChromePage) onEvent(ev any) {
	switch e := ev.(type) {
	case *network.EventResponseReceived:
		if e.Response != nil && p.watched(e.Response.URL) {
			p.pending.Store(e.RequestID, e.Response)
		}
	case *network.EventLoadingFinished:
		if v, ok := p.pending.LoadAndDelete(e.RequestID); ok {
			go p.deliver(e.RequestID, v.(*network.Response))
		}
	case *network.EventLoadingFailed:
		p.pending.Delete(e.RequestID)
	}
}

func (p *ChromePage) watched(url string) bool {
	if len(p.endpoints) == 0 {
		return true
	}
	for _, e := range p.endpoints {
		if strings.Contains(url, e) {
			return true
		}
	}
	return false
}

func (p *ChromePage) deliver(id network.RequestID, resp *network.Response) {
	c := chromedp.FromContext(p.tab)
	if c == nil || c.Target == nil {
		return
	}
	body, err := network.GetResponseBody(id).Do(cdp.WithExecutor(p.tab, c.Target))
	if err != nil {
		p.log.Debug("response body unavailable", logger.String("url", resp.URL), logger.Error(err))
		return
	}

	r := Response{URL: resp.URL, Status: int(resp.Status), Body: body}
	p.mu.RLock()
	handlers := append([]func(Response){}, p.handlers...)
	p.mu.RUnlock()
	for _, h := range handlers {
		h(r)
	}
}
