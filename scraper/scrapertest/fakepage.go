// Package scrapertest provides an in-memory scraper.Page with a virtual clock.
package scrapertest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"reel-scout/scraper"
)

// Epoch is the virtual time every FakePage starts at.
var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// FakePage records every call and advances a virtual clock on Wait. Hooks
// let tests emit traffic in response to navigation and key presses.
type FakePage struct {
	mu       sync.Mutex
	elapsed  time.Duration
	url      string
	handlers []func(scraper.Response)

	Navigations []string
	Keys        []scraper.Key
	Clicks      []string
	Scripts     []string
	// Fills maps a selector to the last value typed into it.
	Fills map[string]string

	// HTML is served for outerHTML reads, keyed by the current URL.
	HTML map[string]string
	// Redirects maps a navigated URL to where the page lands.
	Redirects map[string]string
	// NavigateErr fails navigation to a URL.
	NavigateErr map[string]error
	// Selectors answers Exists.
	Selectors map[string]bool
	// ScreenshotData is returned by Screenshot.
	ScreenshotData []byte

	OnNavigate func(p *FakePage, url string)
	OnKey      func(p *FakePage, key scraper.Key)
	OnClick    func(p *FakePage, selector string)
	// OnEvaluate overrides script results. Returning handled=false falls back
	// to the default behaviour.
	OnEvaluate func(p *FakePage, script string, args []any) (result any, handled bool, err error)
}

var _ scraper.Page = (*FakePage)(nil)

func New() *FakePage {
	return &FakePage{
		HTML:        make(map[string]string),
		Redirects:   make(map[string]string),
		NavigateErr: make(map[string]error),
		Selectors:   make(map[string]bool),
		Fills:       make(map[string]string),
	}
}

// Now is the virtual clock.
func (p *FakePage) Now() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Epoch.Add(p.elapsed)
}

// SetURL moves the page without recording a navigation.
func (p *FakePage) SetURL(u string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = u
}

// Emit delivers resp to every subscriber synchronously.
func (p *FakePage) Emit(resp scraper.Response) {
	p.mu.Lock()
	handlers := append([]func(scraper.Response){}, p.handlers...)
	p.mu.Unlock()
	for _, h := range handlers {
		h(resp)
	}
}

// EmitJSON delivers body as a response from url.
func (p *FakePage) EmitJSON(url, body string) {
	p.Emit(scraper.Response{URL: url, Status: 200, Body: []byte(body)})
}

// ScriptCount counts evaluated scripts containing fragment.
func (p *FakePage) ScriptCount(fragment string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.Scripts {
		if strings.Contains(s, fragment) {
			n++
		}
	}
	return n
}

func (p *FakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	p.Navigations = append(p.Navigations, url)
	err := p.NavigateErr[url]
	landing := url
	if to, ok := p.Redirects[url]; ok {
		landing = to
	}
	p.url = landing
	hook := p.OnNavigate
	p.mu.Unlock()

	if hook != nil {
		hook(p, url)
	}
	return err
}

func (p *FakePage) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *FakePage) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	p.Clicks = append(p.Clicks, selector)
	hook := p.OnClick
	p.mu.Unlock()

	if hook != nil {
		hook(p, selector)
	}
	return nil
}

func (p *FakePage) Exists(ctx context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Selectors[selector], nil
}

func (p *FakePage) Fill(ctx context.Context, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Fills[selector] = value
	return nil
}

func (p *FakePage) PressKey(ctx context.Context, key scraper.Key) error {
	p.mu.Lock()
	p.Keys = append(p.Keys, key)
	hook := p.OnKey
	p.mu.Unlock()

	if hook != nil {
		hook(p, key)
	}
	return nil
}

func (p *FakePage) Evaluate(ctx context.Context, script string, out any, args ...any) error {
	p.mu.Lock()
	p.Scripts = append(p.Scripts, script)
	hook := p.OnEvaluate
	html := p.HTML[p.url]
	p.mu.Unlock()

	var result any
	handled := false
	if hook != nil {
		var err error
		result, handled, err = hook(p, script, args)
		if err != nil {
			return err
		}
	}
	if !handled && strings.Contains(script, "outerHTML") {
		result = html
	}
	if out == nil || result == nil {
		return nil
	}
	b, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode fake result: %w", err)
	}
	return json.Unmarshal(b, out)
}

func (p *FakePage) Screenshot(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ScreenshotData, nil
}

func (p *FakePage) OnResponse(fn func(scraper.Response)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, fn)
}

// Wait advances the virtual clock.
func (p *FakePage) Wait(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elapsed += d
}

