package scraper

import (
	"context"
	"time"
)

// Response is one network response observed by a page.
type Response struct {
	URL    string
	Status int
	Body   []byte
}

// Key is a keyboard key understood by PressKey.
type Key string

const (
	KeyArrowDown  Key = "ArrowDown"
	KeyArrowRight Key = "ArrowRight"
	KeyEscape     Key = "Escape"
	KeyEnter      Key = "Enter"
)

// Page is a controllable browser page. Every orchestration step that touches
// the feed goes through it.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	Click(ctx context.Context, selector string) error
	Exists(ctx context.Context, selector string) (bool, error)
	Fill(ctx context.Context, selector, value string) error
	PressKey(ctx context.Context, key Key) error
	// Evaluate runs script in the page. With args, script must be a function
	// expression; it is invoked with the JSON-encoded args. The result is
	// decoded into out when out is non-nil.
	Evaluate(ctx context.Context, script string, out any, args ...any) error
	Screenshot(ctx context.Context) ([]byte, error)
	// OnResponse registers fn for every watched network response. fn runs on
	// a browser event goroutine, concurrently with the caller.
	OnResponse(fn func(Response))
	// Wait is a dwell. It is not interrupted by cancellation.
	Wait(d time.Duration)
}

// CookieJar is implemented by pages that can export and restore their
// authentication state.
type CookieJar interface {
	Cookies(ctx context.Context) ([]byte, error)
	SetCookies(ctx context.Context, blob []byte) error
}
