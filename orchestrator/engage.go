package orchestrator

import (
	"context"
	"fmt"

	"reel-scout/scraper"
)

// Engager performs the feed interactions done on relevant content.
type Engager interface {
	Like(ctx context.Context) error
	Save(ctx context.Context) error
}

// PageEngager clicks the action buttons of the item on screen.
type PageEngager struct {
	page scraper.Page
}

func NewPageEngager(page scraper.Page) *PageEngager {
	return &PageEngager{page: page}
}

const clickIconScript = `(label) => {
	const svg = document.querySelector('svg[aria-label="' + label + '"]');
	if (!svg) return false;
	const button = svg.closest('div[role="button"], button');
	if (!button) return false;
	button.click();
	return true;
}`

func (e *PageEngager) Like(ctx context.Context) error {
	return e.click(ctx, "Like")
}

func (e *PageEngager) Save(ctx context.Context) error {
	return e.click(ctx, "Save")
}

func (e *PageEngager) click(ctx context.Context, label string) error {
	var clicked bool
	if err := e.page.Evaluate(ctx, clickIconScript, &clicked, label); err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("no %q button on screen", label)
	}
	return nil
}
