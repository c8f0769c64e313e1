package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"reel-scout/logger"
	"reel-scout/models"
	"reel-scout/scraper"
)

const (
	usernameField = `input[name="username"]`
	passwordField = `input[name="password"]`
	submitButton  = `button[type="submit"]`
	loginPath     = "/accounts/login"
	challengePath = "/challenge"
	formWait      = 10
)

// AccountStore holds the pooled feed accounts.
type AccountStore interface {
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	SaveAuthBlob(ctx context.Context, accountID, blob string) error
}

// FeedLogin signs the browser in with one pooled account. A stored cookie
// blob is tried first; credentials are typed only when it no longer works.
type FeedLogin struct {
	accounts  AccountStore
	sealer    *Sealer
	accountID string
	jar       scraper.CookieJar
	baseURL   string
	settle    time.Duration
	log       logger.Logger
}

// NewFeedLogin builds a login for accountID. jar may be nil, in which case
// every login types credentials and nothing is cached.
func NewFeedLogin(accounts AccountStore, sealer *Sealer, accountID string, jar scraper.CookieJar, baseURL string, log logger.Logger) *FeedLogin {
	return &FeedLogin{
		accounts:  accounts,
		sealer:    sealer,
		accountID: accountID,
		jar:       jar,
		baseURL:   strings.TrimRight(baseURL, "/"),
		settle:    5 * time.Second,
		log:       log.With(logger.String("account_id", accountID)),
	}
}

// Login leaves page signed in, or fails with models.ErrAuthExpired.
func (f *FeedLogin) Login(ctx context.Context, page scraper.Page) error {
	acc, err := f.accounts.GetAccount(ctx, f.accountID)
	if err != nil {
		return fmt.Errorf("%w: load account: %v", models.ErrAuthExpired, err)
	}

	if acc.AuthBlob != "" && f.jar != nil {
		ok, err := f.reuse(ctx, page, acc.AuthBlob)
		if err != nil {
			f.log.Warn("stored auth blob unusable", logger.Error(err))
		}
		if ok {
			f.log.Debug("signed in with stored auth blob")
			return nil
		}
	}
	return f.credentials(ctx, page, acc)
}

func (f *FeedLogin) reuse(ctx context.Context, page scraper.Page, blob string) (bool, error) {
	if err := f.jar.SetCookies(ctx, []byte(blob)); err != nil {
		return false, err
	}
	if err := page.Navigate(ctx, f.baseURL+"/"); err != nil {
		return false, err
	}
	page.Wait(f.settle)
	return f.signedIn(ctx, page), nil
}

func (f *FeedLogin) credentials(ctx context.Context, page scraper.Page, acc *models.Account) error {
	username, password, err := f.open(acc)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrAuthExpired, err)
	}

	if err := page.Navigate(ctx, f.baseURL+loginPath+"/"); err != nil {
		return fmt.Errorf("%w: open login form: %v", models.ErrAuthExpired, err)
	}
	if !f.waitForForm(ctx, page) {
		return fmt.Errorf("%w: login form did not render", models.ErrAuthExpired)
	}
	if err := page.Fill(ctx, usernameField, username); err != nil {
		return fmt.Errorf("%w: fill username: %v", models.ErrAuthExpired, err)
	}
	if err := page.Fill(ctx, passwordField, password); err != nil {
		return fmt.Errorf("%w: fill password: %v", models.ErrAuthExpired, err)
	}
	if err := page.Click(ctx, submitButton); err != nil {
		return fmt.Errorf("%w: submit: %v", models.ErrAuthExpired, err)
	}
	page.Wait(f.settle)

	if !f.signedIn(ctx, page) {
		return fmt.Errorf("%w: credentials rejected for account %s", models.ErrAuthExpired, acc.ID)
	}
	// "save login info" and notification prompts
	_ = page.PressKey(ctx, scraper.KeyEscape)

	f.storeBlob(ctx)
	f.log.Info("signed in with credentials")
	return nil
}

func (f *FeedLogin) open(acc *models.Account) (string, string, error) {
	if f.sealer == nil {
		return acc.Username, acc.Password, nil
	}
	username, err := f.sealer.Open(acc.Username)
	if err != nil {
		return "", "", fmt.Errorf("open username: %w", err)
	}
	password, err := f.sealer.Open(acc.Password)
	if err != nil {
		return "", "", fmt.Errorf("open password: %w", err)
	}
	return username, password, nil
}

func (f *FeedLogin) waitForForm(ctx context.Context, page scraper.Page) bool {
	for i := 0; i < formWait; i++ {
		if ok, _ := page.Exists(ctx, usernameField); ok {
			return true
		}
		page.Wait(time.Second)
	}
	return false
}

func (f *FeedLogin) signedIn(ctx context.Context, page scraper.Page) bool {
	u, err := page.URL(ctx)
	if err != nil {
		return false
	}
	if strings.Contains(u, loginPath) || strings.Contains(u, challengePath) {
		return false
	}
	onForm, _ := page.Exists(ctx, usernameField)
	return !onForm
}

func (f *FeedLogin) storeBlob(ctx context.Context) {
	if f.jar == nil {
		return
	}
	blob, err := f.jar.Cookies(ctx)
	if err != nil {
		f.log.Warn("failed to export cookies", logger.Error(err))
		return
	}
	if err := f.accounts.SaveAuthBlob(ctx, f.accountID, string(blob)); err != nil {
		f.log.Warn("failed to store auth blob", logger.Error(err))
	}
}
