// Package provision creates sessions and the records they depend on.
package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"reel-scout/auth"
	"reel-scout/classifier"
	"reel-scout/frequency"
	"reel-scout/logger"
	"reel-scout/models"
)

type TopicGenerator interface {
	GenerateTopic(ctx context.Context, request string) (classifier.Topic, error)
}

type Store interface {
	CreateSession(ctx context.Context, s *models.ScraperSession) error
	AssignFreeAccount(ctx context.Context, sessionID string) (*models.Account, error)
	ReleaseAccount(ctx context.Context, accountID string) error
	SaveFrequency(ctx context.Context, stats models.FrequencyStats) error
	CreateAccount(ctx context.Context, acc *models.Account) error
	CreateTargetedApp(ctx context.Context, app *models.TargetedApp) error
}

type Provisioner struct {
	topics TopicGenerator
	store  Store
	sealer *auth.Sealer
	log    logger.Logger
}

func New(topics TopicGenerator, store Store, sealer *auth.Sealer, log logger.Logger) *Provisioner {
	return &Provisioner{topics: topics, store: store, sealer: sealer, log: log}
}

// CreateSession claims a free account, asks the oracle for a title, keywords
// and hashtags, and stores the session with zeroed keyword stats. Nothing is
// created when no account is free.
func (p *Provisioner) CreateSession(ctx context.Context, prompt string) (*models.ScraperSession, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, errors.New("prompt is required")
	}

	id := uuid.NewString()
	acc, err := p.store.AssignFreeAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	release := func() {
		if err := p.store.ReleaseAccount(context.WithoutCancel(ctx), acc.ID); err != nil {
			p.log.Warn("failed to release account", logger.String("account_id", acc.ID), logger.Error(err))
		}
	}

	topic, err := p.topics.GenerateTopic(ctx, prompt)
	if err != nil {
		release()
		return nil, fmt.Errorf("generate topic: %w", err)
	}

	accountID := acc.ID
	session := &models.ScraperSession{
		ID:        id,
		Name:      topic.Title,
		AccountID: &accountID,
		Prompt:    prompt,
		Keywords:  topic.Keywords,
		Hashtags:  topic.Hashtags,
		Phase:     models.PhaseNew,
	}
	if err := p.store.CreateSession(ctx, session); err != nil {
		release()
		return nil, err
	}
	if err := p.store.SaveFrequency(ctx, frequency.Seed(id, topic.Keywords)); err != nil {
		return nil, fmt.Errorf("seed frequency stats: %w", err)
	}

	p.log.Info("session created",
		logger.String("session_id", id),
		logger.String("name", session.Name),
		logger.Int("keywords", len(session.Keywords)),
	)
	return session, nil
}

// AddAccount stores feed credentials sealed.
func (p *Provisioner) AddAccount(ctx context.Context, username, password string) (*models.Account, error) {
	if username == "" || password == "" {
		return nil, errors.New("username and password are required")
	}
	if p.sealer == nil {
		return nil, errors.New("no credentials key configured")
	}
	sealedUser, err := p.sealer.Seal(username)
	if err != nil {
		return nil, err
	}
	sealedPass, err := p.sealer.Seal(password)
	if err != nil {
		return nil, err
	}
	acc := &models.Account{Username: sealedUser, Password: sealedPass}
	if err := p.store.CreateAccount(ctx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// AddTargetedApp registers an app whose keywords seed a target_app crawl.
func (p *Provisioner) AddTargetedApp(ctx context.Context, sessionID, name string, keywords []string) (*models.TargetedApp, error) {
	var kws []string
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			kws = append(kws, k)
		}
	}
	if name == "" || len(kws) == 0 {
		return nil, errors.New("app name and at least one keyword are required")
	}
	app := &models.TargetedApp{SessionID: sessionID, Name: name, Keywords: kws}
	if err := p.store.CreateTargetedApp(ctx, app); err != nil {
		return nil, err
	}
	return app, nil
}
