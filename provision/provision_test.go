package provision

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reel-scout/auth"
	"reel-scout/classifier"
	"reel-scout/logger"
	"reel-scout/memstore"
	"reel-scout/models"
)

type stubTopics struct {
	topic classifier.Topic
	err   error
	calls int
}

func (s *stubTopics) GenerateTopic(context.Context, string) (classifier.Topic, error) {
	s.calls++
	return s.topic, s.err
}

func setup(t *testing.T, topics *stubTopics) (*Provisioner, *memstore.Store) {
	t.Helper()
	sealer, err := auth.NewSealer("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	store := memstore.New()
	return New(topics, store, sealer, logger.NewNop()), store
}

func TestCreateSession(t *testing.T) {
	topics := &stubTopics{topic: classifier.Topic{
		Title: "IPL betting", Keywords: []string{"ipl", "odds"}, Hashtags: []string{"#ipl"},
	}}
	p, store := setup(t, topics)
	ctx := context.Background()
	acc, err := p.AddAccount(ctx, "scout1", "hunter2")
	require.NoError(t, err)

	s, err := p.CreateSession(ctx, "  find IPL betting promoters ")
	require.NoError(t, err)
	assert.Equal(t, "IPL betting", s.Name)
	assert.Equal(t, "find IPL betting promoters", s.Prompt)
	assert.Equal(t, models.PhaseNew, s.Phase)
	require.NotNil(t, s.AccountID)
	assert.Equal(t, acc.ID, *s.AccountID)

	stored, err := store.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"ipl", "odds"}, stored.Keywords)

	stats, err := store.GetFrequency(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"ipl": 0, "odds": 0}, stats.Freq)
	assert.Equal(t, map[string]int{"ipl": 0, "odds": 0}, stats.Priority)
}

func TestCreateSession_NoFreeAccount(t *testing.T) {
	topics := &stubTopics{}
	p, store := setup(t, topics)

	_, err := p.CreateSession(context.Background(), "anything")
	require.ErrorIs(t, err, models.ErrNoAccount)
	assert.Zero(t, topics.calls, "the oracle is not asked without an account")

	sessions, err := store.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestCreateSession_TopicFailureReleasesAccount(t *testing.T) {
	topics := &stubTopics{err: errors.New("oracle down")}
	p, store := setup(t, topics)
	ctx := context.Background()
	acc, err := p.AddAccount(ctx, "scout1", "hunter2")
	require.NoError(t, err)

	_, err = p.CreateSession(ctx, "anything")
	require.Error(t, err)

	got, err := store.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Nil(t, got.SessionID)
}

func TestCreateSession_RequiresPrompt(t *testing.T) {
	p, _ := setup(t, &stubTopics{})
	_, err := p.CreateSession(context.Background(), "   ")
	assert.Error(t, err)
}

func TestAddAccount_SealsCredentials(t *testing.T) {
	p, store := setup(t, &stubTopics{})
	ctx := context.Background()

	acc, err := p.AddAccount(ctx, "scout1", "hunter2")
	require.NoError(t, err)

	got, err := store.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "scout1", got.Username)
	assert.NotEqual(t, "hunter2", got.Password)

	opened, err := p.sealer.Open(got.Password)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", opened)

	_, err = p.AddAccount(ctx, "", "x")
	assert.Error(t, err)
}

func TestAddTargetedApp(t *testing.T) {
	p, store := setup(t, &stubTopics{})
	ctx := context.Background()

	app, err := p.AddTargetedApp(ctx, "s1", "royal casino", []string{" casino ", "", "spins"})
	require.NoError(t, err)
	assert.Equal(t, []string{"casino", "spins"}, app.Keywords)

	apps, err := store.TargetedApps(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, apps, 1)

	_, err = p.AddTargetedApp(ctx, "s1", "empty", []string{" "})
	assert.Error(t, err)
}
