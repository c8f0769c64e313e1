package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePhase(t *testing.T) {
	p, err := ParsePhase("reels")
	assert.NoError(t, err)
	assert.Equal(t, PhaseReels, p)

	p, err = ParsePhase("")
	assert.NoError(t, err)
	assert.Equal(t, PhaseNew, p)

	_, err = ParsePhase("done")
	assert.Error(t, err)
}

func TestRecordItem_RelevantNeverExceedsSeen(t *testing.T) {
	var s ScraperSession
	for i := 0; i < 30; i++ {
		s.RecordItem(i%3 == 0)
		assert.LessOrEqual(t, s.RelevantReelsSeen, s.ReelsSeen)
	}
	assert.Equal(t, 30, s.ReelsSeen)
	assert.Equal(t, 10, s.RelevantReelsSeen)
}

func TestProfileRecord_ApplyScrapeIsMonotone(t *testing.T) {
	p := ProfileRecord{Username: "alice"}

	assert.True(t, p.ApplyScrape("first bio", []string{"https://a.example"}))
	assert.False(t, p.ApplyScrape("second bio", []string{"https://b.example"}))

	assert.True(t, p.Scraped)
	assert.Equal(t, "first bio", p.Bio)
	assert.Equal(t, []string{"https://a.example"}, p.Links)
}

func TestLinkRecord_AddProfilesIsASet(t *testing.T) {
	var l LinkRecord
	l.AddProfiles("bob", "alice")
	l.AddProfiles("alice")
	l.AddProfiles("bob", "")

	assert.Equal(t, []string{"alice", "bob"}, l.Profiles)
}

func TestLinkRecord_SignalAggregation(t *testing.T) {
	var l LinkRecord
	assert.Equal(t, SuspicionUnknown, l.Suspicious())

	l.RecordSignal(false)
	assert.Equal(t, SuspicionFalse, l.Suspicious())

	l.RecordSignal(true)
	l.RecordSignal(false)
	l.RecordSignal(true)
	assert.Equal(t, SuspicionTrue, l.Suspicious())

	l.ManualStatus = ReviewCleared
	assert.Equal(t, SuspicionFalse, l.Suspicious())
	assert.Equal(t, SuspicionTrue, l.Signal)
}

func TestContentRecord_MergeKeepsExistingFields(t *testing.T) {
	c := &ContentRecord{Code: "abc", Username: "owner", LikeCount: 10}
	c.Merge(&ContentRecord{Code: "abc", Caption: "late caption", LikeCount: 3, CommentCount: 7})

	assert.Equal(t, "owner", c.Username)
	assert.Equal(t, "late caption", c.Caption)
	assert.Equal(t, int64(10), c.LikeCount)
	assert.Equal(t, int64(7), c.CommentCount)
}

func TestNormalizeLink(t *testing.T) {
	assert.Equal(t, "https://shop.example", NormalizeLink("  HTTPS://Shop.Example/ "))
	assert.Equal(t, "https://shop.example/p?id=1", NormalizeLink("https://SHOP.example/p?id=1#top"))
	assert.Equal(t, "linktr.ee/someone", NormalizeLink("linktr.ee/someone"))
}
