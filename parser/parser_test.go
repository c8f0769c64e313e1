package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_HomeFeed(t *testing.T) {
	body := []byte(`{"data":{"xdt_api__v1__clips__home__connection_v2":{"edges":[
		{"node":{"media":{"code":"C1","caption":{"text":"IPL final tonight"},"user":{"username":"cricfan"},"like_count":12,"comment_count":3,"play_count":900,"taken_at":1700000000}}},
		{"node":{"media":{"code":"C2"}}}
	]}}}`)

	shape, recs := Parse(body)
	require.Equal(t, ShapeHomeFeed, shape)
	require.Len(t, recs, 2)

	c := recs[0].Content
	require.NotNil(t, c)
	assert.Equal(t, "C1", c.Code)
	assert.Equal(t, "IPL final tonight", c.Caption)
	assert.Equal(t, "cricfan", c.Username)
	assert.Equal(t, int64(12), c.LikeCount)
	assert.Equal(t, int64(900), c.ViewCount)
	require.NotNil(t, c.TakenAt)

	bare := recs[1].Content
	assert.Equal(t, "", bare.Caption)
	assert.Equal(t, "", bare.Username)
	assert.Equal(t, int64(0), bare.LikeCount)
	assert.Nil(t, bare.TakenAt)
}

func TestParse_MissingCaptionDegradesToEmpty(t *testing.T) {
	body := []byte(`{"data":{"xdt_api__v1__clips__user__connection_v2":{"edges":[
		{"node":{"media":{"code":"P1","caption":null,"owner":{"username":"someone"}}}}
	]}}}`)

	shape, recs := Parse(body)
	require.Equal(t, ShapeProfileReels, shape)
	require.Len(t, recs, 1)
	assert.Equal(t, "", recs[0].Content.Caption)
	assert.Equal(t, "someone", recs[0].Content.Username)
}

func TestParse_UserProfile(t *testing.T) {
	body := []byte(`{"data":{"user":{"username":"shop","biography":"best deals","bio_links":[{"url":"https://x.example"},{"url":""},{"title":"no url"}],"external_url":"https://y.example"}}}`)

	shape, recs := Parse(body)
	require.Equal(t, ShapeUserProfile, shape)
	require.Len(t, recs, 1)
	p := recs[0].Profile
	require.NotNil(t, p)
	assert.Equal(t, "shop", p.Username)
	assert.Equal(t, "best deals", p.Bio)
	assert.Equal(t, []string{"https://x.example", "https://y.example"}, p.Links)
}

func TestParse_CommentsCarryCaption(t *testing.T) {
	body := []byte(`{"data":{"xdt_api__v1__media__media_id__comments__connection":{"media":{"code":"C1","caption":{"text":"late caption"}},"edges":[{},{}]}}}`)

	shape, recs := Parse(body)
	require.Equal(t, ShapeComments, shape)
	require.Len(t, recs, 1)
	assert.Equal(t, "C1", recs[0].Content.Code)
	assert.Equal(t, "late caption", recs[0].Content.Caption)
	assert.Equal(t, int64(2), recs[0].Content.CommentCount)
}

func TestParse_FeedTimelineSplitsAds(t *testing.T) {
	body := []byte(`{"data":{"xdt_api__v1__feed__timeline__connection":{"edges":[
		{"node":{"media":{"code":"F1","caption":{"text":"organic"}}}},
		{"node":{"ad":{"cta_text":"Shop now"},"media":{"code":"A1","user":{"username":"brand"},"link":"https://ad.example/x"}}},
		{"node":{"media":{"code":"A2","ad_id":"99","story_cta":[{"links":[{"webUri":"https://cta.example"}]}]}}}
	]}}}`)

	shape, recs := Parse(body)
	require.Equal(t, ShapeFeedTimeline, shape)
	require.Len(t, recs, 3)

	assert.NotNil(t, recs[0].Content)
	require.NotNil(t, recs[1].Ad)
	assert.Equal(t, "https://ad.example/x", recs[1].Ad.Link)
	assert.Equal(t, "Shop now", recs[1].Ad.LinkText)
	assert.Equal(t, "brand", recs[1].Ad.Profile)
	require.NotNil(t, recs[2].Ad)
	assert.Equal(t, "https://cta.example", recs[2].Ad.Link)
}

func TestParse_UnknownAndInvalidPayloads(t *testing.T) {
	for _, body := range []string{``, `not json`, `{"data":{"something_else":{}}}`, `{"data":{"user":null}}`, `[]`} {
		shape, recs := Parse([]byte(body))
		assert.Equal(t, ShapeUnknown, shape, body)
		assert.Empty(t, recs, body)
	}
}

func TestMatches(t *testing.T) {
	eps := []string{"/graphql/query", "/api/graphql"}
	assert.True(t, Matches("https://www.instagram.com/graphql/query?doc_id=1", eps))
	assert.False(t, Matches("https://www.instagram.com/static/app.js", eps))
	assert.False(t, Matches("https://x", []string{""}))
}
