// Package parser turns raw feed traffic payloads into typed records.
//
// Payloads are loosely shaped JSON. Each known shape has a matcher; matchers
// are tried in a fixed order and the first whose root key is present wins.
// Missing fields degrade to zero values: an absent caption is "", absent
// counts are 0 and an absent owner is an empty username. Unknown payloads
// yield no records and no error.
package parser

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"reel-scout/models"
)

// Shape identifies which payload signature matched.
type Shape int

const (
	ShapeUnknown Shape = iota
	ShapeHomeFeed
	ShapeProfileReels
	ShapeUserProfile
	ShapeComments
	ShapeFeedTimeline
)

func (s Shape) String() string {
	switch s {
	case ShapeHomeFeed:
		return "home_feed"
	case ShapeProfileReels:
		return "profile_reels"
	case ShapeUserProfile:
		return "user_profile"
	case ShapeComments:
		return "comments"
	case ShapeFeedTimeline:
		return "feed_timeline"
	default:
		return "unknown"
	}
}

// Record is a tagged variant: exactly one of Content, Profile or Ad is set.
type Record struct {
	Shape   Shape
	Content *models.ContentRecord
	Profile *models.ProfileRecord
	Ad      *models.AdRecord
}

type matcher struct {
	shape   Shape
	path    string
	extract func(gjson.Result) []Record
}

var matchers = []matcher{
	{ShapeHomeFeed, "data.xdt_api__v1__clips__home__connection_v2", clipsConnection(ShapeHomeFeed)},
	{ShapeProfileReels, "data.xdt_api__v1__clips__user__connection_v2", clipsConnection(ShapeProfileReels)},
	{ShapeUserProfile, "data.user", userProfile},
	{ShapeComments, "data.xdt_api__v1__media__media_id__comments__connection", commentsConnection},
	{ShapeFeedTimeline, "data.xdt_api__v1__feed__timeline__connection", feedTimeline},
}

// Parse returns the records carried by body, or nil when the payload is not
// JSON or matches no known shape.
func Parse(body []byte) (Shape, []Record) {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ShapeUnknown, nil
	}
	for _, m := range matchers {
		root := gjson.GetBytes(body, m.path)
		if !root.Exists() || root.Type == gjson.Null {
			continue
		}
		return m.shape, m.extract(root)
	}
	return ShapeUnknown, nil
}

// Matches reports whether url targets one of the watched endpoints.
func Matches(url string, endpoints []string) bool {
	for _, e := range endpoints {
		if e != "" && strings.Contains(url, e) {
			return true
		}
	}
	return false
}

func clipsConnection(shape Shape) func(gjson.Result) []Record {
	return func(root gjson.Result) []Record {
		var out []Record
		root.Get("edges").ForEach(func(_, edge gjson.Result) bool {
			if c := contentFromMedia(edge.Get("node.media")); c != nil {
				out = append(out, Record{Shape: shape, Content: c})
			}
			return true
		})
		return out
	}
}

func userProfile(root gjson.Result) []Record {
	username := root.Get("username").String()
	if username == "" {
		return nil
	}
	var links []string
	root.Get("bio_links").ForEach(func(_, l gjson.Result) bool {
		if u := strings.TrimSpace(l.Get("url").String()); u != "" {
			links = append(links, u)
		}
		return true
	})
	if ext := strings.TrimSpace(root.Get("external_url").String()); ext != "" {
		links = models.UnionStrings(links, ext)
	}
	return []Record{{
		Shape: ShapeUserProfile,
		Profile: &models.ProfileRecord{
			Username: username,
			Bio:      root.Get("biography").String(),
			Links:    links,
		},
	}}
}

// commentsConnection carries the parent media's caption, which reel metadata
// sometimes lacks.
func commentsConnection(root gjson.Result) []Record {
	media := root.Get("media")
	if !media.Exists() {
		media = root
	}
	code := media.Get("code").String()
	if code == "" {
		return nil
	}
	count := media.Get("comment_count").Int()
	if count == 0 {
		count = int64(len(root.Get("edges").Array()))
	}
	return []Record{{
		Shape: ShapeComments,
		Content: &models.ContentRecord{
			Code:         code,
			Caption:      media.Get("caption.text").String(),
			Username:     owner(media),
			CommentCount: count,
		},
	}}
}

func feedTimeline(root gjson.Result) []Record {
	var out []Record
	root.Get("edges").ForEach(func(_, edge gjson.Result) bool {
		node := edge.Get("node")
		media := node.Get("media")
		if isAd(node, media) {
			if ad := adFromMedia(node, media); ad != nil {
				out = append(out, Record{Shape: ShapeFeedTimeline, Ad: ad})
			}
			return true
		}
		if c := contentFromMedia(media); c != nil {
			out = append(out, Record{Shape: ShapeFeedTimeline, Content: c})
		}
		return true
	})
	return out
}

func isAd(node, media gjson.Result) bool {
	if ad := node.Get("ad"); ad.Exists() && ad.Type != gjson.Null {
		return true
	}
	return media.Get("ad_id").Exists() || media.Get("is_ad").Bool()
}

func adFromMedia(node, media gjson.Result) *models.AdRecord {
	code := media.Get("code").String()
	if code == "" {
		return nil
	}
	return &models.AdRecord{
		Code:         code,
		Profile:      owner(media),
		Caption:      media.Get("caption.text").String(),
		LikeCount:    media.Get("like_count").Int(),
		CommentCount: media.Get("comment_count").Int(),
		Link:         first(media, node, "link", "story_cta.0.links.0.webUri", "ad.link"),
		LinkText:     first(media, node, "link_text", "ad_action", "ad.cta_text"),
	}
}

func contentFromMedia(media gjson.Result) *models.ContentRecord {
	code := media.Get("code").String()
	if code == "" {
		return nil
	}
	c := &models.ContentRecord{
		Code:         code,
		Username:     owner(media),
		Caption:      media.Get("caption.text").String(),
		LikeCount:    media.Get("like_count").Int(),
		CommentCount: media.Get("comment_count").Int(),
		ViewCount:    media.Get("play_count").Int(),
	}
	if c.ViewCount == 0 {
		c.ViewCount = media.Get("view_count").Int()
	}
	if ts := media.Get("taken_at").Int(); ts > 0 {
		t := time.Unix(ts, 0).UTC()
		c.TakenAt = &t
	}
	return c
}

func owner(media gjson.Result) string {
	if u := media.Get("user.username").String(); u != "" {
		return u
	}
	return media.Get("owner.username").String()
}

// first returns the first non-empty string among paths, looked up on media
// and then on node.
func first(media, node gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := media.Get(p).String(); v != "" {
			return v
		}
		if v := node.Get(p).String(); v != "" {
			return v
		}
	}
	return ""
}
