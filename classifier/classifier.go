// Package classifier judges topical relevance through an external oracle.
//
// Classification never fails past this package: an unreachable oracle, a
// timeout or an unusable answer counts as "not relevant" and is logged.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/time/rate"

	"reel-scout/logger"
	"reel-scout/metrics"
	"reel-scout/models"
)

// Options tunes a Classifier.
type Options struct {
	// RequestsPerSecond caps oracle calls. Zero disables limiting.
	RequestsPerSecond float64
	Timeout           time.Duration
	// Affirmative lists the answer words that mean relevant. Defaults to "yes".
	Affirmative []string
}

type Classifier struct {
	oracle      Oracle
	limiter     *rate.Limiter
	timeout     time.Duration
	affirmative map[string]struct{}
	log         logger.Logger
	metrics     *metrics.Metrics
}

func New(oracle Oracle, opts Options, log logger.Logger, m *metrics.Metrics) *Classifier {
	c := &Classifier{
		oracle:      oracle,
		timeout:     opts.Timeout,
		affirmative: make(map[string]struct{}),
		log:         log,
		metrics:     m,
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	tokens := opts.Affirmative
	if len(tokens) == 0 {
		tokens = []string{"yes"}
	}
	for _, t := range tokens {
		c.affirmative[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	return c
}

// Classify judges a caption against the session topic.
func (c *Classifier) Classify(ctx context.Context, caption, topic string, keywords []string) bool {
	if strings.TrimSpace(caption) == "" {
		return false
	}
	return c.judge(ctx, "caption", captionPrompt(caption, topic, keywords))
}

// ClassifyPage judges the aggregated text of a scanned page or ad.
func (c *Classifier) ClassifyPage(ctx context.Context, text, topic string, keywords []string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	return c.judge(ctx, "page", pagePrompt(text, topic, keywords))
}

func (c *Classifier) judge(ctx context.Context, kind, prompt string) (relevant bool) {
	defer func() {
		if r := recover(); r != nil {
			c.fail(kind, fmt.Errorf("%w: oracle panicked: %v", models.ErrClassifier, r))
			relevant = false
		}
	}()

	out, err := c.complete(ctx, prompt)
	if err != nil {
		c.fail(kind, err)
		return false
	}
	return c.isAffirmative(out)
}

func (c *Classifier) fail(kind string, err error) {
	c.log.Warn("classification failed, treating as not relevant",
		logger.String("kind", kind),
		logger.Error(err),
	)
	c.metrics.ClassifierFailed()
}

func (c *Classifier) complete(ctx context.Context, prompt string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: rate limiter: %v", models.ErrClassifier, err)
		}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	out, err := c.oracle.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrClassifier, err)
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("%w: empty oracle answer", models.ErrClassifier)
	}
	return out, nil
}

// isAffirmative reports whether any word of out is an affirmative token.
func (c *Classifier) isAffirmative(out string) bool {
	words := strings.FieldsFunc(strings.ToLower(out), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		if _, ok := c.affirmative[w]; ok {
			return true
		}
	}
	return false
}

// Topic is the oracle's expansion of a discovery prompt.
type Topic struct {
	Title    string   `json:"title"`
	Keywords []string `json:"keywords"`
	Hashtags []string `json:"hashtags"`
}

// GenerateTopic asks the oracle to turn a free-text request into a title,
// keywords and hashtags. Unlike Classify it reports failures.
func (c *Classifier) GenerateTopic(ctx context.Context, request string) (Topic, error) {
	out, err := c.complete(ctx, topicPrompt(request))
	if err != nil {
		return Topic{}, err
	}
	return parseTopic(out)
}

func parseTopic(out string) (Topic, error) {
	out = strings.TrimSpace(out)
	out = strings.TrimPrefix(out, "```json")
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(out, "```")
	out = strings.TrimSpace(out)

	var raw struct {
		Title    *string   `json:"title"`
		Keywords *[]string `json:"keywords"`
		Hashtags *[]string `json:"hashtags"`
	}
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return Topic{}, fmt.Errorf("%w: topic is not JSON: %v", models.ErrMalformedResponse, err)
	}
	if raw.Title == nil || raw.Keywords == nil || raw.Hashtags == nil {
		return Topic{}, fmt.Errorf("%w: topic is missing title, keywords or hashtags", models.ErrMalformedResponse)
	}

	t := Topic{Title: strings.TrimSpace(*raw.Title)}
	for _, k := range *raw.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			t.Keywords = append(t.Keywords, k)
		}
	}
	for _, h := range *raw.Hashtags {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if !strings.HasPrefix(h, "#") {
			h = "#" + h
		}
		t.Hashtags = append(t.Hashtags, h)
	}
	return t, nil
}
