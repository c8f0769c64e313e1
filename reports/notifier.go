package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"reel-scout/logger"
	"reel-scout/models"
)

// SlackMessage defines the JSON structure expected by Slack API
type SlackMessage struct {
	Text string `json:"text"`
}

// SlackNotifier posts operator alerts to an incoming webhook. An empty
// webhook URL turns every alert into a log line.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
	log        logger.Logger
	now        func() time.Time
}

func NewSlackNotifier(webhookURL string, log logger.Logger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		log:        log,
		now:        time.Now,
	}
}

// SessionSuspended tells the operator a session stopped and needs attention,
// typically a fresh login for its account.
func (n *SlackNotifier) SessionSuspended(ctx context.Context, s *models.ScraperSession, reason error) error {
	cause := "operator request"
	if reason != nil {
		cause = reason.Error()
	}
	body := fmt.Sprintf(
		"⚠️ *reel-scout session suspended*\n"+
			"*Session:* %s (%s)\n"+
			"*Phase:* %s\n"+
			"*Reels seen:* %d (%d relevant)\n"+
			"*Reason:* %s\n"+
			"*Time:* %s",
		s.Name, s.ID, s.Phase, s.ReelsSeen, s.RelevantReelsSeen, cause, n.now().Format("15:04:05"),
	)
	return n.Send(ctx, body)
}

func (n *SlackNotifier) Send(ctx context.Context, text string) error {
	if n.webhookURL == "" {
		n.log.Info("slack webhook not configured, alert logged only", logger.String("text", text))
		return nil
	}

	payload, err := json.Marshal(SlackMessage{Text: text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post slack alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack API returned error: %d", resp.StatusCode)
	}
	return nil
}
