package writer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	appconfig "gridflow/config"
	"gridflow/logger"
)

const slackPostMessageURL = "https://slack.com/api/chat.postMessage"

// SlackNotifier posts a run summary to the configured channel. An empty
// token disables notification entirely; a notification failure is logged
// but never fails a run that already produced its artifacts.
type SlackNotifier struct {
	config *appconfig.Config
	client *http.Client
	url    string
	log    *logger.Log
}

func NewSlackNotifier(cfg *appconfig.Config) *SlackNotifier {
	return &SlackNotifier{
		config: cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		url:    slackPostMessageURL,
		log:    logger.GetLogger(),
	}
}

// Enabled reports whether a token is configured.
func (n *SlackNotifier) Enabled() bool {
	return n.config.Notify.SlackToken != ""
}

// Notify posts the message to the configured channel.
func (n *SlackNotifier) Notify(ctx context.Context, message string) error {
	log := n.log.WithComponent("slack_notifier").WithFields(logger.Fields{
		"channel": n.config.Notify.SlackChannel,
	})
	if !n.Enabled() {
		log.Debug("slack token not configured, skipping notification")
		return nil
	}

	payload, err := json.Marshal(map[string]string{
		"channel": n.config.Notify.SlackChannel,
		"text":    message,
	})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+n.config.Notify.SlackToken)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post slack message: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read slack response: %w", err)
	}

	var result struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("decode slack response: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("slack rejected message: %s", result.Error)
	}

	log.Info("notification sent")
	return nil
}
