package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Discord sends notifications via Discord webhook.
type Discord struct {
	client     *http.Client
	webhookURL string
	now        func() time.Time
}

// NewDiscord creates a new Discord notifier.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{
		client:     &http.Client{Timeout: 10 * time.Second},
		webhookURL: webhookURL,
		now:        time.Now,
	}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, n *Notification) error {
	desc := fmt.Sprintf("**Query:** %s | **Score:** %d | **Confidence:** %d\n\n%s", n.Query, n.Score, n.Confidence, n.Body)
	if len(n.Picks) > 0 {
		desc += "\n\n" + pickLines(n.Picks, func(title, url string) string {
			return fmt.Sprintf("[%s](%s)", title, url)
		})
	}

	embed := map[string]any{
		"title":       fmt.Sprintf("🏆 %s", n.Title),
		"description": desc,
		"color":       0x2E8B57,
		"timestamp":   d.now().UTC().Format(time.RFC3339),
	}
	if n.URL != "" {
		embed["url"] = n.URL
	}

	body, err := json.Marshal(map[string]any{"embeds": []map[string]any{embed}})
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	resp, err := post(ctx, d.client, d.webhookURL, body, nil)
	if err != nil {
		return fmt.Errorf("send discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook status %d", resp.StatusCode)
	}
	return nil
}
