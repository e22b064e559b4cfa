// Package alert pushes pick changes to chat and webhook destinations.
package alert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/elonfeng/bestpick/pkg/rank"
)

// maxPicks is how many ranked picks a chat message lists.
const maxPicks = 5

// Notification is the data sent to alert destinations.
type Notification struct {
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Query      string            `json:"query"`
	URL        string            `json:"url,omitempty"`
	Score      int               `json:"score"`
	Confidence int               `json:"confidence"`
	Picks      []rank.RankedPick `json:"picks"`
}

// Notifier delivers alerts to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return m != nil && len(m.notifiers) > 0
}

// Broadcast sends a notification to all registered notifiers. Every
// notifier is tried; failures are joined.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// pickLines renders the leading picks, one per line, using link to format
// a title and URL for the destination's markup.
func pickLines(picks []rank.RankedPick, link func(title, url string) string) string {
	if len(picks) > maxPicks {
		picks = picks[:maxPicks]
	}
	var lines []string
	for _, p := range picks {
		title := p.Name
		if p.URL != "" {
			title = link(p.Name, p.URL)
		}
		line := fmt.Sprintf("%d. %s (%d)", p.Rank, title, p.Score)
		if len(p.Badges) > 0 {
			line += " " + strings.Join(p.Badges, ", ")
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func post(ctx context.Context, client *http.Client, url string, body []byte, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	return client.Do(req)
}
