package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"daqbridge/internal/config"
	"daqbridge/internal/record"
)

const userAgent = "daqbridge/0.1"

// Summary describes a finished capture session.
type Summary struct {
	Filename string
	Rows     int
	Target   int
	Reason   record.EndReason
	Status   string
	Duration time.Duration
}

// Service defines the notification surface.
type Service interface {
	NotifySessionFinished(ctx context.Context, s Summary) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := cfg.Notifications.RequestTimeoutDuration()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifySessionFinished(ctx context.Context, s Summary) error {
	name := filepath.Base(strings.TrimSpace(s.Filename))
	rows := fmt.Sprintf("%d rows", s.Rows)
	if s.Target > 0 {
		rows = fmt.Sprintf("%d/%d rows", s.Rows, s.Target)
	}
	duration := s.Duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	data := payload{
		title:   "daqbridge - Capture Complete",
		message: fmt.Sprintf("%s: %s in %s", name, rows, duration),
		tags:    []string{"daqbridge", "capture", "completed"},
	}
	if s.Reason.IsError() {
		data.title = "daqbridge - Capture Failed"
		data.message = fmt.Sprintf("%s: %s (%s)\n%s", name, rows, s.Reason, strings.TrimSpace(s.Status))
		data.tags = []string{"daqbridge", "capture", "error"}
		data.priority = "high"
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "daqbridge - Test",
		message:  "Notification system test",
		tags:     []string{"daqbridge", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifySessionFinished(context.Context, Summary) error { return nil }
func (noopService) TestNotification(context.Context) error               { return nil }
